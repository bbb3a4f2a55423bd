package schema

import "sync"

// DefaultRegistry 进程级的编译缓存
var DefaultRegistry = NewRegistry()

type registryEntry struct {
	once   sync.Once
	schema *Schema
	err    error
}

// Registry 按模型标识缓存编译结果，每个标识只编译一次
//
// 编译失败同样会被缓存，同一个模型后续调用得到相同的错误。
type Registry struct {
	entries sync.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Load 返回 key 对应的 Schema，首次调用时规范化并编译 raw
func (r *Registry) Load(key string, raw map[string]any) (*Schema, error) {
	value, _ := r.entries.LoadOrStore(key, &registryEntry{})
	entry := value.(*registryEntry)
	entry.once.Do(func() {
		attrs, err := Normalize(raw)
		if err != nil {
			entry.err = err
			return
		}
		entry.schema, entry.err = Compile(attrs)
	})
	return entry.schema, entry.err
}

// Forget 删除缓存，仅用于测试或重新声明模型
func (r *Registry) Forget(key string) {
	r.entries.Delete(key)
}
