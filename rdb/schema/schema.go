package schema

import (
	"reflect"
	"sort"
	"sync"

	"github.com/hatlonely/sqlmodel/rdb"
	"github.com/pkg/errors"
)

// Type 属性类型标签
type Type string

const (
	TypeString   Type = "string"
	TypeInt      Type = "int"
	TypeFloat    Type = "float"
	TypeBoolean  Type = "boolean"
	TypeDatetime Type = "datetime"
	TypeUUID     Type = "uuid"
	TypeCustom   Type = "custom"
)

// ValidateFunc 自定义校验函数，返回空切片表示通过
type ValidateFunc func(value any) []string

// Attribute 规范化后的属性定义
type Attribute struct {
	Name     string `cfg:"name"`
	Type     Type   `cfg:"type"`
	Required bool   `cfg:"required"`
	// Validator 已注册的校验函数名，配置文件中使用
	Validator string       `cfg:"validator"`
	Validate  ValidateFunc `cfg:"-"`
}

// Attributes 按名称排序的属性集合
type Attributes []Attribute

// Names 返回属性名列表
func (attrs Attributes) Names() []string {
	names := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		names = append(names, attr.Name)
	}
	return names
}

// Declarations 还原为 Normalize 可接受的声明形式
func (attrs Attributes) Declarations() map[string]any {
	raw := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		raw[attr.Name] = attr
	}
	return raw
}

// Normalize 将简写和完整声明统一为 Attributes
//
// 支持的声明形式：
//   - "string"：类型简写，required 为 false
//   - Attribute / *Attribute
//   - map[string]any：配置文件形式，包含 type、required、validator
func Normalize(raw map[string]any) (Attributes, error) {
	attrs := make(Attributes, 0, len(raw))
	for name, decl := range raw {
		attr, err := normalizeOne(name, decl)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].Name < attrs[j].Name
	})
	return attrs, nil
}

func normalizeOne(name string, decl any) (Attribute, error) {
	var attr Attribute
	switch v := decl.(type) {
	case string:
		attr = Attribute{Type: Type(v)}
	case Type:
		attr = Attribute{Type: v}
	case Attribute:
		attr = v
	case *Attribute:
		if v == nil {
			return Attribute{}, rdb.NewConfigurationError(rdb.ErrInvalidDeclaration, "attribute %q is nil", name)
		}
		attr = *v
	case map[string]any:
		typ, _ := v["type"].(string)
		attr = Attribute{Type: Type(typ), Required: truthy(v["required"])}
		if validator, ok := v["validator"].(string); ok {
			attr.Validator = validator
		}
	default:
		return Attribute{}, rdb.NewConfigurationError(rdb.ErrInvalidDeclaration, "attribute %q has unsupported declaration %T", name, decl)
	}

	attr.Name = name
	if attr.Validate == nil && attr.Validator != "" {
		fn, ok := LookupValidator(attr.Validator)
		if !ok {
			return Attribute{}, rdb.NewConfigurationError(rdb.ErrUnknownValidator, "attribute %q references validator %q", name, attr.Validator)
		}
		attr.Validate = fn
	}
	return attr, nil
}

// truthy 按 js 语义判断真值
func truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.Len() != 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && f == f
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

var validators sync.Map

// RegisterValidator 注册具名校验函数，供配置文件中的 validator 字段引用
func RegisterValidator(name string, fn ValidateFunc) error {
	if name == "" || fn == nil {
		return errors.New("validator name and function are required")
	}
	if existing, ok := validators.Load(name); ok {
		if reflect.ValueOf(existing).Pointer() == reflect.ValueOf(fn).Pointer() {
			return nil
		}
		return errors.Errorf("validator %s already registered with different function", name)
	}
	validators.Store(name, fn)
	return nil
}

func MustRegisterValidator(name string, fn ValidateFunc) {
	if err := RegisterValidator(name, fn); err != nil {
		panic(err)
	}
}

// LookupValidator 查找具名校验函数
func LookupValidator(name string) (ValidateFunc, bool) {
	value, ok := validators.Load(name)
	if !ok {
		return nil, false
	}
	return value.(ValidateFunc), true
}
