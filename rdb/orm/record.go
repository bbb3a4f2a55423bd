package orm

import (
	"context"

	"github.com/hatlonely/sqlmodel/rdb/query"
	"github.com/hatlonely/sqlmodel/rdb/schema"
	"github.com/pkg/errors"
)

// MessageUndeclared 构造记录时出现未声明的属性
const MessageUndeclared = "is not a declared attribute"

// RecordState 记录在内存中的状态
type RecordState int

const (
	StateNew RecordState = iota
	StateCreated
	StateUpdated
	StateFound
	StateDeleted
)

func (s RecordState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateCreated:
		return "created"
	case StateUpdated:
		return "updated"
	case StateFound:
		return "found"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

// Record 模型的一条记录，只包含已声明的属性
type Record struct {
	model  *Model
	values map[string]any
	state  RecordState
}

func (r *Record) Model() *Model {
	return r.model
}

func (r *Record) State() RecordState {
	return r.state
}

// Get 未设置的属性返回 nil
func (r *Record) Get(name string) any {
	return r.values[name]
}

// Set 校验后设置单个属性，nil 表示清除
func (r *Record) Set(name string, value any) error {
	errs, err := r.model.schema.ValidateValue(name, value)
	if err != nil {
		return errors.WithMessagef(err, "model %s", r.model.name)
	}
	if len(errs) > 0 {
		return r.model.validationError(map[string]any{name: value}, schema.ValidationResult{name: errs})
	}

	if schema.IsNull(value) {
		delete(r.values, name)
	} else {
		r.values[name] = value
	}
	return nil
}

// Values 返回已设置属性的副本
func (r *Record) Values() map[string]any {
	values := make(map[string]any, len(r.values))
	for name, value := range r.values {
		values[name] = value
	}
	return values
}

func (r *Record) PrimaryKeyValue() any {
	return r.values[r.model.primaryKey]
}

// DatabaseValues 返回所有已声明属性，未设置的为 nil，另外包含 primary_key_value
func (r *Record) DatabaseValues() map[string]any {
	attrs := r.model.schema.Attributes()
	values := make(map[string]any, len(attrs)+1)
	for _, attr := range attrs {
		values[attr.Name] = r.values[attr.Name]
	}
	values[query.ParamPrimaryKeyValue] = r.PrimaryKeyValue()
	return values
}

// SetDatabaseValues 用数据库中的值覆盖所有已声明属性，未声明的列被忽略
//
// 值先按属性类型转换再校验，校验失败时记录保持不变。
func (r *Record) SetDatabaseValues(row map[string]any) error {
	values := make(map[string]any, len(row))
	for _, attr := range r.model.schema.Attributes() {
		if value, ok := row[attr.Name]; ok && !schema.IsNull(value) {
			values[attr.Name] = attr.Coerce(value)
		}
	}

	if result := r.model.schema.Validate(values); !result.Valid() {
		return r.model.validationError(row, result)
	}
	r.values = values
	return nil
}

func (r *Record) Create(ctx context.Context, choice QueryChoice) (any, error) {
	return r.model.Create(ctx, r, choice)
}

func (r *Record) Update(ctx context.Context) (any, error) {
	return r.model.Update(ctx, r)
}

func (r *Record) Save(ctx context.Context) (any, error) {
	return r.model.Save(ctx, r)
}

func (r *Record) FindOrCreate(ctx context.Context) error {
	return r.model.FindOrCreate(ctx, r)
}

func (r *Record) Upsert(ctx context.Context) error {
	return r.model.Upsert(ctx, r)
}

func (r *Record) Delete(ctx context.Context) (bool, error) {
	return r.model.Delete(ctx, r)
}
