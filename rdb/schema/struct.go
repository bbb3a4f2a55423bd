package schema

import (
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hatlonely/sqlmodel/rdb"
)

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// 结构体 tag 中兼容的类型别名
var typeAliases = map[string]Type{
	"bool": TypeBoolean,
	"date": TypeDatetime,
	"time": TypeDatetime,
}

// Declaration 从结构体 tag 解析出的模型声明
type Declaration struct {
	TableName  string
	PrimaryKey string
	// Attributes 可以直接作为 ModelOptions.Attributes
	Attributes map[string]any
}

// FromStruct 从结构体构建模型声明
// 支持的 tag 格式：
//   - `rdb:"column_name,type=uuid,required,primary,validator=nonEmpty"`
//   - `table:"table_name"` 写在任意字段上，用于指定表名
//
// 没有 rdb tag 的导出字段使用字段名作为列名，类型由 Go 类型推断；`rdb:"-"` 跳过该字段。
func FromStruct(v any) (*Declaration, error) {
	rt := reflect.TypeOf(v)
	if rt != nil && rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, rdb.NewConfigurationError(rdb.ErrInvalidDeclaration, "expected struct, got %T", v)
	}

	decl := &Declaration{
		TableName:  strings.ToLower(rt.Name()),
		Attributes: map[string]any{},
	}

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		if table := field.Tag.Get("table"); table != "" {
			decl.TableName = table
		}

		tag := field.Tag.Get("rdb")
		if tag == "-" {
			continue
		}

		attr, primary, err := parseFieldTag(field, tag)
		if err != nil {
			return nil, err
		}
		if _, ok := decl.Attributes[attr.Name]; ok {
			return nil, rdb.NewConfigurationError(rdb.ErrInvalidDeclaration, "%s: attribute %q declared twice", rt.Name(), attr.Name)
		}
		decl.Attributes[attr.Name] = attr

		if primary {
			if decl.PrimaryKey != "" {
				return nil, rdb.NewConfigurationError(rdb.ErrInvalidDeclaration, "%s: composite primary key %s, %s", rt.Name(), decl.PrimaryKey, attr.Name)
			}
			decl.PrimaryKey = attr.Name
		}
	}

	return decl, nil
}

// parseFieldTag 解析字段的 rdb tag
func parseFieldTag(field reflect.StructField, tag string) (Attribute, bool, error) {
	attr := Attribute{
		Name: field.Name,
		Type: inferType(field.Type),
	}
	var primary bool

	parts := strings.Split(tag, ",")
	// 第一部分是列名（如果指定）
	if parts[0] != "" && !strings.Contains(parts[0], "=") {
		attr.Name = strings.TrimSpace(parts[0])
		parts = parts[1:]
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if key, value, ok := strings.Cut(part, "="); ok {
			switch strings.TrimSpace(key) {
			case "type":
				attr.Type = Type(strings.TrimSpace(value))
				if alias, ok := typeAliases[string(attr.Type)]; ok {
					attr.Type = alias
				}
			case "validator":
				attr.Validator = strings.TrimSpace(value)
			}
			continue
		}

		switch part {
		case "required", "not_null":
			attr.Required = true
		case "primary", "pk":
			primary = true
		}
	}

	if attr.Type == "" {
		return Attribute{}, false, rdb.NewConfigurationError(rdb.ErrUnknownType, "field %s: cannot infer attribute type from %s", field.Name, field.Type)
	}
	return attr, primary, nil
}

// inferType 从 Go 类型推断属性类型，无法推断时返回空
func inferType(t reflect.Type) Type {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case timeType:
		return TypeDatetime
	case uuidType:
		return TypeUUID
	}

	switch t.Kind() {
	case reflect.String:
		return TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInt
	case reflect.Float32, reflect.Float64:
		return TypeFloat
	case reflect.Bool:
		return TypeBoolean
	}
	return ""
}
