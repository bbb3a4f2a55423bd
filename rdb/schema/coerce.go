package schema

import (
	"strconv"

	"github.com/google/uuid"
)

// Coerce 将驱动返回的值转换为属性类型期望的形式，无法转换时原样返回
//
// mysql 的 BOOLEAN 字段返回 int64，DECIMAL 和未开启 parseTime 的时间字段返回 []byte。
func (attr Attribute) Coerce(value any) any {
	if b, ok := value.([]byte); ok {
		if attr.Type == TypeUUID && len(b) == 16 {
			if u, err := uuid.FromBytes(b); err == nil {
				return u.String()
			}
		}
		value = string(b)
	}

	switch attr.Type {
	case TypeInt:
		switch v := value.(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case uint64:
			return int64(v)
		case string:
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				return i
			}
		}
	case TypeFloat:
		switch v := value.(type) {
		case float32:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	case TypeBoolean:
		switch v := value.(type) {
		case int64:
			return v != 0
		case int:
			return v != 0
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	case TypeUUID:
		if u, ok := value.(uuid.UUID); ok {
			return u.String()
		}
	}
	return value
}
