package schema

import (
	"math"
	"reflect"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/hatlonely/sqlmodel/rdb"
	"github.com/jinzhu/now"
	"github.com/pkg/errors"
)

const MessageRequired = "required"

const (
	MessageString   = "must be string"
	MessageNumber   = "must be a number"
	MessageInteger  = "must be an integer"
	MessageBoolean  = "must be a boolean"
	MessageDatetime = "must be a parsable date string"
	MessageUUID     = "must be a valid uuid string"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

var wellKnownChecks = map[Type]func(value any) []string{
	TypeString:   checkString,
	TypeInt:      checkInt,
	TypeFloat:    checkFloat,
	TypeBoolean:  checkBoolean,
	TypeDatetime: checkDatetime,
	TypeUUID:     checkUUID,
}

// ValidationResult 属性名到错误列表的映射，只包含未通过的属性
type ValidationResult map[string][]string

// Valid 是否全部通过
func (r ValidationResult) Valid() bool {
	return len(r) == 0
}

// Schema 编译后的属性集合，创建后只读
type Schema struct {
	attributes Attributes
	index      map[string]int
	validators []func(value any) []string
}

// Compile 为每个属性生成校验函数
func Compile(attrs Attributes) (*Schema, error) {
	s := &Schema{
		attributes: make(Attributes, len(attrs)),
		index:      make(map[string]int, len(attrs)),
		validators: make([]func(value any) []string, len(attrs)),
	}
	copy(s.attributes, attrs)

	for i, attr := range s.attributes {
		if _, ok := s.index[attr.Name]; ok {
			return nil, rdb.NewConfigurationError(rdb.ErrInvalidDeclaration, "attribute %q declared twice", attr.Name)
		}
		fn, err := attr.compile()
		if err != nil {
			return nil, err
		}
		s.index[attr.Name] = i
		s.validators[i] = fn
	}
	return s, nil
}

func (attr Attribute) compile() (func(value any) []string, error) {
	check, wellKnown := wellKnownChecks[attr.Type]
	if !wellKnown && attr.Type != TypeCustom {
		return nil, rdb.NewConfigurationError(rdb.ErrUnknownType, "attribute %q has type %q", attr.Name, attr.Type)
	}
	if attr.Type == TypeCustom && attr.Validate == nil {
		return nil, rdb.NewConfigurationError(rdb.ErrMissingCustomValidator, "attribute %q", attr.Name)
	}

	required := attr.Required
	custom := attr.Validate
	return func(value any) []string {
		if IsNull(value) {
			if required {
				return []string{MessageRequired}
			}
			return []string{}
		}

		value = indirect(value)
		errs := []string{}
		if check != nil {
			errs = append(errs, check(value)...)
		}
		if custom != nil {
			errs = append(errs, custom(value)...)
		}
		return errs
	}, nil
}

// Attributes 返回属性定义副本
func (s *Schema) Attributes() Attributes {
	attrs := make(Attributes, len(s.attributes))
	copy(attrs, s.attributes)
	return attrs
}

// Attribute 按名称查找属性
func (s *Schema) Attribute(name string) (Attribute, bool) {
	i, ok := s.index[name]
	if !ok {
		return Attribute{}, false
	}
	return s.attributes[i], true
}

// Has 属性是否已声明
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// ValidateValue 校验单个属性值，未声明的属性返回错误
func (s *Schema) ValidateValue(name string, value any) ([]string, error) {
	i, ok := s.index[name]
	if !ok {
		return nil, errors.Errorf("attribute %s is not declared", name)
	}
	return s.validators[i](value), nil
}

// Validate 校验所有已声明属性
func (s *Schema) Validate(props map[string]any) ValidationResult {
	result := ValidationResult{}
	for i, attr := range s.attributes {
		if errs := s.validators[i](props[attr.Name]); len(errs) > 0 {
			result[attr.Name] = errs
		}
	}
	return result
}

// IsNull nil 或者 nil 指针都视为未定义
func IsNull(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func indirect(value any) any {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv.Interface()
}

func isNumber(value any) (float64, bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func checkString(value any) []string {
	if reflect.ValueOf(value).Kind() != reflect.String {
		return []string{MessageString}
	}
	return nil
}

func checkInt(value any) []string {
	f, ok := isNumber(value)
	if !ok {
		return []string{MessageNumber, MessageInteger}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
		return []string{MessageInteger}
	}
	return nil
}

func checkFloat(value any) []string {
	if _, ok := isNumber(value); !ok {
		return []string{MessageNumber}
	}
	return nil
}

func checkBoolean(value any) []string {
	if reflect.ValueOf(value).Kind() != reflect.Bool {
		return []string{MessageBoolean}
	}
	return nil
}

func checkDatetime(value any) []string {
	switch v := value.(type) {
	case time.Time:
		return nil
	case string:
		if _, err := ParseDatetime(v); err != nil {
			return []string{MessageDatetime}
		}
		return nil
	}
	if _, ok := isNumber(value); ok {
		return nil
	}
	return []string{MessageDatetime}
}

func checkUUID(value any) []string {
	switch v := value.(type) {
	case uuid.UUID:
		return nil
	case string:
		if uuidPattern.MatchString(v) {
			return nil
		}
	}
	return []string{MessageUUID}
}

var timeFormats = []string{
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999+07:00",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDatetime 解析数据库及常见格式的时间字符串
func ParseDatetime(s string) (time.Time, error) {
	for _, format := range timeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	t, err := now.Parse(s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "cannot parse time string %s", s)
	}
	return t, nil
}
