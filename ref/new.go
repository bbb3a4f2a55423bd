package ref

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/hatlonely/sqlmodel/cfg"
)

type constructor struct {
	originalFunc any
	newFunc      reflect.Value
	optionsType  reflect.Type
	returnsError bool
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func newConstructor(newFunc any) (*constructor, error) {
	funcValue := reflect.ValueOf(newFunc)
	if funcValue.Kind() != reflect.Func {
		return nil, fmt.Errorf("newFunc must be a function")
	}

	funcType := funcValue.Type()
	if funcType.NumIn() > 1 {
		return nil, fmt.Errorf("newFunc must have 0 or 1 input parameters, got %d", funcType.NumIn())
	}
	if funcType.NumOut() != 1 && funcType.NumOut() != 2 {
		return nil, fmt.Errorf("newFunc must have 1 or 2 return values, got %d", funcType.NumOut())
	}
	if funcType.NumOut() == 2 && !funcType.Out(1).Implements(errorType) {
		return nil, fmt.Errorf("second return value must be error type")
	}

	c := &constructor{
		originalFunc: newFunc,
		newFunc:      funcValue,
		returnsError: funcType.NumOut() == 2,
	}
	if funcType.NumIn() == 1 {
		c.optionsType = funcType.In(0)
	}
	return c, nil
}

func (c *constructor) new(options any) (any, error) {
	var args []reflect.Value
	if c.optionsType != nil {
		arg, err := c.convertOptions(options)
		if err != nil {
			return nil, fmt.Errorf("failed to convert options: %w", err)
		}
		args = []reflect.Value{arg}
	}

	results := c.newFunc.Call(args)
	if c.returnsError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return results[0].Interface(), nil
}

// Convertable 可以自行转换为构造函数参数类型的配置数据
type Convertable interface {
	// ConvertTo 将配置数据转换为 object 指向的对象
	ConvertTo(object any) error
}

// convertOptions 将 options 转换为构造函数的参数类型
//
// 参数类型匹配时直接传入；Convertable 调用其 ConvertTo；
// 其余情况（包括 nil 和配置文件解析出的 map）通过 cfg.Decode 转换，会设置默认值并校验。
func (c *constructor) convertOptions(options any) (reflect.Value, error) {
	if options != nil {
		value := reflect.ValueOf(options)
		if value.Type().AssignableTo(c.optionsType) {
			return value, nil
		}
	}

	isPtr := c.optionsType.Kind() == reflect.Ptr
	var target reflect.Value
	if isPtr {
		target = reflect.New(c.optionsType.Elem())
	} else {
		target = reflect.New(c.optionsType)
	}

	if convertable, ok := options.(Convertable); ok {
		if err := convertable.ConvertTo(target.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("failed to convert convertable to %v: %w", c.optionsType, err)
		}
	} else if err := cfg.Decode(options, target.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("failed to decode options to %v: %w", c.optionsType, err)
	}

	if isPtr {
		return target, nil
	}
	return target.Elem(), nil
}

var nameConstructorMap sync.Map

func isSameFunc(func1, func2 any) bool {
	if func1 == nil || func2 == nil {
		return func1 == func2
	}
	return reflect.ValueOf(func1).Pointer() == reflect.ValueOf(func2).Pointer()
}

func Register(namespace string, type_ string, newFunc any) error {
	key := namespace + ":" + type_

	if existing, ok := nameConstructorMap.Load(key); ok {
		if isSameFunc(existing.(*constructor).originalFunc, newFunc) {
			return nil
		}
		return fmt.Errorf("constructor for %s already registered with different function", key)
	}

	constructor, err := newConstructor(newFunc)
	if err != nil {
		return fmt.Errorf("failed to create constructor: %w", err)
	}

	nameConstructorMap.Store(key, constructor)
	return nil
}

// typeKey 以包路径和类型名作为默认的 namespace 和 type
func typeKey[T any]() (string, string, error) {
	tType := reflect.TypeOf((*T)(nil)).Elem()
	for tType.Kind() == reflect.Ptr {
		tType = tType.Elem()
	}
	if tType.PkgPath() == "" || tType.Name() == "" {
		return "", "", fmt.Errorf("cannot determine package path or type name for type %v", tType)
	}
	return tType.PkgPath(), tType.Name(), nil
}

func RegisterT[T any](newFunc any) error {
	namespace, type_, err := typeKey[T]()
	if err != nil {
		return err
	}
	return Register(namespace, type_, newFunc)
}

func MustRegister(namespace string, type_ string, newFunc any) {
	if err := Register(namespace, type_, newFunc); err != nil {
		panic(err)
	}
}

func MustRegisterT[T any](newFunc any) {
	if err := RegisterT[T](newFunc); err != nil {
		panic(err)
	}
}

// TypeOptions 配置文件中描述一个可构造对象
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type" validate:"required"`
	Options   any    `cfg:"options"`
}

func New(namespace string, type_ string, options any) (any, error) {
	value, ok := nameConstructorMap.Load(namespace + ":" + type_)
	if !ok {
		return nil, fmt.Errorf("constructor not found for %s:%s", namespace, type_)
	}
	return value.(*constructor).new(options)
}

func NewT[T any](options any) (T, error) {
	var t T
	namespace, type_, err := typeKey[T]()
	if err != nil {
		return t, err
	}

	obj, err := New(namespace, type_, options)
	if err != nil {
		return t, err
	}

	result, ok := obj.(T)
	if !ok {
		return t, fmt.Errorf("created object is not of type %T", t)
	}
	return result, nil
}
