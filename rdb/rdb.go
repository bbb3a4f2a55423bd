package rdb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// 配置类错误
var (
	ErrUnknownType                   = errors.New("unknown attribute type")
	ErrMissingCustomValidator        = errors.New("custom attribute requires a validator")
	ErrUnknownValidator              = errors.New("validator is not registered")
	ErrInvalidDeclaration            = errors.New("invalid attribute declaration")
	ErrMissingQuery                  = errors.New("query is not defined")
	ErrConnectionDefinitionAmbiguous = errors.New("both connection factory and connection are defined")
	ErrMissingConnection             = errors.New("neither connection factory nor connection is defined")
	ErrInvalidOptions                = errors.New("invalid options")
)

// 不变量错误
var (
	ErrPrimaryKeyAlreadyDefined = errors.New("primary key must not be defined")
	ErrPrimaryKeyRequired       = errors.New("primary key is required")
	ErrRecordNotFoundAfterWrite = errors.New("record not found after write")
)

// 连接生命周期错误
var (
	ErrConnectionStillRunning = errors.New("connection is still running")
	ErrConnectionNotRunning   = errors.New("connection is not running")
	ErrConnectionEnded        = errors.New("connection has ended")
)

// ConfigurationError 模型或属性声明不合法，在首次使用时返回
type ConfigurationError struct {
	Message string
	Cause   error
}

func NewConfigurationError(cause error, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *ConfigurationError) Error() string {
	if e.Cause == nil {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// ValidationError 记录属性校验失败
type ValidationError struct {
	ModelName string
	Props     map[string]any
	Errors    map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e.Errors[name], ", ")))
	}
	return fmt.Sprintf("validation failed for %s: %s", e.ModelName, strings.Join(parts, "; "))
}

// InvariantError 主键策略等运行期约束被破坏
type InvariantError struct {
	ModelName string
	Message   string
	Cause     error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated for %s: %s: %v", e.ModelName, e.Message, e.Cause)
}

func (e *InvariantError) Unwrap() error {
	return e.Cause
}

// LifecycleError 连接状态机被非法驱动
type LifecycleError struct {
	Op    string
	State string
	Cause error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s in state %s: %v", e.Op, e.State, e.Cause)
}

func (e *LifecycleError) Unwrap() error {
	return e.Cause
}

// TemplateError 查询模板渲染失败，例如缺少命名参数
type TemplateError struct {
	Template string
	Cause    error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("render template %q failed: %v", e.Template, e.Cause)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}
