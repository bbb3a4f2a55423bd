package log

import (
	"sync/atomic"

	"github.com/hatlonely/sqlmodel/log/logger"
	"github.com/hatlonely/sqlmodel/log/writer"
	"github.com/hatlonely/sqlmodel/ref"
	"github.com/pkg/errors"
)

var defaultLogger atomic.Value

func init() {
	ref.MustRegisterT[*logger.SLog](logger.NewSLogWithOptions)
	ref.MustRegisterT[*writer.ConsoleWriter](writer.NewConsoleWriterWithOptions)
	ref.MustRegisterT[*writer.FileWriter](writer.NewFileWriterWithOptions)

	// 默认向终端输出 text 格式日志
	slog, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	SetDefault(slog)
}

func Default() logger.Logger {
	return defaultLogger.Load().(*holder).logger
}

// SetDefault 替换进程默认日志器
func SetDefault(l logger.Logger) {
	defaultLogger.Store(&holder{logger: l})
}

type holder struct {
	logger logger.Logger
}

// Discard 丢弃所有输出的日志器
func Discard() logger.Logger {
	return logger.Nop{}
}

// NewLoggerWithOptions 通过 ref 创建日志器，Namespace 为空时使用 logger 包
func NewLoggerWithOptions(options *ref.TypeOptions) (logger.Logger, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	namespace := options.Namespace
	if namespace == "" {
		namespace = "github.com/hatlonely/sqlmodel/log/logger"
	}
	obj, err := ref.New(namespace, options.Type, options.Options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}

	l, ok := obj.(logger.Logger)
	if !ok {
		return nil, errors.Errorf("%s:%s does not implement Logger", namespace, options.Type)
	}
	return l, nil
}
