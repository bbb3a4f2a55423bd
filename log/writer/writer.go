package writer

import (
	"io"
)

// Writer 日志输出器，日志器关闭时一并关闭
type Writer interface {
	io.Writer
	io.Closer
}
