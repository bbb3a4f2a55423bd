package writer

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFileWriter(t *testing.T) {
	Convey("测试 FileWriter", t, func() {
		path := filepath.Join(t.TempDir(), "nested", "dir", "app.log")

		Convey("自动创建目录并追加写入", func() {
			w, err := NewFileWriterWithOptions(&FileWriterOptions{Path: path})
			So(err, ShouldBeNil)
			_, err = w.Write([]byte("first\n"))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			w, err = NewFileWriterWithOptions(&FileWriterOptions{Path: path})
			So(err, ShouldBeNil)
			_, err = w.Write([]byte("second\n"))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)

			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "first\nsecond\n")
		})

		Convey("关闭后写入失败，重复关闭无副作用", func() {
			w, err := NewFileWriterWithOptions(&FileWriterOptions{Path: path})
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			_, err = w.Write([]byte("x"))
			So(err, ShouldNotBeNil)
		})

		Convey("缺少路径", func() {
			_, err := NewFileWriterWithOptions(&FileWriterOptions{})
			So(err, ShouldNotBeNil)
			_, err = NewFileWriterWithOptions(nil)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestConsoleWriter(t *testing.T) {
	Convey("测试 ConsoleWriter", t, func() {
		So(NewConsoleWriterWithOptions(nil).writer, ShouldEqual, os.Stdout)
		So(NewConsoleWriterWithOptions(&ConsoleWriterOptions{Target: "stderr"}).writer, ShouldEqual, os.Stderr)

		var w Writer = NewConsoleWriterWithOptions(&ConsoleWriterOptions{Target: "stdout"})
		So(w.Close(), ShouldBeNil)
	})
}
