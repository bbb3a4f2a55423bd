package strgen

import (
	"github.com/hatlonely/sqlmodel/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegisterT[*UUIDGenerator](NewUUIDGeneratorWithOptions)
}

// StrGenerator 生成字符串 ID，用于 uuid 主键策略
type StrGenerator interface {
	Generate() string
}

// NewStrGeneratorWithOptions 通过 ref 创建生成器，Namespace 为空时使用本包
func NewStrGeneratorWithOptions(options *ref.TypeOptions) (StrGenerator, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	namespace := options.Namespace
	if namespace == "" {
		namespace = "github.com/hatlonely/sqlmodel/uid/strgen"
	}
	obj, err := ref.New(namespace, options.Type, options.Options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	gen, ok := obj.(StrGenerator)
	if !ok {
		return nil, errors.Errorf("%s:%s is not a StrGenerator", namespace, options.Type)
	}
	return gen, nil
}
