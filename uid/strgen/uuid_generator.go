package strgen

import (
	"encoding/hex"

	"github.com/google/uuid"
)

type UUIDOptions struct {
	Version string `cfg:"version" def:"v4" validate:"oneof=v1 v4 v6 v7"`
	// WithHyphens 是否输出 8-4-4-4-12 的标准格式，uuid 类型的属性要求标准格式
	WithHyphens bool `cfg:"withHyphens"`
}

type UUIDGenerator struct {
	version     string
	withHyphens bool
}

func NewUUIDGeneratorWithOptions(options *UUIDOptions) *UUIDGenerator {
	if options == nil {
		options = &UUIDOptions{Version: "v4"}
	}
	version := options.Version
	if version == "" {
		version = "v4"
	}
	return &UUIDGenerator{
		version:     version,
		withHyphens: options.WithHyphens,
	}
}

// NewPrimaryKeyGenerator 生成标准格式的 v4 uuid
func NewPrimaryKeyGenerator() *UUIDGenerator {
	return NewUUIDGeneratorWithOptions(&UUIDOptions{Version: "v4", WithHyphens: true})
}

func (g *UUIDGenerator) Generate() string {
	var u uuid.UUID
	switch g.version {
	case "v1":
		u = uuid.Must(uuid.NewUUID())
	case "v6":
		u = uuid.Must(uuid.NewV6())
	case "v7":
		u = uuid.Must(uuid.NewV7())
	default:
		u = uuid.New()
	}

	if g.withHyphens {
		return u.String()
	}
	return hex.EncodeToString(u[:])
}
