package database

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormOptions struct {
	Driver   string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite"`
	DSN      string `cfg:"dsn" validate:"required"`
	MaxConns int    `cfg:"maxConns" def:"10"`
	MaxIdle  int    `cfg:"maxIdle" def:"5"`
}

// Gorm 复用已有 *gorm.DB 的连接池执行原生语句
type Gorm struct {
	db *gorm.DB
}

// NewGormWithOptions 按驱动打开 gorm 连接
func NewGormWithOptions(options *GormOptions) (*Gorm, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	var dialector gorm.Dialector
	switch options.Driver {
	case "mysql":
		dialector = mysql.Open(options.DSN)
	case "sqlite":
		dialector = sqlite.Open(options.DSN)
	default:
		return nil, errors.Errorf("unsupported driver: %s", options.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "gorm.Open failed")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB failed")
	}
	if options.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(options.MaxConns)
	}
	if options.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(options.MaxIdle)
	}

	return &Gorm{db: db}, nil
}

// NewGorm 包装调用方已经打开的 *gorm.DB
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) DB() *gorm.DB {
	return g.db
}

func (g *Gorm) Execute(ctx context.Context, query string, args ...any) (*Result, error) {
	return execute(ctx, g.db.ConnPool, query, args...)
}

// Factory 从 gorm 的连接池中借出专用连接，Close 时归还
func (g *Gorm) Factory() Factory {
	return func(ctx context.Context) (Conn, error) {
		sqlDB, err := g.db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "get sql.DB failed")
		}
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "acquire connection failed")
		}
		return &pooledConn{conn: conn}, nil
	}
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
