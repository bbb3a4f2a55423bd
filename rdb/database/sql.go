package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLOptions struct {
	Driver          string        `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite3"`
	DSN             string        `cfg:"dsn"`
	Host            string        `cfg:"host" def:"localhost"`
	Port            string        `cfg:"port" def:"3306"`
	Database        string        `cfg:"database"`
	Username        string        `cfg:"username"`
	Password        string        `cfg:"password"`
	Charset         string        `cfg:"charset" def:"utf8mb4"`
	MaxConns        int           `cfg:"maxConns" def:"10"`
	MaxIdle         int           `cfg:"maxIdle" def:"5"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime" def:"5m"`
	PingTimeout     time.Duration `cfg:"pingTimeout" def:"5s"`
}

// SQL 基于 database/sql 的连接池
type SQL struct {
	db     *sql.DB
	driver string
}

func (options *SQLOptions) dsn() (string, error) {
	if options.DSN != "" {
		return options.DSN, nil
	}
	switch options.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
			options.Username, options.Password, options.Host, options.Port, options.Database, options.Charset), nil
	case "sqlite3":
		return options.Database, nil
	}
	return "", fmt.Errorf("unsupported driver: %s", options.Driver)
}

func openDB(options *SQLOptions, maxConns int, maxIdle int) (*sql.DB, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	dsn, err := options.dsn()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(options.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sql.Open failed, driver: %s", options.Driver)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)
	if options.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(options.ConnMaxLifetime)
	}

	ctx := context.Background()
	if options.PingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.PingTimeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping failed")
	}
	return db, nil
}

// NewSQLWithOptions 创建连接池，由调用方管理其生命周期
func NewSQLWithOptions(options *SQLOptions) (*SQL, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	db, err := openDB(options, options.MaxConns, options.MaxIdle)
	if err != nil {
		return nil, err
	}
	return &SQL{db: db, driver: options.Driver}, nil
}

// NewSQL 包装已有的 *sql.DB
func NewSQL(db *sql.DB, driver string) *SQL {
	return &SQL{db: db, driver: driver}
}

// NewSQLFactoryWithOptions 每次调用打开一个只有单个连接的 *sql.DB，Close 时断开
func NewSQLFactoryWithOptions(options *SQLOptions) Factory {
	return func(ctx context.Context) (Conn, error) {
		db, err := openDB(options, 1, 1)
		if err != nil {
			return nil, err
		}
		return &SQL{db: db, driver: options.Driver}, nil
	}
}

// DB 返回底层连接池
func (s *SQL) DB() *sql.DB {
	return s.db
}

func (s *SQL) Driver() string {
	return s.driver
}

func (s *SQL) Execute(ctx context.Context, query string, args ...any) (*Result, error) {
	return execute(ctx, s.db, query, args...)
}

func (s *SQL) Close() error {
	return s.db.Close()
}

// Factory 每次调用从池中取出一个专用连接，Close 时归还
func (s *SQL) Factory() Factory {
	return func(ctx context.Context) (Conn, error) {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "acquire connection failed")
		}
		return &pooledConn{conn: conn}, nil
	}
}

// pooledConn 从连接池中借出的单个连接
type pooledConn struct {
	conn *sql.Conn
}

func (c *pooledConn) Execute(ctx context.Context, query string, args ...any) (*Result, error) {
	return execute(ctx, c.conn, query, args...)
}

func (c *pooledConn) Close() error {
	return c.conn.Close()
}
