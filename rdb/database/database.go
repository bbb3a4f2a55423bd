package database

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/hatlonely/sqlmodel/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegisterT[*SQL](NewSQLWithOptions)
	ref.MustRegisterT[*Gorm](NewGormWithOptions)
}

// Result 一条语句的执行结果
type Result struct {
	// Columns 查询语句返回的列名
	Columns []string
	// Rows 查询语句返回的行，列名到驱动值的映射
	Rows []map[string]any
	// LastInsertID 驱动报告的自增主键，驱动不支持时为 0
	LastInsertID int64
	// RowsAffected 写语句影响的行数
	RowsAffected int64
}

// Executor 执行一条已绑定参数的语句
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) (*Result, error)
}

// Conn 可关闭的连接，可以是单个连接也可以是连接池
type Conn interface {
	Executor
	Close() error
}

// Factory 为一次操作创建独立的连接
type Factory func(ctx context.Context) (Conn, error)

// FactoryProvider 可以从自身的连接池中借出独立连接
type FactoryProvider interface {
	Factory() Factory
}

// NewConnWithOptions 通过 ref 注册表创建连接，Namespace 为空时使用本包
func NewConnWithOptions(options *ref.TypeOptions) (Conn, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	namespace := options.Namespace
	if namespace == "" {
		namespace = "github.com/hatlonely/sqlmodel/rdb/database"
	}
	obj, err := ref.New(namespace, options.Type, options.Options)
	if err != nil {
		return nil, errors.WithMessage(err, "ref.New failed")
	}
	conn, ok := obj.(Conn)
	if !ok {
		return nil, errors.Errorf("%s:%s is not a Conn", namespace, options.Type)
	}
	return conn, nil
}

// sqlExecutor *sql.DB、*sql.Conn 和 gorm.ConnPool 的公共部分
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

var (
	queryKeywords   = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "DESC", "EXPLAIN", "PRAGMA", "VALUES"}
	returningClause = regexp.MustCompile(`(?i)\bRETURNING\b`)
)

// IsQuery 判断语句是否返回行，开头的注释不影响判断
func IsQuery(query string) bool {
	trimmed := skipLeadingComments(query)
	end := strings.IndexFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == '(' || r == ';'
	})
	keyword := trimmed
	if end >= 0 {
		keyword = trimmed[:end]
	}
	keyword = strings.ToUpper(keyword)
	for _, k := range queryKeywords {
		if keyword == k {
			return true
		}
	}
	return returningClause.MatchString(query)
}

// skipLeadingComments 跳过开头的空白、括号、-- 行注释和 /* */ 块注释
func skipLeadingComments(query string) string {
	for {
		query = strings.TrimLeft(query, " \t\r\n(")
		switch {
		case strings.HasPrefix(query, "--"):
			end := strings.IndexByte(query, '\n')
			if end < 0 {
				return ""
			}
			query = query[end+1:]
		case strings.HasPrefix(query, "/*"):
			end := strings.Index(query[2:], "*/")
			if end < 0 {
				return ""
			}
			query = query[end+4:]
		default:
			return query
		}
	}
}

func execute(ctx context.Context, executor sqlExecutor, query string, args ...any) (*Result, error) {
	if IsQuery(query) {
		rows, err := executor.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanRows(rows)
	}

	res, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	// postgres 等驱动不支持 LastInsertId，忽略其错误
	if id, err := res.LastInsertId(); err == nil {
		result.LastInsertID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		result.RowsAffected = n
	}
	return result, nil
}

// scanRows 扫描所有行到 map
func scanRows(rows *sql.Rows) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
