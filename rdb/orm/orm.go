package orm

import (
	"context"

	"github.com/hatlonely/sqlmodel/log/logger"
	"github.com/hatlonely/sqlmodel/rdb/database"
	"github.com/hatlonely/sqlmodel/uid/strgen"
)

// PrimaryKeyType 主键生成策略
type PrimaryKeyType string

const (
	// PrimaryKeyAutoIncrement 由数据库生成，创建时不能指定
	PrimaryKeyAutoIncrement PrimaryKeyType = "auto_increment"
	// PrimaryKeyUUID 创建前生成 v4 uuid，创建时不能指定
	PrimaryKeyUUID PrimaryKeyType = "uuid"
	// PrimaryKeyCustom 由调用方指定，创建时必须存在
	PrimaryKeyCustom PrimaryKeyType = "custom"
)

// QueryChoice Create 使用的插入模板
type QueryChoice string

const (
	QueryCreate            QueryChoice = "create"
	QueryCreateIfNotExists QueryChoice = "createIfNotExists"
	QueryUpsert            QueryChoice = "upsert"
)

const (
	DefaultDeleteQuery           = "DELETE FROM :table_name WHERE :primary_key = :primary_key_value"
	DefaultFindByPrimaryKeyQuery = "SELECT * FROM :table_name WHERE :primary_key = :primary_key_value"
)

// QueriesOptions 模型的语句模板
//
// 模板中可以使用 :table_name、:primary_key、:primary_key_value、:属性名 和 x:参数名。
type QueriesOptions struct {
	Create            string `cfg:"create"`
	CreateIfNotExists string `cfg:"createIfNotExists"`
	Upsert            string `cfg:"upsert"`
	Update            string `cfg:"update"`
	Delete            string `cfg:"delete" def:"DELETE FROM :table_name WHERE :primary_key = :primary_key_value"`
	FindByPrimaryKey  string `cfg:"findByPrimaryKey" def:"SELECT * FROM :table_name WHERE :primary_key = :primary_key_value"`
	// FindByUniqueAttributes FindOrCreate 和 Upsert 写入后用它重新读取记录
	FindByUniqueAttributes string `cfg:"findByUniqueAttributes"`
}

// ModelOptions 模型声明，可以在代码中构造，也可以从配置文件解析
type ModelOptions struct {
	// Name 模型标识，编译后的属性集合按它缓存，为空时使用表名
	Name           string         `cfg:"name"`
	TableName      string         `cfg:"tableName" validate:"required"`
	PrimaryKey     string         `cfg:"primaryKey" validate:"required"`
	PrimaryKeyType PrimaryKeyType `cfg:"primaryKeyType" def:"uuid" validate:"oneof=auto_increment uuid custom"`
	Attributes     map[string]any `cfg:"attributes" validate:"required"`
	Queries        QueriesOptions `cfg:"queries"`
	// Dialect 决定占位符格式，mysql/sqlite3 为 ?，postgres 为 $n
	Dialect string `cfg:"dialect" def:"mysql"`

	// ConnectionFactory 每个操作创建独立连接，执行后关闭
	ConnectionFactory database.Factory `cfg:"-" validate:"-"`
	// Connection 调用方管理的连接或连接池，模型不负责关闭
	Connection   database.Executor   `cfg:"-" validate:"-"`
	Logger       logger.Logger       `cfg:"-" validate:"-"`
	KeyGenerator strgen.StrGenerator `cfg:"-" validate:"-"`
}

// ORM 记录的持久化操作，*Model 是唯一实现
type ORM interface {
	New(props map[string]any) (*Record, error)
	Create(ctx context.Context, record *Record, choice QueryChoice) (any, error)
	Update(ctx context.Context, record *Record) (any, error)
	Save(ctx context.Context, record *Record) (any, error)
	FindOrCreate(ctx context.Context, record *Record) error
	Upsert(ctx context.Context, record *Record) error
	Delete(ctx context.Context, record *Record) (bool, error)
	FindAll(ctx context.Context, template string, values map[string]any) ([]*Record, error)
	FindByPrimaryKey(ctx context.Context, value any) (*Record, error)
	FindByUniqueAttributes(ctx context.Context, values map[string]any) (*Record, error)
}

var _ ORM = (*Model)(nil)
