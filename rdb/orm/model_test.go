package orm

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hatlonely/sqlmodel/log"
	"github.com/hatlonely/sqlmodel/log/logger"
	"github.com/hatlonely/sqlmodel/rdb"
	"github.com/hatlonely/sqlmodel/rdb/database"
	"github.com/hatlonely/sqlmodel/rdb/schema"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const createUsersTable = `CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	name TEXT,
	age INTEGER,
	active BOOLEAN,
	score REAL
)`

const createEventsTable = `CREATE TABLE events (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	happened_at DATETIME
)`

const createTagsTable = `CREATE TABLE tags (
	code TEXT PRIMARY KEY,
	label TEXT
)`

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func userAttributes() map[string]any {
	return map[string]any{
		"id":     "int",
		"email":  schema.Attribute{Type: schema.TypeString, Required: true},
		"name":   "string",
		"age":    "int",
		"active": "boolean",
		"score":  "float",
	}
}

func userQueries() QueriesOptions {
	return QueriesOptions{
		Create:            "INSERT INTO :table_name (email, name, age, active, score) VALUES (:email, :name, :age, :active, :score)",
		CreateIfNotExists: "INSERT OR IGNORE INTO :table_name (email, name, age, active, score) VALUES (:email, :name, :age, :active, :score)",
		Upsert: "INSERT INTO :table_name (email, name, age, active, score) VALUES (:email, :name, :age, :active, :score) " +
			"ON CONFLICT(email) DO UPDATE SET name = excluded.name, age = excluded.age",
		Update:                 "UPDATE :table_name SET email = :email, name = :name, age = :age, active = :active, score = :score WHERE :primary_key = :primary_key_value",
		FindByUniqueAttributes: "SELECT * FROM :table_name WHERE email = :email",
	}
}

func newTestSQLiteOptions(t *testing.T, ddl ...string) *database.SQLOptions {
	options := &database.SQLOptions{
		Driver:   "sqlite3",
		Database: filepath.Join(t.TempDir(), "orm.db"),
		MaxConns: 1,
		MaxIdle:  1,
	}
	db, err := database.NewSQLWithOptions(options)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range ddl {
		_, err := db.Execute(context.Background(), stmt)
		require.NoError(t, err)
	}
	return options
}

// newCallerManagedConn 返回已经 Start 的句柄，测试结束时 End
func newCallerManagedConn(t *testing.T, options *database.SQLOptions) *database.Handle {
	pool, err := database.NewSQLWithOptions(options)
	require.NoError(t, err)
	handle := database.NewHandleWithConn(pool)
	require.NoError(t, handle.Start(context.Background()))
	t.Cleanup(func() { _ = handle.End() })
	return handle
}

// stubConn 记录执行和关闭次数
type stubConn struct {
	executed atomic.Int32
	closed   atomic.Int32
	result   *database.Result
	err      error
	closeErr error
}

func (c *stubConn) Execute(ctx context.Context, query string, args ...any) (*database.Result, error) {
	c.executed.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	if c.result != nil {
		return c.result, nil
	}
	return &database.Result{Rows: []map[string]any{}}, nil
}

func (c *stubConn) Close() error {
	c.closed.Add(1)
	return c.closeErr
}

func (c *stubConn) factory(ctx context.Context) (database.Conn, error) {
	return c, nil
}

func TestNewModelWithOptions(t *testing.T) {
	Convey("测试 NewModelWithOptions 方法", t, func() {
		conn := &stubConn{}
		options := func() *ModelOptions {
			return &ModelOptions{
				Name:       "declaration.users",
				TableName:  "users",
				PrimaryKey: "id",
				Attributes: userAttributes(),
				Connection: conn,
				Logger:     log.Discard(),
			}
		}

		Convey("默认值", func() {
			m, err := NewModelWithOptions(options())
			So(err, ShouldBeNil)
			So(m.Name(), ShouldEqual, "declaration.users")
			So(m.PrimaryKey(), ShouldEqual, "id")
			So(m.PrimaryKeyType(), ShouldEqual, PrimaryKeyUUID)
			So(m.queries.Delete, ShouldEqual, DefaultDeleteQuery)
			So(m.queries.FindByPrimaryKey, ShouldEqual, DefaultFindByPrimaryKeyQuery)
			So(m.renderer.Dialect, ShouldEqual, "mysql")
			So(m.Schema().Attributes().Names(), ShouldResemble, []string{"active", "age", "email", "id", "name", "score"})
		})

		Convey("Name 为空时使用表名", func() {
			opts := options()
			opts.Name = ""
			opts.TableName = "declaration_anonymous"
			m, err := NewModelWithOptions(opts)
			So(err, ShouldBeNil)
			So(m.Name(), ShouldEqual, "declaration_anonymous")
		})

		Convey("同时配置两种连接", func() {
			opts := options()
			opts.ConnectionFactory = conn.factory
			_, err := NewModelWithOptions(opts)
			So(errors.Is(err, rdb.ErrConnectionDefinitionAmbiguous), ShouldBeTrue)
			var configErr *rdb.ConfigurationError
			So(errors.As(err, &configErr), ShouldBeTrue)
		})

		Convey("没有配置连接", func() {
			opts := options()
			opts.Connection = nil
			_, err := NewModelWithOptions(opts)
			So(errors.Is(err, rdb.ErrMissingConnection), ShouldBeTrue)
		})

		Convey("主键不是已声明的属性", func() {
			opts := options()
			opts.Name = "declaration.no_pk"
			opts.PrimaryKey = "uid"
			_, err := NewModelWithOptions(opts)
			So(errors.Is(err, rdb.ErrInvalidDeclaration), ShouldBeTrue)
		})

		Convey("未知的属性类型", func() {
			opts := options()
			opts.Name = "declaration.unknown_type"
			opts.Attributes = map[string]any{"id": "int", "payload": "json"}
			_, err := NewModelWithOptions(opts)
			So(errors.Is(err, rdb.ErrUnknownType), ShouldBeTrue)
		})

		Convey("非法的主键策略", func() {
			opts := options()
			opts.PrimaryKeyType = "snowflake"
			_, err := NewModelWithOptions(opts)
			So(errors.Is(err, rdb.ErrInvalidOptions), ShouldBeTrue)
		})

		Convey("缺少表名", func() {
			opts := options()
			opts.TableName = ""
			_, err := NewModelWithOptions(opts)
			So(errors.Is(err, rdb.ErrInvalidOptions), ShouldBeTrue)
		})

		Convey("options 为空", func() {
			_, err := NewModelWithOptions(nil)
			So(errors.Is(err, rdb.ErrInvalidOptions), ShouldBeTrue)
		})

		So(conn.executed.Load(), ShouldEqual, int32(0))
	})
}

func TestModelAutoIncrement(t *testing.T) {
	flavors := map[string]func(t *testing.T, options *database.SQLOptions, m *ModelOptions){
		"调用方管理的连接池": func(t *testing.T, options *database.SQLOptions, m *ModelOptions) {
			m.Connection = newCallerManagedConn(t, options)
		},
		"每个操作独立的连接": func(t *testing.T, options *database.SQLOptions, m *ModelOptions) {
			m.ConnectionFactory = database.NewSQLFactoryWithOptions(options)
		},
	}

	for flavor, setup := range flavors {
		Convey("测试 auto_increment 模型: "+flavor, t, func() {
			ctx := context.Background()
			opts := &ModelOptions{
				Name:           "auto_increment.users",
				TableName:      "users",
				PrimaryKey:     "id",
				PrimaryKeyType: PrimaryKeyAutoIncrement,
				Attributes:     userAttributes(),
				Queries:        userQueries(),
				Dialect:        "sqlite3",
				Logger:         log.Discard(),
			}
			setup(t, newTestSQLiteOptions(t, createUsersTable), opts)
			m, err := NewModelWithOptions(opts)
			So(err, ShouldBeNil)

			Convey("创建时由数据库生成主键", func() {
				r, err := m.New(map[string]any{"email": "ann@example.com", "name": "Ann", "age": 30, "active": true, "score": 9.5})
				So(err, ShouldBeNil)
				So(r.State(), ShouldEqual, StateNew)

				key, err := m.Create(ctx, r, QueryCreate)
				So(err, ShouldBeNil)
				So(key, ShouldEqual, int64(1))
				So(r.PrimaryKeyValue(), ShouldEqual, int64(1))
				So(r.State(), ShouldEqual, StateCreated)

				found, err := m.FindByPrimaryKey(ctx, 1)
				So(err, ShouldBeNil)
				So(found, ShouldNotBeNil)
				So(found.State(), ShouldEqual, StateFound)
				So(found.Get("email"), ShouldEqual, "ann@example.com")
				So(found.Get("age"), ShouldEqual, int64(30))
				So(found.Get("active"), ShouldEqual, true)
				So(found.Get("score"), ShouldEqual, 9.5)

				key, err = m.Create(ctx, &Record{model: m, values: map[string]any{"email": "bob@example.com"}}, QueryCreate)
				So(err, ShouldBeNil)
				So(key, ShouldEqual, int64(2))
			})

			Convey("已经有主键时不能创建", func() {
				r, err := m.New(map[string]any{"id": 7, "email": "ann@example.com"})
				So(err, ShouldBeNil)
				_, err = m.Create(ctx, r, QueryCreate)
				So(errors.Is(err, rdb.ErrPrimaryKeyAlreadyDefined), ShouldBeTrue)
				var invariantErr *rdb.InvariantError
				So(errors.As(err, &invariantErr), ShouldBeTrue)
				So(invariantErr.ModelName, ShouldEqual, "auto_increment.users")
			})

			Convey("Save 先创建再更新", func() {
				r, err := m.New(map[string]any{"email": "ann@example.com", "name": "Ann"})
				So(err, ShouldBeNil)
				key, err := r.Save(ctx)
				So(err, ShouldBeNil)

				So(r.Set("name", "Annie"), ShouldBeNil)
				updated, err := r.Save(ctx)
				So(err, ShouldBeNil)
				So(updated, ShouldEqual, key)
				So(r.State(), ShouldEqual, StateUpdated)

				found, err := m.FindByPrimaryKey(ctx, key)
				So(err, ShouldBeNil)
				So(found.Get("name"), ShouldEqual, "Annie")
			})

			Convey("FindOrCreate 不覆盖已有记录", func() {
				first, err := m.New(map[string]any{"email": "ann@example.com", "name": "Ann"})
				So(err, ShouldBeNil)
				So(first.FindOrCreate(ctx), ShouldBeNil)
				So(first.State(), ShouldEqual, StateFound)
				So(first.PrimaryKeyValue(), ShouldEqual, int64(1))

				second, err := m.New(map[string]any{"email": "ann@example.com", "name": "Someone Else"})
				So(err, ShouldBeNil)
				So(second.FindOrCreate(ctx), ShouldBeNil)
				So(second.PrimaryKeyValue(), ShouldEqual, int64(1))
				So(second.Get("name"), ShouldEqual, "Ann")
			})

			Convey("Upsert 用数据库中的记录覆盖内存值", func() {
				first, err := m.New(map[string]any{"email": "ann@example.com", "name": "Ann", "age": 30})
				So(err, ShouldBeNil)
				So(first.Upsert(ctx), ShouldBeNil)

				second, err := m.New(map[string]any{"email": "ann@example.com", "name": "Annie"})
				So(err, ShouldBeNil)
				So(second.Upsert(ctx), ShouldBeNil)
				So(second.PrimaryKeyValue(), ShouldEqual, int64(1))
				So(second.Get("name"), ShouldEqual, "Annie")
				So(second.Get("age"), ShouldBeNil)
			})

			Convey("删除", func() {
				r, err := m.New(map[string]any{"email": "ann@example.com"})
				So(err, ShouldBeNil)
				_, err = r.Create(ctx, QueryCreate)
				So(err, ShouldBeNil)

				deleted, err := r.Delete(ctx)
				So(err, ShouldBeNil)
				So(deleted, ShouldBeTrue)
				So(r.State(), ShouldEqual, StateDeleted)

				deleted, err = r.Delete(ctx)
				So(err, ShouldBeNil)
				So(deleted, ShouldBeFalse)

				found, err := m.FindByPrimaryKey(ctx, r.PrimaryKeyValue())
				So(err, ShouldBeNil)
				So(found, ShouldBeNil)
			})

			Convey("FindAll 支持字面量参数", func() {
				for i, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
					r, err := m.New(map[string]any{"email": email, "age": 20 + i})
					So(err, ShouldBeNil)
					_, err = r.Create(ctx, QueryCreate)
					So(err, ShouldBeNil)
				}

				records, err := m.FindAll(ctx, "SELECT * FROM :table_name WHERE age >= :min_age ORDER BY :primary_key LIMIT x:limit",
					map[string]any{"min_age": 21, "limit": 1})
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 1)
				So(records[0].Get("email"), ShouldEqual, "b@example.com")

				records, err = m.FindAll(ctx, "SELECT * FROM :table_name WHERE age > :min_age", map[string]any{"min_age": 100})
				So(err, ShouldBeNil)
				So(records, ShouldBeEmpty)
			})

			Convey("以注释开头的读模板", func() {
				r, err := m.New(map[string]any{"email": "ann@example.com", "age": 30})
				So(err, ShouldBeNil)
				key, err := r.Create(ctx, QueryCreate)
				So(err, ShouldBeNil)

				records, err := m.FindAll(ctx, "-- adults\nSELECT * FROM :table_name WHERE age >= :min_age", map[string]any{"min_age": 18})
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 1)
				So(records[0].Get("email"), ShouldEqual, "ann@example.com")

				commented, err := NewModelWithOptions(&ModelOptions{
					Name:           opts.Name,
					TableName:      "users",
					PrimaryKey:     "id",
					PrimaryKeyType: PrimaryKeyAutoIncrement,
					Attributes:     userAttributes(),
					Queries: QueriesOptions{
						FindByPrimaryKey:       "/* by id */ SELECT * FROM :table_name WHERE :primary_key = :primary_key_value",
						FindByUniqueAttributes: "/* by email */ SELECT * FROM :table_name WHERE email = :email",
					},
					Dialect:           "sqlite3",
					Connection:        opts.Connection,
					ConnectionFactory: opts.ConnectionFactory,
					Logger:            log.Discard(),
				})
				So(err, ShouldBeNil)

				found, err := commented.FindByPrimaryKey(ctx, key)
				So(err, ShouldBeNil)
				So(found, ShouldNotBeNil)
				So(found.Get("email"), ShouldEqual, "ann@example.com")

				found, err = commented.FindByUniqueAttributes(ctx, map[string]any{"email": "ann@example.com"})
				So(err, ShouldBeNil)
				So(found, ShouldNotBeNil)
				So(found.PrimaryKeyValue(), ShouldEqual, key)
			})

			Convey("FindByUniqueAttributes 没有记录时返回 nil", func() {
				r, err := m.FindByUniqueAttributes(ctx, map[string]any{"email": "nobody@example.com"})
				So(err, ShouldBeNil)
				So(r, ShouldBeNil)
			})

			Convey("读取的行不符合属性声明", func() {
				_, err := m.FindAll(ctx, "SELECT 1 AS id, NULL AS email, 'extra' AS ignored", nil)
				var validationErr *rdb.ValidationError
				So(errors.As(err, &validationErr), ShouldBeTrue)
				So(validationErr.Errors["email"], ShouldResemble, []string{schema.MessageRequired})
				So(validationErr.Errors, ShouldNotContainKey, "ignored")
			})

			Convey("执行错误原样返回", func() {
				_, err := m.Execute(ctx, "SELECT * FROM missing_table", nil)
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "missing_table")
			})

			Convey("缺少命名参数", func() {
				_, err := m.Execute(ctx, "SELECT * FROM :table_name WHERE email = :email", map[string]any{})
				var templateErr *rdb.TemplateError
				So(errors.As(err, &templateErr), ShouldBeTrue)
			})
		})
	}
}

func TestModelUUID(t *testing.T) {
	Convey("测试 uuid 模型", t, func() {
		ctx := context.Background()
		m, err := NewModelWithOptions(&ModelOptions{
			Name:           "uuid.events",
			TableName:      "events",
			PrimaryKey:     "id",
			PrimaryKeyType: PrimaryKeyUUID,
			Attributes: map[string]any{
				"id":          "uuid",
				"title":       map[string]any{"type": "string", "required": true},
				"happened_at": "datetime",
			},
			Queries: QueriesOptions{
				Create: "INSERT INTO :table_name (:primary_key, title, happened_at) VALUES (:id, :title, :happened_at)",
			},
			Dialect:           "sqlite3",
			ConnectionFactory: database.NewSQLFactoryWithOptions(newTestSQLiteOptions(t, createEventsTable)),
			Logger:            log.Discard(),
		})
		So(err, ShouldBeNil)

		Convey("创建前生成 uuid", func() {
			r, err := m.New(map[string]any{"title": "launch", "happened_at": time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)})
			So(err, ShouldBeNil)
			key, err := m.Create(ctx, r, QueryCreate)
			So(err, ShouldBeNil)
			So(uuidPattern.MatchString(key.(string)), ShouldBeTrue)
			So(r.PrimaryKeyValue(), ShouldEqual, key)

			found, err := m.FindByPrimaryKey(ctx, key)
			So(err, ShouldBeNil)
			So(found, ShouldNotBeNil)
			So(found.Get("title"), ShouldEqual, "launch")
			So(found.Get("happened_at"), ShouldNotBeNil)

			other, err := m.New(map[string]any{"title": "landing"})
			So(err, ShouldBeNil)
			otherKey, err := m.Create(ctx, other, QueryCreate)
			So(err, ShouldBeNil)
			So(otherKey, ShouldNotEqual, key)
		})

		Convey("已经有主键时不能创建", func() {
			r, err := m.New(map[string]any{"id": "3f1e7a52-8c1d-4b8e-9a6f-2d4c5b7e9f01", "title": "launch"})
			So(err, ShouldBeNil)
			_, err = m.Create(ctx, r, QueryCreate)
			So(errors.Is(err, rdb.ErrPrimaryKeyAlreadyDefined), ShouldBeTrue)
		})

		Convey("没有配置的模板", func() {
			r, err := m.New(map[string]any{"title": "launch"})
			So(err, ShouldBeNil)
			_, err = m.Create(ctx, r, QueryUpsert)
			So(errors.Is(err, rdb.ErrMissingQuery), ShouldBeTrue)
			_, err = m.Update(ctx, &Record{model: m, values: map[string]any{"id": "3f1e7a52-8c1d-4b8e-9a6f-2d4c5b7e9f01"}})
			So(errors.Is(err, rdb.ErrMissingQuery), ShouldBeTrue)
			So(errors.Is(r.FindOrCreate(ctx), rdb.ErrMissingQuery), ShouldBeTrue)
			So(r.State(), ShouldEqual, StateNew)
		})
	})
}

type event struct {
	ID         string     `rdb:"id,primary,type=uuid" table:"events"`
	Title      string     `rdb:"title,required"`
	HappenedAt *time.Time `rdb:"happened_at"`
}

func TestNewModelFromStruct(t *testing.T) {
	Convey("测试 NewModelFromStruct 方法", t, func() {
		ctx := context.Background()
		options := func() *ModelOptions {
			return &ModelOptions{
				Name:           "struct.events",
				PrimaryKeyType: PrimaryKeyUUID,
				Queries: QueriesOptions{
					Create: "INSERT INTO :table_name (:primary_key, title) VALUES (:id, :title)",
				},
				Dialect:           "sqlite3",
				ConnectionFactory: database.NewSQLFactoryWithOptions(newTestSQLiteOptions(t, createEventsTable)),
				Logger:            log.Discard(),
			}
		}

		Convey("表名、主键和属性来自结构体 tag", func() {
			m, err := NewModelFromStruct(&event{}, options())
			So(err, ShouldBeNil)
			So(m.PrimaryKey(), ShouldEqual, "id")
			So(m.Schema().Has("happened_at"), ShouldBeTrue)

			_, err = m.New(map[string]any{"title": "launch", "id": "not-a-uuid"})
			var validationErr *rdb.ValidationError
			So(errors.As(err, &validationErr), ShouldBeTrue)
			So(validationErr.Errors["id"], ShouldResemble, []string{schema.MessageUUID})

			r, err := m.New(map[string]any{"title": "launch"})
			So(err, ShouldBeNil)
			key, err := r.Create(ctx, QueryCreate)
			So(err, ShouldBeNil)

			found, err := m.FindByPrimaryKey(ctx, key)
			So(err, ShouldBeNil)
			So(found, ShouldNotBeNil)
			So(found.Get("title"), ShouldEqual, "launch")
		})

		Convey("options 中的声明优先", func() {
			opts := options()
			opts.TableName = "missing_events"
			m, err := NewModelFromStruct(event{}, opts)
			So(err, ShouldBeNil)
			_, err = m.FindByPrimaryKey(ctx, "8c0b2a9e-6a8e-4c7e-9d4f-1a2b3c4d5e6f")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "missing_events")
		})

		Convey("不是结构体", func() {
			_, err := NewModelFromStruct(42, options())
			So(errors.Is(err, rdb.ErrInvalidDeclaration), ShouldBeTrue)
		})
	})
}

func TestModelCustom(t *testing.T) {
	Convey("测试 custom 模型", t, func() {
		ctx := context.Background()
		options := newTestSQLiteOptions(t, createTagsTable)
		m, err := NewModelWithOptions(&ModelOptions{
			Name:           "custom.tags",
			TableName:      "tags",
			PrimaryKey:     "code",
			PrimaryKeyType: PrimaryKeyCustom,
			Attributes:     map[string]any{"code": "string", "label": "string"},
			Queries: QueriesOptions{
				Create: "INSERT INTO :table_name (code, label) VALUES (:code, :label)",
				Update: "UPDATE :table_name SET label = :label WHERE :primary_key = :primary_key_value",
			},
			Dialect:    "sqlite3",
			Connection: newCallerManagedConn(t, options),
			Logger:     log.Discard(),
		})
		So(err, ShouldBeNil)

		Convey("主键由调用方指定", func() {
			r, err := m.New(map[string]any{"code": "go", "label": "Golang"})
			So(err, ShouldBeNil)
			key, err := m.Create(ctx, r, QueryCreate)
			So(err, ShouldBeNil)
			So(key, ShouldEqual, "go")

			So(r.Set("label", "Go"), ShouldBeNil)
			_, err = r.Save(ctx)
			So(err, ShouldBeNil)
			found, err := m.FindByPrimaryKey(ctx, "go")
			So(err, ShouldBeNil)
			So(found.Get("label"), ShouldEqual, "Go")
		})

		Convey("缺少主键", func() {
			r, err := m.New(map[string]any{"label": "Golang"})
			So(err, ShouldBeNil)
			_, err = m.Create(ctx, r, QueryCreate)
			So(errors.Is(err, rdb.ErrPrimaryKeyRequired), ShouldBeTrue)
			_, err = m.Update(ctx, r)
			So(errors.Is(err, rdb.ErrPrimaryKeyRequired), ShouldBeTrue)
		})

		Convey("主键重复时返回驱动错误", func() {
			r, err := m.New(map[string]any{"code": "go"})
			So(err, ShouldBeNil)
			_, err = m.Create(ctx, r, QueryCreate)
			So(err, ShouldBeNil)
			_, err = m.Create(ctx, r, QueryCreate)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "UNIQUE")
		})
	})
}

func TestModelExecuteLifecycle(t *testing.T) {
	Convey("测试每个操作独立连接的生命周期", t, func() {
		ctx := context.Background()
		conn := &stubConn{result: &database.Result{RowsAffected: 1}}
		var created atomic.Int32
		m, err := NewModelWithOptions(&ModelOptions{
			Name:           "lifecycle.tags",
			TableName:      "tags",
			PrimaryKey:     "code",
			PrimaryKeyType: PrimaryKeyCustom,
			Attributes:     map[string]any{"code": "string", "label": "string"},
			ConnectionFactory: func(ctx context.Context) (database.Conn, error) {
				created.Add(1)
				return conn, nil
			},
			Logger: log.Discard(),
		})
		So(err, ShouldBeNil)

		Convey("执行成功时结束一次", func() {
			_, err := m.Execute(ctx, "DELETE FROM :table_name", nil)
			So(err, ShouldBeNil)
			So(created.Load(), ShouldEqual, int32(1))
			So(conn.closed.Load(), ShouldEqual, int32(1))
		})

		Convey("执行失败时也结束一次，返回执行错误", func() {
			conn.err = errors.New("connection reset")
			_, err := m.Execute(ctx, "DELETE FROM :table_name", nil)
			So(err, ShouldEqual, conn.err)
			So(conn.closed.Load(), ShouldEqual, int32(1))
		})

		Convey("执行失败且结束失败时返回执行错误", func() {
			conn.err = errors.New("connection reset")
			conn.closeErr = errors.New("close failed")
			_, err := m.Execute(ctx, "DELETE FROM :table_name", nil)
			So(err, ShouldEqual, conn.err)
			So(conn.closed.Load(), ShouldEqual, int32(1))
		})

		Convey("执行成功但结束失败时返回结束错误", func() {
			conn.closeErr = errors.New("close failed")
			result, err := m.Execute(ctx, "DELETE FROM :table_name", nil)
			So(err, ShouldEqual, conn.closeErr)
			So(result, ShouldBeNil)
		})

		Convey("创建连接失败", func() {
			failing, err := NewModelWithOptions(&ModelOptions{
				Name:           "lifecycle.tags",
				TableName:      "tags",
				PrimaryKey:     "code",
				PrimaryKeyType: PrimaryKeyCustom,
				Attributes:     map[string]any{"code": "string", "label": "string"},
				ConnectionFactory: func(ctx context.Context) (database.Conn, error) {
					return nil, errors.New("too many connections")
				},
				Logger: log.Discard(),
			})
			So(err, ShouldBeNil)
			_, err = failing.Execute(ctx, "DELETE FROM :table_name", nil)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "too many connections")
		})

		Convey("没有主键时删除不执行语句", func() {
			r, err := m.New(map[string]any{"label": "Golang"})
			So(err, ShouldBeNil)
			_, err = m.Delete(ctx, r)
			So(errors.Is(err, rdb.ErrPrimaryKeyRequired), ShouldBeTrue)
			So(created.Load(), ShouldEqual, int32(0))
			So(conn.executed.Load(), ShouldEqual, int32(0))
		})

		Convey("缺少模板时不获取连接", func() {
			r, err := m.New(map[string]any{"code": "go"})
			So(err, ShouldBeNil)
			_, err = m.Create(ctx, r, QueryCreateIfNotExists)
			So(errors.Is(err, rdb.ErrMissingQuery), ShouldBeTrue)
			_, err = m.Create(ctx, r, QueryChoice("replace"))
			So(errors.Is(err, rdb.ErrMissingQuery), ShouldBeTrue)
			So(created.Load(), ShouldEqual, int32(0))
		})
	})
}

func TestModelLogging(t *testing.T) {
	var buf bytes.Buffer
	l, err := logger.NewSLogWithWriter(&buf, &logger.SLogOptions{Level: "debug"})
	require.NoError(t, err)

	m, err := NewModelWithOptions(&ModelOptions{
		Name:       "logging.tags",
		TableName:  "tags",
		PrimaryKey: "code",
		Attributes: map[string]any{"code": "string"},
		Connection: &stubConn{err: errors.New("syntax error")},
		Logger:     l,
	})
	require.NoError(t, err)

	_, err = m.Execute(context.Background(), "SELEC * FROM :table_name", nil)
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "execute statement")
	assert.Contains(t, out, "statement failed")
	assert.Contains(t, out, "SELEC * FROM tags")
	assert.Contains(t, out, "model=logging.tags")
}
