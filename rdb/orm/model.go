package orm

import (
	"context"
	"fmt"

	"github.com/hatlonely/sqlmodel/cfg"
	"github.com/hatlonely/sqlmodel/log"
	"github.com/hatlonely/sqlmodel/log/logger"
	"github.com/hatlonely/sqlmodel/rdb"
	"github.com/hatlonely/sqlmodel/rdb/database"
	"github.com/hatlonely/sqlmodel/rdb/query"
	"github.com/hatlonely/sqlmodel/rdb/schema"
	"github.com/hatlonely/sqlmodel/uid/strgen"
)

// Model 组合属性集合、模板渲染器和连接来源，执行记录的增删改查
type Model struct {
	name           string
	primaryKey     string
	primaryKeyType PrimaryKeyType
	queries        QueriesOptions

	schema       *schema.Schema
	renderer     *query.Renderer
	factory      database.Factory
	conn         database.Executor
	keyGenerator strgen.StrGenerator
	logger       logger.Logger
}

// NewModelWithOptions 校验模型声明并编译属性集合
//
// 同一个 Name 的属性集合只编译一次，之后的声明复用第一次的编译结果。
func NewModelWithOptions(options *ModelOptions) (*Model, error) {
	if options == nil {
		return nil, rdb.NewConfigurationError(rdb.ErrInvalidOptions, "options is nil")
	}

	opts := *options
	if err := cfg.SetDefaults(&opts); err != nil {
		return nil, rdb.NewConfigurationError(rdb.ErrInvalidOptions, "model %s: %v", opts.Name, err)
	}
	if opts.Name == "" {
		opts.Name = opts.TableName
	}
	if err := cfg.ValidateStruct(&opts); err != nil {
		return nil, rdb.NewConfigurationError(rdb.ErrInvalidOptions, "model %s: %v", opts.Name, err)
	}

	if opts.ConnectionFactory != nil && opts.Connection != nil {
		return nil, rdb.NewConfigurationError(rdb.ErrConnectionDefinitionAmbiguous, "model %s", opts.Name)
	}
	if opts.ConnectionFactory == nil && opts.Connection == nil {
		return nil, rdb.NewConfigurationError(rdb.ErrMissingConnection, "model %s", opts.Name)
	}

	s, err := schema.DefaultRegistry.Load(opts.Name, opts.Attributes)
	if err != nil {
		return nil, err
	}
	if !s.Has(opts.PrimaryKey) {
		return nil, rdb.NewConfigurationError(rdb.ErrInvalidDeclaration, "model %s: primary key %q is not a declared attribute", opts.Name, opts.PrimaryKey)
	}

	m := &Model{
		name:           opts.Name,
		primaryKey:     opts.PrimaryKey,
		primaryKeyType: opts.PrimaryKeyType,
		queries:        opts.Queries,
		schema:         s,
		renderer: &query.Renderer{
			TableName:  opts.TableName,
			PrimaryKey: opts.PrimaryKey,
			Dialect:    opts.Dialect,
		},
		factory:      opts.ConnectionFactory,
		conn:         opts.Connection,
		keyGenerator: opts.KeyGenerator,
		logger:       opts.Logger,
	}
	if m.keyGenerator == nil {
		m.keyGenerator = strgen.NewPrimaryKeyGenerator()
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	m.logger = m.logger.With("model", m.name)

	return m, nil
}

// NewModelFromStruct 从结构体的 rdb tag 补全表名、主键和属性，其余配置取自 options
func NewModelFromStruct(v any, options *ModelOptions) (*Model, error) {
	decl, err := schema.FromStruct(v)
	if err != nil {
		return nil, err
	}

	var opts ModelOptions
	if options != nil {
		opts = *options
	}
	if opts.TableName == "" {
		opts.TableName = decl.TableName
	}
	if opts.PrimaryKey == "" {
		opts.PrimaryKey = decl.PrimaryKey
	}
	if opts.Attributes == nil {
		opts.Attributes = decl.Attributes
	}
	return NewModelWithOptions(&opts)
}

func (m *Model) Name() string {
	return m.name
}

func (m *Model) PrimaryKey() string {
	return m.primaryKey
}

func (m *Model) PrimaryKeyType() PrimaryKeyType {
	return m.primaryKeyType
}

func (m *Model) Schema() *schema.Schema {
	return m.schema
}

// Execute 渲染模板并执行
//
// 使用 ConnectionFactory 时每次调用创建一个连接句柄，无论执行是否成功都会结束它；
// 执行失败时返回执行错误，结束句柄的错误只记录日志。
func (m *Model) Execute(ctx context.Context, template string, values map[string]any) (result *database.Result, err error) {
	sql, args, err := m.renderer.Render(template, values)
	if err != nil {
		return nil, err
	}
	m.logger.DebugContext(ctx, "execute statement", "sql", sql, "args", args)

	if m.conn != nil {
		result, err = m.conn.Execute(ctx, sql, args...)
		if err != nil {
			m.logger.ErrorContext(ctx, "statement failed", "sql", sql, "error", err)
		}
		return result, err
	}

	handle := database.NewHandle(m.factory)
	if err := handle.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		endErr := handle.End()
		if endErr == nil {
			return
		}
		if err != nil {
			m.logger.WarnContext(ctx, "end connection failed", "sql", sql, "error", endErr)
			return
		}
		result, err = nil, endErr
	}()

	result, err = handle.Execute(ctx, sql, args...)
	if err != nil {
		m.logger.ErrorContext(ctx, "statement failed", "sql", sql, "error", err)
		return nil, err
	}
	return result, nil
}

// New 校验 props 并创建记录，未声明的属性视为校验失败
func (m *Model) New(props map[string]any) (*Record, error) {
	result := m.schema.Validate(props)
	for name := range props {
		if !m.schema.Has(name) {
			result[name] = []string{MessageUndeclared}
		}
	}
	if !result.Valid() {
		return nil, m.validationError(props, result)
	}

	values := make(map[string]any, len(props))
	for name, value := range props {
		if !schema.IsNull(value) {
			values[name] = value
		}
	}
	return &Record{model: m, values: values, state: StateNew}, nil
}

// Create 按主键策略插入记录，返回主键值并写回记录
func (m *Model) Create(ctx context.Context, record *Record, choice QueryChoice) (any, error) {
	template, err := m.createQuery(choice)
	if err != nil {
		return nil, err
	}

	key := record.PrimaryKeyValue()
	switch m.primaryKeyType {
	case PrimaryKeyAutoIncrement, PrimaryKeyUUID:
		if !schema.IsNull(key) {
			return nil, m.invariantError(rdb.ErrPrimaryKeyAlreadyDefined, "create with %s primary key", m.primaryKeyType)
		}
	default:
		if schema.IsNull(key) {
			return nil, m.invariantError(rdb.ErrPrimaryKeyRequired, "create with custom primary key")
		}
	}

	values := record.DatabaseValues()
	if m.primaryKeyType == PrimaryKeyUUID {
		key = m.keyGenerator.Generate()
		values[m.primaryKey] = key
		values[query.ParamPrimaryKeyValue] = key
	}

	result, err := m.Execute(ctx, template, values)
	if err != nil {
		return nil, err
	}
	if m.primaryKeyType == PrimaryKeyAutoIncrement {
		key = result.LastInsertID
	}

	record.values[m.primaryKey] = key
	record.state = StateCreated
	return key, nil
}

func (m *Model) createQuery(choice QueryChoice) (string, error) {
	var template string
	switch choice {
	case QueryCreate:
		template = m.queries.Create
	case QueryCreateIfNotExists:
		template = m.queries.CreateIfNotExists
	case QueryUpsert:
		template = m.queries.Upsert
	default:
		return "", rdb.NewConfigurationError(rdb.ErrMissingQuery, "model %s: unknown query choice %q", m.name, choice)
	}
	if template == "" {
		return "", rdb.NewConfigurationError(rdb.ErrMissingQuery, "model %s: %s", m.name, choice)
	}
	return template, nil
}

// Update 按主键更新记录，返回主键值
func (m *Model) Update(ctx context.Context, record *Record) (any, error) {
	key := record.PrimaryKeyValue()
	if schema.IsNull(key) {
		return nil, m.invariantError(rdb.ErrPrimaryKeyRequired, "update")
	}
	if m.queries.Update == "" {
		return nil, rdb.NewConfigurationError(rdb.ErrMissingQuery, "model %s: update", m.name)
	}

	if _, err := m.Execute(ctx, m.queries.Update, record.DatabaseValues()); err != nil {
		return nil, err
	}
	record.state = StateUpdated
	return key, nil
}

// Save 新记录执行 Create，已持久化或读取出的记录执行 Update
func (m *Model) Save(ctx context.Context, record *Record) (any, error) {
	if record.state == StateNew {
		return m.Create(ctx, record, QueryCreate)
	}
	return m.Update(ctx, record)
}

// FindOrCreate 不存在时插入，然后用数据库中的记录覆盖内存中的值
func (m *Model) FindOrCreate(ctx context.Context, record *Record) error {
	return m.createAndReload(ctx, record, QueryCreateIfNotExists)
}

// Upsert 插入或更新，然后用数据库中的记录覆盖内存中的值
func (m *Model) Upsert(ctx context.Context, record *Record) error {
	return m.createAndReload(ctx, record, QueryUpsert)
}

func (m *Model) createAndReload(ctx context.Context, record *Record, choice QueryChoice) error {
	if m.queries.FindByUniqueAttributes == "" {
		return rdb.NewConfigurationError(rdb.ErrMissingQuery, "model %s: findByUniqueAttributes", m.name)
	}
	if _, err := m.Create(ctx, record, choice); err != nil {
		return err
	}

	found, err := m.FindByUniqueAttributes(ctx, record.DatabaseValues())
	if err != nil {
		return err
	}
	if found == nil {
		return m.invariantError(rdb.ErrRecordNotFoundAfterWrite, "%s", choice)
	}

	record.values = found.values
	record.state = StateFound
	return nil
}

// Delete 按主键删除，返回是否有记录被删除
func (m *Model) Delete(ctx context.Context, record *Record) (bool, error) {
	if schema.IsNull(record.PrimaryKeyValue()) {
		return false, m.invariantError(rdb.ErrPrimaryKeyRequired, "delete")
	}
	if m.queries.Delete == "" {
		return false, rdb.NewConfigurationError(rdb.ErrMissingQuery, "model %s: delete", m.name)
	}

	result, err := m.Execute(ctx, m.queries.Delete, record.DatabaseValues())
	if err != nil {
		return false, err
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	record.state = StateDeleted
	return true, nil
}

// FindAll 执行读模板，每一行创建一条记录
func (m *Model) FindAll(ctx context.Context, template string, values map[string]any) ([]*Record, error) {
	result, err := m.Execute(ctx, template, values)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(result.Rows))
	for _, row := range result.Rows {
		record, err := m.hydrate(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// FindByPrimaryKey 没有找到时返回 nil, nil
func (m *Model) FindByPrimaryKey(ctx context.Context, value any) (*Record, error) {
	if m.queries.FindByPrimaryKey == "" {
		return nil, rdb.NewConfigurationError(rdb.ErrMissingQuery, "model %s: findByPrimaryKey", m.name)
	}
	return m.findOne(ctx, m.queries.FindByPrimaryKey, map[string]any{query.ParamPrimaryKeyValue: value})
}

// FindByUniqueAttributes 没有找到时返回 nil, nil
func (m *Model) FindByUniqueAttributes(ctx context.Context, values map[string]any) (*Record, error) {
	if m.queries.FindByUniqueAttributes == "" {
		return nil, rdb.NewConfigurationError(rdb.ErrMissingQuery, "model %s: findByUniqueAttributes", m.name)
	}
	return m.findOne(ctx, m.queries.FindByUniqueAttributes, values)
}

func (m *Model) findOne(ctx context.Context, template string, values map[string]any) (*Record, error) {
	records, err := m.FindAll(ctx, template, values)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// hydrate 丢弃未声明的列，按属性类型转换驱动返回的值后校验
func (m *Model) hydrate(row map[string]any) (*Record, error) {
	record := &Record{model: m, values: map[string]any{}, state: StateFound}
	if err := record.SetDatabaseValues(row); err != nil {
		return nil, err
	}
	return record, nil
}

func (m *Model) validationError(props map[string]any, result schema.ValidationResult) *rdb.ValidationError {
	return &rdb.ValidationError{ModelName: m.name, Props: props, Errors: result}
}

func (m *Model) invariantError(cause error, format string, args ...any) *rdb.InvariantError {
	return &rdb.InvariantError{ModelName: m.name, Message: fmt.Sprintf(format, args...), Cause: cause}
}
