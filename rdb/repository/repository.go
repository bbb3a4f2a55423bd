package repository

import (
	"context"
	"sort"

	"github.com/hatlonely/sqlmodel/cfg"
	"github.com/hatlonely/sqlmodel/log"
	"github.com/hatlonely/sqlmodel/log/logger"
	"github.com/hatlonely/sqlmodel/rdb"
	"github.com/hatlonely/sqlmodel/rdb/database"
	"github.com/hatlonely/sqlmodel/rdb/orm"
	"github.com/hatlonely/sqlmodel/ref"
	"github.com/pkg/errors"
)

const (
	// ConnectionModePool 所有模型共享一个已启动的连接句柄，由仓库负责结束
	ConnectionModePool = "pool"
	// ConnectionModeFactory 每个操作从连接池借出独立连接，执行后归还
	ConnectionModeFactory = "factory"
)

type Options struct {
	// Database 连接配置，例如 {type: SQL, options: {driver: mysql, ...}}
	Database       *ref.TypeOptions             `cfg:"database" validate:"required"`
	ConnectionMode string                       `cfg:"connectionMode" def:"pool" validate:"oneof=pool factory"`
	Observable     *database.ObservableOptions  `cfg:"observable"`
	Logger         *ref.TypeOptions             `cfg:"logger"`
	Models         map[string]*orm.ModelOptions `cfg:"models" validate:"required,dive,required"`
}

// Repository 从配置创建一组共享连接的模型
type Repository struct {
	conn    database.Conn
	handle  *database.Handle
	factory database.Factory
	models  map[string]*orm.Model
	logger  logger.Logger
}

// Load 从配置文件创建仓库，支持 yaml、toml、json
func Load(path string) (*Repository, error) {
	var options Options
	if err := cfg.Load(path, &options); err != nil {
		return nil, rdb.NewConfigurationError(rdb.ErrInvalidOptions, "load %s: %v", path, err)
	}
	return NewRepositoryWithOptions(&options)
}

func NewRepositoryWithOptions(options *Options) (*Repository, error) {
	if options == nil {
		return nil, rdb.NewConfigurationError(rdb.ErrInvalidOptions, "options is nil")
	}

	l := log.Default()
	if options.Logger != nil {
		var err error
		if l, err = log.NewLoggerWithOptions(options.Logger); err != nil {
			return nil, errors.WithMessage(err, "log.NewLoggerWithOptions failed")
		}
	}

	conn, err := database.NewConnWithOptions(options.Database)
	if err != nil {
		return nil, errors.WithMessage(err, "database.NewConnWithOptions failed")
	}

	repo := &Repository{
		conn:   conn,
		models: make(map[string]*orm.Model, len(options.Models)),
		logger: l,
	}
	if err := repo.connect(options); err != nil {
		_ = conn.Close()
		return nil, err
	}

	for name, modelOptions := range options.Models {
		if modelOptions == nil {
			_ = repo.Close()
			return nil, rdb.NewConfigurationError(rdb.ErrInvalidOptions, "model %s is nil", name)
		}

		opts := *modelOptions
		if opts.Name == "" {
			opts.Name = name
		}
		if opts.Logger == nil {
			opts.Logger = l
		}
		if repo.handle != nil {
			opts.Connection = repo.handle
		} else {
			opts.ConnectionFactory = repo.factory
		}

		model, err := orm.NewModelWithOptions(&opts)
		if err != nil {
			_ = repo.Close()
			return nil, errors.WithMessagef(err, "create model %s failed", name)
		}
		repo.models[name] = model
	}

	return repo, nil
}

func (r *Repository) connect(options *Options) error {
	if options.ConnectionMode == ConnectionModeFactory {
		provider, ok := r.conn.(database.FactoryProvider)
		if !ok {
			return rdb.NewConfigurationError(rdb.ErrInvalidOptions, "%T cannot lend per-operation connections", r.conn)
		}
		factory := provider.Factory()
		if options.Observable != nil {
			var err error
			if factory, err = database.ObserveFactory(factory, options.Observable); err != nil {
				return errors.WithMessage(err, "database.ObserveFactory failed")
			}
		}
		r.factory = factory
		return nil
	}

	var conn database.Conn = r.conn
	if options.Observable != nil {
		observable, err := database.NewObservableConnWithOptions(r.conn, options.Observable)
		if err != nil {
			return errors.WithMessage(err, "database.NewObservableConnWithOptions failed")
		}
		conn = observable
	}
	handle := database.NewHandleWithConn(conn)
	if err := handle.Start(context.Background()); err != nil {
		return err
	}
	r.handle = handle
	return nil
}

// Model 按配置中的名字查找模型
func (r *Repository) Model(name string) (*orm.Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Models 返回排序后的模型名
func (r *Repository) Models() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close 结束共享的连接句柄并关闭连接池
func (r *Repository) Close() error {
	if r.handle != nil {
		if err := r.handle.End(); err != nil {
			return err
		}
		r.logger.Info("repository closed", "models", r.Models())
		return nil
	}
	if err := r.conn.Close(); err != nil {
		return errors.Wrap(err, "close connection failed")
	}
	r.logger.Info("repository closed", "models", r.Models())
	return nil
}
