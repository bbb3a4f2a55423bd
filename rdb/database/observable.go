package database

import (
	"context"
	"fmt"
	"time"

	"github.com/hatlonely/sqlmodel/log"
	"github.com/hatlonely/sqlmodel/log/logger"
	"github.com/hatlonely/sqlmodel/ref"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableOptions struct {
	// Logger 日志记录器配置，为空时使用默认日志器
	Logger *ref.TypeOptions `cfg:"logger"`

	// DisableMetrics 关闭指标收集，默认开启
	DisableMetrics bool `cfg:"disableMetrics"`

	// DisableLogging 关闭日志记录，默认开启
	DisableLogging bool `cfg:"disableLogging"`

	// EnableTracing 是否启用分布式追踪
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Name 组件名称，作为指标名前缀、日志 component 字段和 span 属性
	Name string `cfg:"name" def:"sqlmodel"`
}

// ObservableMetrics 封装 prometheus 指标
type ObservableMetrics struct {
	statementCounter  *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
	activeStatements  *prometheus.GaugeVec
}

// NewObservableMetrics 创建并注册指标，同名指标已注册时复用已有的收集器
func NewObservableMetrics(name string) *ObservableMetrics {
	return &ObservableMetrics{
		statementCounter: register(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_statements_total",
				Help: "Total number of executed statements",
			},
			[]string{"operation", "status"},
		)),
		statementDuration: register(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_statement_duration_seconds",
				Help:    "Duration of statements in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		)),
		activeStatements: register(prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_statements",
				Help: "Number of statements in flight",
			},
			[]string{"operation"},
		)),
	}
}

func register[T prometheus.Collector](collector T) T {
	if err := prometheus.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// ObservableConn 装饰器，为任何 Conn 添加指标、日志和追踪
type ObservableConn struct {
	conn Conn

	logger        logger.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableMetrics bool
	enableLogging bool
	enableTracing bool
}

// observer 同一组配置下的装饰器共享指标和日志器
type observer struct {
	options *ObservableOptions
	logger  logger.Logger
	metrics *ObservableMetrics
	tracer  trace.Tracer
}

func newObserver(options *ObservableOptions) (*observer, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	obs := &observer{options: options}
	if !options.DisableLogging {
		l := log.Default()
		if options.Logger != nil {
			var err error
			l, err = log.NewLoggerWithOptions(options.Logger)
			if err != nil {
				return nil, errors.WithMessage(err, "failed to create logger")
			}
		}
		obs.logger = l.WithGroup("observableConn")
	}
	if !options.DisableMetrics {
		obs.metrics = NewObservableMetrics(options.Name)
	}
	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("rdb.%s", options.Name))
	}
	return obs, nil
}

func (obs *observer) wrap(conn Conn) *ObservableConn {
	return &ObservableConn{
		conn:          conn,
		logger:        obs.logger,
		metrics:       obs.metrics,
		tracer:        obs.tracer,
		name:          obs.options.Name,
		enableMetrics: !obs.options.DisableMetrics,
		enableLogging: !obs.options.DisableLogging,
		enableTracing: obs.options.EnableTracing,
	}
}

// NewObservableConnWithOptions 包装一个长期存在的连接
func NewObservableConnWithOptions(conn Conn, options *ObservableOptions) (*ObservableConn, error) {
	obs, err := newObserver(options)
	if err != nil {
		return nil, err
	}
	return obs.wrap(conn), nil
}

// ObserveFactory 包装 factory 创建的每个连接
func ObserveFactory(factory Factory, options *ObservableOptions) (Factory, error) {
	obs, err := newObserver(options)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (Conn, error) {
		conn, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		return obs.wrap(conn), nil
	}, nil
}

func (obs *ObservableConn) Execute(ctx context.Context, query string, args ...any) (*Result, error) {
	operation := "exec"
	if IsQuery(query) {
		operation = "query"
	}

	var result *Result
	err := obs.observeOperation(ctx, operation, query, func(ctx context.Context) error {
		var err error
		result, err = obs.conn.Execute(ctx, query, args...)
		return err
	})
	return result, err
}

func (obs *ObservableConn) Close() error {
	return obs.conn.Close()
}

// observeOperation 统一的语句观测逻辑
func (obs *ObservableConn) observeOperation(ctx context.Context, operation string, query string, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if obs.enableTracing && obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, fmt.Sprintf("rdb.%s", operation),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
				attribute.String("db.statement", query),
			),
		)
		defer span.End()
	}

	if obs.enableMetrics && obs.metrics != nil {
		obs.metrics.activeStatements.WithLabelValues(operation).Inc()
		defer obs.metrics.activeStatements.WithLabelValues(operation).Dec()
	}

	err := fn(ctx)
	duration := time.Since(start)

	if obs.enableTracing && span != nil {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.enableMetrics && obs.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.statementCounter.WithLabelValues(operation, status).Inc()
		obs.metrics.statementDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if obs.enableLogging && obs.logger != nil {
		if err != nil {
			obs.logger.ErrorContext(ctx, "statement failed",
				"component", obs.name,
				"operation", operation,
				"sql", query,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.DebugContext(ctx, "statement completed",
				"component", obs.name,
				"operation", operation,
				"sql", query,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}

	return err
}
