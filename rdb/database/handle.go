package database

import (
	"context"
	"sync"

	"github.com/hatlonely/sqlmodel/rdb"
	"github.com/pkg/errors"
)

// State 连接句柄状态
type State int

const (
	StateIdle State = iota
	StateRunning
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Handle 带生命周期约束的连接句柄，只允许 Idle -> Running -> Ended
type Handle struct {
	mu      sync.Mutex
	state   State
	factory Factory
	conn    Conn
}

// NewHandle 每次 Start 都通过 factory 获取连接
func NewHandle(factory Factory) *Handle {
	return &Handle{factory: factory}
}

// NewHandleWithConn 包装已有的连接或连接池，End 时关闭它
func NewHandleWithConn(conn Conn) *Handle {
	return NewHandle(func(ctx context.Context) (Conn, error) {
		return conn, nil
	})
}

// Start 获取连接并进入 Running 状态
func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateRunning:
		return &rdb.LifecycleError{Op: "start", State: h.state.String(), Cause: rdb.ErrConnectionStillRunning}
	case StateEnded:
		return &rdb.LifecycleError{Op: "start", State: h.state.String(), Cause: rdb.ErrConnectionEnded}
	}

	conn, err := h.factory(ctx)
	if err != nil {
		return errors.WithMessage(err, "create connection failed")
	}
	if conn == nil {
		return errors.New("connection factory returned nil")
	}

	h.conn = conn
	h.state = StateRunning
	return nil
}

// Execute 仅在 Running 状态可用
func (h *Handle) Execute(ctx context.Context, query string, args ...any) (*Result, error) {
	h.mu.Lock()
	state, conn := h.state, h.conn
	h.mu.Unlock()

	if state != StateRunning {
		return nil, &rdb.LifecycleError{Op: "execute", State: state.String(), Cause: rdb.ErrConnectionNotRunning}
	}
	return conn.Execute(ctx, query, args...)
}

// End 释放连接并进入 Ended 状态，句柄不可再次使用
func (h *Handle) End() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateRunning {
		return &rdb.LifecycleError{Op: "end", State: h.state.String(), Cause: rdb.ErrConnectionNotRunning}
	}

	h.state = StateEnded
	conn := h.conn
	h.conn = nil
	return conn.Close()
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}
