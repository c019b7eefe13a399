package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitdl/internal/utils"
)

// Result is delivered once per task, after its final attempt.
type Result struct {
	Task    Task
	Bytes   int64
	Err     error
	Comment string // sub-operation that failed, empty on success
}

type Config struct {
	Client       utils.Doer
	Connections  int
	MaxRetries   int
	RetryBackoff time.Duration
	Hooks        Hooks
	// OnProgress receives byte deltas; a failed attempt is withdrawn with a
	// negative delta.
	OnProgress func(delta int64)
	// OnResult is the only place task outcomes are committed. It may run
	// concurrently for different tasks.
	OnResult func(Result)
}

// Engine drives Fetch over a Pool with retry and abort handling.
type Engine struct {
	ctx   context.Context
	cfg   Config
	pool  *Pool[Task]
	stop  func() bool
	mu    sync.Mutex
	fatal error
}

func NewEngine(ctx context.Context, cfg Config) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = utils.DefaultTaskRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	e := &Engine{ctx: ctx, cfg: cfg}
	e.pool = NewPool(cfg.Connections, e.run)
	e.stop = context.AfterFunc(ctx, e.pool.Kill)
	return e
}

// Push enqueues task unless the run was cancelled or aborted.
func (e *Engine) Push(task Task) bool {
	if e.ctx.Err() != nil {
		return false
	}
	return e.pool.Push(task)
}

// Abort records err as the run's failure and stops new tasks from starting.
func (e *Engine) Abort(err error) {
	e.mu.Lock()
	if e.fatal == nil {
		e.fatal = err
	}
	e.mu.Unlock()
	e.pool.Kill()
}

func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fatal != nil {
		return e.fatal
	}
	return e.ctx.Err()
}

// Wait drains the pool and returns the abort error or the context error.
func (e *Engine) Wait() error {
	e.pool.Wait()
	e.stop()
	return e.Err()
}

func (e *Engine) run(task Task) {
	if e.ctx.Err() != nil {
		return
	}
	var streamed int64
	hooks := e.cfg.Hooks
	onData := hooks.OnData
	hooks.OnData = func(t Task, data []byte) {
		streamed += int64(len(data))
		if e.cfg.OnProgress != nil {
			e.cfg.OnProgress(int64(len(data)))
		}
		if onData != nil {
			onData(t, data)
		}
	}
	n, err := Fetch(e.ctx, e.cfg.Client, task, hooks)
	if err == nil {
		e.deliver(Result{Task: task, Bytes: n})
		return
	}
	if streamed > 0 && e.cfg.OnProgress != nil {
		e.cfg.OnProgress(-streamed)
	}
	if e.ctx.Err() != nil {
		log.Debug().Str("op", "queue/engine").Msgf("Task %d abandoned: %v", task.Index, e.ctx.Err())
		return
	}

	var typeErr *utils.ContentTypeError
	var writeErr *WriteError
	switch {
	case errors.As(err, &typeErr):
		e.Abort(err)
		e.deliver(Result{Task: task, Err: err, Comment: "request"})
	case errors.As(err, &writeErr):
		e.deliver(Result{Task: task, Err: err, Comment: "stream write"})
	case utils.IsTransient(err):
		if task.Attempt+1 < e.cfg.MaxRetries {
			log.Debug().Str("op", "queue/engine").Msgf("Retrying task %d after attempt %d: %v", task.Index, task.Attempt+1, err)
			if !e.backoff(task.Attempt) {
				return
			}
			task.Attempt++
			if !e.pool.Push(task) {
				e.deliver(Result{Task: task, Err: err, Comment: "request"})
			}
			return
		}
		e.deliver(Result{Task: task, Err: fmt.Errorf("task %d: %w", task.Index, err), Comment: "max retries exceeded"})
	default:
		e.deliver(Result{Task: task, Err: err, Comment: "request"})
	}
}

func (e *Engine) backoff(attempt int) bool {
	timer := time.NewTimer(time.Duration(attempt+1) * e.cfg.RetryBackoff)
	defer timer.Stop()
	select {
	case <-e.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) deliver(res Result) {
	if e.cfg.OnResult != nil {
		e.cfg.OnResult(res)
	}
}
