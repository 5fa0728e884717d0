package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueFull   = errors.New("task queue full")
	ErrUnknownTask = errors.New("unknown task")
	ErrClosed      = errors.New("task queue closed")
)

// Handler runs one task. Returning an error schedules a retry unless the
// error is wrapped with Permanent.
type Handler func(ctx context.Context, args map[string]string) error

type Task struct {
	ID         string
	Name       string
	Args       map[string]string
	EnqueuedAt time.Time
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}

type Options struct {
	Workers    int
	Buffer     int
	MaxRetries int
	RetryBase  time.Duration
	// DrainTimeout bounds how long buffered tasks may run after shutdown.
	DrainTimeout time.Duration
}

// Queue is an in-process task queue with a fixed worker pool.
type Queue struct {
	opts     Options
	tasks    chan Task
	mu       sync.RWMutex
	handlers map[string]Handler
	closed   atomic.Bool

	processed atomic.Int64
	failed    atomic.Int64
}

func New(opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	return &Queue{
		opts:     opts,
		tasks:    make(chan Task, opts.Buffer),
		handlers: make(map[string]Handler),
	}
}

// Register binds name to h. Registering the same name twice replaces the handler.
func (q *Queue) Register(name string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = h
}

func (q *Queue) handler(name string) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[name]
	return h, ok
}

// Enqueue schedules a task without blocking and returns its id.
func (q *Queue) Enqueue(_ context.Context, name string, args map[string]string) (string, error) {
	if q.closed.Load() {
		return "", ErrClosed
	}
	if _, ok := q.handler(name); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	t := Task{ID: uuid.NewString(), Name: name, Args: args, EnqueuedAt: time.Now()}
	select {
	case q.tasks <- t:
		return t.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled and the buffered
// tasks have been drained.
func (q *Queue) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < q.opts.Workers; i++ {
		g.Go(func() error {
			q.work(gCtx)
			return nil
		})
	}
	<-gCtx.Done()
	q.closed.Store(true)
	return g.Wait()
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.drain(ctx)
			return
		case t := <-q.tasks:
			if ctx.Err() != nil {
				q.drain(ctx, t)
				return
			}
			q.process(ctx, t)
		}
	}
}

// drain runs pending and whatever is still buffered on a context detached
// from the cancelled parent.
func (q *Queue) drain(parent context.Context, pending ...Task) {
	q.closed.Store(true)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), q.opts.DrainTimeout)
	defer cancel()
	for _, t := range pending {
		q.process(ctx, t)
	}
	for {
		select {
		case t := <-q.tasks:
			q.process(ctx, t)
		default:
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, t Task) {
	h, ok := q.handler(t.Name)
	if !ok {
		q.failed.Add(1)
		slog.Error("task handler missing", "task", t.Name, "task_id", t.ID)
		return
	}
	attempts := 0
	backoff := retry.WithMaxRetries(uint64(q.opts.MaxRetries), retry.NewExponential(q.opts.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := safeCall(ctx, h, t.Args)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		slog.Warn("task attempt failed", "task", t.Name, "task_id", t.ID, "attempt", attempts, "err", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		q.failed.Add(1)
		slog.Error("task failed", "task", t.Name, "task_id", t.ID, "attempts", attempts, "err", err)
		return
	}
	q.processed.Add(1)
}

func safeCall(ctx context.Context, h Handler, args map[string]string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return h(ctx, args)
}

// Stats returns the number of tasks that completed and that gave up.
func (q *Queue) Stats() (processed, failed int64) {
	return q.processed.Load(), q.failed.Load()
}
