// Package router implements the in-process, type-keyed message dispatcher
// described in spec.md §4.1: Local notifications and decoded Wired protocol
// messages are routed synchronously, in handler-registration order, to every
// handler registered for their concrete type.
//
// Design note (spec.md §9): the source routes by runtime reflection over a
// sealed message hierarchy. Here registration is compile-time checked via
// AddRoute's generic handler signature (func(T), not func(any)); only the
// dispatch table itself, which must hold handlers for heterogeneous
// concrete types side by side, is keyed by reflect.Type — Go has no
// alternative to that without a single giant closed type switch.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/rabia-project/rabia/logger"
)

// Router is the publish/subscribe backbone every other component is handed.
type Router struct {
	log *slog.Logger

	mu       sync.RWMutex
	started  bool
	handlers map[reflect.Type][]handlerEntry
	fatal    func(any)

	asyncCh chan func()
	asyncWG sync.WaitGroup
}

// FatalPanic marks a handler panic as an unrecoverable invariant violation
// rather than an ordinary bug: dispatchOne's usual recover-log-and-continue
// does not apply to it. A handler panics with a FatalPanic value to reach
// the registered fatal handler (SetFatalHandler) instead of being swallowed.
type FatalPanic struct {
	Err error
}

func (p FatalPanic) Error() string { return p.Err.Error() }

type handlerEntry struct {
	typeName string
	call     func(msg any)
}

// New constructs a Router. asyncQueueSize bounds the route_async backlog;
// a supplier submitted once the queue is full is dropped with a warning,
// consistent with handlers never being allowed to block the caller.
func New(log *slog.Logger, asyncQueueSize int) *Router {
	if log == nil {
		log = slog.Default()
	}
	if asyncQueueSize <= 0 {
		asyncQueueSize = 256
	}
	return &Router{
		log:      log,
		handlers: make(map[reflect.Type][]handlerEntry),
		asyncCh:  make(chan func(), asyncQueueSize),
	}
}

// AddRoute registers handler for every message of concrete type T. Must be
// called before Start; registering routes on a running Router panics.
func AddRoute[T any](r *Router, handler func(T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		panic("router: add_route called after start")
	}
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		// T is an interface type; reflect.TypeOf(zero) is nil for a nil
		// interface value, so key on the interface type directly instead.
		t = reflect.TypeOf(&zero).Elem()
	}
	r.handlers[t] = append(r.handlers[t], handlerEntry{
		typeName: t.String(),
		call: func(msg any) {
			handler(msg.(T))
		},
	})
}

// SetFatalHandler registers fn to run when a handler panics with a
// FatalPanic value, instead of the usual swallow-and-log. There is no
// ordering requirement against Start, unlike AddRoute: the dispatch path
// reads it under the same lock AddRoute writes it with.
func (r *Router) SetFatalHandler(fn func(any)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatal = fn
}

// Start launches the workers backing RouteAsync. The Router can route
// synchronously (Route) before Start, but RouteAsync has nowhere to run
// its suppliers until Start has been called.
func (r *Router) Start(ctx context.Context, workers int) {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()

	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		r.asyncWG.Add(1)
		go r.asyncLoop(ctx)
	}
}

func (r *Router) asyncLoop(ctx context.Context) {
	defer r.asyncWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-r.asyncCh:
			if !ok {
				return
			}
			job()
		}
	}
}

// Stop closes the async queue and waits for in-flight jobs to drain.
func (r *Router) Stop() {
	close(r.asyncCh)
	r.asyncWG.Wait()
}

// Route synchronously delivers msg to every handler registered for its
// concrete type, in registration order. A handler panic is recovered,
// logged, and does not prevent the remaining handlers from running. If no
// handler is registered, the message is logged and dropped.
func (r *Router) Route(msg any) {
	t := reflect.TypeOf(msg)
	r.mu.RLock()
	hs := r.handlers[t]
	r.mu.RUnlock()

	if len(hs) == 0 {
		r.log.Warn("no handler registered for message type", slog.String("type", fmt.Sprintf("%T", msg)), logger.Data(msg))
		return
	}
	for _, h := range hs {
		r.dispatchOne(h, msg)
	}
}

func (r *Router) dispatchOne(h handlerEntry, msg any) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if _, ok := rec.(FatalPanic); ok {
			r.mu.RLock()
			fatal := r.fatal
			r.mu.RUnlock()
			if fatal != nil {
				fatal(rec)
				return
			}
			// No supervisor registered to catch it: crash loud rather than
			// let an invariant violation masquerade as a logged warning.
			panic(rec)
		}
		r.log.Error("route handler panicked",
			slog.String("handler_type", h.typeName),
			slog.Any("recover", rec),
		)
	}()
	h.call(msg)
}

// RouteAsync schedules supplier to run on a worker goroutine, which then
// routes whatever message it returns. Used to escape a critical section
// before publishing a notification that might reenter it synchronously.
// Non-blocking: if the async queue is full the supplier is dropped and a
// warning is logged.
func (r *Router) RouteAsync(supplier func() any) {
	job := func() { r.Route(supplier()) }
	select {
	case r.asyncCh <- job:
	default:
		r.log.Warn("async route queue full, dropping message")
	}
}
