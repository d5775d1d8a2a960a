package router_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rabia-project/rabia/router"
)

type fooMsg struct{ N int }
type barMsg struct{ S string }

func TestRoute_dispatchesToAllHandlersInOrder(t *testing.T) {
	r := router.New(slog.Default(), 8)

	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, name)
	}

	router.AddRoute(r, func(fooMsg) { record("first") })
	router.AddRoute(r, func(fooMsg) { record("second") })
	router.AddRoute(r, func(barMsg) { record("bar") })

	r.Route(fooMsg{N: 1})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestRoute_noHandlerDropsSilently(t *testing.T) {
	r := router.New(slog.Default(), 8)
	require.NotPanics(t, func() { r.Route(barMsg{S: "unhandled"}) })
}

func TestRoute_handlerPanicDoesNotStopOthers(t *testing.T) {
	r := router.New(slog.Default(), 8)
	var secondCalled bool
	router.AddRoute(r, func(fooMsg) { panic("boom") })
	router.AddRoute(r, func(fooMsg) { secondCalled = true })

	require.NotPanics(t, func() { r.Route(fooMsg{}) })
	require.True(t, secondCalled)
}

func TestRoute_fatalPanicGoesToRegisteredHandler(t *testing.T) {
	r := router.New(slog.Default(), 8)
	var caught any
	r.SetFatalHandler(func(rec any) { caught = rec })
	router.AddRoute(r, func(fooMsg) { panic(router.FatalPanic{Err: errors.New("invariant violated")}) })

	require.NotPanics(t, func() { r.Route(fooMsg{}) })
	fp, ok := caught.(router.FatalPanic)
	require.True(t, ok)
	require.EqualError(t, fp.Err, "invariant violated")
}

func TestRoute_fatalPanicWithNoHandlerPropagates(t *testing.T) {
	r := router.New(slog.Default(), 8)
	router.AddRoute(r, func(fooMsg) { panic(router.FatalPanic{Err: errors.New("invariant violated")}) })

	require.Panics(t, func() { r.Route(fooMsg{}) })
}

func TestAddRoute_afterStartPanics(t *testing.T) {
	r := router.New(slog.Default(), 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx, 1)
	defer r.Stop()

	require.Panics(t, func() {
		router.AddRoute(r, func(fooMsg) {})
	})
}

func TestRouteAsync_runsOnWorker(t *testing.T) {
	r := router.New(slog.Default(), 8)
	done := make(chan struct{})
	router.AddRoute(r, func(fooMsg) { close(done) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx, 1)
	defer r.Stop()

	r.RouteAsync(func() any { return fooMsg{N: 42} })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async route never delivered")
	}
}

func TestRouteAsync_dropsWhenQueueFull(t *testing.T) {
	r := router.New(slog.Default(), 1)
	block := make(chan struct{})
	var calls int
	var mu sync.Mutex
	router.AddRoute(r, func(fooMsg) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-block
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx, 1)

	// first occupies the single worker, second fills the queue buffer,
	// third should be dropped since the channel (size 1) is full.
	r.RouteAsync(func() any { return fooMsg{N: 1} })
	time.Sleep(20 * time.Millisecond) // let the worker pick up the first job
	r.RouteAsync(func() any { return fooMsg{N: 2} })
	r.RouteAsync(func() any { return fooMsg{N: 3} })

	close(block)
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, calls, 2)
}
