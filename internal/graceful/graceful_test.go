package graceful

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewGracefulShutdown_BasicFields(t *testing.T) {
	g := NewGracefulShutdown(5*time.Second, nil)
	if g.timeout != 5*time.Second {
		t.Fatalf("expected timeout 5s, got %v", g.timeout)
	}
	if len(g.steps) != 0 {
		t.Fatalf("expected no shutdown steps initially")
	}
}

func TestGracefulShutdown_RunsStepsInOrderOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	g := NewGracefulShutdown(2*time.Second, zap.New(core))

	var mu sync.Mutex
	var order []string
	record := func(name string, err error) ShutdownFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return err
		}
	}
	g.Add("poller", record("poller", nil))
	g.Add("mqtt", record("mqtt", errors.New("not connected")))
	g.Add("database", record("database", nil))

	g.Shutdown()
	g.Shutdown()

	if len(order) != 3 || order[0] != "poller" || order[1] != "mqtt" || order[2] != "database" {
		t.Fatalf("order = %v", order)
	}
	if n := logs.FilterMessage("shutdown step failed").Len(); n != 1 {
		t.Fatalf("failed step logs = %d, want 1", n)
	}
}

func TestGracefulShutdown_HTTPServerShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: http.NotFoundHandler()}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	g := NewGracefulShutdown(2*time.Second, nil)
	g.SetHTTPServer(srv)
	g.Shutdown()

	select {
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestGracefulShutdown_Trigger(t *testing.T) {
	g := NewGracefulShutdown(time.Second, nil)
	done := make(chan struct{})
	g.Add("mark", func(ctx context.Context) error {
		close(done)
		return nil
	})
	g.Start()
	g.Trigger()
	g.Trigger()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not start shutdown")
	}
	g.Wait()
}

func TestGracefulShutdown_WithTimeout(t *testing.T) {
	g := NewGracefulShutdown(100*time.Millisecond, nil)
	ctx, cancel := g.WithTimeout()
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("expected context to have deadline")
	}
	if time.Until(deadline) <= 0 {
		t.Fatalf("deadline already passed")
	}
}
