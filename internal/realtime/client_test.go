package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/garage44/codebrew-sub002/internal/realtime"
)

func startHub(t *testing.T, configure func(*realtime.Hub)) (*realtime.Hub, string) {
	t.Helper()
	hub := realtime.NewHub(realtime.HubOptions{})
	if configure != nil {
		configure(hub)
	}
	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(ts.Close)
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClientCall(t *testing.T) {
	_, url := startHub(t, func(h *realtime.Hub) {
		h.Router.On("POST", "/echo", func(_ context.Context, req *realtime.Request) (any, error) {
			return json.RawMessage(req.Body), nil
		})
	})

	client, err := realtime.Dial(context.Background(), url, realtime.ClientOptions{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	data, err := client.Call(context.Background(), "POST", "/echo", map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal(data, &out); err != nil || out["msg"] != "hi" {
		t.Fatalf("unexpected response: %s (%v)", data, err)
	}
}

func TestClientConcurrentCallsCorrelate(t *testing.T) {
	_, url := startHub(t, func(h *realtime.Hub) {
		h.Router.On("POST", "/echo", func(_ context.Context, req *realtime.Request) (any, error) {
			return json.RawMessage(req.Body), nil
		})
	})

	client, err := realtime.Dial(context.Background(), url, realtime.ClientOptions{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	const calls = 16
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			data, err := client.Call(context.Background(), "POST", "/echo", map[string]int{"n": n})
			if err != nil {
				errs <- fmt.Errorf("call %d: %w", n, err)
				return
			}
			var out map[string]int
			if err := json.Unmarshal(data, &out); err != nil {
				errs <- fmt.Errorf("call %d: decode: %w", n, err)
				return
			}
			if out["n"] != n {
				errs <- fmt.Errorf("call %d: got response for %d", n, out["n"])
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestClientCallTimeoutAndLateResponse(t *testing.T) {
	release := make(chan struct{})
	_, url := startHub(t, func(h *realtime.Hub) {
		h.Router.On("GET", "/slow", func(context.Context, *realtime.Request) (any, error) {
			<-release
			return "done", nil
		})
		h.Router.On("GET", "/fast", func(context.Context, *realtime.Request) (any, error) {
			return "ok", nil
		})
	})

	client, err := realtime.Dial(context.Background(), url, realtime.ClientOptions{CallTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Call(context.Background(), "GET", "/slow", nil); !errors.Is(err, realtime.ErrCallTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	// Let the late response arrive; it must be discarded silently and the
	// channel must remain usable.
	close(release)
	time.Sleep(50 * time.Millisecond)

	if _, err := client.Call(context.Background(), "GET", "/fast", nil); err != nil {
		t.Fatalf("call after late response: %v", err)
	}
}

func TestClientRemoteError(t *testing.T) {
	_, url := startHub(t, func(h *realtime.Hub) {
		h.Router.On("GET", "/reject", func(context.Context, *realtime.Request) (any, error) {
			return nil, realtime.Errorf(realtime.CodeValidation, "nope")
		})
	})

	client, err := realtime.Dial(context.Background(), url, realtime.ClientOptions{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	_, err = client.Call(context.Background(), "GET", "/reject", nil)
	var remote realtime.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if !strings.Contains(string(remote), "validation") {
		t.Fatalf("unexpected remote error: %q", remote)
	}
}

func TestClientSubscribeReceivesEvents(t *testing.T) {
	hub, url := startHub(t, nil)

	client, err := realtime.Dial(context.Background(), url, realtime.ClientOptions{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if err := client.Subscribe(context.Background(), "/news"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	hub.Broadcaster.Broadcast("/news", map[string]any{"headline": "it works"})

	select {
	case env := <-client.Events():
		if env.Topic != "/news" {
			t.Fatalf("unexpected topic: %s", env.Topic)
		}
		var payload map[string]string
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload["headline"] != "it works" {
			t.Fatalf("unexpected payload: %s (%v)", env.Payload, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	if err := client.Unsubscribe(context.Background(), "/news"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	hub.Broadcaster.Broadcast("/news", map[string]any{"headline": "missed"})
	select {
	case env := <-client.Events():
		t.Fatalf("received event after unsubscribe: %+v", env)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClientCanceledContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	_, url := startHub(t, func(h *realtime.Hub) {
		h.Router.On("GET", "/slow", func(context.Context, *realtime.Request) (any, error) {
			<-release
			return nil, nil
		})
	})

	client, err := realtime.Dial(context.Background(), url, realtime.ClientOptions{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if _, err := client.Call(ctx, "GET", "/slow", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
