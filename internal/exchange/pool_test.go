package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func echoUpgrader() http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req rpcRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := rpcResponse{ID: req.ID, Result: json.RawMessage(`"ok"`)}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}
}

func wsURL(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	return "ws" + srv.URL[len("http"):]
}

func TestConnPoolChecksOutUpToSize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(echoUpgrader())
	defer srv.Close()

	pool := NewConnPool(2, 2*time.Second, nil)
	defer pool.Close()

	ctx := context.Background()
	c1, err := pool.Checkout(ctx, wsURL(t, srv))
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	c2, err := pool.Checkout(ctx, wsURL(t, srv))
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if c1 == c2 {
		t.Fatalf("expected distinct connections while pool has capacity")
	}

	c3, err := pool.Checkout(ctx, wsURL(t, srv))
	if err != nil {
		t.Fatalf("third checkout: %v", err)
	}
	if c3 != c1 {
		t.Errorf("expected round-robin to reuse the first connection once at capacity")
	}
}

func TestConnPoolRebuildForcesRedial(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(echoUpgrader())
	defer srv.Close()

	pool := NewConnPool(1, 2*time.Second, nil)
	defer pool.Close()

	ctx := context.Background()
	first, err := pool.Checkout(ctx, wsURL(t, srv))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	pool.Rebuild()

	second, err := pool.Checkout(ctx, wsURL(t, srv))
	if err != nil {
		t.Fatalf("checkout after rebuild: %v", err)
	}
	if second == first {
		t.Errorf("expected Rebuild to force a fresh connection")
	}
}

func TestConnCallRoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(echoUpgrader())
	defer srv.Close()

	conn, err := dialConn(context.Background(), wsURL(t, srv), 2*time.Second)
	if err != nil {
		t.Fatalf("dialConn: %v", err)
	}
	defer conn.Close()

	var result string
	if err := conn.Call(context.Background(), "ping", nil, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, want %q", result, "ok")
	}
}
