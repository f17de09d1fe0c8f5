package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}

	expected := []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}
	if strings.Join(order, ",") != strings.Join(expected, ",") {
		t.Fatalf("order: got %v, want %v", order, expected)
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) {
		return nil, errFail
	}

	noop := func(next Endpoint) Endpoint { return next }
	_, err := Chain(noop)(base)(context.Background(), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ok := Logging(logger, "status")(func(context.Context, any) (any, error) { return 1, nil })
	ctx := WithRequestID(WithTransport(context.Background(), "mcp"), "req_1")
	if _, err := ok(ctx, nil); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"endpoint=status", "transport=mcp", "request_id=req_1", "level=DEBUG"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}

	buf.Reset()
	bad := Logging(logger, "reapply")(func(context.Context, any) (any, error) { return nil, errors.New("boom") })
	if _, err := bad(context.Background(), nil); err == nil {
		t.Fatal("error swallowed")
	}
	if out := buf.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "boom") {
		t.Errorf("failure log = %q", out)
	}
}

func TestContext_Transport(t *testing.T) {
	if v := GetTransport(context.Background()); v != "http" {
		t.Fatalf("default transport: got %q, want 'http'", v)
	}
	if v := GetTransport(WithTransport(context.Background(), "mcp")); v != "mcp" {
		t.Fatalf("transport: got %q", v)
	}
}

func TestContext_RequestID(t *testing.T) {
	if v := GetRequestID(context.Background()); v != "" {
		t.Fatalf("request_id default: got %q", v)
	}
	if v := GetRequestID(WithRequestID(context.Background(), "req_abc")); v != "req_abc" {
		t.Fatalf("request_id: got %q", v)
	}
}

func TestInputSchema(t *testing.T) {
	s := InputSchema(map[string]any{"role": map[string]any{"type": "string"}}, []string{"role"})
	if s["type"] != "object" {
		t.Fatalf("type = %v", s["type"])
	}
	if req, _ := s["required"].([]string); len(req) != 1 || req[0] != "role" {
		t.Fatalf("required = %v", s["required"])
	}
	if _, ok := InputSchema(map[string]any{}, nil)["required"]; ok {
		t.Fatal("required set without fields")
	}
}
