package chess

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func serveEngine(t *testing.T, h fasthttp.RequestHandler) *RemoteEngine {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	return NewRemoteEngine("http://engine.local",
		WithRemoteDial(func(string) (net.Conn, error) { return ln.Dial() }),
		WithRemoteRetry(3),
	)
}

func TestRemoteBestMove(t *testing.T) {
	var got bestMoveRequest
	eng := serveEngine(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/bestmove" {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"move":"g1f3"}`)
	})

	mv, err := eng.BestMove(context.Background(), "startpos", Budget{Depth: 2})
	if err != nil {
		t.Fatalf("BestMove: %v", err)
	}
	if mv != "g1f3" || got.Depth != 2 || got.FEN != "startpos" {
		t.Fatalf("move=%q request=%+v", mv, got)
	}
}

func TestRemoteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	eng := serveEngine(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) == 1 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetBodyString(`{"move":"e2e4"}`)
	})
	mv, err := eng.BestMove(context.Background(), "startpos", Budget{MoveTime: 100 * time.Millisecond})
	if err != nil || mv != "e2e4" {
		t.Fatalf("BestMove = %q, %v", mv, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestRemoteClientErrorIsUnavailable(t *testing.T) {
	eng := serveEngine(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
	})
	if _, err := eng.BestMove(context.Background(), "startpos", Budget{}); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
}

func TestMapEngineError(t *testing.T) {
	if !errors.Is(mapEngineError(context.DeadlineExceeded), ErrEngineTimeout) {
		t.Fatalf("deadline should map to timeout")
	}
	if !errors.Is(mapEngineError(errors.New("boom")), ErrEngineUnavailable) {
		t.Fatalf("generic error should map to unavailable")
	}
}
