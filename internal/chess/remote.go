package chess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

type bestMoveRequest struct {
	FEN        string `json:"fen"`
	Depth      int    `json:"depth,omitempty"`
	MoveTimeMS int    `json:"movetimeMs,omitempty"`
}

type bestMoveResponse struct {
	Move string `json:"move"`
}

// RemoteEngine asks an HTTP search service for moves.
type RemoteEngine struct {
	baseURL string
	http    *fasthttp.Client
	retry   int
}

type RemoteOption func(*RemoteEngine)

func WithRemoteRetry(n int) RemoteOption {
	return func(r *RemoteEngine) { r.retry = n }
}

// WithRemoteDial replaces the client's dialer.
func WithRemoteDial(dial func(addr string) (net.Conn, error)) RemoteOption {
	return func(r *RemoteEngine) { r.http.Dial = dial }
}

func NewRemoteEngine(baseURL string, opts ...RemoteOption) *RemoteEngine {
	r := &RemoteEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxConnsPerHost: 32,
		},
		retry: 2,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RemoteEngine) BestMove(ctx context.Context, fen string, b Budget) (string, error) {
	if b.IsZero() {
		b = Budget{Depth: 1}
	}
	ctx, cancel := context.WithTimeout(ctx, b.Timeout())
	defer cancel()

	var out bestMoveResponse
	in := bestMoveRequest{FEN: fen, Depth: b.Depth, MoveTimeMS: int(b.MoveTime / time.Millisecond)}
	if err := r.doJSON(ctx, "/bestmove", in, &out); err != nil {
		return "", mapEngineError(err)
	}
	move := strings.TrimSpace(out.Move)
	if move == "" {
		return "", ErrEngineUnavailable
	}
	return move, nil
}

func (r *RemoteEngine) doJSON(ctx context.Context, path string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(r.baseURL + path)
	req.Header.SetContentType("application/json")
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	attempts := max(r.retry, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(10 * time.Second)
		}
		if err := r.http.DoDeadline(req, resp, deadline); err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			lastErr = fmt.Errorf("engine api error: status=%d", status)
			if !shouldRetryStatus(status) {
				return lastErr
			}
		} else {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}
		if attempt < attempts {
			if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
				return err
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
