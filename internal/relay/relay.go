// Package relay forwards committed game events to an external indexer
// webhook.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/park285/flashchain-chess/internal/game"
	"github.com/park285/flashchain-chess/internal/obslog"
	"github.com/park285/flashchain-chess/internal/store"
	"github.com/park285/flashchain-chess/pkg/chessdto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Source yields committed events of every game.
type Source interface {
	SubscribeAll(ctx context.Context) (<-chan store.Record, error)
}

// Relay posts each record as a chessdto.EventRecord to url.
type Relay struct {
	url   string
	token string
	http  *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
	backoffBase    time.Duration
}

type Option func(*Relay)

func WithToken(token string) Option {
	return func(r *Relay) { r.token = strings.TrimSpace(token) }
}

func WithTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// WithRetry sets how many extra attempts a failed delivery gets.
func WithRetry(n int) Option {
	return func(r *Relay) {
		if n >= 0 {
			r.retryMax = n
		}
	}
}

func WithBackoff(base time.Duration) Option {
	return func(r *Relay) {
		if base > 0 {
			r.backoffBase = base
		}
	}
}

// WithDial overrides how connections are opened.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(r *Relay) { r.http.Dial = dial }
}

func New(url string, opts ...Option) *Relay {
	r := &Relay{
		url:            strings.TrimSpace(url),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
		backoffBase:    100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run forwards records until ctx ends. Delivery failures are logged and the
// record is dropped; the indexer can backfill from GET /games/{id}/events.
func (r *Relay) Run(ctx context.Context, src Source) error {
	records, err := src.SubscribeAll(ctx)
	if err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	obslog.L().Info("relay_start", zap.String("url", r.url))
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			if err := r.Deliver(ctx, rec); err != nil && ctx.Err() == nil {
				obslog.L().Warn("relay_deliver_failed",
					zap.String("game_id", rec.GameID),
					zap.Int("seq", rec.Seq),
					zap.Error(err),
				)
			}
		}
	}
}

// Deliver posts one record, retrying transport errors and 5xx answers.
func (r *Relay) Deliver(ctx context.Context, rec store.Record) error {
	ev, err := game.EncodeEvent(rec.Event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(chessdto.EventRecord{Seq: rec.Seq, GameID: rec.GameID, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(r.url)
	req.Header.SetContentType("application/json")
	req.Header.Set("X-Event-Id", fmt.Sprintf("%s:%d", rec.GameID, rec.Seq))
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	req.SetBody(payload)

	attempts := r.retryMax + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := r.http.DoDeadline(req, resp, r.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				return nil
			}
			err = fmt.Errorf("indexer error: status=%d body=%s", status, truncate(string(resp.Body()), 256))
			if !shouldRetryStatus(status) {
				return err
			}
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, r.backoff(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (r *Relay) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(r.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

// backoff doubles per attempt and stops growing after six.
func (r *Relay) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * r.backoffBase
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

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
