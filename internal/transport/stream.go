package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/park285/flashchain-chess/internal/game"
	"github.com/park285/flashchain-chess/internal/msgcat"
	"github.com/park285/flashchain-chess/internal/obslog"
	"github.com/park285/flashchain-chess/internal/store"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Loader reads a game snapshot.
type Loader interface {
	Load(ctx context.Context, id string) (*game.GameState, error)
}

// Stream pushes a game's committed events to WebSocket subscribers. A client
// first receives the backlog from ?from=n, then live events, each as an
// EventRecord frame. The socket closes normally after GameEnded.
type Stream struct {
	games        Loader
	feed         store.Feed
	cat          *msgcat.Catalog
	writeTimeout time.Duration
	origins      []string
}

type StreamOption func(*Stream)

// WithOriginPatterns allows cross-origin browser clients.
func WithOriginPatterns(p ...string) StreamOption {
	return func(s *Stream) { s.origins = append(s.origins, p...) }
}

func NewStream(games Loader, feed store.Feed, cat *msgcat.Catalog, opts ...StreamOption) *Stream {
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	s := &Stream{games: games, feed: feed, cat: cat, writeTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /games/{id}/stream", s.serveGame)
	return mux
}

// Serve listens on addr until ctx is cancelled.
func (s *Stream) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	obslog.L().Info("stream_listen", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Stream) serveGame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	from := 0
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "bad from", http.StatusBadRequest)
			return
		}
		from = n
	}
	if _, err := s.games.Load(r.Context(), id); err != nil {
		status, de := DomainError(s.cat, id, err)
		http.Error(w, de.Message, status)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		obslog.L().Warn("stream_accept_failed", zap.String("game_id", id), zap.Error(err))
		return
	}
	defer c.CloseNow()
	ctx := c.CloseRead(r.Context())

	logger := obslog.L().With(zap.String("game_id", id))
	logger.Debug("stream_open", zap.Int("from", from))

	// subscribe before reading the backlog so nothing falls between them
	live, err := s.feed.Subscribe(ctx, id)
	if err != nil {
		logger.Warn("stream_subscribe_failed", zap.Error(err))
		_ = c.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	backlog, err := s.feed.Events(ctx, id, from)
	if err != nil {
		logger.Warn("stream_backlog_failed", zap.Error(err))
		_ = c.Close(websocket.StatusInternalError, "backlog failed")
		return
	}

	next := from
	for _, rec := range backlog {
		done, err := s.send(ctx, c, rec)
		if err != nil {
			return
		}
		next = rec.Seq + 1
		if done {
			_ = c.Close(websocket.StatusNormalClosure, "game finished")
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-live:
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, "feed closed")
				return
			}
			if rec.Seq < next {
				continue
			}
			done, err := s.send(ctx, c, rec)
			if err != nil {
				logger.Debug("stream_write_failed", zap.Error(err))
				return
			}
			next = rec.Seq + 1
			if done {
				_ = c.Close(websocket.StatusNormalClosure, "game finished")
				return
			}
		}
	}
}

func (s *Stream) send(ctx context.Context, c *websocket.Conn, rec store.Record) (bool, error) {
	dto, err := recordDTO(rec)
	if err != nil {
		return false, err
	}
	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, c, dto); err != nil {
		return false, err
	}
	_, ended := rec.Event.(game.GameEnded)
	return ended, nil
}

