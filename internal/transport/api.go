// Package transport exposes the executor over HTTP and streams committed
// events over WebSocket.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/park285/flashchain-chess/internal/contract"
	"github.com/park285/flashchain-chess/internal/game"
	"github.com/park285/flashchain-chess/internal/msgcat"
	"github.com/park285/flashchain-chess/internal/obslog"
	"github.com/park285/flashchain-chess/internal/store"
	"github.com/park285/flashchain-chess/pkg/chessdto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	HeaderWallet   = "X-Wallet"
	HeaderActionID = "X-Action-Id"

	defaultRequestTimeout = 10 * time.Second
	maxEventPage          = 500
)

// EventLog reads committed events of a game.
type EventLog interface {
	Events(ctx context.Context, id string, from int) ([]store.Record, error)
}

// API serves the action endpoints with fasthttp.
type API struct {
	exec       *contract.Executor
	events     EventLog
	cat        *msgcat.Catalog
	timeout    time.Duration
	reqTimeout time.Duration
}

type APIOption func(*API)

// WithGameTimeout sets the inactivity window shown as a game's deadline.
func WithGameTimeout(d time.Duration) APIOption {
	return func(a *API) { a.timeout = d }
}

func WithRequestTimeout(d time.Duration) APIOption {
	return func(a *API) {
		if d > 0 {
			a.reqTimeout = d
		}
	}
}

func NewAPI(exec *contract.Executor, events EventLog, cat *msgcat.Catalog, opts ...APIOption) *API {
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	a := &API{exec: exec, events: events, cat: cat, timeout: game.DefaultTimeout, reqTimeout: defaultRequestTimeout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler routes:
//
//	POST /games
//	GET  /games?status=&player=&limit=
//	GET  /games/{id}
//	POST /games/{id}/actions
//	GET  /games/{id}/events?from=n
func (a *API) Handler() fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		ctx, cancel := context.WithTimeout(context.Background(), a.reqTimeout)
		defer cancel()

		parts := strings.Split(strings.Trim(string(rc.Path()), "/"), "/")
		if len(parts) == 0 || parts[0] != "games" {
			a.notFound(rc)
			return
		}
		method := string(rc.Method())
		switch {
		case len(parts) == 1 && method == fasthttp.MethodPost:
			a.createGame(ctx, rc)
		case len(parts) == 1 && method == fasthttp.MethodGet:
			a.listGames(ctx, rc)
		case len(parts) == 2 && method == fasthttp.MethodGet:
			a.getGame(ctx, rc, parts[1])
		case len(parts) == 3 && parts[2] == "actions" && method == fasthttp.MethodPost:
			a.postAction(ctx, rc, parts[1])
		case len(parts) == 3 && parts[2] == "events" && method == fasthttp.MethodGet:
			a.listEvents(ctx, rc, parts[1])
		default:
			a.notFound(rc)
		}
	}
}

// Serve listens on addr until ctx is cancelled.
func (a *API) Serve(ctx context.Context, addr string) error {
	srv := &fasthttp.Server{
		Handler:      a.Handler(),
		Name:         "chess-node",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(addr) }()
	obslog.L().Info("api_listen", zap.String("addr", addr))
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.ShutdownWithContext(shutdownCtx)
	}
}

func (a *API) createGame(ctx context.Context, rc *fasthttp.RequestCtx) {
	var req chessdto.CreateGameRequest
	if body := rc.PostBody(); len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			a.fail(rc, "", &game.Error{Kind: game.KindMalformedAction, Msg: err.Error()})
			return
		}
	}
	g, err := a.exec.Create(ctx, req.GameID, wallet(rc))
	if err != nil {
		a.fail(rc, req.GameID, err)
		return
	}
	writeJSON(rc, http.StatusCreated, chessdto.CreateGameResponse{Game: GameView(a.cat, g, a.timeout)})
}

func (a *API) listGames(ctx context.Context, rc *fasthttp.RequestCtx) {
	args := rc.QueryArgs()
	f := store.ListFilter{
		Status: game.StatusKind(strings.ToUpper(strings.TrimSpace(string(args.Peek("status"))))),
		Player: string(args.Peek("player")),
		Limit:  args.GetUintOrZero("limit"),
	}
	switch f.Status {
	case "", game.StatusWaiting, game.StatusActive, game.StatusFinished:
	default:
		a.fail(rc, "", &game.Error{Kind: game.KindMalformedAction, Msg: "unknown status " + string(args.Peek("status"))})
		return
	}
	games, err := a.exec.List(ctx, f)
	if err != nil {
		a.fail(rc, "", err)
		return
	}
	resp := chessdto.GamesResponse{Games: make([]chessdto.GameView, 0, len(games))}
	for _, g := range games {
		resp.Games = append(resp.Games, GameView(a.cat, g, a.timeout))
	}
	writeJSON(rc, http.StatusOK, resp)
}

func (a *API) getGame(ctx context.Context, rc *fasthttp.RequestCtx, id string) {
	g, err := a.exec.Load(ctx, id)
	if err != nil {
		a.fail(rc, id, err)
		return
	}
	writeJSON(rc, http.StatusOK, GameView(a.cat, g, a.timeout))
}

func (a *API) postAction(ctx context.Context, rc *fasthttp.RequestCtx, id string) {
	action, err := game.DecodeAction(rc.PostBody())
	if err != nil {
		a.fail(rc, id, err)
		return
	}
	res, err := a.exec.Execute(ctx, contract.Submission{
		GameID:   id,
		ActionID: strings.TrimSpace(string(rc.Request.Header.Peek(HeaderActionID))),
		Sender:   wallet(rc),
		Action:   action,
	})
	if err != nil {
		a.fail(rc, id, err)
		return
	}
	events, err := encodeEvents(res.Events)
	if err != nil {
		a.fail(rc, id, err)
		return
	}
	writeJSON(rc, http.StatusOK, chessdto.ActionResponse{
		Game:      GameView(a.cat, res.State, a.timeout),
		Events:    events,
		Duplicate: res.Duplicate,
	})
}

func (a *API) listEvents(ctx context.Context, rc *fasthttp.RequestCtx, id string) {
	if _, err := a.exec.Load(ctx, id); err != nil {
		a.fail(rc, id, err)
		return
	}
	from := rc.QueryArgs().GetUintOrZero("from")
	recs, err := a.events.Events(ctx, id, from)
	if err != nil {
		a.fail(rc, id, err)
		return
	}
	if len(recs) > maxEventPage {
		recs = recs[:maxEventPage]
	}
	resp := chessdto.EventsResponse{GameID: id, Next: from, Events: make([]chessdto.EventRecord, 0, len(recs))}
	for _, r := range recs {
		dto, err := recordDTO(r)
		if err != nil {
			a.fail(rc, id, err)
			return
		}
		resp.Events = append(resp.Events, dto)
		resp.Next = r.Seq + 1
	}
	writeJSON(rc, http.StatusOK, resp)
}

func (a *API) notFound(rc *fasthttp.RequestCtx) {
	writeJSON(rc, http.StatusNotFound, chessdto.ErrorResponse{Error: chessdto.DomainError{Code: "not_found", Message: "no such route"}})
}

func (a *API) fail(rc *fasthttp.RequestCtx, gameID string, err error) {
	status, de := DomainError(a.cat, gameID, err)
	if status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		obslog.L().Error("api_internal_error",
			zap.String("path", string(rc.Path())),
			zap.String("game_id", gameID),
			zap.Error(err),
		)
	}
	writeJSON(rc, status, chessdto.ErrorResponse{Error: de})
}

func wallet(rc *fasthttp.RequestCtx) string {
	return strings.TrimSpace(string(rc.Request.Header.Peek(HeaderWallet)))
}

func writeJSON(rc *fasthttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":{"code":"internal","message":"encode response","retryable":false}}`)
	}
	rc.SetStatusCode(status)
	rc.SetContentType("application/json")
	rc.SetBody(b)
}
