package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/park285/flashchain-chess/internal/game"
	"github.com/park285/flashchain-chess/internal/msgcat"
	"github.com/park285/flashchain-chess/internal/store"
	"github.com/park285/flashchain-chess/pkg/chessdto"
)

// GameView renders g for clients. timeout feeds the claim deadline of active
// games; cat words the summary of finished ones.
func GameView(cat *msgcat.Catalog, g *game.GameState, timeout time.Duration) chessdto.GameView {
	v := chessdto.GameView{
		GameID:      g.GameID,
		Status:      string(g.Status.Kind),
		Winner:      g.Status.Winner,
		Result:      string(g.Result),
		Players:     make([]chessdto.PlayerView, 0, len(g.Players)),
		Turn:        g.Turn,
		BoardState:  g.BoardState,
		MoveHistory: append([]string{}, g.MoveHistory...),
		CreatedAt:   g.CreatedAt,
		LastMoveAt:  g.LastMoveAt,
	}
	for _, p := range g.Players {
		v.Players = append(v.Players, chessdto.PlayerView{Wallet: p.Wallet, Color: string(p.Color)})
	}
	if g.Status.IsFinished() {
		winner := ""
		if g.Status.Winner != nil {
			winner = *g.Status.Winner
		}
		v.Summary = cat.ResultMessage(string(g.Result), g.GameID, winner)
	}
	if g.Status.IsActive() {
		if p, ok := g.CurrentPlayer(); ok {
			v.ToMove = p.Wallet
		}
		if timeout > 0 {
			d := g.LastMoveAt.Add(timeout)
			v.Deadline = &d
		}
	}
	return v
}

func encodeEvents(events []game.Event) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(events))
	for _, ev := range events {
		b, err := game.EncodeEvent(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func recordDTO(r store.Record) (chessdto.EventRecord, error) {
	b, err := game.EncodeEvent(r.Event)
	if err != nil {
		return chessdto.EventRecord{}, err
	}
	return chessdto.EventRecord{Seq: r.Seq, GameID: r.GameID, Event: b}, nil
}

// DomainError maps err to its wire form and HTTP status.
func DomainError(cat *msgcat.Catalog, gameID string, err error) (int, chessdto.DomainError) {
	if kind := game.KindOf(err); kind != "" {
		detail := ""
		var ge *game.Error
		if errors.As(err, &ge) {
			detail = ge.Msg
		}
		return statusOf(kind), chessdto.DomainError{
			Code:    string(kind),
			Message: cat.ErrorMessage(string(kind), gameID, detail),
		}
	}
	switch {
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, chessdto.DomainError{Code: "conflict", Message: cat.ErrorMessage("conflict", gameID, ""), Retryable: true}
	case errors.Is(err, store.ErrGameExists):
		return http.StatusConflict, chessdto.DomainError{Code: "game_exists", Message: err.Error()}
	}
	return http.StatusInternalServerError, chessdto.DomainError{Code: "internal", Message: cat.ErrorMessage("internal", gameID, ""), Retryable: true}
}

func statusOf(kind game.Kind) int {
	switch kind {
	case game.KindUnknownGame:
		return http.StatusNotFound
	case game.KindNotYourTurn, game.KindNotAPlayer:
		return http.StatusForbidden
	case game.KindIllegalMove:
		return http.StatusUnprocessableEntity
	case game.KindMalformedAction:
		return http.StatusBadRequest
	case game.KindInvalidGameState, game.KindTimeoutNotElapsed, game.KindAlreadyJoined:
		return http.StatusConflict
	}
	return http.StatusBadRequest
}
