// Package archive keeps finished games in Postgres for history and analysis.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/flashchain-chess/internal/game"
	"github.com/park285/flashchain-chess/internal/rules/chessrules"
)

const schema = `CREATE TABLE IF NOT EXISTS chess_games (
    game_id       TEXT PRIMARY KEY,
    white_wallet  TEXT NOT NULL,
    black_wallet  TEXT NOT NULL,
    winner        TEXT NOT NULL DEFAULT '',
    result        TEXT NOT NULL,
    result_method TEXT NOT NULL DEFAULT '',
    moves_uci     JSONB NOT NULL,
    moves_san     JSONB NOT NULL,
    pgn           TEXT NOT NULL,
    final_fen     TEXT NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    ended_at      TIMESTAMPTZ NOT NULL,
    duration_ms   BIGINT NOT NULL
)`

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates chess_games when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// SaveResult upserts a finished game. Unfinished games are ignored.
func (r *Repository) SaveResult(ctx context.Context, g *game.GameState) error {
	if r == nil || r.db == nil || g == nil || !g.Status.IsFinished() {
		return nil
	}
	row := Summarize(g)
	movesUCIRaw, _ := json.Marshal(row.MovesUCI)
	movesSANRaw, _ := json.Marshal(row.MovesSAN)

	q := `INSERT INTO chess_games (
        game_id, white_wallet, black_wallet, winner, result, result_method,
        moves_uci, moves_san, pgn, final_fen, started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
      ) ON CONFLICT (game_id) DO UPDATE SET
        white_wallet=EXCLUDED.white_wallet,
        black_wallet=EXCLUDED.black_wallet,
        winner=EXCLUDED.winner,
        result=EXCLUDED.result,
        result_method=EXCLUDED.result_method,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        final_fen=EXCLUDED.final_fen,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		row.GameID, row.White, row.Black, row.Winner, row.Result, row.Method,
		string(movesUCIRaw), string(movesSANRaw), row.PGN, row.FinalFEN,
		row.StartedAt, row.EndedAt, row.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("save game %s: %w", g.GameID, err)
	}
	return nil
}

// Row is the archived form of one finished game.
type Row struct {
	GameID     string
	White      string
	Black      string
	Winner     string
	Result     string // white | black | draw
	Method     string
	MovesUCI   []string
	MovesSAN   []string
	PGN        string
	FinalFEN   string
	StartedAt  time.Time
	EndedAt    time.Time
	DurationMS int64
}

// Summarize derives the archive row of g without touching the database.
func Summarize(g *game.GameState) Row {
	row := Row{
		GameID:    g.GameID,
		Method:    string(g.Result),
		MovesUCI:  append([]string{}, g.MoveHistory...),
		MovesSAN:  chessrules.SANHistory(g.MoveHistory),
		FinalFEN:  g.BoardState,
		StartedAt: g.CreatedAt,
		EndedAt:   g.LastMoveAt,
	}
	for _, p := range g.Players {
		switch p.Color {
		case game.White:
			row.White = p.Wallet
		case game.Black:
			row.Black = p.Wallet
		}
	}
	switch {
	case g.Status.Winner == nil:
		row.Result = "draw"
	case *g.Status.Winner == row.White:
		row.Result, row.Winner = "white", row.White
	default:
		row.Result, row.Winner = "black", *g.Status.Winner
	}
	if d := row.EndedAt.Sub(row.StartedAt).Milliseconds(); d > 0 {
		row.DurationMS = d
	}
	row.PGN = BuildPGN(row)
	return row
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders row as a PGN document with numbered SAN moves.
func BuildPGN(row Row) string {
	pgnResult := mapResultToPGN(row.Result)
	date := row.EndedAt
	if date.IsZero() {
		date = row.StartedAt
	}
	var b strings.Builder
	b.WriteString("[Event \"FlashChain Chess\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"%s\"]\n", sanitizePGN(row.GameID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(row.White)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(row.Black)))
	if strings.TrimSpace(row.Method) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(row.Method)))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(row.MovesSAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(row.MovesSAN[i])))
		if i+1 < len(row.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(row.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
