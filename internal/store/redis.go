package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/flashchain-chess/internal/game"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each game as JSON under chess:game:<id> and indexes ids in
// the chess:index sorted set by creation time. Commits run inside WATCH/MULTI
// so the snapshot, the event log, the applied-action set and the pub/sub
// fan-out change together or not at all.
type RedisStore struct {
	rdb      *redis.Client
	eventTTL time.Duration
}

type RedisOption func(*RedisStore)

// WithEventTTL expires a game's event log and applied-action set d after its
// last commit. Game snapshots never expire. Zero keeps everything.
func WithEventTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.eventTTL = d
		}
	}
}

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to REDIS_URL and pings it.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for game store")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func gameKey(id string) string    { return "chess:game:" + strings.TrimSpace(id) }
func eventsKey(id string) string  { return "chess:events:" + strings.TrimSpace(id) }
func appliedKey(id string) string { return "chess:applied:" + strings.TrimSpace(id) }
func feedChannel(id string) string {
	return "chess:feed:" + strings.TrimSpace(id)
}

const (
	feedPattern = "chess:feed:*"
	indexKey    = "chess:index"
)

func (s *RedisStore) Create(ctx context.Context, g *game.GameState) error {
	if g == nil || strings.TrimSpace(g.GameID) == "" {
		return fmt.Errorf("create: game id required")
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, gameKey(g.GameID), raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrGameExists, g.GameID)
	}
	score := float64(g.CreatedAt.UnixMilli())
	if err := s.rdb.ZAdd(ctx, indexKey, redis.Z{Score: score, Member: g.GameID}).Err(); err != nil {
		return fmt.Errorf("index game %s: %w", g.GameID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*game.GameState, error) {
	raw, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, game.UnknownGame(id)
	}
	if err != nil {
		return nil, err
	}
	var g game.GameState
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", id, err)
	}
	return &g, nil
}

func (s *RedisStore) Seen(ctx context.Context, id, actionID string) (bool, error) {
	if strings.TrimSpace(actionID) == "" {
		return false, nil
	}
	return s.rdb.SIsMember(ctx, appliedKey(id), actionID).Result()
}

func (s *RedisStore) Commit(ctx context.Context, prev, next *game.GameState, events []game.Event, actionID string) error {
	if err := checkPair(prev, next); err != nil {
		return err
	}
	id := next.GameID
	gk := gameKey(id)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, gk).Bytes()
		if errors.Is(err, redis.Nil) {
			return game.UnknownGame(id)
		}
		if err != nil {
			return err
		}
		var cur game.GameState
		if err := json.Unmarshal(raw, &cur); err != nil {
			return fmt.Errorf("decode game %s: %w", id, err)
		}
		if revisionOf(&cur) != revisionOf(prev) {
			return ErrConflict
		}
		if actionID != "" {
			seen, err := tx.SIsMember(ctx, appliedKey(id), actionID).Result()
			if err != nil {
				return err
			}
			if seen {
				return ErrDuplicateAction
			}
		}
		base, err := tx.LLen(ctx, eventsKey(id)).Result()
		if err != nil {
			return err
		}
		newRaw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		records := make([][]byte, 0, len(events))
		for i, ev := range events {
			b, err := json.Marshal(Record{Seq: int(base) + i, GameID: id, Event: ev})
			if err != nil {
				return err
			}
			records = append(records, b)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, gk, newRaw, 0)
			for _, b := range records {
				pipe.RPush(ctx, eventsKey(id), b)
				pipe.Publish(ctx, feedChannel(id), b)
			}
			if actionID != "" {
				pipe.SAdd(ctx, appliedKey(id), actionID)
			}
			if s.eventTTL > 0 {
				pipe.Expire(ctx, eventsKey(id), s.eventTTL)
				pipe.Expire(ctx, appliedKey(id), s.eventTTL)
			}
			return nil
		})
		return err
	}, gk)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

// List walks the creation index newest first and loads matching games in
// pages until the filter's limit is reached.
func (s *RedisStore) List(ctx context.Context, f ListFilter) ([]*game.GameState, error) {
	const page = 100
	limit := f.limit()
	out := make([]*game.GameState, 0, limit)
	for start := int64(0); len(out) < limit; start += page {
		ids, err := s.rdb.ZRevRange(ctx, indexKey, start, start+page-1).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = gameKey(id)
		}
		raws, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}
		batch := make([]*game.GameState, 0, len(raws))
		for i, v := range raws {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var g game.GameState
			if err := json.Unmarshal([]byte(raw), &g); err != nil {
				return nil, fmt.Errorf("decode game %s: %w", ids[i], err)
			}
			if f.match(&g) {
				batch = append(batch, &g)
			}
		}
		newestFirst(batch)
		out = append(out, batch...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RedisStore) Events(ctx context.Context, id string, from int) ([]Record, error) {
	if from < 0 {
		from = 0
	}
	raws, err := s.rdb.LRange(ctx, eventsKey(id), int64(from), -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		var r Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode event of %s: %w", id, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Subscribe streams events committed for one game until ctx ends. The
// subscription is confirmed before it returns, so nothing committed after the
// call is missed.
func (s *RedisStore) Subscribe(ctx context.Context, id string) (<-chan Record, error) {
	return s.listen(ctx, s.rdb.Subscribe(ctx, feedChannel(id)))
}

// SubscribeAll streams events of every game.
func (s *RedisStore) SubscribeAll(ctx context.Context) (<-chan Record, error) {
	return s.listen(ctx, s.rdb.PSubscribe(ctx, feedPattern))
}

func (s *RedisStore) listen(ctx context.Context, ps *redis.PubSub) (<-chan Record, error) {
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	out := make(chan Record, 16)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var r Record
				if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
					continue
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
