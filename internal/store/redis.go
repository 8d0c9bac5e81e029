package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "standupbot/pkg/logx"
)

const redisTxRetries = 8

// redisStore keeps each leaf under "<prefix>:leaf:<path>" and the set of
// leaf paths in the sorted set "<prefix>:paths" (all scores 0), so a subtree
// is a ZRANGEBYLEX. Writes run as WATCH/MULTI transactions on the index.
type redisStore struct {
	client *redis.Client
	prefix string
	log    logx.Logger
	now    func() time.Time
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisStore(client, cfg.Prefix, log), nil
}

func newRedisStore(client *redis.Client, prefix string, log logx.Logger) *redisStore {
	if prefix == "" {
		prefix = "standup"
	}
	return &redisStore{client: client, prefix: prefix, log: log, now: time.Now}
}

func (s *redisStore) indexKey() string         { return s.prefix + ":paths" }
func (s *redisStore) leafKey(leaf string) string { return s.prefix + ":leaf:" + leaf }

// members lists the leaf paths at or below p.
func (s *redisStore) members(ctx context.Context, c redis.Cmdable, p string) ([]string, error) {
	if p == "" {
		return c.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{Min: "-", Max: "+"}).Result()
	}
	exact, err := c.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{Min: "[" + p, Max: "[" + p}).Result()
	if err != nil {
		return nil, err
	}
	below, err := c.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{Min: "[" + p + "/", Max: "(" + p + "0"}).Result()
	if err != nil {
		return nil, err
	}
	return append(exact, below...), nil
}

func (s *redisStore) Get(ctx context.Context, path string) (any, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	var out any
	err = s.withTx(ctx, func(tx *redis.Tx) error {
		leaves, err := s.members(ctx, tx, p)
		if err != nil {
			return err
		}
		vals := map[string]any{}
		if len(leaves) > 0 {
			keys := make([]string, len(leaves))
			for i, l := range leaves {
				keys[i] = s.leafKey(l)
			}
			raws, err := tx.MGet(ctx, keys...).Result()
			if err != nil {
				return err
			}
			for i, raw := range raws {
				str, ok := raw.(string)
				if !ok {
					continue
				}
				var v any
				if err := json.Unmarshal([]byte(str), &v); err != nil {
					return fmt.Errorf("decode %q: %w", leaves[i], err)
				}
				vals[leaves[i]] = v
			}
		}
		// go-redis skips EXEC for an empty pipeline, so queue one command to
		// make the server check the WATCH. Every write touches the index, so
		// EXEC fails with TxFailedErr if a writer committed since the reads.
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Exists(ctx, s.indexKey())
			return nil
		}); err != nil {
			return err
		}
		out = assemble(p, vals)
		return nil
	})
	return out, err
}

func (s *redisStore) Set(ctx context.Context, path string, value any) error {
	ws, err := prepareSet(path, value, s.now())
	if err != nil {
		return err
	}
	return s.apply(ctx, ws)
}

func (s *redisStore) Update(ctx context.Context, path string, children map[string]any) error {
	ws, err := prepareUpdate(path, children, s.now())
	if err != nil {
		return err
	}
	return s.apply(ctx, ws)
}

func (s *redisStore) Remove(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

func (s *redisStore) apply(ctx context.Context, ws []write) error {
	return s.withTx(ctx, func(tx *redis.Tx) error {
		var stale []string
		for _, w := range ws {
			old, err := s.members(ctx, tx, w.Path)
			if err != nil {
				return err
			}
			stale = append(stale, old...)
			if w.Value != nil {
				stale = append(stale, ancestors(w.Path)...)
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(stale) > 0 {
				keys := make([]string, len(stale))
				members := make([]any, len(stale))
				for i, l := range stale {
					keys[i] = s.leafKey(l)
					members[i] = l
				}
				pipe.Del(ctx, keys...)
				pipe.ZRem(ctx, s.indexKey(), members...)
			}
			for _, w := range ws {
				leaves := map[string]any{}
				flatten(w.Path, w.Value, leaves)
				for leaf, v := range leaves {
					raw, err := json.Marshal(v)
					if err != nil {
						return err
					}
					pipe.Set(ctx, s.leafKey(leaf), raw, 0)
					pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: 0, Member: leaf})
				}
			}
			return nil
		})
		return err
	})
}

// withTx runs fn under WATCH on the index, retrying optimistic conflicts.
func (s *redisStore) withTx(ctx context.Context, fn func(tx *redis.Tx) error) error {
	for i := 0; i < redisTxRetries; i++ {
		err := s.client.Watch(ctx, fn, s.indexKey())
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.log.Debug("redis transaction conflict; retrying", logx.Int("attempt", i+1))
	}
	return fmt.Errorf("redis: transaction retries exhausted: %w", redis.TxFailedErr)
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
