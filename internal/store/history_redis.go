package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/pdfstamp/internal/geometry"
)

// RedisHistory stores each record as a hash and keeps a capped list of recent ids.
type RedisHistory struct {
	client *redis.Client
	keyNS  string
	limit  int64
}

// NewRedisHistory connects to redisURL and verifies the connection.
func NewRedisHistory(redisURL string, limit int) (*RedisHistory, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		c.Close()
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return &RedisHistory{client: c, keyNS: "pdfstamp", limit: int64(limit)}, nil
}

func (s *RedisHistory) key(id string) string { return fmt.Sprintf("%s:merge:%s", s.keyNS, id) }

func (s *RedisHistory) recentKey() string { return s.keyNS + ":merges:recent" }

func (s *RedisHistory) Record(ctx context.Context, rec MergeRecord) error {
	placement, _ := json.Marshal(rec.Placement)
	m := map[string]interface{}{
		"session_id":  rec.SessionID,
		"variant":     rec.Variant,
		"template":    rec.Template,
		"overlay":     rec.Overlay,
		"pages":       rec.Pages,
		"placement":   string(placement),
		"output":      rec.Output,
		"location":    rec.Location,
		"duration_ms": rec.DurationMs,
		"created_at":  rec.CreatedAt.Format(time.RFC3339Nano),
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key(rec.ID), m)
		p.LRem(ctx, s.recentKey(), 0, rec.ID)
		p.LPush(ctx, s.recentKey(), rec.ID)
		p.LTrim(ctx, s.recentKey(), 0, s.limit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record merge %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisHistory) Get(ctx context.Context, id string) (MergeRecord, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return MergeRecord{}, false, err
	}
	if len(res) == 0 {
		return MergeRecord{}, false, nil
	}
	return decodeRecord(id, res), true, nil
}

func (s *RedisHistory) Recent(ctx context.Context, n int) ([]MergeRecord, error) {
	if n <= 0 || int64(n) > s.limit {
		n = int(s.limit)
	}
	ids, err := s.client.LRange(ctx, s.recentKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]MergeRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := s.Get(ctx, id)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisHistory) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisHistory) Close() error { return s.client.Close() }

func decodeRecord(id string, res map[string]string) MergeRecord {
	rec := MergeRecord{
		ID:        id,
		SessionID: res["session_id"],
		Variant:   res["variant"],
		Template:  res["template"],
		Overlay:   res["overlay"],
		Output:    res["output"],
		Location:  res["location"],
	}
	// ignore parse errors; fields default to zero
	rec.Pages, _ = strconv.Atoi(res["pages"])
	rec.DurationMs, _ = strconv.ParseInt(res["duration_ms"], 10, 64)
	if v := res["placement"]; v != "" {
		var p geometry.DocRect
		if json.Unmarshal([]byte(v), &p) == nil {
			rec.Placement = p
		}
	}
	if v := res["created_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			rec.CreatedAt = t
		}
	}
	return rec
}
