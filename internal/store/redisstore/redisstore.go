// Package redisstore keeps jobs in Redis so several processes can share them.
//
// Each job is one JSON value under research:job:<id>; a sorted set scored by
// creation time indexes them for listing. Terminal records expire after the
// configured TTL and their index entries are pruned lazily.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/market-research/internal/jobs"
)

const (
	keyPrefix = "research:job:"
	indexKey  = "research:jobs"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect dials Redis and pings it.
func Connect(ctx context.Context, opt Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opt.Addr, err)
	}
	return rdb, nil
}

// New wraps rdb. ttl applies to terminal jobs; zero keeps them forever.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func jobKey(id string) string { return keyPrefix + id }

func (s *Store) expiry(j *jobs.Job) time.Duration {
	if j.Status.Terminal() {
		return s.ttl
	}
	return 0
}

func (s *Store) Get(ctx context.Context, id string) (*jobs.Job, error) {
	raw, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, jobs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func (s *Store) Put(ctx context.Context, job *jobs.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, jobKey(job.ID), raw, s.expiry(job))
		p.ZAdd(ctx, indexKey, redis.Z{Score: float64(job.CreatedAt.UnixMilli()), Member: job.ID})
		return nil
	})
	return err
}

// Update only overwrites an existing key (SET XX).
func (s *Store) Update(ctx context.Context, job *jobs.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	err = s.rdb.SetArgs(ctx, jobKey(job.ID), raw, redis.SetArgs{
		Mode: "XX",
		TTL:  s.expiry(job),
	}).Err()
	if errors.Is(err, redis.Nil) {
		return jobs.ErrNotFound
	}
	return err
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, jobKey(id))
		p.ZRem(ctx, indexKey, id)
		return nil
	})
	if err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

func (s *Store) List(ctx context.Context) ([]*jobs.Job, error) {
	ids, err := s.rdb.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	found, stale, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	s.prune(ctx, stale)
	return found, nil
}

// EvictBefore drops terminal jobs completed before cutoff and index entries
// whose record already expired.
func (s *Store) EvictBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	found, stale, err := s.load(ctx, ids)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range found {
		if j.Status.Terminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			ok, err := s.Delete(ctx, j.ID)
			if err != nil {
				return n, err
			}
			if ok {
				n++
			}
		}
	}
	s.prune(ctx, stale)
	return n, nil
}

func (s *Store) load(ctx context.Context, ids []string) (found []*jobs.Job, stale []string, err error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, err
	}
	found = make([]*jobs.Job, 0, len(ids))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		j, err := decode([]byte(str))
		if err != nil {
			return nil, nil, fmt.Errorf("job %s: %w", ids[i], err)
		}
		found = append(found, j)
	}
	return found, stale, nil
}

func (s *Store) prune(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_ = s.rdb.ZRem(ctx, indexKey, members...).Err()
}

func decode(raw []byte) (*jobs.Job, error) {
	var j jobs.Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &j, nil
}
