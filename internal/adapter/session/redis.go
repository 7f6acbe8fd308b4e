package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"bookrag/internal/domain"
)

const maxResolveAttempts = 20

// RedisStore keeps sessions as JSON values whose TTL is the idle timeout, so
// Redis itself expires abandoned sessions. Concurrent turns on one session
// are serialized with WATCH/MULTI.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string, timeout time.Duration) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
		now:     time.Now,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Resolve(ctx context.Context, id, adHocText string) (domain.Session, error) {
	id = normalizeID(id)
	key := s.key(id)

	var result domain.Session
	txf := func(tx *redis.Tx) error {
		now := s.now()

		sess, found, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if !found || sess.Expired(now, s.timeout) {
			sess = domain.Session{ID: id, CreatedAt: now}
		}
		sess = applyTurn(sess, adHocText, now)

		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.timeout)
			return nil
		})
		if err == nil {
			result = sess
		}
		return err
	}

	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			select {
			case <-ctx.Done():
				return domain.Session{}, domain.NewSessionError("redis resolve", ctx.Err())
			case <-time.After(time.Duration(attempt+1) * time.Millisecond):
			}
			continue
		}
		return domain.Session{}, domain.NewSessionError("redis resolve", err)
	}
	return domain.Session{}, domain.NewSessionError("redis resolve", redis.TxFailedErr)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c stringGetter, key string) (domain.Session, bool, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, err
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// An unreadable record is treated like an unknown session.
		return domain.Session{}, false, nil
	}
	return sess, true, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (domain.Session, bool, error) {
	sess, found, err := s.load(ctx, s.client, s.key(id))
	if err != nil {
		return domain.Session{}, false, domain.NewSessionError("redis get", err)
	}
	if !found || sess.Expired(s.now(), s.timeout) {
		return domain.Session{}, false, nil
	}
	return sess, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return domain.NewSessionError("redis delete", err)
	}
	return nil
}

// Sweep is a no-op: key TTLs expire idle sessions server-side.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return 0, domain.NewSessionError("redis len", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
