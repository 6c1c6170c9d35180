package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"casebook/api/internal/record"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "case:"

// RedisStore implements Store on Redis. Values are JSON-serialized case
// records under a fixed namespace prefix; the retention TTL is refreshed on
// every write, which is the time-based draft garbage collection.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, retention time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, retention: retention}, nil
}

func (s *RedisStore) key(caseID string) string {
	return keyPrefix + caseID
}

func (s *RedisStore) Get(ctx context.Context, caseID string) (*record.CaseRecord, error) {
	raw, err := s.client.Get(ctx, s.key(caseID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("get draft %s", caseID), err)
	}
	return decodeRecord([]byte(raw))
}

func (s *RedisStore) Put(ctx context.Context, rec *record.CaseRecord) error {
	existing, err := s.Get(ctx, rec.CaseID)
	if err != nil && err != ErrNotFound {
		return err
	}
	if existing != nil {
		if existing.IsSubmitted && !rec.IsSubmitted {
			return ErrAlreadySubmitted
		}
		// An out-of-order write must not clobber a newer record.
		if existing.LastUpdated.After(rec.LastUpdated) {
			return nil
		}
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal draft %s: %w", rec.CaseID, err)
	}
	if err := s.client.Set(ctx, s.key(rec.CaseID), raw, s.retention).Err(); err != nil {
		return unavailable(fmt.Sprintf("put draft %s", rec.CaseID), err)
	}
	return nil
}

func (s *RedisStore) FindByClinicianEmail(ctx context.Context, email string) (*record.CaseRecord, error) {
	drafts, err := s.ListUnsubmitted(ctx)
	if err != nil {
		return nil, err
	}
	return latestForEmail(drafts, email)
}

func (s *RedisStore) MarkSubmitted(ctx context.Context, caseID string) error {
	rec, err := s.Get(ctx, caseID)
	if err != nil {
		return err
	}
	if rec.IsSubmitted {
		return nil
	}
	rec.IsSubmitted = true
	rec.Form.Status = record.StatusSubmitted
	rec.LastUpdated = time.Now().UTC()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal draft %s: %w", caseID, err)
	}
	if err := s.client.Set(ctx, s.key(caseID), raw, s.retention).Err(); err != nil {
		return unavailable(fmt.Sprintf("mark submitted %s", caseID), err)
	}
	return nil
}

func (s *RedisStore) ListUnsubmitted(ctx context.Context) ([]*record.CaseRecord, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	drafts := make([]*record.CaseRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !rec.IsSubmitted {
			drafts = append(drafts, rec)
		}
	}
	return drafts, nil
}

func (s *RedisStore) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, unavailable("scan drafts", err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, keyPrefix))
		}
		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

func (s *RedisStore) Delete(ctx context.Context, caseID string) error {
	if err := s.client.Del(ctx, s.key(caseID)).Err(); err != nil {
		return unavailable(fmt.Sprintf("delete draft %s", caseID), err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// unavailable tags a failed Redis command with ErrPersistenceUnavailable so
// errors.Is checks up the stack can turn it into a 503.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrPersistenceUnavailable, err)
}

func decodeRecord(raw []byte) (*record.CaseRecord, error) {
	var rec record.CaseRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	rec.Normalize()
	return &rec, nil
}

// latestForEmail picks the most recently updated record matching the email,
// case-insensitively. Shared by both store implementations.
func latestForEmail(drafts []*record.CaseRecord, email string) (*record.CaseRecord, error) {
	var best *record.CaseRecord
	for _, rec := range drafts {
		if !strings.EqualFold(rec.Clinician.Email, email) {
			continue
		}
		if best == nil || rec.LastUpdated.After(best.LastUpdated) {
			best = rec
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}
