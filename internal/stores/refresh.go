package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const refreshKeyPrefix = "refresh_token:"

var (
	// ErrRefreshRecordNotFound is returned when no live refresh record
	// exists for the user.
	ErrRefreshRecordNotFound = errors.New("refresh record not found")
	// ErrRedisUnavailable wraps transport-level Redis faults.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// RefreshRecord is the server-side refresh slot, one per user. It is the
// single source of truth for refresh eligibility: login overwrites it,
// logout deletes it, and deletion forcibly invalidates future refreshes.
type RefreshRecord struct {
	UserID    int64 `json:"userId"`
	ExpiresAt int64 `json:"expiresAt"` // epoch milliseconds
}

// RefreshStore persists refresh records under refresh_token:{userId}.
type RefreshStore struct {
	redis redis.UniversalClient
}

// NewRefreshStore creates a [RefreshStore] backed by the given client.
func NewRefreshStore(redisClient redis.UniversalClient) *RefreshStore {
	return &RefreshStore{redis: redisClient}
}

func refreshKey(userID int64) string {
	return refreshKeyPrefix + strconv.FormatInt(userID, 10)
}

// Save writes (or overwrites) the user's refresh record with the given
// lifetime. Refresh records are not versioned; last write wins.
func (s *RefreshStore) Save(ctx context.Context, userID int64, ttl time.Duration) error {
	record := RefreshRecord{
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl).UnixMilli(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, refreshKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the user's refresh record, or [ErrRefreshRecordNotFound]
// when it is absent or past its embedded expiry. A record that outlived
// its Redis TTL but carries a stale expiresAt is deleted on read.
func (s *RefreshStore) Get(ctx context.Context, userID int64) (*RefreshRecord, error) {
	data, err := s.redis.Get(ctx, refreshKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRefreshRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var record RefreshRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: corrupt refresh record: %v", ErrRedisUnavailable, err)
	}

	if record.ExpiresAt <= time.Now().UnixMilli() {
		if err := s.Delete(ctx, userID); err != nil {
			return nil, err
		}
		return nil, ErrRefreshRecordNotFound
	}
	return &record, nil
}

// Delete removes the user's refresh record. Deleting an absent record is
// not an error.
func (s *RefreshStore) Delete(ctx context.Context, userID int64) error {
	if err := s.redis.Del(ctx, refreshKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Count scans for live refresh records. O(keys) — admin dashboard only,
// never on a request hot path.
func (s *RefreshStore) Count(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, refreshKeyPrefix+"*", 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		total += int64(len(keys))
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}
