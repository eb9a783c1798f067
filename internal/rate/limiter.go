package rate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ipKeyPrefix    = "ip_limit:"
	phoneKeyPrefix = "phone_limit:"
)

// Config holds the throttling caps. The window slides: every recorded
// send refreshes the record TTL to a full window.
type Config struct {
	IPDailyCap      int
	PhoneDailyCap   int
	MinSendInterval time.Duration
	Window          time.Duration
}

// ipRecord tracks sends per client IP.
type ipRecord struct {
	Count     int   `json:"count"`
	ExpiresAt int64 `json:"expiresAt"` // epoch milliseconds
}

// phoneRecord tracks sends per phone, including the last-send instant
// for the minimum-interval check.
type phoneRecord struct {
	Count      int   `json:"count"`
	LastSentAt int64 `json:"lastSentAt"` // epoch milliseconds
	ExpiresAt  int64 `json:"expiresAt"`  // epoch milliseconds
}

// Limiter enforces per-IP and per-phone SMS throttling using Redis
// JSON records with belt-and-suspenders expiry (TTL plus embedded
// expiresAt checked on read).
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg}
}

// Check verifies the ip+phone pair is within budget without mutating any
// counter. Checks run in a fixed order: IP cap, phone cap, then the
// minimum send interval. The first violation wins.
func (l *Limiter) Check(ctx context.Context, ip, phone string) error {
	now := time.Now()

	ipRec, err := l.getIPRecord(ctx, ip, now)
	if err != nil {
		return err
	}
	if ipRec != nil && ipRec.Count >= l.config.IPDailyCap {
		return ErrIPLimitExceeded
	}

	phoneRec, err := l.getPhoneRecord(ctx, phone, now)
	if err != nil {
		return err
	}
	if phoneRec != nil {
		if phoneRec.Count >= l.config.PhoneDailyCap {
			return ErrPhoneLimitExceeded
		}
		if l.config.MinSendInterval > 0 {
			elapsed := now.Sub(time.UnixMilli(phoneRec.LastSentAt))
			if elapsed < l.config.MinSendInterval {
				remaining := l.config.MinSendInterval - elapsed
				return &TooFrequentError{
					RemainingSeconds: int(math.Ceil(remaining.Seconds())),
				}
			}
		}
	}

	return nil
}

// Record counts one successful send against both the IP and the phone,
// refreshing each record's window. Callers must invoke Record only after
// the send went through; rejected attempts never reach it, so they never
// inflate the counters.
func (l *Limiter) Record(ctx context.Context, ip, phone string) error {
	now := time.Now()

	ipRec, err := l.getIPRecord(ctx, ip, now)
	if err != nil {
		return err
	}
	count := 1
	if ipRec != nil {
		count = ipRec.Count + 1
	}
	if err := l.putIPRecord(ctx, ip, count, now); err != nil {
		return err
	}

	phoneRec, err := l.getPhoneRecord(ctx, phone, now)
	if err != nil {
		return err
	}
	count = 1
	if phoneRec != nil {
		count = phoneRec.Count + 1
	}
	return l.putPhoneRecord(ctx, phone, count, now)
}

// IPCount reports the current counter for an IP; missing records are zero.
func (l *Limiter) IPCount(ctx context.Context, ip string) (int, error) {
	rec, err := l.getIPRecord(ctx, ip, time.Now())
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, nil
	}
	return rec.Count, nil
}

// PhoneCount reports the current counter for a phone; missing records are zero.
func (l *Limiter) PhoneCount(ctx context.Context, phone string) (int, error) {
	rec, err := l.getPhoneRecord(ctx, phone, time.Now())
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, nil
	}
	return rec.Count, nil
}

func (l *Limiter) getIPRecord(ctx context.Context, ip string, now time.Time) (*ipRecord, error) {
	data, err := l.redis.Get(ctx, ipKeyPrefix+ip).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var rec ipRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt ip record: %v", ErrRedisUnavailable, err)
	}
	if rec.ExpiresAt <= now.UnixMilli() {
		if err := l.redis.Del(ctx, ipKeyPrefix+ip).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil, nil
	}
	return &rec, nil
}

func (l *Limiter) getPhoneRecord(ctx context.Context, phone string, now time.Time) (*phoneRecord, error) {
	data, err := l.redis.Get(ctx, phoneKeyPrefix+phone).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var rec phoneRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt phone record: %v", ErrRedisUnavailable, err)
	}
	if rec.ExpiresAt <= now.UnixMilli() {
		if err := l.redis.Del(ctx, phoneKeyPrefix+phone).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil, nil
	}
	return &rec, nil
}

func (l *Limiter) putIPRecord(ctx context.Context, ip string, count int, now time.Time) error {
	data, err := json.Marshal(ipRecord{
		Count:     count,
		ExpiresAt: now.Add(l.config.Window).UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := l.redis.Set(ctx, ipKeyPrefix+ip, data, l.config.Window).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) putPhoneRecord(ctx context.Context, phone string, count int, now time.Time) error {
	data, err := json.Marshal(phoneRecord{
		Count:      count,
		LastSentAt: now.UnixMilli(),
		ExpiresAt:  now.Add(l.config.Window).UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := l.redis.Set(ctx, phoneKeyPrefix+phone, data, l.config.Window).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
