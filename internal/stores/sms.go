package stores

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const smsKeyPrefix = "sms:"

// ErrSMSCodeNotFound is returned when no live code exists for the phone.
var ErrSMSCodeNotFound = errors.New("sms code not found")

// ErrSMSCodeMismatch is returned when the submitted code differs from the
// stored one. The stored code survives a mismatch; only a successful
// consume deletes it.
var ErrSMSCodeMismatch = errors.New("sms code mismatch")

// SMSRecord is the per-phone verification code, single-use.
type SMSRecord struct {
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expiresAt"` // epoch milliseconds
}

// SMSStore persists verification codes under sms:{phone}.
type SMSStore struct {
	redis redis.UniversalClient
}

// NewSMSStore creates an [SMSStore] backed by the given client.
func NewSMSStore(redisClient redis.UniversalClient) *SMSStore {
	return &SMSStore{redis: redisClient}
}

func smsKey(phone string) string {
	return smsKeyPrefix + phone
}

// Save stores (or replaces) the code for phone. At most one code per
// phone exists at a time.
func (s *SMSStore) Save(ctx context.Context, phone, code string, ttl time.Duration) error {
	record := SMSRecord{
		Code:      code,
		ExpiresAt: time.Now().Add(ttl).UnixMilli(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, smsKey(phone), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the live code record for phone, lazily deleting it when the
// embedded expiry has passed.
func (s *SMSStore) Get(ctx context.Context, phone string) (*SMSRecord, error) {
	data, err := s.redis.Get(ctx, smsKey(phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSMSCodeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var record SMSRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: corrupt sms record: %v", ErrRedisUnavailable, err)
	}

	if record.ExpiresAt <= time.Now().UnixMilli() {
		if err := s.Delete(ctx, phone); err != nil {
			return nil, err
		}
		return nil, ErrSMSCodeNotFound
	}
	return &record, nil
}

// Consume verifies the submitted code and deletes it on match, making
// codes single-use. A mismatch leaves the stored code intact.
func (s *SMSStore) Consume(ctx context.Context, phone, code string) error {
	record, err := s.Get(ctx, phone)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		return ErrSMSCodeMismatch
	}
	return s.Delete(ctx, phone)
}

// Delete removes the code for phone, if any.
func (s *SMSStore) Delete(ctx context.Context, phone string) error {
	if err := s.redis.Del(ctx, smsKey(phone)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
