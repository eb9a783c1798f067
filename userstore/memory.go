package userstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	kadmin "github.com/kadmin/kadmin"
)

// Memory is a mutex-guarded in-memory UserProvider. Records live for the
// lifetime of the process.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]kadmin.UserRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextID: 1,
		byID:   make(map[int64]kadmin.UserRecord),
	}
}

// GetUserByPhone implements kadmin.UserProvider.
func (m *Memory) GetUserByPhone(_ context.Context, phone string) (*kadmin.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.byID {
		if user.Phone == phone {
			u := user
			return &u, nil
		}
	}
	return nil, kadmin.ErrUserNotFound
}

// GetUserByID implements kadmin.UserProvider.
func (m *Memory) GetUserByID(_ context.Context, id int64) (*kadmin.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.byID[id]
	if !ok {
		return nil, kadmin.ErrUserNotFound
	}
	u := user
	return &u, nil
}

// CreateUser implements kadmin.UserProvider. The phone-uniqueness check
// and the insert happen under one lock, so concurrent registrations for
// the same phone cannot both succeed.
func (m *Memory) CreateUser(_ context.Context, input kadmin.CreateUserInput) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.byID {
		if user.Phone == input.Phone {
			return 0, kadmin.ErrPhoneRegistered
		}
	}

	now := time.Now()
	id := m.nextID
	m.nextID++
	m.byID[id] = kadmin.UserRecord{
		ID:                 id,
		Phone:              input.Phone,
		PasswordHash:       input.PasswordHash,
		PermissionGrouping: input.PermissionGrouping,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return id, nil
}

// ListUsers implements kadmin.UserProvider. Results are ordered by id
// ascending; the phone filter is a substring match.
func (m *Memory) ListUsers(_ context.Context, input kadmin.ListUsersInput) (*kadmin.UserPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]kadmin.UserRecord, 0, len(m.byID))
	for _, user := range m.byID {
		if input.Phone != "" && !strings.Contains(user.Phone, input.Phone) {
			continue
		}
		matched = append(matched, user)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	start := (input.Page - 1) * input.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + input.PageSize
	if end > len(matched) {
		end = len(matched)
	}

	return &kadmin.UserPage{
		List: matched[start:end],
		Pagination: kadmin.Pagination{
			Current:  input.Page,
			PageSize: input.PageSize,
			Total:    total,
		},
	}, nil
}

// CountUsers implements kadmin.UserProvider.
func (m *Memory) CountUsers(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.byID)), nil
}
