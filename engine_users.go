package kadmin

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 100
)

// UserInfo returns the authenticated user's public view.
func (e *Engine) UserInfo(ctx context.Context, userID int64) (*UserInfo, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &UserInfo{
		ID:        user.ID,
		Phone:     user.Phone,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}, nil
}

// UserList returns a page of users, optionally filtered by a phone
// substring. Out-of-range paging inputs are clamped rather than
// rejected.
func (e *Engine) UserList(ctx context.Context, input ListUsersInput) (*UserPage, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	if input.Page < 1 {
		input.Page = defaultPage
	}
	if input.PageSize < 1 {
		input.PageSize = defaultPageSize
	}
	if input.PageSize > maxPageSize {
		input.PageSize = maxPageSize
	}

	page, err := e.users.ListUsers(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return page, nil
}

// StatsOverview reports the dashboard summary: total registered users and
// how many hold a live refresh record right now.
func (e *Engine) StatsOverview(ctx context.Context) (*StatsOverview, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	total, err := e.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	active, err := e.refreshes.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &StatsOverview{
		TotalUsers:  total,
		ActiveUsers: active,
		Timestamp:   time.Now(),
	}, nil
}
