package kadmin

import (
	"context"
	"time"
)

// UserRecord is the full account record returned by [UserProvider].
// Identity fields are immutable after creation; the password is stored
// only as an argon2id PHC hash.
type UserRecord struct {
	ID                 int64
	Phone              string
	PasswordHash       string
	PermissionGrouping string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CreateUserInput is the input for [UserProvider.CreateUser].
type CreateUserInput struct {
	Phone              string
	PasswordHash       string
	PermissionGrouping string
}

// ListUsersInput selects a page of user records, optionally filtered by a
// phone substring.
type ListUsersInput struct {
	Page     int
	PageSize int
	Phone    string
}

// UserPage is a page of user records plus pagination metadata.
type UserPage struct {
	List       []UserRecord `json:"list"`
	Pagination Pagination   `json:"pagination"`
}

// Pagination mirrors the admin UI's table contract.
type Pagination struct {
	Current  int   `json:"current"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

// UserProvider is the credential store the engine integrates with. The
// engine never touches SQL directly; userstore ships SQLite and in-memory
// implementations.
type UserProvider interface {
	GetUserByPhone(ctx context.Context, phone string) (*UserRecord, error)
	GetUserByID(ctx context.Context, id int64) (*UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (int64, error)
	ListUsers(ctx context.Context, input ListUsersInput) (*UserPage, error)
	CountUsers(ctx context.Context) (int64, error)
}

// RegisterRequest is the input for [Engine.Register]. Validation of the
// field formats happens in the middleware guard chain before the engine
// is invoked; the engine re-checks only what it must (code match,
// uniqueness) because those checks have store side effects.
type RegisterRequest struct {
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	SMSCode         string `json:"smsCode"`
}

// LoginRequest is the input for [Engine.Login].
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// LoginResult carries the token pair issued on successful login.
type LoginResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// UserInfo is the authenticated-user view returned by [Engine.UserInfo].
// The password hash and permission grouping are never exposed.
type UserInfo struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StatsOverview is the admin dashboard summary: total registered users
// and users holding a live refresh record.
type StatsOverview struct {
	TotalUsers  int64     `json:"totalUsers"`
	ActiveUsers int64     `json:"activeUsers"`
	Timestamp   time.Time `json:"timestamp"`
}

// DefaultPermissionGrouping is assigned to every registered user. The
// richer per-permission model never shipped; a single default group is
// the intended minimal design.
const DefaultPermissionGrouping = "user"
