package userstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	kadmin "github.com/kadmin/kadmin"
	_ "modernc.org/sqlite"
)

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	phone TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	permission_grouping TEXT NOT NULL DEFAULT 'user',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone);
`

// SQLite is a UserProvider backed by a SQLite database file. It owns the
// *sql.DB handle; Close releases it.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and, if needed, initializes) the database at dsn.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent registrations.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(usersSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize users schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func scanUser(row *sql.Row) (*kadmin.UserRecord, error) {
	var (
		user               kadmin.UserRecord
		createdAt, updated int64
	)
	err := row.Scan(&user.ID, &user.Phone, &user.PasswordHash, &user.PermissionGrouping, &createdAt, &updated)
	if err == sql.ErrNoRows {
		return nil, kadmin.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user row: %w", err)
	}
	user.CreatedAt = time.UnixMilli(createdAt)
	user.UpdatedAt = time.UnixMilli(updated)
	return &user, nil
}

// GetUserByPhone implements kadmin.UserProvider.
func (s *SQLite) GetUserByPhone(ctx context.Context, phone string) (*kadmin.UserRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, phone, password_hash, permission_grouping, created_at, updated_at
		FROM users WHERE phone = ?
	`, phone)
	return scanUser(row)
}

// GetUserByID implements kadmin.UserProvider.
func (s *SQLite) GetUserByID(ctx context.Context, id int64) (*kadmin.UserRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, phone, password_hash, permission_grouping, created_at, updated_at
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

// CreateUser implements kadmin.UserProvider. The UNIQUE constraint on
// phone backs the uniqueness guarantee under concurrent registrations.
func (s *SQLite) CreateUser(ctx context.Context, input kadmin.CreateUserInput) (int64, error) {
	now := time.Now().UnixMilli()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (phone, password_hash, permission_grouping, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, input.Phone, input.PasswordHash, input.PermissionGrouping, now, now)
	if err != nil {
		if existing, lookupErr := s.GetUserByPhone(ctx, input.Phone); lookupErr == nil && existing != nil {
			return 0, kadmin.ErrPhoneRegistered
		}
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted user id: %w", err)
	}
	return id, nil
}

// ListUsers implements kadmin.UserProvider. The phone filter is a LIKE
// substring match; results are ordered by id ascending.
func (s *SQLite) ListUsers(ctx context.Context, input kadmin.ListUsersInput) (*kadmin.UserPage, error) {
	where := ""
	args := []any{}
	if input.Phone != "" {
		where = "WHERE phone LIKE ?"
		args = append(args, "%"+input.Phone+"%")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	offset := (input.Page - 1) * input.PageSize
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone, password_hash, permission_grouping, created_at, updated_at
		FROM users `+where+`
		ORDER BY id ASC LIMIT ? OFFSET ?
	`, append(args, input.PageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	list := make([]kadmin.UserRecord, 0, input.PageSize)
	for rows.Next() {
		var (
			user               kadmin.UserRecord
			createdAt, updated int64
		)
		if err := rows.Scan(&user.ID, &user.Phone, &user.PasswordHash, &user.PermissionGrouping, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		user.CreatedAt = time.UnixMilli(createdAt)
		user.UpdatedAt = time.UnixMilli(updated)
		list = append(list, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}

	return &kadmin.UserPage{
		List: list,
		Pagination: kadmin.Pagination{
			Current:  input.Page,
			PageSize: input.PageSize,
			Total:    total,
		},
	}, nil
}

// CountUsers implements kadmin.UserProvider.
func (s *SQLite) CountUsers(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return total, nil
}
