package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/go-api-accounts/internal/domain"
)

const uniqueViolation = "23505"

const userColumns = `user_id, email, password_hash, first_name, last_name, phone_number, birthday,
	registration_source, is_active, is_staff, last_login_at, created_at, updated_at`

// updatable lists the columns Update accepts. Keys come from callers, so they
// are never interpolated unless present here.
var updatable = map[string]bool{
	"password_hash":       true,
	"first_name":          true,
	"last_name":           true,
	"phone_number":        true,
	"birthday":            true,
	"registration_source": true,
	"is_active":           true,
	"last_login_at":       true,
}

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	return withTx(ctx, r.db, func(tx DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			u.UserID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, u.Birthday,
			u.RegistrationSource, u.IsActive, u.IsStaff, u.LastLoginAt, u.CreatedAt, u.UpdatedAt,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "users_pkey" {
				return fmt.Errorf("user id %s already taken: %w", u.UserID, domain.ErrConflict)
			}
			return domain.ErrDuplicateEmail
		}
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UserRepo) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return fmt.Errorf("no fields to update")
	}
	cols := make([]string, 0, len(updates))
	for k := range updates {
		if !updatable[k] {
			return fmt.Errorf("column %q is not updatable", k)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
		args = append(args, updates[c])
	}
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(cols)+1))
	args = append(args, time.Now().UTC(), userID)

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s WHERE user_id = $%d`, strings.Join(sets, ", "), len(args)),
		args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return nil
}

// Activate marks the user active and returns its API token, storing
// candidate when the user has none yet. Both writes share one transaction.
func (r *UserRepo) Activate(ctx context.Context, userID string, candidate *domain.APIToken) (*domain.APIToken, error) {
	var out domain.APIToken
	err := withTx(ctx, r.db, func(tx DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET is_active = TRUE, updated_at = $2 WHERE user_id = $1`,
			userID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO api_tokens (key, user_id, created_at) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id) DO NOTHING`,
			candidate.Key, userID, candidate.CreatedAt); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		err = tx.QueryRowContext(ctx,
			`SELECT key, user_id, created_at FROM api_tokens WHERE user_id = $1`, userID).
			Scan(&out.Key, &out.UserID, &out.CreatedAt)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *UserRepo) GetAPITokenByKey(ctx context.Context, key string) (*domain.APIToken, error) {
	var t domain.APIToken
	err := r.db.QueryRowContext(ctx,
		`SELECT key, user_id, created_at FROM api_tokens WHERE key = $1`, key).
		Scan(&t.Key, &t.UserID, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("api token not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &t, nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u        domain.User
		phone    sql.NullString
		birthday sql.NullTime
		lastSeen sql.NullTime
	)
	err := row.Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &phone, &birthday,
		&u.RegistrationSource, &u.IsActive, &u.IsStaff, &lastSeen, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if phone.Valid {
		u.Phone = &phone.String
	}
	if birthday.Valid {
		u.Birthday = &birthday.Time
	}
	if lastSeen.Valid {
		u.LastLoginAt = &lastSeen.Time
	}
	return &u, nil
}
