package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/model"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	Create(ctx context.Context, email, passwordHash, name string) (model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, email, password_hash, name, is_active, email_verified, created_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.IsActive, &u.EmailVerified, &u.CreatedAt)
	return u, err
}

// Create inserts a user. A taken email yields ErrDuplicate.
func (r *userRepo) Create(ctx context.Context, email, passwordHash, name string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, name)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns, email, passwordHash, name)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, mapErr("insert user", err)
	}
	return u, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return model.User{}, mapErr("query user", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by normalized email
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return model.User{}, mapErr("query user by email", err)
	}
	return u, nil
}
