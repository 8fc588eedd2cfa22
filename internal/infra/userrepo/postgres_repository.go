package userrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/cashtags/internal/domain/auth"
)

const uniqueViolation = "23505"

// PostgresRepository persists users and their linked identities in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new user row.
func (r *PostgresRepository) Create(ctx context.Context, email, nickname, passwordHash string) (auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, nickname, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, nickname, password_hash, created_at
	`, email, nickname, passwordHash)
	user, err := scanUser(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return auth.User{}, auth.ErrEmailExists
	}
	return user, err
}

// GetByEmail fetches a user by email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (auth.User, bool, error) {
	return r.getUser(ctx, `
		SELECT id, email, nickname, password_hash, created_at
		FROM users
		WHERE email = $1
	`, email)
}

// GetByID fetches by primary key.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (auth.User, bool, error) {
	return r.getUser(ctx, `
		SELECT id, email, nickname, password_hash, created_at
		FROM users
		WHERE id = $1
	`, id)
}

const identityColumns = `id, user_id, provider, provider_subject, provider_email, created_at`

// FindIdentity looks up the account linked to a provider subject.
func (r *PostgresRepository) FindIdentity(ctx context.Context, provider, subject string) (auth.Identity, bool, error) {
	identity, err := scanIdentity(r.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM user_identities
		WHERE provider = $1 AND provider_subject = $2
	`, provider, subject))
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Identity{}, false, nil
	}
	if err != nil {
		return auth.Identity{}, false, err
	}
	return identity, true, nil
}

// LinkIdentity inserts the link once; a subject that is already linked keeps its original row.
func (r *PostgresRepository) LinkIdentity(ctx context.Context, identity auth.Identity) (auth.Identity, error) {
	linked, err := scanIdentity(r.pool.QueryRow(ctx, `
		INSERT INTO user_identities (user_id, provider, provider_subject, provider_email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_subject) DO NOTHING
		RETURNING `+identityColumns,
		identity.UserID, identity.Provider, identity.ProviderSubject, identity.ProviderEmail))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, _, findErr := r.FindIdentity(ctx, identity.Provider, identity.ProviderSubject)
		return existing, findErr
	}
	return linked, err
}

func (r *PostgresRepository) getUser(ctx context.Context, query string, arg any) (auth.User, bool, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, false, nil
	}
	if err != nil {
		return auth.User{}, false, err
	}
	return user, true, nil
}

func scanUser(row pgx.Row) (auth.User, error) {
	var user auth.User
	var created time.Time
	if err := row.Scan(&user.ID, &user.Email, &user.Nickname, &user.PasswordHash, &created); err != nil {
		return auth.User{}, err
	}
	user.CreatedAt = created.UTC()
	return user, nil
}

func scanIdentity(row pgx.Row) (auth.Identity, error) {
	var (
		identity auth.Identity
		linked   time.Time
	)
	if err := row.Scan(&identity.ID, &identity.UserID, &identity.Provider, &identity.ProviderSubject,
		&identity.ProviderEmail, &linked); err != nil {
		return auth.Identity{}, err
	}
	identity.LinkedAt = linked.UTC()
	return identity, nil
}

var _ auth.Repository = (*PostgresRepository)(nil)
