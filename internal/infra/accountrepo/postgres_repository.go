package accountrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/xray-diagnosis/internal/domain/auth"
)

const uniqueViolation = "23505"

const accountColumns = `id, email, display_name, password_hash, created_at`

const identityColumns = `id, account_id, provider, provider_subject, provider_email, refresh_token, created_at, updated_at`

// PostgresRepository persists accounts and linked identities in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository wraps an existing pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, email, displayName, passwordHash string) (auth.Account, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, display_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING `+accountColumns, email, displayName, passwordHash)
	account, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return auth.Account{}, auth.ErrEmailExists
		}
		return auth.Account{}, err
	}
	return account, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (auth.Account, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return optionalAccount(scanAccount(row))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (auth.Account, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return optionalAccount(scanAccount(row))
}

func (r *PostgresRepository) GetIdentity(ctx context.Context, provider, providerSubject string) (auth.Identity, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM account_identities
		WHERE provider = $1 AND provider_subject = $2
	`, provider, providerSubject)
	return optionalIdentity(scanIdentity(row))
}

func (r *PostgresRepository) GetIdentityByAccount(ctx context.Context, accountID int64, provider string) (auth.Identity, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM account_identities
		WHERE account_id = $1 AND provider = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`, accountID, provider)
	return optionalIdentity(scanIdentity(row))
}

// UpsertIdentity keeps the stored refresh token when the update carries none.
func (r *PostgresRepository) UpsertIdentity(ctx context.Context, identity auth.Identity) (auth.Identity, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO account_identities (account_id, provider, provider_subject, provider_email, refresh_token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, provider_subject) DO UPDATE SET
			provider_email = COALESCE(NULLIF(EXCLUDED.provider_email, ''), account_identities.provider_email),
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), account_identities.refresh_token),
			updated_at = NOW()
		RETURNING `+identityColumns,
		identity.AccountID, identity.Provider, identity.ProviderSubject, identity.ProviderEmail, identity.RefreshToken)
	return scanIdentity(row)
}

func scanAccount(row pgx.Row) (auth.Account, error) {
	var account auth.Account
	if err := row.Scan(&account.ID, &account.Email, &account.DisplayName, &account.PasswordHash, &account.CreatedAt); err != nil {
		return auth.Account{}, err
	}
	account.CreatedAt = account.CreatedAt.UTC()
	return account, nil
}

func scanIdentity(row pgx.Row) (auth.Identity, error) {
	var identity auth.Identity
	if err := row.Scan(
		&identity.ID,
		&identity.AccountID,
		&identity.Provider,
		&identity.ProviderSubject,
		&identity.ProviderEmail,
		&identity.RefreshToken,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		return auth.Identity{}, err
	}
	identity.CreatedAt = identity.CreatedAt.UTC()
	identity.UpdatedAt = identity.UpdatedAt.UTC()
	return identity, nil
}

func optionalAccount(account auth.Account, err error) (auth.Account, bool, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Account{}, false, nil
	}
	if err != nil {
		return auth.Account{}, false, err
	}
	return account, true, nil
}

func optionalIdentity(identity auth.Identity, err error) (auth.Identity, bool, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Identity{}, false, nil
	}
	if err != nil {
		return auth.Identity{}, false, err
	}
	return identity, true, nil
}

var _ auth.Repository = (*PostgresRepository)(nil)
