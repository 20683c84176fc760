package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/locallibrary/locallibrary/internal/authz"
	"github.com/locallibrary/locallibrary/internal/platform/db"
	"github.com/locallibrary/locallibrary/internal/shared"
)

var (
	// ErrUsernameTaken is returned when the username already exists.
	ErrUsernameTaken = errors.New("users: username already taken")
	// ErrLastAdmin is returned when deleting the only remaining admin.
	ErrLastAdmin = errors.New("users: cannot delete the last admin")
)

// Repository is the principal store.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Principal, error)
	FindByUsername(ctx context.Context, username string) (*Principal, error)
	FindByUsernameAndEmail(ctx context.Context, username, email string) (*Principal, error)
	List(ctx context.Context) ([]Principal, error)
	CountByRole(ctx context.Context, role authz.Role) (int, error)
	Insert(ctx context.Context, p *Principal) error
	UpdateByID(ctx context.Context, p *Principal) error
	DeleteByID(ctx context.Context, id string) error
	// DeleteAdmin deletes an admin unless it is the last one. It returns the
	// admin count observed before deciding; the count and delete are atomic.
	DeleteAdmin(ctx context.Context, id string) (int, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const principalColumns = `id, username, full_name, email, digest, salt, role, created_at, updated_at`

// FindByID fetches a principal by id.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	return scanPrincipal(row)
}

// FindByUsername fetches a principal by exact username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE username = $1`, username)
	return scanPrincipal(row)
}

// FindByUsernameAndEmail fetches the principal matching both fields.
func (r *PGRepository) FindByUsernameAndEmail(ctx context.Context, username, email string) (*Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE username = $1 AND email = $2`, username, email)
	return scanPrincipal(row)
}

// List returns every principal.
func (r *PGRepository) List(ctx context.Context) ([]Principal, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+principalColumns+` FROM principals ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	var out []Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return out, nil
}

// CountByRole counts principals holding role.
func (r *PGRepository) CountByRole(ctx context.Context, role authz.Role) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM principals WHERE role = $1`, int16(role)).Scan(&n); err != nil {
		return 0, fmt.Errorf("users: count by role: %w", err)
	}
	return n, nil
}

// Insert stores a new principal. The unique index on username decides races.
func (r *PGRepository) Insert(ctx context.Context, p *Principal) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `INSERT INTO principals (`+principalColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		p.ID, p.Username, p.FullName, p.Email, p.Digest, p.Salt, int16(p.Role), now)
	if err != nil {
		return mapWriteError("insert", err)
	}
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

// UpdateByID overwrites the mutable fields of p.
func (r *PGRepository) UpdateByID(ctx context.Context, p *Principal) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `UPDATE principals
		SET username = $2, full_name = $3, email = $4, digest = $5, salt = $6, role = $7, updated_at = $8
		WHERE id = $1`,
		p.ID, p.Username, p.FullName, p.Email, p.Digest, p.Salt, int16(p.Role), now)
	if err != nil {
		return mapWriteError("update", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	p.UpdatedAt = now
	return nil
}

// DeleteByID removes a principal.
func (r *PGRepository) DeleteByID(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM principals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteAdmin locks every admin row before counting, so two concurrent
// deletes of the last two admins serialise and the second one is refused.
func (r *PGRepository) DeleteAdmin(ctx context.Context, id string) (int, error) {
	var admins int
	err := db.WithTxIso(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		admins = 0
		rows, err := tx.Query(ctx, `SELECT id FROM principals WHERE role = $1 FOR UPDATE`, int16(authz.RoleAdmin))
		if err != nil {
			return err
		}
		found := false
		for rows.Next() {
			var adminID string
			if err := rows.Scan(&adminID); err != nil {
				rows.Close()
				return err
			}
			admins++
			found = found || adminID == id
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if !found {
			return shared.ErrNotFound
		}
		if admins < 2 {
			return ErrLastAdmin
		}
		_, err = tx.Exec(ctx, `DELETE FROM principals WHERE id = $1`, id)
		return err
	})
	if err != nil && !errors.Is(err, ErrLastAdmin) && !errors.Is(err, shared.ErrNotFound) {
		return admins, fmt.Errorf("users: delete admin: %w", err)
	}
	return admins, err
}

func scanPrincipal(row pgx.Row) (*Principal, error) {
	var (
		p    Principal
		role int16
	)
	if err := row.Scan(&p.ID, &p.Username, &p.FullName, &p.Email, &p.Digest, &p.Salt, &role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: scan principal: %w", err)
	}
	p.Role = authz.Role(role)
	return &p, nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUsernameTaken
	}
	return fmt.Errorf("users: %s: %w", op, err)
}

var _ Repository = (*PGRepository)(nil)
