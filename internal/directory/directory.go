// Package directory provides the reminder scheduler's UserDirectory
// collaborator: a thin mirror of owner_id -> notification email.
//
// Full identity/account management is out of scope for this core (the
// caller already arrives authenticated, per internal/api.RequireOwnerID),
// so this package does not own a user record — it just remembers the
// contact email the trusted edge forwards on each request, the same
// way a BFF mirrors a claim into a local cache rather than re-querying
// its identity provider on every read.
package directory

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskfabric/backbone/internal/api"
)

// Directory resolves an owner's notification email, implementing
// reminder.UserDirectory.
type Directory struct {
	pool *pgxpool.Pool
}

// New builds a Directory over pool.
func New(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// Upsert records or refreshes ownerID's contact email. Called from the
// HTTP edge whenever a request arrives carrying both an owner id and an
// email, so the mirror stays current without a separate sync job.
func (d *Directory) Upsert(ctx context.Context, ownerID uuid.UUID, email string) error {
	const query = `
		INSERT INTO owner_contacts (owner_id, email, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (owner_id) DO UPDATE SET email = EXCLUDED.email, updated_at = now()
	`
	_, err := d.pool.Exec(ctx, query, ownerID, email)
	return err
}

// Email returns ownerID's last-known contact email, or "" if the
// directory has never seen this owner. An unknown owner is not an
// error: the reminder scheduler treats an empty email as "no email
// channel available" rather than failing the whole scan.
func (d *Directory) Email(ctx context.Context, ownerID uuid.UUID) (string, error) {
	var email string
	err := d.pool.QueryRow(ctx, `SELECT email FROM owner_contacts WHERE owner_id = $1`, ownerID).Scan(&email)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return email, nil
}

// Middleware mirrors the caller's id/email pair into the directory on
// every request that carries both, after api.RequireOwnerID has run.
// Failure to upsert never fails the request; it just means the next
// reminder scan has a stale or missing email for this owner.
func Middleware(d *Directory, logger *slog.Logger) api.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID := api.GetOwnerID(r.Context())
			email := api.GetOwnerEmail(r.Context())
			if ownerID != "" && email != "" {
				if id, err := uuid.Parse(ownerID); err == nil {
					if err := d.Upsert(r.Context(), id, email); err != nil {
						logger.Warn("directory: failed to mirror owner contact", "owner_id", ownerID, "error", err)
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
