package sqlrepo

import (
	"context"

	"github.com/watercoop/waterbill/internal/database"
	"github.com/watercoop/waterbill/internal/domain/connection"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/logger"
)

const connectionStatusColumns = `id, client_id, connection_status, reason, bill_id, effective_at,
	status, created_at, updated_at, created_by, updated_by`

type connectionStatusRepository struct {
	db  *database.DB
	log *logger.Logger
}

func NewConnectionStatusRepository(db *database.DB, log *logger.Logger) connection.Repository {
	return &connectionStatusRepository{db: db, log: log}
}

func (r *connectionStatusRepository) Append(ctx context.Context, rec *connection.StatusRecord) error {
	query := `
		INSERT INTO connection_statuses (
			id, client_id, connection_status, reason, bill_id, effective_at,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :client_id, :connection_status, :reason, :bill_id, :effective_at,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.log.Debugw("appending connection status",
		"client_id", rec.ClientID,
		"connection_status", rec.ConnectionStatus,
		"reason", rec.Reason,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, rec); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to record connection status").
			WithReportableDetails(map[string]interface{}{
				"client_id": rec.ClientID,
			}).
			Mark(ierr.ErrPersistence)
	}
	return nil
}

func (r *connectionStatusRepository) GetCurrent(ctx context.Context, clientID string) (*connection.StatusRecord, error) {
	q := r.db.GetQuerier(ctx)

	var rec connection.StatusRecord
	err := q.GetContext(ctx, &rec,
		q.Rebind(`SELECT `+connectionStatusColumns+` FROM connection_statuses
			WHERE client_id = ? ORDER BY effective_at DESC, id DESC LIMIT 1`),
		clientID,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ierr.WithError(err).
				WithHint("Client has no connection status yet").
				WithReportableDetails(map[string]interface{}{
					"client_id": clientID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to retrieve connection status").
			Mark(ierr.ErrPersistence)
	}
	return &rec, nil
}

func (r *connectionStatusRepository) ListByClient(ctx context.Context, clientID string) ([]*connection.StatusRecord, error) {
	q := r.db.GetQuerier(ctx)

	var records []*connection.StatusRecord
	err := q.SelectContext(ctx, &records,
		q.Rebind(`SELECT `+connectionStatusColumns+` FROM connection_statuses
			WHERE client_id = ? ORDER BY effective_at ASC, id ASC`),
		clientID,
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list connection statuses").
			Mark(ierr.ErrPersistence)
	}
	return records, nil
}
