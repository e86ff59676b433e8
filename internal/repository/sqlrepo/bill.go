package sqlrepo

import (
	"context"
	"strings"

	"github.com/watercoop/waterbill/internal/database"
	domainBill "github.com/watercoop/waterbill/internal/domain/bill"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/types"
)

const billColumns = `id, client_id, previous_reading, current_reading, consumption, bill_amount, currency,
	payment_status, payment_amount, remaining_balance, payment_excess, payment_date, due_date,
	disconnection_date, version, status, created_at, updated_at, created_by, updated_by`

type billRepository struct {
	db  *database.DB
	log *logger.Logger
}

func NewBillRepository(db *database.DB, log *logger.Logger) domainBill.Repository {
	return &billRepository{db: db, log: log}
}

func (r *billRepository) Create(ctx context.Context, b *domainBill.Bill) error {
	query := `
		INSERT INTO bills (
			id, client_id, previous_reading, current_reading, consumption, bill_amount, currency,
			payment_status, payment_amount, remaining_balance, payment_excess, payment_date, due_date,
			disconnection_date, version, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :client_id, :previous_reading, :current_reading, :consumption, :bill_amount, :currency,
			:payment_status, :payment_amount, :remaining_balance, :payment_excess, :payment_date, :due_date,
			:disconnection_date, :version, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.log.Debugw("creating bill",
		"bill_id", b.ID,
		"client_id", b.ClientID,
		"bill_amount", b.BillAmount,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, b); err != nil {
		if database.IsUniqueViolation(err, "client_id", "one_open") {
			return ierr.WithError(err).
				WithHint("This client still has an unpaid bill. Settle it before creating a new one").
				WithReportableDetails(map[string]interface{}{
					"client_id": b.ClientID,
				}).
				Mark(ierr.ErrOpenBillExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create bill").
			WithReportableDetails(map[string]interface{}{
				"bill_id":   b.ID,
				"client_id": b.ClientID,
			}).
			Mark(ierr.ErrPersistence)
	}
	return nil
}

func (r *billRepository) Get(ctx context.Context, id string) (*domainBill.Bill, error) {
	q := r.db.GetQuerier(ctx)

	var b domainBill.Bill
	if err := q.GetContext(ctx, &b, q.Rebind(`SELECT `+billColumns+` FROM bills WHERE id = ?`), id); err != nil {
		if database.IsNoRows(err) {
			return nil, ierr.WithError(err).
				WithHintf("Bill %s was not found", id).
				WithReportableDetails(map[string]interface{}{
					"bill_id": id,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to retrieve bill").
			WithReportableDetails(map[string]interface{}{
				"bill_id": id,
			}).
			Mark(ierr.ErrPersistence)
	}
	return &b, nil
}

// versionedBill binds the optimistic concurrency guard next to the bill columns
type versionedBill struct {
	*domainBill.Bill
	ExpectedVersion int64 `db:"expected_version"`
}

func (r *billRepository) Update(ctx context.Context, b *domainBill.Bill, expectedVersion int64) error {
	query := `
		UPDATE bills SET
			payment_status = :payment_status,
			payment_amount = :payment_amount,
			remaining_balance = :remaining_balance,
			payment_excess = :payment_excess,
			payment_date = :payment_date,
			disconnection_date = :disconnection_date,
			version = :version,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND version = :expected_version`

	r.log.Debugw("updating bill",
		"bill_id", b.ID,
		"expected_version", expectedVersion,
		"version", b.Version,
		"payment_status", b.PaymentStatus,
	)

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, versionedBill{Bill: b, ExpectedVersion: expectedVersion})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update bill").
			WithReportableDetails(map[string]interface{}{
				"bill_id": b.ID,
			}).
			Mark(ierr.ErrPersistence)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update bill").
			Mark(ierr.ErrPersistence)
	}
	if affected == 0 {
		return ierr.NewErrorf("bill %s is no longer at version %d", b.ID, expectedVersion).
			WithHint("The bill changed since it was loaded. Reload it and try again").
			WithReportableDetails(map[string]interface{}{
				"bill_id":          b.ID,
				"expected_version": expectedVersion,
			}).
			Mark(ierr.ErrStaleBillState)
	}
	return nil
}

func (r *billRepository) where(filter *types.BillFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if filter != nil {
		if filter.ClientID != "" {
			clauses = append(clauses, "client_id = ?")
			args = append(args, filter.ClientID)
		}
		if len(filter.PaymentStatuses) > 0 {
			clauses = append(clauses, "payment_status IN ("+inPlaceholders(len(filter.PaymentStatuses))+")")
			for _, s := range filter.PaymentStatuses {
				args = append(args, string(s))
			}
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *billRepository) List(ctx context.Context, filter *types.BillFilter) ([]*domainBill.Bill, error) {
	if filter == nil {
		filter = types.NewBillFilter()
	}
	q := r.db.GetQuerier(ctx)

	where, args := r.where(filter)
	dir := orderDirection(filter)
	query := paginate(`SELECT `+billColumns+` FROM bills`+where+` ORDER BY created_at `+dir+`, id `+dir, filter, q.DriverName())

	var bills []*domainBill.Bill
	if err := q.SelectContext(ctx, &bills, q.Rebind(query), args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list bills").
			Mark(ierr.ErrPersistence)
	}
	return bills, nil
}

func (r *billRepository) Count(ctx context.Context, filter *types.BillFilter) (int, error) {
	q := r.db.GetQuerier(ctx)

	where, args := r.where(filter)
	var count int
	if err := q.GetContext(ctx, &count, q.Rebind(`SELECT COUNT(*) FROM bills`+where), args...); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count bills").
			Mark(ierr.ErrPersistence)
	}
	return count, nil
}

func (r *billRepository) findOne(ctx context.Context, query string, clientID string) (*domainBill.Bill, error) {
	q := r.db.GetQuerier(ctx)

	var b domainBill.Bill
	if err := q.GetContext(ctx, &b, q.Rebind(query), clientID); err != nil {
		if database.IsNoRows(err) {
			return nil, ierr.WithError(err).
				WithHint("No matching bill for this client").
				WithReportableDetails(map[string]interface{}{
					"client_id": clientID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to retrieve bill").
			WithReportableDetails(map[string]interface{}{
				"client_id": clientID,
			}).
			Mark(ierr.ErrPersistence)
	}
	return &b, nil
}

func (r *billRepository) FindOpenBill(ctx context.Context, clientID string) (*domainBill.Bill, error) {
	return r.findOne(ctx, `SELECT `+billColumns+` FROM bills
		WHERE client_id = ? AND payment_status IN ('unpaid', 'underpaid')
		ORDER BY created_at DESC, id DESC LIMIT 1`, clientID)
}

func (r *billRepository) FindLatestBill(ctx context.Context, clientID string) (*domainBill.Bill, error) {
	return r.findOne(ctx, `SELECT `+billColumns+` FROM bills
		WHERE client_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, clientID)
}
