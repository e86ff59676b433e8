package sqlrepo

import (
	"context"

	"github.com/watercoop/waterbill/internal/database"
	domainBill "github.com/watercoop/waterbill/internal/domain/bill"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/logger"
)

const partialPaymentColumns = `id, bill_id, client_id, amount_paid, payment_date, idempotency_key,
	status, created_at, updated_at, created_by, updated_by`

type partialPaymentRepository struct {
	db  *database.DB
	log *logger.Logger
}

func NewPartialPaymentRepository(db *database.DB, log *logger.Logger) domainBill.PartialPaymentRepository {
	return &partialPaymentRepository{db: db, log: log}
}

func (r *partialPaymentRepository) Create(ctx context.Context, p *domainBill.PartialPayment) error {
	query := `
		INSERT INTO partial_payments (
			id, bill_id, client_id, amount_paid, payment_date, idempotency_key,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :bill_id, :client_id, :amount_paid, :payment_date, :idempotency_key,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.log.Debugw("recording partial payment",
		"partial_payment_id", p.ID,
		"bill_id", p.BillID,
		"amount_paid", p.AmountPaid,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, p); err != nil {
		if database.IsUniqueViolation(err, "idempotency_key") {
			return ierr.WithError(err).
				WithHint("This payment was already recorded").
				WithReportableDetails(map[string]interface{}{
					"bill_id":         p.BillID,
					"idempotency_key": p.IdempotencyKey,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to record payment").
			WithReportableDetails(map[string]interface{}{
				"bill_id": p.BillID,
			}).
			Mark(ierr.ErrPersistence)
	}
	return nil
}

func (r *partialPaymentRepository) ListByBill(ctx context.Context, billID string) ([]*domainBill.PartialPayment, error) {
	q := r.db.GetQuerier(ctx)

	var payments []*domainBill.PartialPayment
	err := q.SelectContext(ctx, &payments,
		q.Rebind(`SELECT `+partialPaymentColumns+` FROM partial_payments WHERE bill_id = ? ORDER BY payment_date ASC, id ASC`),
		billID,
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list payments").
			WithReportableDetails(map[string]interface{}{
				"bill_id": billID,
			}).
			Mark(ierr.ErrPersistence)
	}
	return payments, nil
}

func (r *partialPaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domainBill.PartialPayment, error) {
	q := r.db.GetQuerier(ctx)

	var p domainBill.PartialPayment
	err := q.GetContext(ctx, &p,
		q.Rebind(`SELECT `+partialPaymentColumns+` FROM partial_payments WHERE idempotency_key = ?`),
		key,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ierr.WithError(err).
				WithHint("Payment not found").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to retrieve payment").
			Mark(ierr.ErrPersistence)
	}
	return &p, nil
}
