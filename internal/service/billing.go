package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/watercoop/waterbill/internal/api/dto"
	"github.com/watercoop/waterbill/internal/cache"
	"github.com/watercoop/waterbill/internal/domain/bill"
	"github.com/watercoop/waterbill/internal/domain/client"
	"github.com/watercoop/waterbill/internal/domain/connection"
	"github.com/watercoop/waterbill/internal/domain/events"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/idempotency"
	"github.com/watercoop/waterbill/internal/types"
)

// BillingService is the only entry point into the billing core. It holds no
// state of its own: every call reads what it needs from the repositories.
type BillingService interface {
	RegisterClient(ctx context.Context, req dto.RegisterClientRequest) (*dto.ClientResponse, error)
	GetClient(ctx context.Context, id string) (*dto.ClientResponse, error)
	ListClients(ctx context.Context, filter *types.ClientFilter) (*dto.ListClientsResponse, error)

	CreateBill(ctx context.Context, req dto.CreateBillRequest) (*dto.BillResponse, error)
	PayBill(ctx context.Context, req dto.PayBillRequest) (*dto.BillResponse, error)
	GetBill(ctx context.Context, id string) (*dto.BillResponse, error)
	ListBills(ctx context.Context, filter *types.BillFilter) (*dto.ListBillsResponse, error)
	ListPartialPayments(ctx context.Context, billID string) (*dto.ListPartialPaymentsResponse, error)

	GetClientStatus(ctx context.Context, clientID string) (*dto.ConnectionStatusResponse, error)
	ListConnectionStatusHistory(ctx context.Context, clientID string) (*dto.ConnectionStatusHistoryResponse, error)
	EvaluateConnectionStatuses(ctx context.Context, now time.Time) (*dto.EvaluateConnectionStatusesResponse, error)
}

type billingService struct {
	ServiceParams
}

func NewBillingService(params ServiceParams) BillingService {
	if params.Idempotency == nil {
		params.Idempotency = idempotency.NewGenerator()
	}
	return &billingService{
		ServiceParams: params,
	}
}

func (s *billingService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *billingService) observe(operation string, start time.Time, err *error) {
	if s.Metrics != nil {
		s.Metrics.Observe(operation, start, err)
	}
}

func (s *billingService) CreateBill(ctx context.Context, req dto.CreateBillRequest) (resp *dto.BillResponse, err error) {
	defer s.observe("create_bill", time.Now(), &err)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	c, err := s.ClientRepo.Get(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var (
		created    *bill.Bill
		transition *connection.StatusRecord
	)

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		open, err := s.findOpenBill(ctx, c.ID)
		if err != nil {
			return err
		}

		previous, err := s.previousReading(ctx, c, req.PreviousReading)
		if err != nil {
			return err
		}

		b, err := s.Ledger.Open(bill.OpenInput{
			ClientID:        c.ID,
			PreviousReading: previous,
			CurrentReading:  req.CurrentReading,
			OpenBill:        open,
			Now:             now,
			CreatedBy:       types.GetUserID(ctx),
		})
		if err != nil {
			return err
		}

		if err := s.BillRepo.Create(ctx, b); err != nil {
			return err
		}

		transition, _, err = s.applyConnectionPolicy(ctx, c.ID, b, now)
		if err != nil {
			return err
		}

		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("bill created",
		"bill_id", created.ID,
		"client_id", c.ID,
		"account_number", c.AccountNumber,
		"previous_reading", created.PreviousReading,
		"current_reading", created.CurrentReading,
		"consumption", created.Consumption,
		"bill_amount", created.BillAmount,
		"payment_status", created.PaymentStatus,
	)
	if s.Metrics != nil {
		s.Metrics.BillCreated(created.BillAmount)
	}
	s.publish(ctx, events.EventBillCreated, c.ID, created.ID, created)
	s.afterTransition(ctx, transition)

	return s.billResponse(ctx, created, c, now)
}

// previousReading is the override when given, else the current reading of the
// client's latest bill, else the reading at installation
func (s *billingService) previousReading(ctx context.Context, c *client.Client, override *int64) (int64, error) {
	if override != nil {
		return *override, nil
	}

	latest, err := s.BillRepo.FindLatestBill(ctx, c.ID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return c.InitialMeterReading, nil
		}
		return 0, err
	}
	return latest.CurrentReading, nil
}

func (s *billingService) PayBill(ctx context.Context, req dto.PayBillRequest) (resp *dto.BillResponse, err error) {
	defer s.observe("pay_bill", time.Now(), &err)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	expected := *req.ExpectedPaymentAmount
	var (
		updated      *bill.Bill
		payment      *bill.PartialPayment
		transition   *connection.StatusRecord
		duplicateKey string
	)

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.BillRepo.Get(ctx, req.BillID)
		if err != nil {
			return err
		}

		next, p, err := s.Ledger.ApplyPayment(current, req.Amount, now)
		if err != nil {
			return err
		}

		if !current.PaymentAmount.Equal(expected) {
			return ierr.NewErrorf("bill %s payment amount is %s, expected %s", current.ID, current.PaymentAmount, expected).
				WithHint("This bill was updated by another payment. Reload it and try again").
				WithReportableDetails(map[string]any{
					"bill_id":                 current.ID,
					"payment_amount":          current.PaymentAmount.String(),
					"expected_payment_amount": expected.String(),
				}).
				Mark(ierr.ErrStaleBillState)
		}

		actor := types.GetUserID(ctx)
		next.UpdatedBy = actor
		p.CreatedBy = actor
		p.UpdatedBy = actor
		p.IdempotencyKey = s.Idempotency.PaymentKey(idempotency.PaymentParams{
			BillID:                current.ID,
			ExpectedPaymentAmount: expected,
			Amount:                req.Amount,
		})

		// the bill being paid is the client's governing bill
		rec, decision, err := s.evaluate(ctx, next.ClientID, next, now)
		if err != nil {
			return err
		}
		if decision.Disconnect {
			next.DisconnectionDate = lo.ToPtr(now)
		}

		if err := s.BillRepo.Update(ctx, next, current.Version); err != nil {
			return err
		}

		if err := s.PartialPaymentRepo.Create(ctx, p); err != nil {
			if ierr.Is(err, ierr.ErrAlreadyExists) {
				duplicateKey = p.IdempotencyKey
			}
			return err
		}

		if rec != nil {
			if err := s.ConnectionStatusRepo.Append(ctx, rec); err != nil {
				return err
			}
		}

		updated, payment, transition = next, p, rec
		return nil
	})
	if err != nil {
		if duplicateKey != "" {
			// looked up after rollback, the failed insert poisons a postgres tx
			return nil, s.duplicatePaymentError(ctx, req.BillID, duplicateKey)
		}
		return nil, err
	}

	s.Logger.Infow("payment applied",
		"bill_id", updated.ID,
		"client_id", updated.ClientID,
		"partial_payment_id", payment.ID,
		"amount", payment.AmountPaid,
		"payment_amount", updated.PaymentAmount,
		"payment_status", updated.PaymentStatus,
		"remaining_balance", updated.RemainingBalance,
		"payment_excess", updated.PaymentExcess,
	)
	if s.Metrics != nil {
		s.Metrics.PaymentApplied(updated.PaymentStatus, payment.AmountPaid)
	}
	s.publish(ctx, events.EventBillPaymentApplied, updated.ClientID, updated.ID, map[string]any{
		"partial_payment_id": payment.ID,
		"amount_paid":        payment.AmountPaid,
		"payment_amount":     updated.PaymentAmount,
		"payment_status":     updated.PaymentStatus,
		"remaining_balance":  updated.RemainingBalance,
		"payment_excess":     updated.PaymentExcess,
	})
	s.afterTransition(ctx, transition)

	c, err := s.ClientRepo.Get(ctx, updated.ClientID)
	if err != nil {
		return nil, err
	}
	return s.billResponse(ctx, updated, c, now)
}

// duplicatePaymentError reports the payment already recorded under key
func (s *billingService) duplicatePaymentError(ctx context.Context, billID, key string) error {
	details := map[string]any{
		"bill_id":         billID,
		"idempotency_key": key,
	}

	existing, err := s.PartialPaymentRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		s.Logger.Warnw("failed to load recorded payment",
			"bill_id", billID,
			"idempotency_key", key,
			"error", err,
		)
	} else {
		details["partial_payment_id"] = existing.ID
		details["amount_paid"] = existing.AmountPaid.String()
		details["payment_date"] = existing.PaymentDate
	}

	return ierr.NewErrorf("payment %s was already recorded for bill %s", key, billID).
		WithHint("This payment was already recorded. Reload the bill before paying again").
		WithReportableDetails(details).
		Mark(ierr.ErrStaleBillState)
}

func (s *billingService) GetBill(ctx context.Context, id string) (*dto.BillResponse, error) {
	b, err := s.BillRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.ClientRepo.Get(ctx, b.ClientID)
	if err != nil {
		return nil, err
	}
	return s.billResponse(ctx, b, c, s.now())
}

func (s *billingService) ListBills(ctx context.Context, filter *types.BillFilter) (*dto.ListBillsResponse, error) {
	if filter == nil {
		filter = types.NewBillFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	if filter.ClientID != "" {
		if _, err := s.ClientRepo.Get(ctx, filter.ClientID); err != nil {
			return nil, err
		}
	}

	bills, err := s.BillRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.BillRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.now()
	items := make([]*dto.BillResponse, 0, len(bills))
	for _, b := range bills {
		c, err := s.ClientRepo.Get(ctx, b.ClientID)
		if err != nil {
			return nil, err
		}
		view, err := s.billResponse(ctx, b, c, now)
		if err != nil {
			return nil, err
		}
		items = append(items, view)
	}

	resp := types.NewListResponse(items, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

func (s *billingService) ListPartialPayments(ctx context.Context, billID string) (*dto.ListPartialPaymentsResponse, error) {
	b, err := s.BillRepo.Get(ctx, billID)
	if err != nil {
		return nil, err
	}
	payments, err := s.PartialPaymentRepo.ListByBill(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return dto.NewListPartialPaymentsResponse(b, payments), nil
}

func (s *billingService) findOpenBill(ctx context.Context, clientID string) (*bill.Bill, error) {
	b, err := s.BillRepo.FindOpenBill(ctx, clientID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (s *billingService) billResponse(ctx context.Context, b *bill.Bill, c *client.Client, now time.Time) (*dto.BillResponse, error) {
	status, err := s.currentStatus(ctx, b.ClientID)
	if err != nil {
		return nil, err
	}
	return dto.NewBillResponse(b, c, status, now), nil
}

// publish sends a billing event. The write it describes is already committed,
// so a failure is logged and not returned.
func (s *billingService) publish(ctx context.Context, name, clientID, billID string, payload any) {
	if s.EventPublisher == nil {
		return
	}

	event, err := events.NewBillingEvent(name, clientID, billID, s.now(), payload)
	if err != nil {
		s.Logger.Errorw("failed to build billing event",
			"error", err,
			"event_name", name,
			"client_id", clientID,
		)
		return
	}

	if err := s.EventPublisher.Publish(ctx, event); err != nil {
		s.Logger.Errorw("failed to publish billing event",
			"error", err,
			"event_id", event.ID,
			"event_name", name,
			"client_id", clientID,
			"bill_id", billID,
		)
	}
}

func (s *billingService) invalidateClientStatus(ctx context.Context, clientID string) {
	if s.Cache == nil {
		return
	}
	s.Cache.Delete(ctx, cache.GenerateKey(cache.PrefixClientStatus, clientID))
}
