package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"github.com/watercoop/waterbill/internal/api/dto"
	"github.com/watercoop/waterbill/internal/cache"
	"github.com/watercoop/waterbill/internal/domain/bill"
	"github.com/watercoop/waterbill/internal/domain/connection"
	"github.com/watercoop/waterbill/internal/domain/events"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/types"
)

func (s *billingService) GetClientStatus(ctx context.Context, clientID string) (*dto.ConnectionStatusResponse, error) {
	if _, err := s.ClientRepo.Get(ctx, clientID); err != nil {
		return nil, err
	}

	status, err := s.currentStatus(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, ierr.NewErrorf("client %s has no connection status", clientID).
			WithHintf("Client %s has no connection status yet", clientID).
			Mark(ierr.ErrNotFound)
	}
	return dto.NewConnectionStatusResponse(status), nil
}

func (s *billingService) ListConnectionStatusHistory(ctx context.Context, clientID string) (*dto.ConnectionStatusHistoryResponse, error) {
	if _, err := s.ClientRepo.Get(ctx, clientID); err != nil {
		return nil, err
	}

	records, err := s.ConnectionStatusRepo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	return &dto.ConnectionStatusHistoryResponse{
		ClientID: clientID,
		Items:    lo.Map(records, func(r *connection.StatusRecord, _ int) *dto.ConnectionStatusResponse { return dto.NewConnectionStatusResponse(r) }),
	}, nil
}

// EvaluateConnectionStatuses runs the connection status policy over every
// client with an open bill. A client that fails is reported and skipped.
func (s *billingService) EvaluateConnectionStatuses(ctx context.Context, now time.Time) (resp *dto.EvaluateConnectionStatusesResponse, err error) {
	defer s.observe("evaluate_connection_statuses", time.Now(), &err)

	if now.IsZero() {
		now = s.now()
	}
	now = now.UTC()

	open, err := s.BillRepo.List(ctx, &types.BillFilter{
		QueryFilter:     types.NewNoLimitQueryFilter(),
		PaymentStatuses: types.OpenBillPaymentStatuses(),
	})
	if err != nil {
		return nil, err
	}

	resp = &dto.EvaluateConnectionStatusesResponse{
		EvaluatedAt: now,
		Transitions: make([]*dto.ConnectionStatusResponse, 0),
	}

	// one open bill per client, so bills are swept independently
	results := make([]sweepResult, len(open))
	workers := pool.New().WithMaxGoroutines(s.sweepConcurrency())
	for i, b := range open {
		i, b := i, b
		workers.Go(func() {
			rec, err := s.sweepBill(ctx, b.ID, now)
			results[i] = sweepResult{record: rec, err: err}
		})
	}
	workers.Wait()

	for i, b := range open {
		resp.Evaluated++

		rec, err := results[i].record, results[i].err
		if err != nil {
			s.Logger.Warnw("failed to evaluate connection status",
				"error", err,
				"client_id", b.ClientID,
				"bill_id", b.ID,
			)
			resp.Failures = append(resp.Failures, &dto.ConnectionStatusSweepFailure{
				ClientID: b.ClientID,
				BillID:   b.ID,
				Code:     ierr.Code(err),
				Message:  ierr.DisplayMessage(err),
			})
			continue
		}
		if rec != nil {
			resp.Transitions = append(resp.Transitions, dto.NewConnectionStatusResponse(rec))
			s.afterTransition(ctx, rec)
		}
	}

	s.Logger.Infow("connection statuses evaluated",
		"evaluated_at", now,
		"evaluated", resp.Evaluated,
		"transitions", len(resp.Transitions),
		"failures", len(resp.Failures),
	)
	return resp, nil
}

type sweepResult struct {
	record *connection.StatusRecord
	err    error
}

func (s *billingService) sweepConcurrency() int {
	if s.Config == nil || s.Config.Billing.SweepConcurrency < 1 {
		return 1
	}
	return s.Config.Billing.SweepConcurrency
}

// sweepBill evaluates one open bill in its own transaction, recording the
// disconnection date on the bill when the grace period has elapsed
func (s *billingService) sweepBill(ctx context.Context, billID string, now time.Time) (*connection.StatusRecord, error) {
	var transition *connection.StatusRecord

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.BillRepo.Get(ctx, billID)
		if err != nil {
			return err
		}
		// settled since it was listed
		if !b.IsOpen() {
			return nil
		}

		rec, decision, err := s.evaluate(ctx, b.ClientID, b, now)
		if err != nil {
			return err
		}

		if decision.Disconnect {
			next := b.Copy()
			next.DisconnectionDate = lo.ToPtr(now)
			next.Version = b.Version + 1
			next.UpdatedAt = now
			next.UpdatedBy = types.GetUserID(ctx)
			if err := s.BillRepo.Update(ctx, next, b.Version); err != nil {
				return err
			}
		}

		if rec != nil {
			if err := s.ConnectionStatusRepo.Append(ctx, rec); err != nil {
				return err
			}
		}
		transition = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transition, nil
}

// evaluate applies the policy to the client's governing bill. It returns the
// record to append, nil when the status does not change.
func (s *billingService) evaluate(ctx context.Context, clientID string, governing *bill.Bill, now time.Time) (*connection.StatusRecord, connection.Decision, error) {
	current, err := s.ConnectionStatusRepo.GetCurrent(ctx, clientID)
	if err != nil {
		if !ierr.IsNotFound(err) {
			return nil, connection.Decision{}, err
		}
		current = nil
	}

	rec, decision := s.Policy.Transition(current, clientID, governing, now)
	if rec != nil {
		rec.CreatedBy = types.GetUserID(ctx)
		rec.UpdatedBy = rec.CreatedBy
	}
	return rec, decision, nil
}

// applyConnectionPolicy evaluates the client and appends the transition, if any
func (s *billingService) applyConnectionPolicy(ctx context.Context, clientID string, governing *bill.Bill, now time.Time) (*connection.StatusRecord, connection.Decision, error) {
	rec, decision, err := s.evaluate(ctx, clientID, governing, now)
	if err != nil {
		return nil, decision, err
	}
	if rec != nil {
		if err := s.ConnectionStatusRepo.Append(ctx, rec); err != nil {
			return nil, decision, err
		}
	}
	return rec, decision, nil
}

// currentStatus returns the client's latest status record through the cache,
// nil when the client has none
func (s *billingService) currentStatus(ctx context.Context, clientID string) (*connection.StatusRecord, error) {
	key := cache.GenerateKey(cache.PrefixClientStatus, clientID)
	if s.Cache != nil {
		if cached, ok := s.Cache.Get(ctx, key); ok {
			if rec, ok := cached.(*connection.StatusRecord); ok {
				return rec, nil
			}
		}
	}

	rec, err := s.ConnectionStatusRepo.GetCurrent(ctx, clientID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, key, rec, 0)
	}
	return rec, nil
}

// afterTransition runs once the transaction that appended rec has committed
func (s *billingService) afterTransition(ctx context.Context, rec *connection.StatusRecord) {
	if rec == nil {
		return
	}

	s.invalidateClientStatus(ctx, rec.ClientID)

	s.Logger.Infow("connection status changed",
		"client_id", rec.ClientID,
		"connection_status", rec.ConnectionStatus,
		"reason", rec.Reason,
		"bill_id", lo.FromPtr(rec.BillID),
		"effective_at", rec.EffectiveAt,
	)
	if s.Metrics != nil {
		s.Metrics.ConnectionStatusChanged(rec.ConnectionStatus)
	}
	s.publish(ctx, events.EventClientConnectionStatusChanged, rec.ClientID, lo.FromPtr(rec.BillID), map[string]any{
		"connection_status": rec.ConnectionStatus,
		"reason":            rec.Reason,
		"effective_at":      rec.EffectiveAt,
	})
}
