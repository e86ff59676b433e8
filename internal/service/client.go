package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/watercoop/waterbill/internal/api/dto"
	"github.com/watercoop/waterbill/internal/domain/client"
	"github.com/watercoop/waterbill/internal/domain/connection"
	"github.com/watercoop/waterbill/internal/domain/events"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/types"
)

// accountNumberRetryInterval is the pause before re-reading the last issued
// account number after a collision
var accountNumberRetryInterval = 20 * time.Millisecond

func (s *billingService) RegisterClient(ctx context.Context, req dto.RegisterClientRequest) (resp *dto.ClientResponse, err error) {
	defer s.observe("register_client", time.Now(), &err)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	attempts := s.Config.Billing.AccountNumberMaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var (
		created *client.Client
		status  *connection.StatusRecord
		attempt int
	)

	issue := func() error {
		attempt++

		last, err := s.ClientRepo.FindLastIssuedAccountNumber(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		accountNumber, err := client.NextAccountNumber(last)
		if err != nil {
			return backoff.Permanent(err)
		}

		c := req.ToClient(ctx, accountNumber, now)
		rec, _ := s.Policy.Transition(nil, c.ID, nil, now)
		rec.CreatedBy = c.CreatedBy
		rec.UpdatedBy = c.CreatedBy

		err = s.DB.WithTx(ctx, func(ctx context.Context) error {
			if err := s.ClientRepo.Create(ctx, c); err != nil {
				return err
			}
			return s.ConnectionStatusRepo.Append(ctx, rec)
		})
		if err != nil {
			if ierr.IsDuplicateAccountNumber(err) {
				s.Logger.Warnw("account number collision, retrying with a fresh last issued number",
					"account_number", accountNumber,
					"last_issued", last,
					"attempt", attempt,
					"max_attempts", attempts,
				)
				if s.Metrics != nil {
					s.Metrics.AccountNumberCollision()
				}
				return err
			}
			return backoff.Permanent(err)
		}

		created, status = c, rec
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(accountNumberRetryInterval), uint64(attempts-1)),
		ctx,
	)
	if err := backoff.Retry(issue, policy); err != nil {
		if ierr.IsDuplicateAccountNumber(err) {
			return nil, ierr.NewErrorf("no unique account number after %d attempts: %v", attempt, err).
				WithHint("Could not issue a unique account number. Please try again").
				WithReportableDetails(map[string]any{
					"attempts": attempt,
				}).
				Mark(ierr.ErrAccountNumberExhausted)
		}
		return nil, err
	}

	s.Logger.Infow("client registered",
		"client_id", created.ID,
		"account_number", created.AccountNumber,
		"initial_meter_reading", created.InitialMeterReading,
		"attempts", attempt,
	)
	if s.Metrics != nil {
		s.Metrics.ClientRegistered()
	}
	s.publish(ctx, events.EventClientRegistered, created.ID, "", map[string]any{
		"account_number":        created.AccountNumber,
		"initial_meter_reading": created.InitialMeterReading,
	})

	return dto.NewClientResponse(created, status), nil
}

func (s *billingService) GetClient(ctx context.Context, id string) (*dto.ClientResponse, error) {
	c, err := s.ClientRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	status, err := s.currentStatus(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return dto.NewClientResponse(c, status), nil
}

func (s *billingService) ListClients(ctx context.Context, filter *types.ClientFilter) (*dto.ListClientsResponse, error) {
	if filter == nil {
		filter = types.NewClientFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	clients, err := s.ClientRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.ClientRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.ClientResponse, 0, len(clients))
	for _, c := range clients {
		status, err := s.currentStatus(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, dto.NewClientResponse(c, status))
	}

	resp := types.NewListResponse(items, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}
