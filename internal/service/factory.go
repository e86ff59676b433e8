package service

import (
	"time"

	"github.com/watercoop/waterbill/internal/cache"
	"github.com/watercoop/waterbill/internal/config"
	"github.com/watercoop/waterbill/internal/database"
	"github.com/watercoop/waterbill/internal/domain/bill"
	"github.com/watercoop/waterbill/internal/domain/client"
	"github.com/watercoop/waterbill/internal/domain/connection"
	"github.com/watercoop/waterbill/internal/domain/rate"
	"github.com/watercoop/waterbill/internal/idempotency"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/metrics"
	"github.com/watercoop/waterbill/internal/publisher"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger  *logger.Logger
	Config  *config.Configuration
	DB      database.IClient
	Cache   cache.Cache
	Metrics *metrics.Metrics

	// Repositories
	ClientRepo           client.Repository
	BillRepo             bill.Repository
	PartialPaymentRepo   bill.PartialPaymentRepository
	ConnectionStatusRepo connection.Repository

	// Billing core
	Ledger      *bill.Ledger
	Policy      *connection.Policy
	Idempotency *idempotency.Generator

	// Publishers
	EventPublisher publisher.EventPublisher

	// Now is the service clock, time.Now in UTC when nil
	Now func() time.Time
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db database.IClient,
	cache cache.Cache,
	metrics *metrics.Metrics,
	clientRepo client.Repository,
	billRepo bill.Repository,
	partialPaymentRepo bill.PartialPaymentRepository,
	connectionStatusRepo connection.Repository,
	ledger *bill.Ledger,
	policy *connection.Policy,
	eventPublisher publisher.EventPublisher,
) ServiceParams {
	return ServiceParams{
		Logger:               logger,
		Config:               config,
		DB:                   db,
		Cache:                cache,
		Metrics:              metrics,
		ClientRepo:           clientRepo,
		BillRepo:             billRepo,
		PartialPaymentRepo:   partialPaymentRepo,
		ConnectionStatusRepo: connectionStatusRepo,
		Ledger:               ledger,
		Policy:               policy,
		Idempotency:          idempotency.NewGenerator(),
		EventPublisher:       eventPublisher,
	}
}

// NewLedger builds the bill ledger from the configured rate schedule
func NewLedger(cfg *config.Configuration) (*bill.Ledger, error) {
	schedule, err := rate.FromConfig(cfg.Billing.Rate)
	if err != nil {
		return nil, err
	}
	return bill.NewLedger(schedule, cfg.Billing.Currency, cfg.Billing.DueDateOffsetDays), nil
}

// NewPolicy builds the connection status policy from the configured grace period
func NewPolicy(cfg *config.Configuration) *connection.Policy {
	return connection.NewPolicy(cfg.Billing.DisconnectionGraceDays)
}
