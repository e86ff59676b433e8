package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/watercoop/waterbill/internal/cache"
	"github.com/watercoop/waterbill/internal/config"
	"github.com/watercoop/waterbill/internal/database"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/metrics"
	"github.com/watercoop/waterbill/internal/publisher"
	"github.com/watercoop/waterbill/internal/pubsub/memory"
	"github.com/watercoop/waterbill/internal/repository"
	"github.com/watercoop/waterbill/internal/service"
	"github.com/watercoop/waterbill/internal/types"
)

var rootCmd = &cobra.Command{
	Use:   "waterbill",
	Short: "Operator tools for the water billing ledger",
	Long: `waterbill registers clients, records meter readings, applies payments
and ages connection statuses against the configured database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// app is the wiring one command needs. It is built per invocation and
// closed when the command returns.
type app struct {
	log     *logger.Logger
	db      *database.DB
	billing service.BillingService
}

func newApp() (*app, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	// nothing subscribes within a single command
	cfg.Events.Enabled = false

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.NewDB(cfg, log)
	if err != nil {
		return nil, err
	}

	ledger, err := service.NewLedger(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	c := cache.NewInMemoryCache(cfg)
	m := metrics.New()
	params := service.NewServiceParams(
		log,
		cfg,
		db,
		c,
		m,
		repository.NewClientRepository(db, log, c),
		repository.NewBillRepository(db, log),
		repository.NewPartialPaymentRepository(db, log),
		repository.NewConnectionStatusRepository(db, log),
		ledger,
		service.NewPolicy(cfg),
		publisher.NewEventPublisher(memory.NewPubSub(log), cfg, log, m),
	)

	return &app{
		log:     log,
		db:      db,
		billing: service.NewBillingService(params),
	}, nil
}

func (a *app) Close() {
	_ = a.log.Sync()
	_ = a.db.Close()
}

// run builds the app, runs fn with an operator context and prints its result
func run(cmd *cobra.Command, fn func(ctx context.Context, billing service.BillingService) (any, error)) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := types.SetUserID(cmd.Context(), types.DefaultUserID)
	ctx = types.SetRequestID(ctx, types.GenerateUUID())

	out, err := fn(ctx, a.billing)
	if err != nil {
		return fmt.Errorf("%s (%s)", ierr.DisplayMessage(err), ierr.Code(err))
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
