package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/watercoop/waterbill/internal/cache"
	"github.com/watercoop/waterbill/internal/config"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/metrics"
	"github.com/watercoop/waterbill/internal/types"
	"github.com/watercoop/waterbill/internal/validator"
)

// Stores holds all the repository implementations for testing
type Stores struct {
	ClientRepo           *InMemoryClientStore
	BillRepo             *InMemoryBillStore
	PartialPaymentRepo   *InMemoryPartialPaymentStore
	ConnectionStatusRepo *InMemoryConnectionStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	publisher *InMemoryEventPublisher
	db        *MockPostgresClient
	cache     *cache.InMemoryCache
	metrics   *metrics.Metrics
	logger    *logger.Logger
	config    *config.Configuration
	now       time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	// flat 10 per cubic meter, 15 days to pay, 7 days of grace
	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = types.LogLevelInfo
	cfg.Billing.Rate = config.RateConfig{
		Type:     types.RateTypeFlat,
		FlatRate: "10",
	}
	cfg.Billing.DueDateOffsetDays = 15
	cfg.Billing.DisconnectionGraceDays = 7
	cfg.Billing.AccountNumberMaxRetries = 3
	s.config = cfg

	s.logger = logger.NewNopLogger()
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.now = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	s.setupStores()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		ClientRepo:           NewInMemoryClientStore(),
		BillRepo:             NewInMemoryBillStore(),
		PartialPaymentRepo:   NewInMemoryPartialPaymentStore(),
		ConnectionStatusRepo: NewInMemoryConnectionStore(),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.publisher = NewInMemoryEventPublisher()
	s.cache = cache.NewInMemoryCache(s.config)
	s.metrics = metrics.New()
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.ClientRepo.Clear()
	s.stores.BillRepo.Clear()
	s.stores.PartialPaymentRepo.Clear()
	s.stores.ConnectionStatusRepo.Clear()
	s.publisher.Clear()
	s.cache.Flush(context.Background())
}

// ClearStores empties every store
func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetPublisher returns the test event publisher
func (s *BaseServiceTestSuite) GetPublisher() *InMemoryEventPublisher {
	return s.publisher
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() *MockPostgresClient {
	return s.db
}

// GetCache returns the test cache
func (s *BaseServiceTestSuite) GetCache() *cache.InMemoryCache {
	return s.cache
}

// GetMetrics returns the test metrics registry
func (s *BaseServiceTestSuite) GetMetrics() *metrics.Metrics {
	return s.metrics
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// SetNow moves the test clock
func (s *BaseServiceTestSuite) SetNow(now time.Time) {
	s.now = now.UTC()
}

// Clock returns a clock reading the suite's current test time
func (s *BaseServiceTestSuite) Clock() func() time.Time {
	return func() time.Time { return s.now }
}
