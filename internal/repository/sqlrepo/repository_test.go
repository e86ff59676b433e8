package sqlrepo

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/watercoop/waterbill/internal/cache"
	"github.com/watercoop/waterbill/internal/config"
	"github.com/watercoop/waterbill/internal/database"
	"github.com/watercoop/waterbill/internal/domain/bill"
	"github.com/watercoop/waterbill/internal/domain/client"
	"github.com/watercoop/waterbill/internal/domain/connection"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/types"
)

type RepositorySuite struct {
	suite.Suite
	ctx         context.Context
	db          *database.DB
	clients     client.Repository
	bills       bill.Repository
	payments    bill.PartialPaymentRepository
	connections connection.Repository
	now         time.Time
}

func TestRepositories(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	conn, err := sqlx.Connect("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	s.Require().NoError(err)
	conn.SetMaxOpenConns(1)

	log := logger.NewNopLogger()
	s.db = database.NewFromSQLX(conn, log)
	s.Require().NoError(s.db.Migrate(s.ctx))

	s.clients = NewClientRepository(s.db, log, cache.NewInMemoryCache(config.GetDefaultConfig()))
	s.bills = NewBillRepository(s.db, log)
	s.payments = NewPartialPaymentRepository(s.db, log)
	s.connections = NewConnectionStatusRepository(s.db, log)
}

func (s *RepositorySuite) TearDownTest() {
	s.NoError(s.db.Close())
}

func (s *RepositorySuite) baseModel(at time.Time) types.BaseModel {
	return types.BaseModel{Status: types.StatusPublished, CreatedAt: at, UpdatedAt: at}
}

func (s *RepositorySuite) createClient(accountNumber string, at time.Time) *client.Client {
	c := &client.Client{
		ID:                  types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CLIENT),
		AccountNumber:       accountNumber,
		FirstName:           "Maria",
		LastName:            "Santos",
		InitialMeterReading: 100,
		BaseModel:           s.baseModel(at),
	}
	s.Require().NoError(s.clients.Create(s.ctx, c))
	return c
}

func (s *RepositorySuite) newBill(clientID string, at time.Time) *bill.Bill {
	return &bill.Bill{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILL),
		ClientID:         clientID,
		PreviousReading:  100,
		CurrentReading:   150,
		Consumption:      50,
		BillAmount:       decimal.RequireFromString("500.25"),
		Currency:         "PHP",
		PaymentStatus:    types.BillPaymentStatusUnpaid,
		PaymentAmount:    decimal.Zero,
		RemainingBalance: decimal.RequireFromString("500.25"),
		PaymentExcess:    decimal.Zero,
		DueDate:          at.AddDate(0, 0, 15),
		Version:          1,
		BaseModel:        s.baseModel(at),
	}
}

func (s *RepositorySuite) TestClientLifecycle() {
	last, err := s.clients.FindLastIssuedAccountNumber(s.ctx)
	s.NoError(err)
	s.Equal("", last)

	c1 := s.createClient("0000-AA", s.now)
	s.createClient("0001-AA", s.now.Add(time.Minute))

	last, err = s.clients.FindLastIssuedAccountNumber(s.ctx)
	s.NoError(err)
	s.Equal("0001-AA", last)

	got, err := s.clients.Get(s.ctx, c1.ID)
	s.NoError(err)
	s.Equal("0000-AA", got.AccountNumber)
	s.Equal(int64(100), got.InitialMeterReading)

	byNumber, err := s.clients.GetByAccountNumber(s.ctx, "0001-AA")
	s.NoError(err)
	s.Equal("Maria", byNumber.FirstName)

	_, err = s.clients.Get(s.ctx, "cli_missing")
	s.True(ierr.IsNotFound(err))

	list, err := s.clients.List(s.ctx, &types.ClientFilter{QueryFilter: types.NewDefaultQueryFilter(), Search: "0001"})
	s.NoError(err)
	s.Len(list, 1)

	count, err := s.clients.Count(s.ctx, &types.ClientFilter{Search: "santos"})
	s.NoError(err)
	s.Equal(2, count)
}

func (s *RepositorySuite) TestDuplicateAccountNumber() {
	s.createClient("0000-AA", s.now)

	err := s.clients.Create(s.ctx, &client.Client{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CLIENT),
		AccountNumber: "0000-AA",
		FirstName:     "Jose",
		LastName:      "Rizal",
		BaseModel:     s.baseModel(s.now),
	})
	s.Error(err)
	s.True(ierr.IsDuplicateAccountNumber(err))
}

func (s *RepositorySuite) TestBillRoundTripAndVersionGuard() {
	c := s.createClient("0000-AA", s.now)
	b := s.newBill(c.ID, s.now)
	s.NoError(s.bills.Create(s.ctx, b))

	got, err := s.bills.Get(s.ctx, b.ID)
	s.NoError(err)
	s.True(decimal.RequireFromString("500.25").Equal(got.BillAmount))
	s.Equal(types.BillPaymentStatusUnpaid, got.PaymentStatus)
	s.Nil(got.PaymentDate)
	s.True(b.DueDate.Equal(got.DueDate))

	open, err := s.bills.FindOpenBill(s.ctx, c.ID)
	s.NoError(err)
	s.Equal(b.ID, open.ID)

	got.PaymentAmount = decimal.NewFromInt(100)
	got.RemainingBalance = decimal.RequireFromString("400.25")
	got.PaymentStatus = types.BillPaymentStatusUnderpaid
	got.Version = 2
	s.NoError(s.bills.Update(s.ctx, got, 1))

	// a second writer holding version 1 loses
	err = s.bills.Update(s.ctx, got, 1)
	s.True(ierr.IsStaleBillState(err))

	reloaded, err := s.bills.Get(s.ctx, b.ID)
	s.NoError(err)
	s.Equal(int64(2), reloaded.Version)
	s.True(decimal.NewFromInt(100).Equal(reloaded.PaymentAmount))
}

func (s *RepositorySuite) TestOneOpenBillPerClient() {
	c := s.createClient("0000-AA", s.now)
	s.NoError(s.bills.Create(s.ctx, s.newBill(c.ID, s.now)))

	err := s.bills.Create(s.ctx, s.newBill(c.ID, s.now.Add(time.Hour)))
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrOpenBillExists))
}

func (s *RepositorySuite) TestFindLatestAndList() {
	c := s.createClient("0000-AA", s.now)

	first := s.newBill(c.ID, s.now)
	first.PaymentStatus = types.BillPaymentStatusPaid
	first.PaymentAmount = first.BillAmount
	first.RemainingBalance = decimal.Zero
	first.PaymentDate = lo.ToPtr(s.now)
	s.NoError(s.bills.Create(s.ctx, first))

	second := s.newBill(c.ID, s.now.AddDate(0, 1, 0))
	s.NoError(s.bills.Create(s.ctx, second))

	latest, err := s.bills.FindLatestBill(s.ctx, c.ID)
	s.NoError(err)
	s.Equal(second.ID, latest.ID)

	open, err := s.bills.List(s.ctx, &types.BillFilter{
		QueryFilter:     types.NewNoLimitQueryFilter(),
		PaymentStatuses: types.OpenBillPaymentStatuses(),
	})
	s.NoError(err)
	s.Len(open, 1)
	s.Equal(second.ID, open[0].ID)

	count, err := s.bills.Count(s.ctx, &types.BillFilter{ClientID: c.ID})
	s.NoError(err)
	s.Equal(2, count)

	_, err = s.bills.FindOpenBill(s.ctx, "cli_other")
	s.True(ierr.IsNotFound(err))
}

func (s *RepositorySuite) TestPartialPayments() {
	c := s.createClient("0000-AA", s.now)
	b := s.newBill(c.ID, s.now)
	s.NoError(s.bills.Create(s.ctx, b))

	p := &bill.PartialPayment{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PARTIAL_PAYMENT),
		BillID:         b.ID,
		ClientID:       c.ID,
		AmountPaid:     decimal.RequireFromString("120.50"),
		PaymentDate:    s.now,
		IdempotencyKey: "payment-abc",
		BaseModel:      s.baseModel(s.now),
	}
	s.NoError(s.payments.Create(s.ctx, p))

	dup := *p
	dup.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PARTIAL_PAYMENT)
	err := s.payments.Create(s.ctx, &dup)
	s.True(ierr.Is(err, ierr.ErrAlreadyExists))

	list, err := s.payments.ListByBill(s.ctx, b.ID)
	s.NoError(err)
	s.Len(list, 1)
	s.True(decimal.RequireFromString("120.5").Equal(list[0].AmountPaid))

	byKey, err := s.payments.GetByIdempotencyKey(s.ctx, "payment-abc")
	s.NoError(err)
	s.Equal(p.ID, byKey.ID)
}

func (s *RepositorySuite) TestConnectionStatusHistory() {
	c := s.createClient("0000-AA", s.now)

	_, err := s.connections.GetCurrent(s.ctx, c.ID)
	s.True(ierr.IsNotFound(err))

	for i, status := range []types.ConnectionStatus{
		types.ConnectionStatusConnected,
		types.ConnectionStatusDueForDisconnection,
		types.ConnectionStatusDisconnected,
	} {
		at := s.now.AddDate(0, 0, i)
		s.NoError(s.connections.Append(s.ctx, &connection.StatusRecord{
			ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CONNECTION_STATUS),
			ClientID:         c.ID,
			ConnectionStatus: status,
			EffectiveAt:      at,
			BaseModel:        s.baseModel(at),
		}))
	}

	current, err := s.connections.GetCurrent(s.ctx, c.ID)
	s.NoError(err)
	s.Equal(types.ConnectionStatusDisconnected, current.ConnectionStatus)

	history, err := s.connections.ListByClient(s.ctx, c.ID)
	s.NoError(err)
	s.Len(history, 3)
	s.Equal(types.ConnectionStatusConnected, history[0].ConnectionStatus)
}

func (s *RepositorySuite) TestTransactionRollbackLeavesNoPartialWrites() {
	c := s.createClient("0000-AA", s.now)
	b := s.newBill(c.ID, s.now)

	err := s.db.WithTx(s.ctx, func(ctx context.Context) error {
		if err := s.bills.Create(ctx, b); err != nil {
			return err
		}
		return s.payments.Create(ctx, &bill.PartialPayment{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PARTIAL_PAYMENT),
			BillID:         b.ID,
			ClientID:       c.ID,
			AmountPaid:     decimal.Zero, // violates the amount check
			PaymentDate:    s.now,
			IdempotencyKey: "payment-zero",
			BaseModel:      s.baseModel(s.now),
		})
	})
	s.Error(err)

	_, err = s.bills.Get(s.ctx, b.ID)
	s.True(ierr.IsNotFound(err))
}
