package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/watercoop/waterbill/internal/api/dto"
	"github.com/watercoop/waterbill/internal/domain/events"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/testutil"
	"github.com/watercoop/waterbill/internal/types"
)

type BillingServiceSuite struct {
	testutil.BaseServiceTestSuite
	service BillingService
}

func TestBillingService(t *testing.T) {
	suite.Run(t, new(BillingServiceSuite))
}

func (s *BillingServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	accountNumberRetryInterval = time.Millisecond
	s.setupService()
}

func (s *BillingServiceSuite) setupService() {
	cfg := s.GetConfig()
	ledger, err := NewLedger(cfg)
	s.Require().NoError(err)

	stores := s.GetStores()
	params := NewServiceParams(
		s.GetLogger(),
		cfg,
		s.GetDB(),
		s.GetCache(),
		s.GetMetrics(),
		stores.ClientRepo,
		stores.BillRepo,
		stores.PartialPaymentRepo,
		stores.ConnectionStatusRepo,
		ledger,
		NewPolicy(cfg),
		s.GetPublisher(),
	)
	params.Now = s.Clock()
	s.service = NewBillingService(params)
}

func (s *BillingServiceSuite) dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (s *BillingServiceSuite) assertAmount(expected string, actual decimal.Decimal) {
	s.True(s.dec(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func (s *BillingServiceSuite) registerClient(initialReading int64) *dto.ClientResponse {
	resp, err := s.service.RegisterClient(s.GetContext(), dto.RegisterClientRequest{
		FirstName:           "Juan",
		MiddleName:          "Reyes",
		LastName:            "Dela Cruz",
		ContactNumber:       "09171234567",
		Address:             "Purok 3, Barangay San Isidro",
		MeterNumber:         "MTR-0042",
		InitialMeterReading: initialReading,
	})
	s.Require().NoError(err)
	return resp
}

func (s *BillingServiceSuite) createBill(clientID string, current int64) *dto.BillResponse {
	resp, err := s.service.CreateBill(s.GetContext(), dto.CreateBillRequest{
		ClientID:       clientID,
		CurrentReading: current,
	})
	s.Require().NoError(err)
	return resp
}

func (s *BillingServiceSuite) pay(billID, amount, expected string) (*dto.BillResponse, error) {
	return s.service.PayBill(s.GetContext(), dto.PayBillRequest{
		BillID:                billID,
		Amount:                s.dec(amount),
		ExpectedPaymentAmount: lo.ToPtr(s.dec(expected)),
	})
}

func (s *BillingServiceSuite) TestRegisterClientIssuesSequentialAccountNumbers() {
	first := s.registerClient(100)
	s.Equal("0000-AA", first.AccountNumber)
	s.Equal("Juan Reyes Dela Cruz", first.FullName)
	s.Equal(types.ConnectionStatusConnected, first.ConnectionStatus)
	s.Equal(int64(100), first.InitialMeterReading)

	second := s.registerClient(0)
	s.Equal("0001-AA", second.AccountNumber)

	history, err := s.service.ListConnectionStatusHistory(s.GetContext(), first.ID)
	s.NoError(err)
	s.Require().Len(history.Items, 1)
	s.Equal(types.ConnectionStatusReasonRegistered, history.Items[0].Reason)

	s.Len(s.GetPublisher().EventsNamed(events.EventClientRegistered), 2)
}

func (s *BillingServiceSuite) TestRegisterClientValidation() {
	_, err := s.service.RegisterClient(s.GetContext(), dto.RegisterClientRequest{
		FirstName: "Juan",
		Email:     "not-an-email",
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))

	count, err := s.GetStores().ClientRepo.Count(s.GetContext(), nil)
	s.NoError(err)
	s.Zero(count)
}

func (s *BillingServiceSuite) TestRegisterClientRetriesAfterCollision() {
	s.GetStores().ClientRepo.SimulateCollisions(2)

	resp := s.registerClient(0)
	s.Equal("0000-AA", resp.AccountNumber)

	count, err := s.GetStores().ClientRepo.Count(s.GetContext(), nil)
	s.NoError(err)
	s.Equal(1, count)
}

func (s *BillingServiceSuite) TestRegisterClientExhaustsRetries() {
	s.GetStores().ClientRepo.SimulateCollisions(s.GetConfig().Billing.AccountNumberMaxRetries)

	_, err := s.service.RegisterClient(s.GetContext(), dto.RegisterClientRequest{
		FirstName: "Ana",
		LastName:  "Lim",
	})
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrAccountNumberExhausted))
	s.Equal(ierr.ErrCodeAccountNumberExhausted, ierr.Code(err))
}

func (s *BillingServiceSuite) TestBillAndPaymentLifecycle() {
	c := s.registerClient(100)

	b := s.createBill(c.ID, 150)
	s.Equal(int64(100), b.PreviousReading)
	s.Equal(int64(150), b.CurrentReading)
	s.Equal(int64(50), b.Consumption)
	s.assertAmount("500", b.BillAmount)
	s.Equal(types.BillPaymentStatusUnpaid, b.PaymentStatus)
	s.assertAmount("0", b.PaymentAmount)
	s.assertAmount("500", b.RemainingBalance)
	s.True(b.DueDate.Equal(s.GetNow().AddDate(0, 0, 15)))

	afterFirst, err := s.pay(b.ID, "300", "0")
	s.Require().NoError(err)
	s.Equal(types.BillPaymentStatusUnderpaid, afterFirst.PaymentStatus)
	s.assertAmount("200", afterFirst.RemainingBalance)
	s.assertAmount("0", afterFirst.PaymentExcess)
	s.Nil(afterFirst.PaymentDate)

	s.SetNow(s.GetNow().Add(2 * time.Hour))
	afterSecond, err := s.pay(b.ID, "200", "300")
	s.Require().NoError(err)
	s.Equal(types.BillPaymentStatusPaid, afterSecond.PaymentStatus)
	s.assertAmount("0", afterSecond.RemainingBalance)
	s.assertAmount("500", afterSecond.PaymentAmount)
	s.Require().NotNil(afterSecond.PaymentDate)
	s.True(afterSecond.PaymentDate.Equal(s.GetNow()))

	_, err = s.pay(b.ID, "50", "500")
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrBillAlreadySettled))

	stored, err := s.service.GetBill(s.GetContext(), b.ID)
	s.NoError(err)
	s.assertAmount("500", stored.PaymentAmount)
	s.Equal(types.BillPaymentStatusPaid, stored.PaymentStatus)

	payments, err := s.service.ListPartialPayments(s.GetContext(), b.ID)
	s.NoError(err)
	s.Len(payments.Items, 2)
	s.assertAmount("500", payments.TotalPaid)
	s.True(payments.TotalPaid.Equal(stored.PaymentAmount))

	s.Len(s.GetPublisher().EventsNamed(events.EventBillCreated), 1)
	s.Len(s.GetPublisher().EventsNamed(events.EventBillPaymentApplied), 2)
}

func (s *BillingServiceSuite) TestBillViewIsFullyComputed() {
	c := s.registerClient(1000)
	b := s.createBill(c.ID, 1125)

	s.Equal("PHP 1,250.00", b.FormattedBillAmount)
	s.Equal("PHP 0.00", b.FormattedPaymentAmount)
	s.Equal("Unpaid", b.PaymentStatusLabel)
	s.Equal(c.AccountNumber, b.AccountNumber)
	s.Equal("Juan Reyes Dela Cruz", b.ClientName)
	s.Equal(types.ConnectionStatusConnected, b.ConnectionStatus)
	s.False(b.IsOverdue)
	s.Zero(b.DaysOverdue)

	s.SetNow(b.DueDate.Add(3*24*time.Hour + time.Hour))
	overdue, err := s.service.GetBill(s.GetContext(), b.ID)
	s.NoError(err)
	s.True(overdue.IsOverdue)
	s.Equal(3, overdue.DaysOverdue)
}

func (s *BillingServiceSuite) TestCreateBillRejectsSecondOpenBill() {
	c := s.registerClient(100)
	s.createBill(c.ID, 150)

	_, err := s.service.CreateBill(s.GetContext(), dto.CreateBillRequest{ClientID: c.ID, CurrentReading: 180})
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrOpenBillExists))

	// an explicit previous reading does not bypass the rule
	_, err = s.service.CreateBill(s.GetContext(), dto.CreateBillRequest{
		ClientID:        c.ID,
		CurrentReading:  20,
		PreviousReading: lo.ToPtr(int64(0)),
	})
	s.True(ierr.Is(err, ierr.ErrOpenBillExists))

	count, err := s.GetStores().BillRepo.Count(s.GetContext(), &types.BillFilter{ClientID: c.ID})
	s.NoError(err)
	s.Equal(1, count)
}

func (s *BillingServiceSuite) TestCreateBillInvalidReading() {
	c := s.registerClient(100)

	_, err := s.service.CreateBill(s.GetContext(), dto.CreateBillRequest{ClientID: c.ID, CurrentReading: 90})
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrInvalidReading))

	_, err = s.GetStores().BillRepo.FindLatestBill(s.GetContext(), c.ID)
	s.True(ierr.IsNotFound(err))
}

func (s *BillingServiceSuite) TestCreateBillUnknownClient() {
	_, err := s.service.CreateBill(s.GetContext(), dto.CreateBillRequest{ClientID: "cli_missing", CurrentReading: 10})
	s.True(ierr.IsNotFound(err))
}

func (s *BillingServiceSuite) TestNextBillCarriesPreviousReading() {
	c := s.registerClient(100)
	first := s.createBill(c.ID, 150)
	_, err := s.pay(first.ID, "500", "0")
	s.Require().NoError(err)

	s.SetNow(s.GetNow().AddDate(0, 1, 0))
	second := s.createBill(c.ID, 172)
	s.Equal(int64(150), second.PreviousReading)
	s.Equal(int64(22), second.Consumption)
	s.assertAmount("220", second.BillAmount)

	bills, err := s.service.ListBills(s.GetContext(), &types.BillFilter{ClientID: c.ID})
	s.NoError(err)
	s.Equal(2, bills.Pagination.Total)
	s.Equal(second.ID, bills.Items[0].ID)
}

func (s *BillingServiceSuite) TestMeterReplacementOverride() {
	c := s.registerClient(9990)
	first := s.createBill(c.ID, 9999)
	_, err := s.pay(first.ID, "90", "0")
	s.Require().NoError(err)

	s.SetNow(s.GetNow().AddDate(0, 1, 0))
	resp, err := s.service.CreateBill(s.GetContext(), dto.CreateBillRequest{
		ClientID:        c.ID,
		CurrentReading:  12,
		PreviousReading: lo.ToPtr(int64(0)),
	})
	s.NoError(err)
	s.Equal(int64(12), resp.Consumption)
}

func (s *BillingServiceSuite) TestZeroConsumptionBillIsSettledOnCreation() {
	c := s.registerClient(100)
	b := s.createBill(c.ID, 100)
	s.Equal(types.BillPaymentStatusPaid, b.PaymentStatus)
	s.assertAmount("0", b.BillAmount)

	_, err := s.pay(b.ID, "10", "0")
	s.True(ierr.Is(err, ierr.ErrBillAlreadySettled))

	// nothing is open so the next reading can be billed
	next := s.createBill(c.ID, 110)
	s.Equal(types.BillPaymentStatusUnpaid, next.PaymentStatus)
}

func (s *BillingServiceSuite) TestPayBillRejectsNonPositiveAmount() {
	c := s.registerClient(100)
	b := s.createBill(c.ID, 150)

	for _, amount := range []string{"0", "-25"} {
		_, err := s.pay(b.ID, amount, "0")
		s.True(ierr.Is(err, ierr.ErrNonPositiveAmount), amount)
	}

	stored, err := s.service.GetBill(s.GetContext(), b.ID)
	s.NoError(err)
	s.Equal(types.BillPaymentStatusUnpaid, stored.PaymentStatus)
	s.Equal(int64(1), stored.Version)
}

func (s *BillingServiceSuite) TestPayBillRejectsSubCentAmount() {
	c := s.registerClient(100)
	b := s.createBill(c.ID, 150)

	_, err := s.pay(b.ID, "499.999", "0")
	s.Error(err)
	s.True(ierr.IsValidation(err))

	stored, err := s.service.GetBill(s.GetContext(), b.ID)
	s.NoError(err)
	s.assertAmount("0", stored.PaymentAmount)
	s.Equal(types.BillPaymentStatusUnpaid, stored.PaymentStatus)

	resp, err := s.pay(b.ID, "499.99", "0")
	s.Require().NoError(err)
	s.Equal(types.BillPaymentStatusUnderpaid, resp.PaymentStatus)
	s.Equal("PHP 0.01", resp.FormattedRemainingBalance)

	resp, err = s.pay(b.ID, "0.01", "499.99")
	s.Require().NoError(err)
	s.Equal(types.BillPaymentStatusPaid, resp.PaymentStatus)

	// the settled bill no longer blocks the next reading
	s.SetNow(s.GetNow().AddDate(0, 1, 0))
	s.createBill(c.ID, 160)
}

func (s *BillingServiceSuite) TestPayBillRequiresSnapshot() {
	c := s.registerClient(100)
	b := s.createBill(c.ID, 150)

	_, err := s.service.PayBill(s.GetContext(), dto.PayBillRequest{BillID: b.ID, Amount: s.dec("100")})
	s.True(ierr.IsValidation(err))
}

func (s *BillingServiceSuite) TestDoubleSubmissionIsRejectedAsStale() {
	c := s.registerClient(100)
	b := s.createBill(c.ID, 150)

	_, err := s.pay(b.ID, "100", "0")
	s.Require().NoError(err)

	// the same click again still carries the old snapshot
	_, err = s.pay(b.ID, "100", "0")
	s.Error(err)
	s.True(ierr.IsStaleBillState(err))

	stored, err := s.service.GetBill(s.GetContext(), b.ID)
	s.NoError(err)
	s.assertAmount("100", stored.PaymentAmount)

	payments, err := s.service.ListPartialPayments(s.GetContext(), b.ID)
	s.NoError(err)
	s.Len(payments.Items, 1)
}

func (s *BillingServiceSuite) TestOverpayment() {
	c := s.registerClient(100)
	b := s.createBill(c.ID, 150)

	resp, err := s.pay(b.ID, "600", "0")
	s.Require().NoError(err)
	s.Equal(types.BillPaymentStatusOverpaid, resp.PaymentStatus)
	s.assertAmount("0", resp.RemainingBalance)
	s.assertAmount("100", resp.PaymentExcess)
	s.Equal("PHP 100.00", resp.FormattedPaymentExcess)
	s.NotNil(resp.PaymentDate)
}

func (s *BillingServiceSuite) TestPayUnknownBill() {
	_, err := s.pay("bill_missing", "10", "0")
	s.True(ierr.IsNotFound(err))
}

func (s *BillingServiceSuite) TestConnectionStatusFollowsBillAging() {
	c := s.registerClient(100)
	b := s.createBill(c.ID, 150)

	// within terms nothing changes
	s.SetNow(b.DueDate.Add(-time.Hour))
	sweep, err := s.service.EvaluateConnectionStatuses(s.GetContext(), time.Time{})
	s.NoError(err)
	s.Equal(1, sweep.Evaluated)
	s.Empty(sweep.Transitions)

	s.SetNow(b.DueDate.Add(24 * time.Hour))
	sweep, err = s.service.EvaluateConnectionStatuses(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.Require().Len(sweep.Transitions, 1)
	s.Equal(types.ConnectionStatusDueForDisconnection, sweep.Transitions[0].ConnectionStatus)

	status, err := s.service.GetClientStatus(s.GetContext(), c.ID)
	s.NoError(err)
	s.Equal(types.ConnectionStatusDueForDisconnection, status.ConnectionStatus)

	s.SetNow(b.DueDate.Add(8 * 24 * time.Hour))
	sweep, err = s.service.EvaluateConnectionStatuses(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.Require().Len(sweep.Transitions, 1)
	s.Equal(types.ConnectionStatusDisconnected, sweep.Transitions[0].ConnectionStatus)

	disconnected, err := s.service.GetBill(s.GetContext(), b.ID)
	s.NoError(err)
	s.Require().NotNil(disconnected.DisconnectionDate)
	s.True(disconnected.DisconnectionDate.Equal(s.GetNow()))
	s.Equal(types.ConnectionStatusDisconnected, disconnected.ConnectionStatus)

	// a repeated sweep appends nothing
	sweep, err = s.service.EvaluateConnectionStatuses(s.GetContext(), s.GetNow().Add(time.Hour))
	s.NoError(err)
	s.Empty(sweep.Transitions)

	paid, err := s.pay(b.ID, "500", "0")
	s.Require().NoError(err)
	s.Equal(types.BillPaymentStatusPaid, paid.PaymentStatus)
	s.Equal(types.ConnectionStatusConnected, paid.ConnectionStatus)

	status, err = s.service.GetClientStatus(s.GetContext(), c.ID)
	s.NoError(err)
	s.Equal(types.ConnectionStatusConnected, status.ConnectionStatus)
	s.Equal(types.ConnectionStatusReasonBillSettled, status.Reason)

	history, err := s.service.ListConnectionStatusHistory(s.GetContext(), c.ID)
	s.NoError(err)
	s.Equal([]types.ConnectionStatus{
		types.ConnectionStatusConnected,
		types.ConnectionStatusDueForDisconnection,
		types.ConnectionStatusDisconnected,
		types.ConnectionStatusConnected,
	}, lo.Map(history.Items, func(r *dto.ConnectionStatusResponse, _ int) types.ConnectionStatus {
		return r.ConnectionStatus
	}))

	s.Len(s.GetPublisher().EventsNamed(events.EventClientConnectionStatusChanged), 3)
}

func (s *BillingServiceSuite) TestLateSweepDisconnectsDirectly() {
	c := s.registerClient(100)
	b := s.createBill(c.ID, 150)

	s.SetNow(b.DueDate.Add(30 * 24 * time.Hour))
	sweep, err := s.service.EvaluateConnectionStatuses(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.Require().Len(sweep.Transitions, 1)
	s.Equal(types.ConnectionStatusDisconnected, sweep.Transitions[0].ConnectionStatus)
	s.Equal(types.ConnectionStatusReasonGraceElapsed, sweep.Transitions[0].Reason)
}

func (s *BillingServiceSuite) TestSweepEvaluatesEveryOpenBill() {
	var lastDue time.Time
	billIDs := make(map[string]bool)
	for i := 0; i < 6; i++ {
		c := s.registerClient(int64(i * 10))
		b := s.createBill(c.ID, int64(i*10+5))
		billIDs[b.ID] = true
		lastDue = b.DueDate
	}

	// one settled bill drops out of the sweep
	settledClient := s.registerClient(0)
	settled := s.createBill(settledClient.ID, 10)
	_, err := s.pay(settled.ID, "100", "0")
	s.Require().NoError(err)

	s.SetNow(lastDue.Add(10 * 24 * time.Hour))
	sweep, err := s.service.EvaluateConnectionStatuses(s.GetContext(), s.GetNow())
	s.Require().NoError(err)
	s.Equal(6, sweep.Evaluated)
	s.Empty(sweep.Failures)
	s.Require().Len(sweep.Transitions, 6)
	for _, t := range sweep.Transitions {
		s.Equal(types.ConnectionStatusDisconnected, t.ConnectionStatus)
		s.Require().NotNil(t.BillID)
		s.True(billIDs[*t.BillID])
	}
}

func (s *BillingServiceSuite) TestPartialPaymentKeepsClientOverdue() {
	c := s.registerClient(100)
	b := s.createBill(c.ID, 150)

	s.SetNow(b.DueDate.Add(48 * time.Hour))
	_, err := s.service.EvaluateConnectionStatuses(s.GetContext(), s.GetNow())
	s.NoError(err)

	resp, err := s.pay(b.ID, "100", "0")
	s.NoError(err)
	s.Equal(types.BillPaymentStatusUnderpaid, resp.PaymentStatus)
	s.Equal(types.ConnectionStatusDueForDisconnection, resp.ConnectionStatus)
}

func (s *BillingServiceSuite) TestListClients() {
	for i := 0; i < 3; i++ {
		s.SetNow(s.GetNow().Add(time.Minute))
		s.registerClient(int64(i))
	}

	resp, err := s.service.ListClients(s.GetContext(), &types.ClientFilter{
		QueryFilter: &types.QueryFilter{Limit: lo.ToPtr(2), Offset: lo.ToPtr(0), Order: lo.ToPtr(types.OrderAsc)},
	})
	s.NoError(err)
	s.Equal(3, resp.Pagination.Total)
	s.Require().Len(resp.Items, 2)
	s.Equal("0000-AA", resp.Items[0].AccountNumber)
	s.Equal(types.ConnectionStatusConnected, resp.Items[0].ConnectionStatus)

	_, err = s.service.ListClients(s.GetContext(), &types.ClientFilter{
		QueryFilter: &types.QueryFilter{Limit: lo.ToPtr(0)},
	})
	s.True(ierr.IsValidation(err))
}

func (s *BillingServiceSuite) TestGetClientStatusUnknownClient() {
	_, err := s.service.GetClientStatus(s.GetContext(), "cli_missing")
	s.True(ierr.IsNotFound(err))
}
