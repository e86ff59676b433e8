package bill

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/watercoop/waterbill/internal/domain/rate"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/types"
)

type LedgerSuite struct {
	suite.Suite
	ledger *Ledger
	now    time.Time
}

func TestLedger(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ledger = NewLedger(rate.Flat{UnitPrice: decimal.NewFromInt(10)}, "PHP", 15)
	s.now = time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
}

func (s *LedgerSuite) TestOpen() {
	b, err := s.ledger.Open(OpenInput{
		ClientID:        "cli_1",
		PreviousReading: 100,
		CurrentReading:  150,
		Now:             s.now,
	})
	s.NoError(err)
	s.NotEmpty(b.ID)
	s.Equal("cli_1", b.ClientID)
	s.Equal(int64(50), b.Consumption)
	s.True(decimal.NewFromInt(500).Equal(b.BillAmount))
	s.Equal(types.BillPaymentStatusUnpaid, b.PaymentStatus)
	s.True(b.PaymentAmount.IsZero())
	s.True(decimal.NewFromInt(500).Equal(b.RemainingBalance))
	s.True(b.PaymentExcess.IsZero())
	s.Nil(b.PaymentDate)
	s.Equal(s.now.AddDate(0, 0, 15), b.DueDate)
	s.Equal(int64(1), b.Version)
	s.Equal("PHP", b.Currency)
}

func (s *LedgerSuite) TestOpenWithExistingOpenBill() {
	for _, status := range []types.BillPaymentStatus{types.BillPaymentStatusUnpaid, types.BillPaymentStatusUnderpaid} {
		_, err := s.ledger.Open(OpenInput{
			ClientID:        "cli_1",
			PreviousReading: 150,
			CurrentReading:  170,
			OpenBill:        &Bill{ID: "bill_open", PaymentStatus: status},
			Now:             s.now,
		})
		s.Error(err)
		s.True(ierr.Is(err, ierr.ErrOpenBillExists))
	}
}

func (s *LedgerSuite) TestOpenIgnoresSettledBill() {
	b, err := s.ledger.Open(OpenInput{
		ClientID:        "cli_1",
		PreviousReading: 150,
		CurrentReading:  170,
		OpenBill:        &Bill{ID: "bill_old", PaymentStatus: types.BillPaymentStatusPaid},
		Now:             s.now,
	})
	s.NoError(err)
	s.True(decimal.NewFromInt(200).Equal(b.BillAmount))
}

func (s *LedgerSuite) TestOpenInvalidReading() {
	_, err := s.ledger.Open(OpenInput{ClientID: "cli_1", PreviousReading: 150, CurrentReading: 149, Now: s.now})
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrInvalidReading))
}

func (s *LedgerSuite) TestOpenZeroConsumptionIsSettled() {
	b, err := s.ledger.Open(OpenInput{ClientID: "cli_1", PreviousReading: 150, CurrentReading: 150, Now: s.now})
	s.NoError(err)
	s.Equal(types.BillPaymentStatusPaid, b.PaymentStatus)
	s.True(b.RemainingBalance.IsZero())
	s.NotNil(b.PaymentDate)
}

func (s *LedgerSuite) TestEndToEndPayments() {
	b, err := s.ledger.Open(OpenInput{ClientID: "cli_1", PreviousReading: 100, CurrentReading: 150, Now: s.now})
	s.NoError(err)

	b, _, err = s.ledger.ApplyPayment(b, decimal.NewFromInt(300), s.now)
	s.NoError(err)
	s.Equal(types.BillPaymentStatusUnderpaid, b.PaymentStatus)
	s.True(decimal.NewFromInt(200).Equal(b.RemainingBalance))

	b, _, err = s.ledger.ApplyPayment(b, decimal.NewFromInt(200), s.now)
	s.NoError(err)
	s.Equal(types.BillPaymentStatusPaid, b.PaymentStatus)
	s.True(b.RemainingBalance.IsZero())
	s.True(decimal.NewFromInt(500).Equal(b.PaymentAmount))

	_, _, err = s.ledger.ApplyPayment(b, decimal.NewFromInt(50), s.now)
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrBillAlreadySettled))
}
