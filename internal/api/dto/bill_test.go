package dto

import (
	"testing"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ierr "github.com/watercoop/waterbill/internal/errors"
)

func TestPayBillRequestValidate(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		expected *string
		wantErr  bool
	}{
		{name: "whole amount", amount: "500", expected: lo.ToPtr("0")},
		{name: "cents", amount: "499.99", expected: lo.ToPtr("0.01")},
		{name: "trailing zeros", amount: "500.000", expected: lo.ToPtr("0")},
		{name: "missing snapshot", amount: "500", wantErr: true},
		{name: "negative snapshot", amount: "500", expected: lo.ToPtr("-1"), wantErr: true},
		{name: "sub-cent amount", amount: "499.999", expected: lo.ToPtr("0"), wantErr: true},
		{name: "sub-cent snapshot", amount: "100", expected: lo.ToPtr("300.005"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := PayBillRequest{
				BillID: "bill_01",
				Amount: decimal.RequireFromString(tt.amount),
			}
			if tt.expected != nil {
				req.ExpectedPaymentAmount = lo.ToPtr(decimal.RequireFromString(*tt.expected))
			}

			err := req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, ierr.IsValidation(err))
		})
	}
}
