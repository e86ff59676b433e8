package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ierr "github.com/watercoop/waterbill/internal/errors"
)

func TestNextAccountNumber(t *testing.T) {
	tests := []struct {
		name       string
		lastIssued string
		want       string
	}{
		{name: "first account", lastIssued: "", want: "0000-AA"},
		{name: "simple increment", lastIssued: "0001-AA", want: "0002-AA"},
		{name: "keeps zero padding", lastIssued: "0099-BC", want: "0100-BC"},
		{name: "increment below rollover", lastIssued: "9998-QR", want: "9999-QR"},
		{name: "rollover advances second letter", lastIssued: "9999-AY", want: "0000-AZ"},
		{name: "rollover past Z resets suffix", lastIssued: "9999-AZ", want: "0000-AA"},
		{name: "rollover ignores first letter", lastIssued: "9999-CZ", want: "0000-AA"},
		{name: "rollover from AA", lastIssued: "9999-AA", want: "0000-AB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextAccountNumber(tt.lastIssued)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextAccountNumberRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"1-AA", "0001-aa", "0001AA", "ABCD-AA", "00001-AA", "0001-A1"} {
		t.Run(in, func(t *testing.T) {
			_, err := NextAccountNumber(in)
			require.Error(t, err)
			assert.True(t, ierr.IsValidation(err))
		})
	}
}

func TestNextAccountNumberIsPure(t *testing.T) {
	a, err := NextAccountNumber("0042-KM")
	require.NoError(t, err)
	b, err := NextAccountNumber("0042-KM")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
