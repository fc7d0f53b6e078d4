package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSplit(t *testing.T) {
	cases := []struct {
		name           string
		fee            string
		rate           string
		wantCommission string
		wantPayout     string
	}{
		{name: "standard rate", fee: "1000.00", rate: "0.15", wantCommission: "150.00", wantPayout: "850.00"},
		{name: "rounding half up", fee: "99.99", rate: "0.15", wantCommission: "15.00", wantPayout: "84.99"},
		{name: "repeating fraction", fee: "100.00", rate: "0.333", wantCommission: "33.30", wantPayout: "66.70"},
		{name: "sub-cent commission", fee: "0.03", rate: "0.15", wantCommission: "0.00", wantPayout: "0.03"},
		{name: "zero rate", fee: "500.00", rate: "0", wantCommission: "0.00", wantPayout: "500.00"},
		{name: "odd fee", fee: "333.33", rate: "0.2", wantCommission: "66.67", wantPayout: "266.66"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			commission, payout, err := Split(d(tc.fee), d(tc.rate))
			require.NoError(t, err)
			assert.True(t, d(tc.wantCommission).Equal(commission), "commission: want %s, got %s", tc.wantCommission, commission)
			assert.True(t, d(tc.wantPayout).Equal(payout), "payout: want %s, got %s", tc.wantPayout, payout)

			// The split never creates or destroys money.
			assert.True(t, d(tc.fee).Equal(commission.Add(payout)), "conservation: %s + %s != %s", commission, payout, tc.fee)
		})
	}
}

func TestSplitRejectsBadInputs(t *testing.T) {
	_, _, err := Split(d("0"), d("0.15"))
	assert.ErrorIs(t, err, ErrInvalidFee)

	_, _, err = Split(d("-10.00"), d("0.15"))
	assert.ErrorIs(t, err, ErrInvalidFee)

	_, _, err = Split(d("100.00"), d("-0.1"))
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, _, err = Split(d("100.00"), d("1"))
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, _, err = Split(d("100.00"), d("1.5"))
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestSplitConservationSweep(t *testing.T) {
	// Conservation must hold for awkward fee/rate pairs, not just round ones.
	fees := []string{"0.01", "19.99", "123.45", "999.99", "10000.00", "33.33"}
	rates := []string{"0.1", "0.15", "0.2", "0.25", "0.333", "0.999"}

	for _, fee := range fees {
		for _, rate := range rates {
			commission, payout, err := Split(d(fee), d(rate))
			require.NoError(t, err)
			assert.True(t, d(fee).Equal(commission.Add(payout)),
				"fee=%s rate=%s: %s + %s", fee, rate, commission, payout)
		}
	}
}
