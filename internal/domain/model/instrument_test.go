package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocationBreakdownValidate(t *testing.T) {
	tests := []struct {
		name      string
		breakdown AllocationBreakdown
		wantErr   bool
	}{
		{name: "empty is valid", breakdown: nil},
		{name: "exact sum", breakdown: AllocationBreakdown{"equity": 60, "bonds": 40}},
		{name: "within tolerance high", breakdown: AllocationBreakdown{"equity": 60.04, "bonds": 40}},
		{name: "within tolerance low", breakdown: AllocationBreakdown{"equity": 59.96, "bonds": 40}},
		{name: "partial sum rejected", breakdown: AllocationBreakdown{"equity": 60}, wantErr: true},
		{name: "over 100 rejected", breakdown: AllocationBreakdown{"equity": 80, "bonds": 40}, wantErr: true},
		{name: "negative weight rejected", breakdown: AllocationBreakdown{"equity": 110, "bonds": -10}, wantErr: true},
		{name: "blank category rejected", breakdown: AllocationBreakdown{" ": 100}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.breakdown.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestInstrumentUnclassified(t *testing.T) {
	var nilInst *Instrument
	assert.True(t, nilInst.Unclassified())

	full := &Instrument{
		Symbol:     "VTI",
		AssetClass: AllocationBreakdown{"equity": 100},
		Regions:    AllocationBreakdown{"north_america": 100},
		Sectors:    AllocationBreakdown{"broad_market": 100},
	}
	assert.False(t, full.Unclassified())

	missingSectors := &Instrument{
		Symbol:     "BND",
		AssetClass: AllocationBreakdown{"bonds": 100},
		Regions:    AllocationBreakdown{"north_america": 100},
	}
	assert.True(t, missingSectors.Unclassified())
}

func TestClassificationValidateRejectsBadSums(t *testing.T) {
	c := &Classification{
		Symbol:     "ARKK",
		AssetClass: AllocationBreakdown{"equity": 60},
		Regions:    AllocationBreakdown{"north_america": 100},
		Sectors:    AllocationBreakdown{"technology": 100},
	}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asset class")

	c.AssetClass = AllocationBreakdown{"equity": 100}
	require.NoError(t, c.Validate())
}

func TestPortfolioSnapshotHelpers(t *testing.T) {
	snap := &PortfolioSnapshot{
		UserID: "user-1",
		Accounts: []Account{
			{
				ID:          "acct-1",
				CashBalance: 1000,
				Positions: []Position{
					{Symbol: "VTI", Quantity: 10, Instrument: &Instrument{Symbol: "VTI", Price: 200}},
					{Symbol: "BND", Quantity: 5, Instrument: &Instrument{Symbol: "BND", Price: 80}},
				},
			},
			{ID: "acct-2", CashBalance: 500},
		},
	}

	assert.Equal(t, 2, snap.PositionCount())
	assert.InDelta(t, 1000+500+10*200+5*80, snap.TotalValue(), 0.001)
}

func TestAssetAllocationBlendsByMarketValue(t *testing.T) {
	snap := &PortfolioSnapshot{
		Accounts: []Account{
			{
				Positions: []Position{
					{
						Symbol:   "VTI",
						Quantity: 10,
						Instrument: &Instrument{
							Symbol:     "VTI",
							Price:      100,
							AssetClass: AllocationBreakdown{"equity": 100},
						},
					},
					{
						Symbol:   "BND",
						Quantity: 10,
						Instrument: &Instrument{
							Symbol:     "BND",
							Price:      100,
							AssetClass: AllocationBreakdown{"bonds": 100},
						},
					},
				},
			},
		},
	}

	w := snap.AssetAllocation()
	assert.InDelta(t, 0.5, w.Equity, 0.001)
	assert.InDelta(t, 0.5, w.Bonds, 0.001)
	assert.InDelta(t, 1.0, w.Sum(), 0.001)
}

func TestAssetAllocationDefaultsUnclassifiedToEquity(t *testing.T) {
	snap := &PortfolioSnapshot{
		Accounts: []Account{
			{
				CashBalance: 500,
				Positions: []Position{
					{Symbol: "MYST", Quantity: 5, Instrument: &Instrument{Symbol: "MYST", Price: 100}},
				},
			},
		},
	}

	w := snap.AssetAllocation()
	assert.InDelta(t, 0.5, w.Equity, 0.001)
	assert.InDelta(t, 0.5, w.Cash, 0.001)
}

func TestAssetAllocationEmptyPortfolio(t *testing.T) {
	w := (&PortfolioSnapshot{}).AssetAllocation()
	assert.Zero(t, w.Sum())
}
