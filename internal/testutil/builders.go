package testutil

import (
	"github.com/finsight/portfolio-analyst/internal/domain/model"
)

// SnapshotBuilder provides a fluent interface for building portfolio
// snapshots for testing.
type SnapshotBuilder struct {
	snapshot *model.PortfolioSnapshot
}

// NewSnapshot creates a SnapshotBuilder with sensible defaults: one empty
// brokerage account for user-1.
func NewSnapshot() *SnapshotBuilder {
	return &SnapshotBuilder{
		snapshot: &model.PortfolioSnapshot{
			UserID: "user-1",
			Accounts: []model.Account{
				{ID: "acct-1", Name: "Brokerage"},
			},
		},
	}
}

// WithUserID sets the snapshot's user id.
func (b *SnapshotBuilder) WithUserID(userID string) *SnapshotBuilder {
	b.snapshot.UserID = userID
	return b
}

// WithAccounts replaces the snapshot's accounts.
func (b *SnapshotBuilder) WithAccounts(accounts ...model.Account) *SnapshotBuilder {
	b.snapshot.Accounts = accounts
	return b
}

// WithPosition appends a position to the first account.
func (b *SnapshotBuilder) WithPosition(symbol string, quantity float64, inst *model.Instrument) *SnapshotBuilder {
	b.snapshot.Accounts[0].Positions = append(b.snapshot.Accounts[0].Positions, model.Position{
		Symbol:     symbol,
		Quantity:   quantity,
		Instrument: inst,
	})
	return b
}

// WithCash sets the first account's cash balance.
func (b *SnapshotBuilder) WithCash(balance float64) *SnapshotBuilder {
	b.snapshot.Accounts[0].CashBalance = balance
	return b
}

// WithRetirementGoal sets a fully-specified retirement goal.
func (b *SnapshotBuilder) WithRetirementGoal(years int, income float64) *SnapshotBuilder {
	b.snapshot.RetirementGoal = &model.RetirementGoal{
		YearsUntilRetirement: years,
		TargetAnnualIncome:   income,
	}
	return b
}

// Build returns the built snapshot.
func (b *SnapshotBuilder) Build() *model.PortfolioSnapshot {
	return b.snapshot
}

// InstrumentBuilder provides a fluent interface for building instruments.
type InstrumentBuilder struct {
	inst *model.Instrument
}

// NewInstrument creates an InstrumentBuilder for a fully classified equity
// fund at price 100.
func NewInstrument(symbol string) *InstrumentBuilder {
	return &InstrumentBuilder{
		inst: &model.Instrument{
			Symbol:     symbol,
			Name:       symbol + " Fund",
			Type:       "etf",
			Price:      100,
			AssetClass: model.AllocationBreakdown{"equity": 100},
			Regions:    model.AllocationBreakdown{"north_america": 100},
			Sectors:    model.AllocationBreakdown{"broad_market": 100},
		},
	}
}

// WithPrice sets the instrument price.
func (b *InstrumentBuilder) WithPrice(price float64) *InstrumentBuilder {
	b.inst.Price = price
	return b
}

// WithAssetClass replaces the asset class breakdown.
func (b *InstrumentBuilder) WithAssetClass(breakdown model.AllocationBreakdown) *InstrumentBuilder {
	b.inst.AssetClass = breakdown
	return b
}

// Unclassified clears all three allocation breakdowns.
func (b *InstrumentBuilder) Unclassified() *InstrumentBuilder {
	b.inst.AssetClass = nil
	b.inst.Regions = nil
	b.inst.Sectors = nil
	return b
}

// Build returns the built instrument.
func (b *InstrumentBuilder) Build() *model.Instrument {
	return b.inst
}
