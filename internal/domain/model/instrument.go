package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Tolerance for allocation percentage sums, in percentage points.
const allocationSumTolerance = 0.05

// AllocationBreakdown maps a category (asset class, region, or sector) to its
// weight in percent. A present, non-empty breakdown must sum to 100 within
// tolerance.
type AllocationBreakdown map[string]float64

// Validate checks the breakdown sums to 100 +- 0.05. Empty breakdowns are
// valid; they mark the instrument as unclassified.
func (b AllocationBreakdown) Validate() error {
	if len(b) == 0 {
		return nil
	}
	sum := 0.0
	for category, pct := range b {
		if strings.TrimSpace(category) == "" {
			return errors.New("allocation category name is required")
		}
		if pct < 0 {
			return fmt.Errorf("allocation for %q is negative", category)
		}
		sum += pct
	}
	if math.Abs(sum-100) > allocationSumTolerance {
		return fmt.Errorf("allocation sums to %.2f, want 100", sum)
	}
	return nil
}

// Instrument is a tradable security identified by symbol, with allocation
// breakdowns across the three classification dimensions.
type Instrument struct {
	Symbol     string              `json:"symbol"      db:"symbol"`
	Name       string              `json:"name"        db:"name"`
	Type       string              `json:"type"        db:"type"`
	Price      float64             `json:"price"       db:"price"`
	AssetClass AllocationBreakdown `json:"asset_class" db:"allocation_asset_class"`
	Regions    AllocationBreakdown `json:"regions"     db:"allocation_regions"`
	Sectors    AllocationBreakdown `json:"sectors"     db:"allocation_sectors"`
}

// Unclassified reports whether any of the three allocation breakdowns is
// missing. Unclassified instruments are sent to the classification
// capability before specialist agents run.
func (i *Instrument) Unclassified() bool {
	if i == nil {
		return true
	}
	return len(i.AssetClass) == 0 || len(i.Regions) == 0 || len(i.Sectors) == 0
}

// Validate checks the instrument's identity and all allocation breakdowns.
func (i *Instrument) Validate() error {
	if strings.TrimSpace(i.Symbol) == "" {
		return errors.New("symbol is required")
	}
	if err := i.AssetClass.Validate(); err != nil {
		return fmt.Errorf("asset class: %w", err)
	}
	if err := i.Regions.Validate(); err != nil {
		return fmt.Errorf("regions: %w", err)
	}
	if err := i.Sectors.Validate(); err != nil {
		return fmt.Errorf("sectors: %w", err)
	}
	return nil
}

// InstrumentRef identifies an instrument needing classification.
type InstrumentRef struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Classification is one classified instrument as returned by the
// classification capability.
type Classification struct {
	Symbol     string              `json:"symbol"`
	AssetClass AllocationBreakdown `json:"asset_class"`
	Regions    AllocationBreakdown `json:"regions"`
	Sectors    AllocationBreakdown `json:"sectors"`
}

// Validate checks every breakdown on the classification. A classification
// failing validation must be rejected, not persisted.
func (c *Classification) Validate() error {
	if strings.TrimSpace(c.Symbol) == "" {
		return errors.New("symbol is required")
	}
	if err := c.AssetClass.Validate(); err != nil {
		return fmt.Errorf("asset class: %w", err)
	}
	if err := c.Regions.Validate(); err != nil {
		return fmt.Errorf("regions: %w", err)
	}
	if err := c.Sectors.Validate(); err != nil {
		return fmt.Errorf("sectors: %w", err)
	}
	return nil
}
