// Package retirement implements the Monte Carlo retirement sustainability
// projector. The projector is pure computation: no I/O, and randomness comes
// from an injectable source so simulations are reproducible under a fixed
// seed.
package retirement

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/finsight/portfolio-analyst/internal/domain/model"
)

// Annual return assumptions per asset class. Equity, bonds, and real estate
// are sampled from independent Gaussians; cash earns a fixed rate.
const (
	equityMeanReturn = 0.07
	equityStdDev     = 0.18

	bondMeanReturn = 0.04
	bondStdDev     = 0.05

	realEstateMeanReturn = 0.06
	realEstateStdDev     = 0.12

	cashReturn = 0.02
)

const (
	// annualContribution is added to the portfolio every accumulation year.
	annualContribution = 10_000.0

	// withdrawalInflation grows the retirement withdrawal 3% per year.
	withdrawalInflation = 1.03

	// retirementHorizonYears is the fixed decumulation horizon. A run counts
	// as a success when the portfolio sustains withdrawals for the full
	// horizon.
	retirementHorizonYears = 30

	// safeWithdrawalRate drives the deterministic milestone series once
	// retirement begins.
	safeWithdrawalRate = 0.04

	// milestoneInterval is the year spacing of the display projection.
	milestoneInterval = 5
)

// DefaultSimulations is used when the input does not specify a count.
const DefaultSimulations = 1000

// Tolerance for the allocation weight sum.
const weightSumTolerance = 0.01

// Phase labels for projection milestones.
type Phase string

const (
	// PhaseAccumulation covers the years before retirement.
	PhaseAccumulation Phase = "accumulation"
	// PhaseRetirement covers the decumulation years.
	PhaseRetirement Phase = "retirement"
)

// Input captures everything a projection needs.
type Input struct {
	CurrentValue         float64            `json:"current_value"`
	YearsUntilRetirement int                `json:"years_until_retirement"`
	TargetAnnualIncome   float64            `json:"target_annual_income"`
	Allocation           model.AssetWeights `json:"asset_allocation"`
	NumSimulations       int                `json:"num_simulations,omitempty"`
	CurrentAge           *int               `json:"current_age,omitempty"`
}

// Validate checks the input ranges.
func (in *Input) Validate() error {
	if in.CurrentValue < 0 {
		return errors.New("current value must be >= 0")
	}
	if in.YearsUntilRetirement < 0 {
		return errors.New("years until retirement must be >= 0")
	}
	if in.TargetAnnualIncome <= 0 {
		return errors.New("target annual income must be > 0")
	}
	if sum := in.Allocation.Sum(); math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("allocation weights sum to %.3f, want 1", sum)
	}
	for _, w := range []float64{
		in.Allocation.Equity, in.Allocation.Bonds, in.Allocation.RealEstate, in.Allocation.Cash,
	} {
		if w < 0 || w > 1 {
			return errors.New("allocation weights must be within 0..1")
		}
	}
	if in.NumSimulations < 0 {
		return errors.New("num simulations must be >= 0")
	}
	return nil
}

// Milestone is one point of the deterministic display projection.
type Milestone struct {
	Year           int     `json:"year"`
	Age            *int    `json:"age,omitempty"`
	PortfolioValue float64 `json:"portfolio_value"`
	AnnualIncome   float64 `json:"annual_income"`
	Phase          Phase   `json:"phase"`
}

// Outcome aggregates all simulation runs plus the deterministic projection
// series.
type Outcome struct {
	SuccessRate               float64     `json:"success_rate"`
	MedianFinalValue          float64     `json:"median_final_value"`
	Percentile10              float64     `json:"percentile_10"`
	Percentile90              float64     `json:"percentile_90"`
	AverageYearsSustained     float64     `json:"average_years_sustained"`
	ExpectedValueAtRetirement float64     `json:"expected_value_at_retirement"`
	Projection                []Milestone `json:"projection"`
}

// RandomSource supplies standard-normal draws. *rand.Rand satisfies it.
type RandomSource interface {
	NormFloat64() float64
}

// Options configure a Projector.
type Options struct {
	// Simulations overrides the per-input default run count.
	Simulations int
	// Rand is the random source; required for deterministic results.
	Rand RandomSource
}

// Projector runs Monte Carlo retirement projections.
type Projector struct {
	sims int
	rand RandomSource
}

// ErrRandRequired indicates a projector was constructed without a random
// source.
var ErrRandRequired = errors.New("random source is required")

// NewProjector constructs a Projector.
func NewProjector(opts Options) (*Projector, error) {
	if opts.Rand == nil {
		return nil, ErrRandRequired
	}
	sims := opts.Simulations
	if sims <= 0 {
		sims = DefaultSimulations
	}
	return &Projector{sims: sims, rand: opts.Rand}, nil
}

// WithdrawalForYear returns the inflation-adjusted withdrawal for the nth
// retirement year (year 0 withdraws exactly the target income).
func WithdrawalForYear(targetAnnualIncome float64, year int) float64 {
	return targetAnnualIncome * math.Pow(withdrawalInflation, float64(year))
}

// Project runs the full simulation set for the given input and aggregates
// the outcome.
func (p *Projector) Project(in Input) (*Outcome, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("validate projection input: %w", err)
	}

	sims := in.NumSimulations
	if sims <= 0 {
		sims = p.sims
	}

	finals := make([]float64, 0, sims)
	totalYears := 0
	successes := 0

	for range sims {
		final, sustained := p.simulate(in)
		finals = append(finals, final)
		totalYears += sustained
		if sustained == retirementHorizonYears {
			successes++
		}
	}

	sort.Float64s(finals)

	out := &Outcome{
		SuccessRate:           100 * float64(successes) / float64(sims),
		MedianFinalValue:      percentile(finals, 50),
		Percentile10:          percentile(finals, 10),
		Percentile90:          percentile(finals, 90),
		AverageYearsSustained: float64(totalYears) / float64(sims),
	}
	out.ExpectedValueAtRetirement, out.Projection = p.milestones(in)
	return out, nil
}

// simulate runs a single random trajectory and returns the final value and
// the number of retirement years sustained.
func (p *Projector) simulate(in Input) (finalValue float64, yearsSustained int) {
	value := in.CurrentValue

	for range in.YearsUntilRetirement {
		value = value*(1+p.sampleReturn(in.Allocation)) + annualContribution
	}

	withdrawal := in.TargetAnnualIncome
	for range retirementHorizonYears {
		value = value*(1+p.sampleReturn(in.Allocation)) - withdrawal
		if value <= 0 {
			return 0, yearsSustained
		}
		yearsSustained++
		withdrawal *= withdrawalInflation
	}

	return value, yearsSustained
}

// sampleReturn draws one year's blended portfolio return.
func (p *Projector) sampleReturn(w model.AssetWeights) float64 {
	equity := equityMeanReturn + equityStdDev*p.rand.NormFloat64()
	bonds := bondMeanReturn + bondStdDev*p.rand.NormFloat64()
	realEstate := realEstateMeanReturn + realEstateStdDev*p.rand.NormFloat64()

	return w.Equity*equity + w.Bonds*bonds + w.RealEstate*realEstate + w.Cash*cashReturn
}

// expectedReturn is the non-random blended annual return used for the
// milestone series.
func expectedReturn(w model.AssetWeights) float64 {
	return w.Equity*equityMeanReturn +
		w.Bonds*bondMeanReturn +
		w.RealEstate*realEstateMeanReturn +
		w.Cash*cashReturn
}

// milestones walks a deterministic trajectory using the expected blended
// return and records every fifth year. Once retirement begins the series
// switches to a fixed safe-withdrawal-rate income rather than the inflating
// target, which keeps the display projection stable for very long horizons.
func (p *Projector) milestones(in Input) (valueAtRetirement float64, series []Milestone) {
	er := expectedReturn(in.Allocation)
	value := in.CurrentValue
	horizon := in.YearsUntilRetirement + retirementHorizonYears

	record := func(year int, income float64, phase Phase) {
		m := Milestone{
			Year:           year,
			PortfolioValue: round2(math.Max(0, value)),
			AnnualIncome:   round2(income),
			Phase:          phase,
		}
		if in.CurrentAge != nil {
			age := *in.CurrentAge + year
			m.Age = &age
		}
		series = append(series, m)
	}

	for year := 0; year <= horizon; year++ {
		accumulating := year < in.YearsUntilRetirement
		if year == in.YearsUntilRetirement {
			valueAtRetirement = round2(math.Max(0, value))
		}

		if year%milestoneInterval == 0 {
			if accumulating {
				record(year, 0, PhaseAccumulation)
			} else {
				record(year, math.Max(0, value)*safeWithdrawalRate, PhaseRetirement)
			}
		}

		if accumulating {
			value = value*(1+er) + annualContribution
		} else {
			value = value*(1+er) - math.Max(0, value)*safeWithdrawalRate
		}
	}

	return valueAtRetirement, series
}

// percentile returns the nearest-rank percentile of a sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Round(q / 100 * float64(len(sorted)-1)))
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
