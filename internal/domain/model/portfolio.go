package model

// RetirementGoal captures a user's retirement target. CurrentAge is optional
// and only affects the ages reported on projection milestones.
type RetirementGoal struct {
	YearsUntilRetirement int     `json:"years_until_retirement"`
	TargetAnnualIncome   float64 `json:"target_annual_income"`
	CurrentAge           *int    `json:"current_age,omitempty"`
}

// Set reports whether the goal is sufficiently specified to run a retirement
// projection: both the horizon and the target income must be present.
func (g *RetirementGoal) Set() bool {
	return g != nil && g.YearsUntilRetirement >= 0 && g.TargetAnnualIncome > 0
}

// Position is a holding of a single instrument within an account.
type Position struct {
	Symbol     string      `json:"symbol"`
	Quantity   float64     `json:"quantity"`
	Instrument *Instrument `json:"instrument,omitempty"`
}

// MarketValue returns the position's value at the instrument's current price,
// or zero when the instrument is unresolved.
func (p *Position) MarketValue() float64 {
	if p.Instrument == nil {
		return 0
	}
	return p.Quantity * p.Instrument.Price
}

// Account groups positions and a cash balance under a named account.
type Account struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CashBalance float64    `json:"cash_balance"`
	Positions   []Position `json:"positions"`
}

// PortfolioSnapshot is a point-in-time view of everything a user holds,
// loaded once per job and passed read-mostly through the pipeline. The
// classification gate is the only component that mutates it, filling in
// instrument allocation data before specialists run.
type PortfolioSnapshot struct {
	UserID         string          `json:"user_id"`
	RetirementGoal *RetirementGoal `json:"retirement_goal,omitempty"`
	Accounts       []Account       `json:"accounts"`
}

// PositionCount returns the total number of positions across all accounts.
func (s *PortfolioSnapshot) PositionCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for i := range s.Accounts {
		n += len(s.Accounts[i].Positions)
	}
	return n
}

// TotalValue returns the combined market value of all positions plus cash.
func (s *PortfolioSnapshot) TotalValue() float64 {
	if s == nil {
		return 0
	}
	total := 0.0
	for i := range s.Accounts {
		total += s.Accounts[i].CashBalance
		for j := range s.Accounts[i].Positions {
			total += s.Accounts[i].Positions[j].MarketValue()
		}
	}
	return total
}

// EachPosition invokes fn for every position in account order. Iteration
// stops early when fn returns false.
func (s *PortfolioSnapshot) EachPosition(fn func(*Position) bool) {
	if s == nil {
		return
	}
	for i := range s.Accounts {
		for j := range s.Accounts[i].Positions {
			if !fn(&s.Accounts[i].Positions[j]) {
				return
			}
		}
	}
}

// AssetAllocation returns the portfolio's blended asset-class weights
// (equity, bonds, real estate, cash) normalised to sum to 1. Positions whose
// instruments lack asset-class data are treated as equity, the conservative
// default for sustainability projections. Returns zero weights for an empty
// portfolio.
func (s *PortfolioSnapshot) AssetAllocation() AssetWeights {
	var w AssetWeights
	if s == nil {
		return w
	}

	total := 0.0
	for i := range s.Accounts {
		w.Cash += s.Accounts[i].CashBalance
		total += s.Accounts[i].CashBalance
		for j := range s.Accounts[i].Positions {
			pos := &s.Accounts[i].Positions[j]
			value := pos.MarketValue()
			if value <= 0 {
				continue
			}
			total += value
			w.accumulate(pos.Instrument, value)
		}
	}
	if total <= 0 {
		return AssetWeights{}
	}

	w.Equity /= total
	w.Bonds /= total
	w.RealEstate /= total
	w.Cash /= total
	return w
}

// AssetWeights holds blended asset-class weights in the 0..1 range.
type AssetWeights struct {
	Equity     float64 `json:"equity"`
	Bonds      float64 `json:"bonds"`
	RealEstate float64 `json:"real_estate"`
	Cash       float64 `json:"cash"`
}

// Sum returns the total of all weights.
func (w AssetWeights) Sum() float64 {
	return w.Equity + w.Bonds + w.RealEstate + w.Cash
}

func (w *AssetWeights) accumulate(inst *Instrument, value float64) {
	if inst == nil || len(inst.AssetClass) == 0 {
		w.Equity += value
		return
	}
	for class, pct := range inst.AssetClass {
		share := value * pct / 100
		switch normalizeAssetClass(class) {
		case "bonds":
			w.Bonds += share
		case "real_estate":
			w.RealEstate += share
		case "cash":
			w.Cash += share
		default:
			w.Equity += share
		}
	}
}

func normalizeAssetClass(class string) string {
	switch class {
	case "bond", "bonds", "fixed_income":
		return "bonds"
	case "real_estate", "realestate", "reit":
		return "real_estate"
	case "cash", "money_market":
		return "cash"
	default:
		return "equity"
	}
}
