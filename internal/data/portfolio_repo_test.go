package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/portfolio-analyst/internal/testutil"
)

func seedPortfolio(t *testing.T, db *sql.DB, userID string) {
	t.Helper()
	ctx := context.Background()

	instruments := NewInstrumentRepo(db)
	require.NoError(t, instruments.Upsert(ctx, testutil.NewInstrument("VTI").WithPrice(250).Build()))

	_, err := db.ExecContext(ctx, `
		INSERT INTO portfolio_accounts (id, user_id, name, cash_balance)
		VALUES ('acct-1', $1, 'Brokerage', 1000),
		       ('acct-2', $1, 'Roth IRA', 0)
	`, userID)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO positions (account_id, symbol, quantity)
		VALUES ('acct-1', 'VTI', 10),
		       ('acct-2', 'VTI', 4),
		       ('acct-2', 'NEWCO', 2)
	`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO retirement_goals (user_id, years_until_retirement, target_annual_income, current_age)
		VALUES ($1, 20, 80000, 40)
	`, userID)
	require.NoError(t, err)
}

func TestPortfolioRepoGetUserPortfolio(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPortfolioRepo(db)
	ctx := context.Background()

	seedPortfolio(t, db, "user-1")

	snap, err := repo.GetUserPortfolio(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", snap.UserID)
	require.Len(t, snap.Accounts, 2)
	assert.Equal(t, 3, snap.PositionCount())

	// Known symbols carry resolved instruments; unknown symbols do not.
	var withInstrument, withoutInstrument int
	for _, acct := range snap.Accounts {
		for _, pos := range acct.Positions {
			if pos.Instrument != nil {
				withInstrument++
			} else {
				withoutInstrument++
			}
		}
	}
	assert.Equal(t, 2, withInstrument)
	assert.Equal(t, 1, withoutInstrument)

	// 14 shares of VTI at 250 plus 1000 cash.
	assert.InDelta(t, 4500.0, snap.TotalValue(), 0.001)

	require.NotNil(t, snap.RetirementGoal)
	assert.Equal(t, 20, snap.RetirementGoal.YearsUntilRetirement)
	assert.Equal(t, 80000.0, snap.RetirementGoal.TargetAnnualIncome)
	require.NotNil(t, snap.RetirementGoal.CurrentAge)
	assert.Equal(t, 40, *snap.RetirementGoal.CurrentAge)
}

func TestPortfolioRepoNoAccounts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPortfolioRepo(db)

	_, err := repo.GetUserPortfolio(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrPortfolioNotFound)
}

func TestPortfolioRepoNoGoal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPortfolioRepo(db)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO portfolio_accounts (id, user_id, name, cash_balance)
		VALUES ('acct-9', 'user-9', 'Brokerage', 500)
	`)
	require.NoError(t, err)

	snap, err := repo.GetUserPortfolio(ctx, "user-9")
	require.NoError(t, err)
	assert.Nil(t, snap.RetirementGoal)
	assert.False(t, snap.RetirementGoal.Set())
}
