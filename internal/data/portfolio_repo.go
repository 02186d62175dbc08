package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/finsight/portfolio-analyst/internal/data/pgxutil"
	"github.com/finsight/portfolio-analyst/internal/domain/model"
)

// PortfolioRepo loads point-in-time portfolio snapshots with instrument
// reference data resolved onto positions in a single round trip per table.
type PortfolioRepo struct {
	DB *sql.DB
}

// NewPortfolioRepo creates a PortfolioRepo backed by the given database
// handle.
func NewPortfolioRepo(db *sql.DB) *PortfolioRepo {
	return &PortfolioRepo{DB: db}
}

// GetUserPortfolio returns the user's accounts, positions, and retirement
// goal as one snapshot. Returns ErrPortfolioNotFound when the user has no
// accounts.
func (r *PortfolioRepo) GetUserPortfolio(
	ctx context.Context,
	userID string,
) (*model.PortfolioSnapshot, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	snapshot := &model.PortfolioSnapshot{UserID: userID}
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		if err := r.loadAccounts(ctx, conn, snapshot); err != nil {
			return err
		}
		if len(snapshot.Accounts) == 0 {
			return ErrPortfolioNotFound
		}
		if err := r.loadPositions(ctx, conn, snapshot); err != nil {
			return err
		}
		return r.loadRetirementGoal(ctx, conn, snapshot)
	})
	if err != nil {
		if errors.Is(err, ErrPortfolioNotFound) {
			return nil, ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("get user portfolio: %w", err)
	}
	return snapshot, nil
}

func (r *PortfolioRepo) loadAccounts(
	ctx context.Context,
	conn *pgx.Conn,
	snapshot *model.PortfolioSnapshot,
) error {
	rows, err := conn.Query(ctx, `
		SELECT id, name, cash_balance
		FROM portfolio_accounts
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`, snapshot.UserID)
	if err != nil {
		return fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var acct model.Account
		if err := rows.Scan(&acct.ID, &acct.Name, &acct.CashBalance); err != nil {
			return fmt.Errorf("scan account: %w", err)
		}
		snapshot.Accounts = append(snapshot.Accounts, acct)
	}
	return rows.Err()
}

func (r *PortfolioRepo) loadPositions(
	ctx context.Context,
	conn *pgx.Conn,
	snapshot *model.PortfolioSnapshot,
) error {
	rows, err := conn.Query(ctx, `
		SELECT p.account_id, p.symbol, p.quantity,
		       i.symbol, i.name, i.type, i.price, i.asset_class, i.regions, i.sectors
		FROM positions p
		LEFT JOIN instruments i ON i.symbol = p.symbol
		WHERE p.account_id IN (
		  SELECT id FROM portfolio_accounts WHERE user_id = $1
		)
		ORDER BY p.account_id ASC, p.symbol ASC
	`, snapshot.UserID)
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	byAccount := make(map[string]*model.Account, len(snapshot.Accounts))
	for i := range snapshot.Accounts {
		byAccount[snapshot.Accounts[i].ID] = &snapshot.Accounts[i]
	}

	for rows.Next() {
		var (
			accountID string
			pos       model.Position
			instData  instrumentRowData
		)
		if err := rows.Scan(
			&accountID, &pos.Symbol, &pos.Quantity,
			&instData.symbol, &instData.name, &instData.instType, &instData.price,
			&instData.assetClass, &instData.regions, &instData.sectors,
		); err != nil {
			return fmt.Errorf("scan position: %w", err)
		}

		inst, err := instData.instrument()
		if err != nil {
			return fmt.Errorf("decode instrument %s: %w", pos.Symbol, err)
		}
		pos.Instrument = inst

		acct, ok := byAccount[accountID]
		if !ok {
			continue
		}
		acct.Positions = append(acct.Positions, pos)
	}
	return rows.Err()
}

func (r *PortfolioRepo) loadRetirementGoal(
	ctx context.Context,
	conn *pgx.Conn,
	snapshot *model.PortfolioSnapshot,
) error {
	var goal model.RetirementGoal
	var currentAge sql.NullInt64
	err := conn.QueryRow(ctx, `
		SELECT years_until_retirement, target_annual_income, current_age
		FROM retirement_goals
		WHERE user_id = $1
	`, snapshot.UserID).Scan(
		&goal.YearsUntilRetirement,
		&goal.TargetAnnualIncome,
		&currentAge,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query retirement goal: %w", err)
	}

	if currentAge.Valid {
		age := int(currentAge.Int64)
		goal.CurrentAge = &age
	}
	snapshot.RetirementGoal = &goal
	return nil
}
