package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/finsight/portfolio-analyst/internal/domain/model"
)

// InstrumentRepo provides instrument reference-data operations. Upserts are
// last-write-wins on symbol; rows are never locked across a classifier RPC.
type InstrumentRepo struct {
	DB *sql.DB
}

// NewInstrumentRepo creates an InstrumentRepo backed by the given database
// handle.
func NewInstrumentRepo(db *sql.DB) *InstrumentRepo {
	return &InstrumentRepo{DB: db}
}

// GetBySymbol returns the instrument for a symbol, or nil when unknown.
func (r *InstrumentRepo) GetBySymbol(
	ctx context.Context,
	symbol string,
) (*model.Instrument, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.New("symbol is required")
	}

	var data instrumentRowData
	err := r.DB.QueryRowContext(ctx, `
		SELECT symbol, name, type, price, asset_class, regions, sectors
		FROM instruments
		WHERE symbol = $1
	`, symbol).Scan(
		&data.symbol, &data.name, &data.instType, &data.price,
		&data.assetClass, &data.regions, &data.sectors,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instrument: %w", err)
	}
	return data.instrument()
}

// GetBySymbols returns the stored instruments for the given symbols, keyed
// by symbol. Unknown symbols are simply absent from the result.
func (r *InstrumentRepo) GetBySymbols(
	ctx context.Context,
	symbols []string,
) (map[string]*model.Instrument, error) {
	out := make(map[string]*model.Instrument, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			normalized = append(normalized, s)
		}
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT symbol, name, type, price, asset_class, regions, sectors
		FROM instruments
		WHERE symbol = ANY($1)
	`, normalized)
	if err != nil {
		return nil, fmt.Errorf("get instruments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data instrumentRowData
		if err := rows.Scan(
			&data.symbol, &data.name, &data.instType, &data.price,
			&data.assetClass, &data.regions, &data.sectors,
		); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		inst, err := data.instrument()
		if err != nil {
			return nil, err
		}
		if inst != nil {
			out[inst.Symbol] = inst
		}
	}
	return out, rows.Err()
}

// Upsert inserts or replaces the instrument row for inst.Symbol. Concurrent
// upserts of the same symbol are last-write-wins.
func (r *InstrumentRepo) Upsert(ctx context.Context, inst *model.Instrument) error {
	if inst == nil {
		return errors.New("instrument is required")
	}
	if err := inst.Validate(); err != nil {
		return err
	}

	assetClass, regions, sectors, err := marshalBreakdowns(inst)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO instruments (symbol, name, type, price, asset_class, regions, sectors, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (symbol) DO UPDATE
		SET name        = EXCLUDED.name,
		    type        = EXCLUDED.type,
		    price       = EXCLUDED.price,
		    asset_class = EXCLUDED.asset_class,
		    regions     = EXCLUDED.regions,
		    sectors     = EXCLUDED.sectors,
		    updated_at  = now()
	`, strings.ToUpper(strings.TrimSpace(inst.Symbol)), inst.Name, inst.Type, inst.Price,
		assetClass, regions, sectors)
	if err != nil {
		return fmt.Errorf("upsert instrument: %w", err)
	}
	return nil
}

func marshalBreakdowns(inst *model.Instrument) ([]byte, []byte, []byte, error) {
	assetClass, err := marshalBreakdown(inst.AssetClass)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal asset class: %w", err)
	}
	regions, err := marshalBreakdown(inst.Regions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal regions: %w", err)
	}
	sectors, err := marshalBreakdown(inst.Sectors)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal sectors: %w", err)
	}
	return assetClass, regions, sectors, nil
}

func marshalBreakdown(b model.AllocationBreakdown) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return json.Marshal(b)
}

// instrumentRowData scans a nullable instrument row, shared with the
// portfolio snapshot loader's LEFT JOIN.
type instrumentRowData struct {
	symbol, name, instType       sql.NullString
	price                        sql.NullFloat64
	assetClass, regions, sectors []byte
}

// instrument materialises the row, or returns nil when the join found no
// instrument for the symbol.
func (d *instrumentRowData) instrument() (*model.Instrument, error) {
	if !d.symbol.Valid {
		return nil, nil
	}

	inst := &model.Instrument{
		Symbol: d.symbol.String,
		Name:   d.name.String,
		Type:   d.instType.String,
		Price:  d.price.Float64,
	}
	for _, field := range []struct {
		raw  []byte
		dest *model.AllocationBreakdown
	}{
		{d.assetClass, &inst.AssetClass},
		{d.regions, &inst.Regions},
		{d.sectors, &inst.Sectors},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return nil, fmt.Errorf("decode allocation breakdown: %w", err)
		}
	}
	return inst, nil
}
