// Package classify fills in missing instrument allocation data before
// specialist agents run. Charting and retirement math both consume
// allocation percentages, so the gate always runs first in the pipeline.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/finsight/portfolio-analyst/internal/agents"
	"github.com/finsight/portfolio-analyst/internal/core"
	"github.com/finsight/portfolio-analyst/internal/domain/model"
)

// GateOptions configure the classification gate.
type GateOptions struct {
	Invoker     agents.Invoker
	Instruments core.InstrumentRepository
	Cache       core.CacheRepository // optional: cross-worker dedupe
	Retry       agents.RetryPolicy
	Timeout     time.Duration
	DedupeTTL   time.Duration
	Logger      *slog.Logger
}

// Gate detects unclassified instruments in a snapshot and requests
// classification for them in a single synchronous call. Classification
// failures are logged and non-fatal: analysis proceeds with whatever data is
// available.
type Gate struct {
	invoker     agents.Invoker
	instruments core.InstrumentRepository
	cache       core.CacheRepository
	retry       agents.RetryPolicy
	timeout     time.Duration
	dedupeTTL   time.Duration
	logger      *slog.Logger
}

// NewGate constructs a Gate.
func NewGate(opts GateOptions) (*Gate, error) {
	if opts.Invoker == nil {
		return nil, errors.New("invoker is required")
	}
	if opts.Instruments == nil {
		return nil, errors.New("instrument repository is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	dedupeTTL := opts.DedupeTTL
	if dedupeTTL <= 0 {
		dedupeTTL = 2 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gate{
		invoker:     opts.Invoker,
		instruments: opts.Instruments,
		cache:       opts.Cache,
		retry:       opts.Retry,
		timeout:     timeout,
		dedupeTTL:   dedupeTTL,
		logger:      logger.With("component", "classification_gate"),
	}, nil
}

// EnsureClassified scans the snapshot for instruments missing any allocation
// breakdown and classifies them in one call. A fully classified snapshot is
// a no-op with no external call. The returned error is non-nil only when the
// context is done; all other failures degrade to partial data.
func (g *Gate) EnsureClassified(
	ctx context.Context,
	snapshot *model.PortfolioSnapshot,
) (*model.PortfolioSnapshot, error) {
	if snapshot == nil {
		return nil, errors.New("snapshot is required")
	}
	if err := ctx.Err(); err != nil {
		return snapshot, err
	}

	missing := collectMissing(snapshot)
	if len(missing) == 0 {
		return snapshot, nil
	}

	if !g.acquireDedupe(ctx, missing) {
		// Another worker is classifying the same set. Pick up whatever has
		// landed in the store instead of issuing a duplicate request.
		g.applyFromStore(ctx, snapshot, missing)
		return snapshot, nil
	}

	resp, err := g.callClassifier(ctx, missing)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return snapshot, ctxErr
		}
		g.logger.WarnContext(ctx, "classification failed; continuing with available data",
			"missing", len(missing), "error", err)
		return snapshot, nil
	}

	g.applyClassifications(ctx, snapshot, missing, resp)
	return snapshot, nil
}

// collectMissing returns one ref per unclassified symbol in position order.
func collectMissing(snapshot *model.PortfolioSnapshot) []model.InstrumentRef {
	seen := make(map[string]bool)
	var refs []model.InstrumentRef
	snapshot.EachPosition(func(pos *model.Position) bool {
		symbol := strings.ToUpper(strings.TrimSpace(pos.Symbol))
		if symbol == "" || seen[symbol] {
			return true
		}
		if pos.Instrument != nil && !pos.Instrument.Unclassified() {
			return true
		}
		seen[symbol] = true
		name := ""
		if pos.Instrument != nil {
			name = pos.Instrument.Name
		}
		refs = append(refs, model.InstrumentRef{Symbol: symbol, Name: name})
		return true
	})
	return refs
}

// acquireDedupe takes a short-lived lock keyed on the sorted symbol set.
// Cache trouble degrades to classifying without dedupe.
func (g *Gate) acquireDedupe(ctx context.Context, refs []model.InstrumentRef) bool {
	if g.cache == nil {
		return true
	}

	symbols := make([]string, len(refs))
	for i, ref := range refs {
		symbols[i] = ref.Symbol
	}
	sort.Strings(symbols)
	sum := sha256.Sum256([]byte(strings.Join(symbols, ",")))
	key := fmt.Sprintf("classify:dedupe:%x", sum)

	ok, err := g.cache.SetIfNotExists(ctx, key, []byte("1"), g.dedupeTTL)
	if err != nil {
		g.logger.WarnContext(ctx, "dedupe lock set failed; proceeding without dedupe", "error", err)
		return true
	}
	return ok
}

func (g *Gate) callClassifier(
	ctx context.Context,
	refs []model.InstrumentRef,
) (*model.ClassifyResponse, error) {
	var resp model.ClassifyResponse
	err := g.retry.Do(ctx, func(ctx context.Context) error {
		payload, invokeErr := g.invoker.Invoke(
			ctx,
			model.AgentClassifier,
			g.timeout,
			model.ClassifyRequest{Instruments: refs},
		)
		if invokeErr != nil {
			return invokeErr
		}
		if decodeErr := json.Unmarshal(payload, &resp); decodeErr != nil {
			return fmt.Errorf("decode classification response: %w", decodeErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// applyClassifications validates, persists, and applies each returned
// classification. Invalid records are rejected and never persisted.
func (g *Gate) applyClassifications(
	ctx context.Context,
	snapshot *model.PortfolioSnapshot,
	refs []model.InstrumentRef,
	resp *model.ClassifyResponse,
) {
	names := make(map[string]string, len(refs))
	for _, ref := range refs {
		names[ref.Symbol] = ref.Name
	}

	applied := make(map[string]*model.Instrument)
	for _, c := range resp.Classifications {
		if c == nil {
			continue
		}
		if err := c.Validate(); err != nil {
			g.logger.WarnContext(ctx, "rejecting invalid classification",
				"symbol", c.Symbol, "error", err)
			continue
		}

		inst := g.mergedInstrument(ctx, c, names[c.Symbol])
		if err := g.instruments.Upsert(ctx, inst); err != nil {
			// Last write wins between concurrent jobs; a persist failure
			// still leaves this job's in-memory snapshot classified.
			g.logger.WarnContext(ctx, "persist classification failed",
				"symbol", c.Symbol, "error", err)
		}
		applied[inst.Symbol] = inst
	}

	for _, e := range resp.Errors {
		g.logger.WarnContext(ctx, "classifier reported per-symbol error",
			"symbol", e.Symbol, "error", e.Error)
	}

	applyToSnapshot(snapshot, applied)
}

// mergedInstrument layers the classification onto the stored instrument, or
// builds a minimal record when the symbol is new.
func (g *Gate) mergedInstrument(
	ctx context.Context,
	c *model.Classification,
	name string,
) *model.Instrument {
	inst, err := g.instruments.GetBySymbol(ctx, c.Symbol)
	if err != nil || inst == nil {
		inst = &model.Instrument{Symbol: c.Symbol, Name: name}
	}
	inst.AssetClass = c.AssetClass
	inst.Regions = c.Regions
	inst.Sectors = c.Sectors
	return inst
}

// applyFromStore refreshes snapshot instruments from the store, used when
// another worker holds the dedupe lock.
func (g *Gate) applyFromStore(
	ctx context.Context,
	snapshot *model.PortfolioSnapshot,
	refs []model.InstrumentRef,
) {
	symbols := make([]string, len(refs))
	for i, ref := range refs {
		symbols[i] = ref.Symbol
	}
	stored, err := g.instruments.GetBySymbols(ctx, symbols)
	if err != nil {
		g.logger.WarnContext(ctx, "refresh instruments from store failed", "error", err)
		return
	}
	applyToSnapshot(snapshot, stored)
}

func applyToSnapshot(snapshot *model.PortfolioSnapshot, updates map[string]*model.Instrument) {
	if len(updates) == 0 {
		return
	}
	snapshot.EachPosition(func(pos *model.Position) bool {
		symbol := strings.ToUpper(strings.TrimSpace(pos.Symbol))
		update, ok := updates[symbol]
		if !ok || update == nil {
			return true
		}
		if pos.Instrument == nil {
			copied := *update
			pos.Instrument = &copied
			return true
		}
		pos.Instrument.AssetClass = update.AssetClass
		pos.Instrument.Regions = update.Regions
		pos.Instrument.Sectors = update.Sectors
		return true
	})
}
