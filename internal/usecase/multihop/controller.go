package multihop

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/hop"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/logger"
	"github.com/kailas-cloud/agrirag/internal/metrics"
	"github.com/kailas-cloud/agrirag/internal/usecase/reasoning"
)

// Defaults applied to zero Config fields.
const (
	DefaultTopK    = 20
	DefaultMaxHops = 3
	DefaultMinDocs = 25
)

// Search modes recorded on hop records.
const (
	modeStrict   = "strict_must"
	modeAnyTags  = "any_tags"
	modeFree     = "free_search"
	modeRecovery = "no_hit_recovery"
)

// Config bounds the hop loop.
type Config struct {
	TopK       int
	MaxHops    int
	MinDocs    int
	IntentHint bool
}

// Result is the accumulated evidence of one run.
type Result struct {
	Hits      []hit.Hit
	Trail     hop.Trail
	Recovered bool
}

// Controller runs the iterative retrieval loop.
// It is stateless; every Run owns its own seen/used bookkeeping.
type Controller struct {
	retriever Retriever
	decider   Decider
	recovery  Recoverer
	cfg       Config
}

// New creates a Controller.
func New(retriever Retriever, decider Decider, recovery Recoverer, cfg Config) *Controller {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = DefaultMaxHops
	}
	if cfg.MinDocs <= 0 {
		cfg.MinDocs = DefaultMinDocs
	}
	return &Controller{retriever: retriever, decider: decider, recovery: recovery, cfg: cfg}
}

type run struct {
	hits  []hit.Hit
	seen  hit.Seen
	used  map[string]bool
	trail hop.Trail
}

func (r *run) add(hits []hit.Hit, hopIndex int) int {
	fresh := r.seen.Dedupe(hits)
	for i := range fresh {
		fresh[i].HopIndex = hopIndex
	}
	r.hits = append(r.hits, fresh...)
	return len(fresh)
}

// Run executes hop 1 (strict by required tags), falls back to no-hit recovery
// when there is no anchor or no result, then lets the oracle drive relaxed hops
// until a stop rule fires. Only retrieval errors other than cancellation are returned.
func (c *Controller) Run(ctx context.Context, query string, tags tag.Set) (Result, error) {
	log := logger.FromContext(ctx)
	r := &run{seen: hit.Seen{}, used: map[string]bool{query: true}}

	var intent *hop.IntentHint
	if c.cfg.IntentHint {
		hint, err := c.decider.Intent(ctx, query)
		if err != nil {
			log.Warn("intent hint failed", zap.Error(err))
		}
		intent = &hint
	}

	first := hop.Record{Index: 1, Query: query, SearchMode: modeStrict, Intent: intent}

	if len(tags.RequiredAny) == 0 {
		first.StopReason = hop.NoMustAnchor
		r.trail = append(r.trail, first)
		return c.recover(ctx, r, query, tags)
	}

	hits, err := c.retriever.Retrieve(ctx, query, tag.Set{RequiredAny: tags.RequiredAny}, c.cfg.TopK)
	if err != nil {
		if isCancel(err) {
			first.StopReason = hop.Cancelled
			r.trail = append(r.trail, first)
			return c.finish(ctx, r, false), nil
		}
		return Result{}, err
	}
	first.HitCount = r.add(hits, 1)
	r.trail = append(r.trail, first)

	if first.HitCount == 0 {
		r.trail.Last().StopReason = hop.NoHitsInHop1
		return c.recover(ctx, r, query, tags)
	}
	if len(r.hits) >= c.cfg.MinDocs {
		r.trail.Last().StopReason = hop.EnoughDocs
		return c.finish(ctx, r, false), nil
	}

	relaxed := tag.Set{Any: tags.Any}
	mode := modeFree
	if len(tags.Any) > 0 {
		mode = modeAnyTags
	}

	current := query
	for idx := 2; idx <= c.cfg.MaxHops; idx++ {
		if ctx.Err() != nil {
			r.trail = append(r.trail, hop.Record{Index: idx, Query: current, StopReason: hop.Cancelled})
			return c.finish(ctx, r, false), nil
		}

		d, err := c.decider.NextHop(ctx, current, r.hits, idx)
		if isCancel(err) || ctx.Err() != nil {
			r.trail = append(r.trail, hop.Record{Index: idx, Query: current, StopReason: hop.Cancelled})
			return c.finish(ctx, r, false), nil
		}
		if err != nil {
			log.Warn("next hop decision failed", zap.Int("hop", idx), zap.Error(err))
		}
		rec := hop.Record{Index: idx, Query: current, Reason: d.Reason}

		if !d.Need || d.Query == "" {
			rec.StopReason = hop.LLMStop
			r.trail = append(r.trail, rec)
			return c.finish(ctx, r, false), nil
		}
		rec.Query = d.Query
		if r.used[d.Query] {
			rec.StopReason = hop.RepeatQuery
			r.trail = append(r.trail, rec)
			return c.finish(ctx, r, false), nil
		}
		r.used[d.Query] = true

		rec.SearchMode = mode
		hits, err := c.retriever.Retrieve(ctx, d.Query, relaxed, c.cfg.TopK)
		if err != nil {
			if isCancel(err) {
				rec.StopReason = hop.Cancelled
				r.trail = append(r.trail, rec)
				return c.finish(ctx, r, false), nil
			}
			return Result{}, err
		}
		rec.HitCount = r.add(hits, idx)
		r.trail = append(r.trail, rec)

		if rec.HitCount == 0 {
			r.trail.Last().StopReason = hop.NoNewDocsAdded
			return c.finish(ctx, r, false), nil
		}
		if len(r.hits) >= c.cfg.MinDocs {
			r.trail.Last().StopReason = hop.EnoughDocs
			return c.finish(ctx, r, false), nil
		}
		current = d.Query
	}

	r.trail.Last().StopReason = hop.MaxHops
	return c.finish(ctx, r, false), nil
}

func (c *Controller) recover(ctx context.Context, r *run, query string, tags tag.Set) (Result, error) {
	if c.recovery == nil {
		return c.finish(ctx, r, false), nil
	}
	idx := len(r.trail) + 1
	hits, err := c.recovery.Recover(ctx, query, tags)
	if err != nil {
		if isCancel(err) {
			r.trail = append(r.trail, hop.Record{Index: idx, Query: query, SearchMode: modeRecovery, StopReason: hop.Cancelled})
			return c.finish(ctx, r, true), nil
		}
		return Result{}, err
	}
	n := r.add(hits, idx)
	r.trail = append(r.trail, hop.Record{
		Index:      idx,
		Query:      query,
		HitCount:   n,
		SearchMode: modeRecovery,
		StopReason: hop.RecoveryFinished,
	})
	return c.finish(ctx, r, true), nil
}

func (c *Controller) finish(ctx context.Context, r *run, recovered bool) Result {
	log := logger.FromContext(ctx)
	for _, rec := range r.trail {
		log.Info("hop",
			zap.Int("hop", rec.Index),
			zap.String("query", rec.Query),
			zap.Int("hits", rec.HitCount),
			zap.String("mode", rec.SearchMode),
			zap.String("stop_reason", string(rec.StopReason)),
		)
	}
	if final := r.trail.Final(); final != hop.None {
		metrics.HopStopsTotal.WithLabelValues(string(final)).Inc()
	}
	metrics.HopsPerRun.Observe(float64(len(r.trail)))
	return Result{Hits: r.hits, Trail: r.trail, Recovered: recovered}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ensure the reasoning service satisfies Decider.
var _ Decider = (*reasoning.Service)(nil)
