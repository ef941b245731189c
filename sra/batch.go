package sra

import (
	"context"
	"time"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// Batch fans a per-accession task out over a list of accessions with bounded
// concurrency. One item's failure never prevents the remaining items from
// running; every input accession produces exactly one Outcome.
type Batch struct {
	cfg Config
	run func(ctx context.Context, acc Accession) Outcome
}

// NewBatch returns a Batch dispatching run for each accession. For the
// standard pipeline pass (*Runner).Run; other per-item tasks (e.g. GEO
// series processing) plug in the same way.
func NewBatch(cfg Config, run func(ctx context.Context, acc Accession) Outcome) *Batch {
	return &Batch{cfg: cfg, run: run}
}

// Run processes accs and returns the aggregated result. Outcomes land in an
// index-addressed slice, one slot per input, so the report keeps input order
// no matter which order items complete in; the slots are also the only
// state shared between workers. Malformed accessions are rejected without
// dispatch but still occupy their slot as Failed. Cancelling ctx stops
// dispatch of new items (they finish as Skipped) without aborting items
// already in flight.
func (b *Batch) Run(ctx context.Context, accs []Accession) BatchResult {
	start := time.Now()
	jobs := b.cfg.Jobs
	if jobs <= 0 {
		jobs = 1
	}
	log.Printf("batch: %d accessions, %d parallel jobs", len(accs), jobs)
	outcomes := make([]Outcome, len(accs))
	// The worker func never returns an error: returning one would make
	// traverse stop scheduling the remaining items, which is exactly the
	// abort-on-first-failure behavior the batch must not have.
	_ = traverse.Limit(jobs).Each(len(accs), func(i int) error {
		acc := accs[i]
		now := time.Now()
		if _, err := ParseAccession(string(acc)); err != nil {
			outcomes[i] = Outcome{Accession: acc, Status: Failed, Err: err, StartedAt: now, FinishedAt: now}
			log.Error.Printf("%s: rejected before dispatch: %v", acc, err)
			return nil
		}
		if ctx.Err() != nil {
			outcomes[i] = Outcome{Accession: acc, Status: Skipped, StartedAt: now, FinishedAt: now}
			log.Printf("%s: skipped, batch cancelled", acc)
			return nil
		}
		outcomes[i] = b.run(ctx, acc)
		return nil
	})
	result := Aggregate(outcomes)
	result.Elapsed = time.Since(start)
	log.Printf("batch: finished in %v: %d ok, %d with warnings, %d failed, %d skipped",
		result.Elapsed, result.Succeeded, result.Warned, result.Failed, result.Skipped)
	return result
}
