package sra

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/grailbio/base/tsv"
)

// BatchResult is the aggregated outcome of one batch invocation. Items keep
// the order of the input list. The result is immutable once the batch
// returns it.
type BatchResult struct {
	Items     []Outcome
	Total     int
	Succeeded int
	Warned    int
	Failed    int
	Skipped   int
	Elapsed   time.Duration
}

// Ok reports whether every dispatched item finished without a fatal error.
func (r *BatchResult) Ok() bool { return r.Failed == 0 }

// Aggregate folds per-item outcomes into a BatchResult. It never fails; an
// empty input yields a result with all counts zero.
func Aggregate(items []Outcome) BatchResult {
	r := BatchResult{Items: items, Total: len(items)}
	for _, o := range items {
		switch o.Status {
		case Succeeded:
			r.Succeeded++
		case SucceededWithWarning:
			r.Warned++
		case Failed:
			r.Failed++
		case Skipped:
			r.Skipped++
		}
	}
	return r
}

// WriteReport renders the result as a TSV table keyed by accession in input
// order, followed by the tally.
func (r *BatchResult) WriteReport(w io.Writer) error {
	tw := tsv.NewWriter(w)
	tw.WriteString("ACCESSION\tSTATUS\tRUNS\tELAPSED\tDETAIL")
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, o := range r.Items {
		tw.WriteString(string(o.Accession))
		tw.WriteString(o.Status.String())
		tw.WriteString(runList(o))
		tw.WriteString(o.Elapsed().Round(time.Millisecond).String())
		tw.WriteString(detail(o))
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "total %d: %d ok, %d with warnings, %d failed, %d skipped (%v)\n",
		r.Total, r.Succeeded, r.Warned, r.Failed, r.Skipped, r.Elapsed.Round(time.Millisecond))
	return err
}

func runList(o Outcome) string {
	if len(o.Runs) == 0 {
		return "-"
	}
	runs := make([]string, len(o.Runs))
	for i, a := range o.Runs {
		runs[i] = string(a)
	}
	return strings.Join(runs, ",")
}

func detail(o Outcome) string {
	if o.Err != nil {
		return o.Err.Error()
	}
	if len(o.Warnings) > 0 {
		return strings.Join(o.Warnings, "; ")
	}
	return "-"
}
