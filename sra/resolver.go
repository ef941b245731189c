package sra

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/seqtools/srafetch/toolexec"
)

// Invoker runs one external tool invocation to completion. *toolexec.Tool
// implements it; tests substitute fakes.
type Invoker interface {
	Name() string
	Run(ctx context.Context, timeout time.Duration, args ...string) (toolexec.Result, error)
}

// Layout is the read layout of a sequencing run.
type Layout int

const (
	LayoutUnknown Layout = iota
	LayoutSingle
	LayoutPaired
)

func (l Layout) String() string {
	switch l {
	case LayoutSingle:
		return "SINGLE"
	case LayoutPaired:
		return "PAIRED"
	}
	return "UNKNOWN"
}

// Resolver answers metadata queries against the archive: it expands
// experiment-, sample-, study- and project-level accessions into run
// accessions, and reports a run's read layout. Queries go through the Entrez
// runinfo report; layout detection falls back to inspecting the local
// archive with sra-stat when the metadata service cannot be reached. There
// is no caching; every call is a fresh, idempotent query.
type Resolver struct {
	efetch  Invoker
	sraStat Invoker // optional layout fallback; may be nil
	timeout time.Duration
}

// NewResolver returns a Resolver using efetch for metadata queries and
// sraStat (optional, may be nil) as the layout fallback.
func NewResolver(efetch, sraStat Invoker, timeout time.Duration) *Resolver {
	return &Resolver{efetch: efetch, sraStat: sraStat, timeout: timeout}
}

type runInfo struct {
	run    Accession
	layout Layout
}

// Runs resolves acc to its run accessions. A run-level accession resolves to
// itself without a query. The returned error has kind NotExist when the
// archive knows no runs for acc, and kind Unavailable when the metadata
// service itself failed (the latter is safe to retry).
func (r *Resolver) Runs(ctx context.Context, acc Accession) ([]Accession, error) {
	if acc.IsRun() {
		return []Accession{acc}, nil
	}
	infos, err := r.query(ctx, acc)
	if err != nil {
		return nil, err
	}
	runs := make([]Accession, 0, len(infos))
	for _, ri := range infos {
		runs = append(runs, ri.run)
	}
	if len(runs) == 0 {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("no runs found for %s", acc))
	}
	log.Debug.Printf("%s: resolved to %d runs", acc, len(runs))
	return runs, nil
}

// Layout reports the read layout of acc. The primary source is the runinfo
// report; if that query fails and a fallback tool is configured, the layout
// is derived from the local archive statistics instead.
func (r *Resolver) Layout(ctx context.Context, acc Accession) (Layout, error) {
	infos, err := r.query(ctx, acc)
	if err == nil {
		for _, ri := range infos {
			if ri.run == acc || !acc.IsRun() {
				if ri.layout != LayoutUnknown {
					return ri.layout, nil
				}
			}
		}
		err = errors.E(errors.NotExist, fmt.Sprintf("no layout recorded for %s", acc))
	}
	if r.sraStat == nil {
		return LayoutUnknown, err
	}
	log.Printf("%s: runinfo layout query failed (%v), falling back to sra-stat", acc, err)
	return r.statLayout(ctx, acc)
}

func (r *Resolver) query(ctx context.Context, acc Accession) ([]runInfo, error) {
	res, err := r.efetch.Run(ctx, r.timeout, "-db", "sra", "-id", string(acc), "-format", "runinfo")
	if err != nil {
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("runinfo query for %s failed", acc), err)
	}
	infos, err := parseRunInfo(strings.NewReader(res.Stdout))
	if err != nil {
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("malformed runinfo report for %s", acc), err)
	}
	return infos, nil
}

// parseRunInfo parses the CSV runinfo report. Only the Run and LibraryLayout
// columns are consumed; rows with an empty Run field (the report sometimes
// ends with one) are dropped.
func parseRunInfo(r io.Reader) ([]runInfo, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	runCol, layoutCol := -1, -1
	for i, name := range header {
		switch name {
		case "Run":
			runCol = i
		case "LibraryLayout":
			layoutCol = i
		}
	}
	if runCol < 0 {
		return nil, fmt.Errorf("runinfo report has no Run column: %v", header)
	}
	var infos []runInfo
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if runCol >= len(rec) || rec[runCol] == "" {
			continue
		}
		ri := runInfo{run: Accession(rec[runCol])}
		if layoutCol >= 0 && layoutCol < len(rec) {
			switch strings.ToUpper(rec[layoutCol]) {
			case "SINGLE":
				ri.layout = LayoutSingle
			case "PAIRED":
				ri.layout = LayoutPaired
			}
		}
		infos = append(infos, ri)
	}
	return infos, nil
}

var nreadsRE = regexp.MustCompile(`nreads="([0-9]+)"`)

// statLayout derives the layout from sra-stat's quick XML report: two or
// more reads per spot means paired-end.
func (r *Resolver) statLayout(ctx context.Context, acc Accession) (Layout, error) {
	res, err := r.sraStat.Run(ctx, r.timeout, "--quick", "--xml", string(acc))
	if err != nil {
		return LayoutUnknown, errors.E(errors.Unavailable, fmt.Sprintf("sra-stat layout fallback for %s failed", acc), err)
	}
	max := 0
	for _, m := range nreadsRE.FindAllStringSubmatch(res.Stdout, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > max {
			max = n
		}
	}
	switch {
	case max >= 2:
		return LayoutPaired, nil
	case max == 1:
		return LayoutSingle, nil
	}
	return LayoutUnknown, errors.E(errors.NotExist, fmt.Sprintf("sra-stat reported no reads for %s", acc))
}
