package sra

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/seqtools/srafetch/toolexec"
)

// fakeTool is an Invoker with canned behavior.
type fakeTool struct {
	name  string
	calls [][]string
	run   func(args []string) (toolexec.Result, error)
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Run(ctx context.Context, timeout time.Duration, args ...string) (toolexec.Result, error) {
	f.calls = append(f.calls, args)
	if f.run == nil {
		return toolexec.Result{}, nil
	}
	return f.run(args)
}

const runInfoCSV = `Run,ReleaseDate,spots,bases,LibraryLayout,Experiment
SRR8595490,2019-02-20,1000,200000,PAIRED,SRX5395107
SRR8595491,2019-02-20,1200,240000,SINGLE,SRX5395107

`

func TestRunsResolvesExperiment(t *testing.T) {
	efetch := &fakeTool{name: "efetch", run: func(args []string) (toolexec.Result, error) {
		return toolexec.Result{Stdout: runInfoCSV}, nil
	}}
	r := NewResolver(efetch, nil, 0)
	runs, err := r.Runs(context.Background(), "SRX5395107")
	assert.NoError(t, err)
	assert.EQ(t, []Accession{"SRR8595490", "SRR8595491"}, runs)
	assert.EQ(t, 1, len(efetch.calls))
	assert.EQ(t, []string{"-db", "sra", "-id", "SRX5395107", "-format", "runinfo"}, efetch.calls[0])
}

func TestRunsPassesThroughRunAccession(t *testing.T) {
	efetch := &fakeTool{name: "efetch"}
	r := NewResolver(efetch, nil, 0)
	runs, err := r.Runs(context.Background(), "SRR8595490")
	assert.NoError(t, err)
	assert.EQ(t, []Accession{"SRR8595490"}, runs)
	// No metadata query for a run-level accession.
	assert.EQ(t, 0, len(efetch.calls))
}

func TestRunsNotFound(t *testing.T) {
	efetch := &fakeTool{name: "efetch", run: func(args []string) (toolexec.Result, error) {
		// Header-only report: the archive knows nothing about this accession.
		return toolexec.Result{Stdout: "Run,ReleaseDate,LibraryLayout\n\n"}, nil
	}}
	r := NewResolver(efetch, nil, 0)
	_, err := r.Runs(context.Background(), "SRX123")
	expect.True(t, err != nil)
	expect.True(t, errors.Is(errors.NotExist, err))
}

func TestRunsServiceUnavailable(t *testing.T) {
	efetch := &fakeTool{name: "efetch", run: func(args []string) (toolexec.Result, error) {
		return toolexec.Result{ExitCode: 1}, errors.E("efetch: connection refused")
	}}
	r := NewResolver(efetch, nil, 0)
	_, err := r.Runs(context.Background(), "SRX123")
	expect.True(t, err != nil)
	// Distinct from NotFound so callers can decide to retry.
	expect.True(t, errors.Is(errors.Unavailable, err))
	expect.False(t, errors.Is(errors.NotExist, err))
}

func TestLayoutFromRunInfo(t *testing.T) {
	efetch := &fakeTool{name: "efetch", run: func(args []string) (toolexec.Result, error) {
		return toolexec.Result{Stdout: runInfoCSV}, nil
	}}
	r := NewResolver(efetch, nil, 0)
	layout, err := r.Layout(context.Background(), "SRR8595490")
	assert.NoError(t, err)
	assert.EQ(t, LayoutPaired, layout)
	assert.EQ(t, "PAIRED", layout.String())
}

func TestLayoutFallsBackToSraStat(t *testing.T) {
	efetch := &fakeTool{name: "efetch", run: func(args []string) (toolexec.Result, error) {
		return toolexec.Result{}, errors.E("efetch: connection refused")
	}}
	sraStat := &fakeTool{name: "sra-stat", run: func(args []string) (toolexec.Result, error) {
		return toolexec.Result{Stdout: `<Run accession="SRR8595490"><Statistics nreads="2" nspots="1000"/></Run>`}, nil
	}}
	r := NewResolver(efetch, sraStat, 0)
	layout, err := r.Layout(context.Background(), "SRR8595490")
	assert.NoError(t, err)
	assert.EQ(t, LayoutPaired, layout)
	assert.EQ(t, 1, len(sraStat.calls))
}

func TestLayoutBothSourcesFail(t *testing.T) {
	efetch := &fakeTool{name: "efetch", run: func(args []string) (toolexec.Result, error) {
		return toolexec.Result{}, errors.E("efetch: connection refused")
	}}
	sraStat := &fakeTool{name: "sra-stat", run: func(args []string) (toolexec.Result, error) {
		return toolexec.Result{}, errors.E("sra-stat: no such archive")
	}}
	r := NewResolver(efetch, sraStat, 0)
	layout, err := r.Layout(context.Background(), "SRR8595490")
	expect.True(t, err != nil)
	expect.EQ(t, LayoutUnknown, layout)
}

func TestParseRunInfoMalformed(t *testing.T) {
	_, err := parseRunInfo(strings.NewReader("spots,bases\n1,2\n"))
	expect.True(t, err != nil)
}

func TestParseRunInfoEmpty(t *testing.T) {
	infos, err := parseRunInfo(strings.NewReader(""))
	assert.NoError(t, err)
	assert.EQ(t, 0, len(infos))
}
