package sra

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"
)

// Status is the lifecycle state of one work item. Transitions are
// Pending -> Running -> {Succeeded, SucceededWithWarning, Failed}; Skipped
// is terminal for items never dispatched (batch cancelled first).
type Status int

const (
	Pending Status = iota
	Running
	Succeeded
	SucceededWithWarning
	Failed
	Skipped
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "ok"
	case SucceededWithWarning:
		return "ok-with-warning"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Outcome records what happened to one accession.
type Outcome struct {
	Accession  Accession
	Runs       []Accession // resolved child runs, if resolution happened
	Status     Status
	Err        error
	Warnings   []string
	Outputs    []string // final fastq.gz paths
	StartedAt  time.Time
	FinishedAt time.Time
}

// Elapsed is the wall time the item spent running.
func (o Outcome) Elapsed() time.Duration { return o.FinishedAt.Sub(o.StartedAt) }

// Tools bundles the external programs the pipeline drives. Compress may be
// nil, in which case output files are gzipped in-process instead of via
// pigz.
type Tools struct {
	Fetch    Invoker // prefetch
	Validate Invoker // vdb-validate
	Convert  Invoker // fasterq-dump
	Compress Invoker // pigz (optional)
}

// Runner executes the download -> validate -> convert -> compress pipeline
// for one accession at a time. A Runner is safe for concurrent use; all
// mutable state lives in the per-call Outcome.
type Runner struct {
	cfg      Config
	tools    Tools
	resolver *Resolver // may be nil; then only run-level accessions work
}

// NewRunner returns a Runner over the given tools. resolver may be nil if
// only run-level accessions will be processed.
func NewRunner(cfg Config, tools Tools, resolver *Resolver) *Runner {
	return &Runner{cfg: cfg, tools: tools, resolver: resolver}
}

// Run executes the full pipeline for acc and never panics; every failure
// mode is folded into the returned Outcome. A validation failure is
// downgraded to a warning unless Config.StrictValidate is set; all other
// step failures are fatal for this accession only.
func (r *Runner) Run(ctx context.Context, acc Accession) Outcome {
	out := Outcome{Accession: acc, Status: Running, StartedAt: time.Now()}
	err := r.process(ctx, acc, &out)
	out.FinishedAt = time.Now()
	switch {
	case err != nil:
		out.Status = Failed
		out.Err = err
		log.Error.Printf("%s: %v", acc, err)
	case len(out.Warnings) > 0:
		out.Status = SucceededWithWarning
		log.Printf("%s: done with %d warning(s) in %v", acc, len(out.Warnings), out.Elapsed())
	default:
		out.Status = Succeeded
		log.Printf("%s: done in %v", acc, out.Elapsed())
	}
	return out
}

func (r *Runner) process(ctx context.Context, acc Accession, out *Outcome) error {
	if _, err := ParseAccession(string(acc)); err != nil {
		return err
	}
	runs := []Accession{acc}
	if !acc.IsRun() {
		if r.resolver == nil {
			return errors.E(errors.Precondition,
				fmt.Sprintf("%s is not a run accession and no metadata resolver is available", acc))
		}
		var err error
		if runs, err = r.resolver.Runs(ctx, acc); err != nil {
			return err
		}
		out.Runs = runs
	}
	if err := os.MkdirAll(r.cfg.OutputDir, 0777); err != nil {
		return errors.E(fmt.Sprintf("creating output directory %s", r.cfg.OutputDir), err)
	}
	for _, run := range runs {
		if err := r.processRun(ctx, run, out); err != nil {
			return err
		}
	}
	return nil
}

// archivePath is where prefetch leaves the downloaded archive for run.
func (r *Runner) archivePath(run Accession) string {
	return filepath.Join(r.cfg.OutputDir, "sra", string(run), string(run)+".sra")
}

func (r *Runner) processRun(ctx context.Context, run Accession, out *Outcome) error {
	if err := r.Download(ctx, run); err != nil {
		return err
	}
	if err := r.Validate(ctx, run); err != nil {
		if r.cfg.StrictValidate {
			return err
		}
		// Lenient mode: record the warning and still attempt conversion.
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %v", run, err))
		log.Printf("%s: integrity check failed, continuing to conversion: %v", run, err)
	}
	outputs, err := r.Convert(ctx, run)
	if err != nil {
		return err
	}
	out.Outputs = append(out.Outputs, outputs...)
	return nil
}

// Download fetches the archive for run into <output>/sra/<run>/. prefetch
// skips archives that are already complete, so re-running is safe.
func (r *Runner) Download(ctx context.Context, run Accession) error {
	sraDir := filepath.Join(r.cfg.OutputDir, "sra")
	if err := os.MkdirAll(sraDir, 0777); err != nil {
		return errors.E(fmt.Sprintf("creating %s", sraDir), err)
	}
	log.Printf("%s: downloading", run)
	if _, err := r.tools.Fetch.Run(ctx, r.cfg.ToolTimeout,
		string(run), "--output-directory", sraDir); err != nil {
		return errors.E(fmt.Sprintf("download of %s failed", run), err)
	}
	return nil
}

// Validate runs the toolkit integrity check over the downloaded archive.
// The error is kind Integrity on a failed check; leniency is the caller's
// decision.
func (r *Runner) Validate(ctx context.Context, run Accession) error {
	log.Printf("%s: validating", run)
	if _, err := r.tools.Validate.Run(ctx, r.cfg.ToolTimeout, r.archivePath(run)); err != nil {
		return errors.E(errors.Integrity, fmt.Sprintf("validation of %s failed", run), err)
	}
	return nil
}

// convertOutputNames lists the exact file names fasterq-dump can leave for
// run: <run>.fastq for unmated reads, <run>_1/_2.fastq for a pair, _3/_4
// for technical reads. Run accessions vary in digit count, so a glob like
// <run>*.fastq would also match a different run whose accession extends
// this one; only these names belong to run.
func convertOutputNames(run Accession) []string {
	return []string{
		string(run) + ".fastq",
		string(run) + "_1.fastq",
		string(run) + "_2.fastq",
		string(run) + "_3.fastq",
		string(run) + "_4.fastq",
	}
}

// Convert turns the downloaded archive into FASTQ and compresses the result.
// A paired-end run yields <run>_1.fastq.gz and <run>_2.fastq.gz, a
// single-end run yields <run>.fastq.gz. Only files named after this run are
// touched; pre-existing unrelated files in the output directory are left
// alone.
func (r *Runner) Convert(ctx context.Context, run Accession) ([]string, error) {
	log.Printf("%s: converting", run)
	if _, err := r.tools.Convert.Run(ctx, r.cfg.ToolTimeout,
		r.archivePath(run),
		"--split-files",
		"--threads", strconv.Itoa(r.cfg.Threads),
		"--outdir", r.cfg.OutputDir); err != nil {
		return nil, errors.E(fmt.Sprintf("conversion of %s failed", run), err)
	}
	var fastqs []string
	for _, name := range convertOutputNames(run) {
		path := filepath.Join(r.cfg.OutputDir, name)
		if _, err := os.Stat(path); err == nil {
			fastqs = append(fastqs, path)
		}
	}
	if len(fastqs) == 0 {
		return nil, errors.E(fmt.Sprintf("conversion of %s produced no output files", run))
	}
	if err := r.compress(ctx, fastqs); err != nil {
		return nil, err
	}
	outputs := make([]string, len(fastqs))
	for i, f := range fastqs {
		outputs[i] = f + ".gz"
	}
	return outputs, nil
}

// compress gzips paths, via pigz when available, otherwise in-process.
func (r *Runner) compress(ctx context.Context, paths []string) error {
	if r.tools.Compress != nil {
		args := append([]string{"--force", "--processes", strconv.Itoa(r.cfg.Threads)}, paths...)
		if _, err := r.tools.Compress.Run(ctx, r.cfg.ToolTimeout, args...); err != nil {
			return errors.E(fmt.Sprintf("compression of %s failed", strings.Join(paths, ", ")), err)
		}
		return nil
	}
	for _, path := range paths {
		if err := gzipFile(path); err != nil {
			return errors.E(fmt.Sprintf("compression of %s failed", path), err)
		}
	}
	return nil
}

// gzipFile compresses path to path.gz and removes the original, matching
// pigz's default behavior.
func gzipFile(path string) (err error) {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	out, err := os.Create(path + ".gz")
	if err != nil {
		_ = in.Close()
		return err
	}
	gz := gzip.NewWriter(out)
	_, err = io.Copy(gz, in)
	e := errors.Once{}
	e.Set(err)
	e.Set(gz.Close())
	e.Set(out.Close())
	e.Set(in.Close())
	if err := e.Err(); err != nil {
		return err
	}
	return os.Remove(path)
}
