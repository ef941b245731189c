package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/seqtools/srafetch/geo"
	"github.com/seqtools/srafetch/sra"
	"v.io/x/lib/cmdline"
)

type geoFlags struct {
	output          string
	filterPattern   string
	filterColumn    string
	columns         string
	renameColumn    string
	noSupplementary bool
}

func registerGeoFlags(cmd *cmdline.Command) *geoFlags {
	f := &geoFlags{}
	cmd.Flags.StringVar(&f.output, "output", "./geo_analysis",
		"Directory receiving one subdirectory of artifacts per series")
	cmd.Flags.StringVar(&f.output, "o", "./geo_analysis", "Shorthand for -output")
	cmd.Flags.StringVar(&f.filterPattern, "filter-pattern", "",
		"Regular expression selecting samples; matches write an extra filtered metadata table")
	cmd.Flags.StringVar(&f.filterColumn, "filter-column", "title",
		"Sample metadata column the filter pattern applies to")
	cmd.Flags.StringVar(&f.columns, "columns", "",
		"Comma-separated metadata columns to export; empty exports the defaults")
	cmd.Flags.StringVar(&f.renameColumn, "rename-column", "source_name_ch1",
		"Metadata column keying the renamed supplementary-file copies")
	cmd.Flags.BoolVar(&f.noSupplementary, "no-supplementary", false,
		"Skip downloading the supplementary files")
	return f
}

func (f *geoFlags) options() geo.Options {
	opts := geo.Options{
		OutputDir:             f.output,
		DownloadSupplementary: !f.noSupplementary,
		FilterPattern:         f.filterPattern,
		FilterColumn:          f.filterColumn,
		RenameColumn:          f.renameColumn,
	}
	if f.columns != "" {
		for _, c := range strings.Split(f.columns, ",") {
			if c = strings.TrimSpace(c); c != "" {
				opts.Columns = append(opts.Columns, c)
			}
		}
	}
	return opts
}

func newCmdGeoFetch() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "geo-fetch",
		Short: "Fetch a GEO series' metadata and supplementary files",
		Long: `
Downloads the family file of a GEO series (GSE accession), exports its sample
metadata and annotation tables as TSV, writes a JSON dataset summary, and
optionally downloads the supplementary files and copies them under names
derived from a sample metadata column.`,
		ArgsName: "series-accession",
	}
	flags := registerGeoFlags(cmd)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("geo-fetch takes one series accession argument, but got %v", argv)
		}
		return geo.ProcessSeries(vcontext.Background(), argv[0], flags.options())
	})
	return cmd
}

func newCmdGeoBatch() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "geo-batch",
		Short: "Process every GEO series in a list file",
		Long: `
Reads one GSE accession per line (blank lines and #-comments are skipped)
and processes each series with bounded concurrency. One series' failure
never stops the rest; a report in input order is printed at the end.`,
		ArgsName: "list-file",
	}
	flags := registerGeoFlags(cmd)
	jobs := cmd.Flags.Int("jobs", sra.DefaultConfig.Jobs,
		"Number of series processed simultaneously")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("geo-batch takes one list-file argument, but got %v", argv)
		}
		f, err := os.Open(argv[0])
		if err != nil {
			return errors.E(errors.Invalid, fmt.Sprintf("series list %s", argv[0]), err)
		}
		accs, err := sra.ReadAccessionList(f)
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
		if err != nil {
			return err
		}
		opts := flags.options()
		cfg := sra.DefaultConfig
		cfg.Jobs = *jobs
		run := func(ctx context.Context, acc sra.Accession) sra.Outcome {
			out := sra.Outcome{Accession: acc, StartedAt: time.Now()}
			if err := geo.ProcessSeries(ctx, string(acc), opts); err != nil {
				out.Status = sra.Failed
				out.Err = err
			} else {
				out.Status = sra.Succeeded
			}
			out.FinishedAt = time.Now()
			return out
		}
		result := sra.NewBatch(cfg, run).Run(vcontext.Background(), accs)
		if err := result.WriteReport(env.Stdout); err != nil {
			return err
		}
		if !result.Ok() {
			return fmt.Errorf("%d of %d series failed", result.Failed, result.Total)
		}
		return nil
	})
	return cmd
}
