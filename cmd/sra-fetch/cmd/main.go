package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/seqtools/srafetch/sra"
	"github.com/seqtools/srafetch/toolexec"
	"v.io/x/lib/cmdline"
)

// pipelineFlags are the options shared by the SRA pipeline subcommands.
type pipelineFlags struct {
	threads int
	output  string
	jobs    int
	strict  bool
	timeout time.Duration
}

func registerPipelineFlags(cmd *cmdline.Command) *pipelineFlags {
	f := &pipelineFlags{}
	cmd.Flags.IntVar(&f.threads, "threads", sra.DefaultConfig.Threads,
		"Thread count hint passed to the conversion and compression tools")
	cmd.Flags.IntVar(&f.threads, "t", sra.DefaultConfig.Threads, "Shorthand for -threads")
	cmd.Flags.StringVar(&f.output, "output", sra.DefaultConfig.OutputDir,
		"Directory receiving the fastq.gz files. Created if absent")
	cmd.Flags.StringVar(&f.output, "o", sra.DefaultConfig.OutputDir, "Shorthand for -output")
	cmd.Flags.IntVar(&f.jobs, "jobs", sra.DefaultConfig.Jobs,
		"Number of accessions processed simultaneously in batch commands")
	cmd.Flags.BoolVar(&f.strict, "strict-validate", false,
		"Treat an integrity-check failure as fatal for the accession instead of continuing to conversion with a warning")
	cmd.Flags.DurationVar(&f.timeout, "tool-timeout", 0,
		"Upper bound on each external tool invocation; a hung tool counts as a failure. 0 disables the limit")
	return f
}

func (f *pipelineFlags) config() sra.Config {
	cfg := sra.DefaultConfig
	cfg.Threads = f.threads
	cfg.OutputDir = f.output
	cfg.Jobs = f.jobs
	cfg.StrictValidate = f.strict
	cfg.ToolTimeout = f.timeout
	return cfg
}

// loadTools resolves the SRA toolkit binaries the pipeline needs. pigz is
// optional; without it, compression happens in-process.
func loadTools() (sra.Tools, error) {
	fetch, err := toolexec.Lookup("prefetch")
	if err != nil {
		return sra.Tools{}, err
	}
	validate, err := toolexec.Lookup("vdb-validate")
	if err != nil {
		return sra.Tools{}, err
	}
	convert, err := toolexec.Lookup("fasterq-dump")
	if err != nil {
		return sra.Tools{}, err
	}
	tools := sra.Tools{Fetch: fetch, Validate: validate, Convert: convert}
	if pigz, err := toolexec.Lookup("pigz"); err == nil {
		tools.Compress = pigz
	} else {
		log.Printf("pigz not found; output files will be compressed in-process")
	}
	return tools, nil
}

// loadResolver resolves the metadata-query tools. efetch is required;
// sra-stat is the optional layout fallback.
func loadResolver(timeout time.Duration) (*sra.Resolver, error) {
	efetch, err := toolexec.Lookup("efetch")
	if err != nil {
		return nil, err
	}
	var stat sra.Invoker
	if s, err := toolexec.Lookup("sra-stat"); err == nil {
		stat = s
	}
	return sra.NewResolver(efetch, stat, timeout), nil
}

func newCmdInstall() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "install",
		Short: "Verify the external tools sra-fetch depends on",
		Long: `
Checks that the SRA toolkit, Entrez Direct and pigz are installed and reports
where each was found. Exits non-zero when a required tool is missing.

The SRA toolkit (prefetch, fasterq-dump, vdb-validate, sra-stat) is available
via "conda install -c bioconda sra-tools" or from
https://github.com/ncbi/sra-tools. Entrez Direct (efetch) is available via
"conda install -c bioconda entrez-direct". pigz is optional and comes from
your system package manager.`,
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		required := []string{"prefetch", "fasterq-dump", "vdb-validate", "efetch"}
		optional := []string{"sra-stat", "pigz"}
		var missing []string
		for _, name := range required {
			tool, err := toolexec.Lookup(name)
			if err != nil {
				fmt.Fprintf(env.Stdout, "%-15s MISSING (required)\n", name)
				missing = append(missing, name)
				continue
			}
			fmt.Fprintf(env.Stdout, "%-15s %s\n", name, tool.Path())
		}
		for _, name := range optional {
			tool, err := toolexec.Lookup(name)
			if err != nil {
				fmt.Fprintf(env.Stdout, "%-15s missing (optional)\n", name)
				continue
			}
			fmt.Fprintf(env.Stdout, "%-15s %s\n", name, tool.Path())
		}
		if len(missing) > 0 {
			return toolexec.Check(missing...)
		}
		return nil
	})
	return cmd
}

func newCmdDownload() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "download",
		Short:    "Download one accession and convert it to fastq.gz",
		ArgsName: "accession",
	}
	flags := registerPipelineFlags(cmd)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("download takes one accession argument, but got %v", argv)
		}
		acc, err := sra.ParseAccession(argv[0])
		if err != nil {
			return err
		}
		cfg := flags.config()
		tools, err := loadTools()
		if err != nil {
			return err
		}
		var resolver *sra.Resolver
		if !acc.IsRun() {
			// Experiment-, sample- and study-level accessions need the
			// metadata service to enumerate their runs.
			if resolver, err = loadResolver(cfg.ToolTimeout); err != nil {
				return err
			}
		}
		out := sra.NewRunner(cfg, tools, resolver).Run(vcontext.Background(), acc)
		if out.Status == sra.Failed {
			return out.Err
		}
		for _, p := range out.Outputs {
			fmt.Fprintln(env.Stdout, p)
		}
		return nil
	})
	return cmd
}

func newCmdDownloadList() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "download-list",
		Short: "Download every accession in a list file",
		Long: `
Reads one accession per line (blank lines and #-comments are skipped) and
runs the full download pipeline for each with bounded concurrency. One
accession's failure never stops the rest; a report keyed by accession in
input order is printed at the end. The exit status is non-zero if any
accession failed.`,
		ArgsName: "list-file",
	}
	flags := registerPipelineFlags(cmd)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("download-list takes one list-file argument, but got %v", argv)
		}
		f, err := os.Open(argv[0])
		if err != nil {
			return errors.E(errors.Invalid, fmt.Sprintf("accession list %s", argv[0]), err)
		}
		accs, err := sra.ReadAccessionList(f)
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
		if err != nil {
			return err
		}
		cfg := flags.config()
		tools, err := loadTools()
		if err != nil {
			return err
		}
		resolver, err := loadResolver(cfg.ToolTimeout)
		if err != nil {
			// Run-level accessions still work; others fail individually.
			log.Printf("metadata resolver unavailable (%v); non-run accessions will fail", err)
			resolver = nil
		}
		runner := sra.NewRunner(cfg, tools, resolver)
		result := sra.NewBatch(cfg, runner.Run).Run(vcontext.Background(), accs)
		if err := result.WriteReport(env.Stdout); err != nil {
			return err
		}
		if !result.Ok() {
			return fmt.Errorf("%d of %d accessions failed", result.Failed, result.Total)
		}
		return nil
	})
	return cmd
}

func newCmdConvert() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "convert",
		Short:    "Convert an already-downloaded archive to fastq.gz",
		ArgsName: "run-accession",
	}
	flags := registerPipelineFlags(cmd)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("convert takes one run accession argument, but got %v", argv)
		}
		acc, err := sra.ParseAccession(argv[0])
		if err != nil {
			return err
		}
		if !acc.IsRun() {
			return errors.E(errors.Invalid, fmt.Sprintf("convert needs a run accession, not %s", acc))
		}
		tools, err := loadTools()
		if err != nil {
			return err
		}
		outputs, err := sra.NewRunner(flags.config(), tools, nil).Convert(vcontext.Background(), acc)
		if err != nil {
			return err
		}
		for _, p := range outputs {
			fmt.Fprintln(env.Stdout, p)
		}
		return nil
	})
	return cmd
}

func newCmdValidate() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "validate",
		Short:    "Run the integrity check over a downloaded archive",
		ArgsName: "run-accession",
	}
	flags := registerPipelineFlags(cmd)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("validate takes one run accession argument, but got %v", argv)
		}
		acc, err := sra.ParseAccession(argv[0])
		if err != nil {
			return err
		}
		tools, err := loadTools()
		if err != nil {
			return err
		}
		if err := sra.NewRunner(flags.config(), tools, nil).Validate(vcontext.Background(), acc); err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "%s: ok\n", acc)
		return nil
	})
	return cmd
}

func newCmdCheckLayout() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "check-layout",
		Short:    "Report whether a run is single- or paired-end",
		ArgsName: "accession",
	}
	flags := registerPipelineFlags(cmd)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("check-layout takes one accession argument, but got %v", argv)
		}
		acc, err := sra.ParseAccession(argv[0])
		if err != nil {
			return err
		}
		resolver, err := loadResolver(flags.config().ToolTimeout)
		if err != nil {
			return err
		}
		layout, err := resolver.Layout(vcontext.Background(), acc)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "%s\t%s\n", acc, layout)
		return nil
	})
	return cmd
}

// Run is the entry point of the sra-fetch command line.
func Run() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "sra-fetch",
			Short:    "Download SRA sequencing runs and GEO series",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdInstall(),
				newCmdDownload(),
				newCmdDownloadList(),
				newCmdConvert(),
				newCmdValidate(),
				newCmdCheckLayout(),
				newCmdGeoFetch(),
				newCmdGeoBatch(),
			},
		})
}
