package sra

import "time"

// Config controls one pipeline or batch invocation. Callers fill in a copy
// before starting; the orchestrator treats it as read-only once a batch is
// running.
type Config struct {
	// Threads is the thread hint passed to the conversion and compression
	// tools.
	Threads int
	// Jobs bounds how many accessions are processed simultaneously in a
	// batch. Items beyond the bound queue until a slot frees.
	Jobs int
	// OutputDir receives the final fastq.gz files. Created if absent.
	OutputDir string
	// StrictValidate promotes an integrity-check failure from a warning to a
	// fatal error for the affected accession. By default a failed check is
	// logged and conversion is still attempted.
	StrictValidate bool
	// ToolTimeout bounds each external tool invocation. Zero means no
	// timeout; a hung tool then blocks its worker until the process is
	// killed externally.
	ToolTimeout time.Duration
}

// DefaultConfig mirrors the defaults of the sra-fetch command line.
var DefaultConfig = Config{
	Threads:   10,
	Jobs:      3,
	OutputDir: "./fastq_output",
}
