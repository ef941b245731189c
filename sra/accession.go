// Package sra downloads public sequencing runs from the Sequence Read
// Archive and reorganizes them into compressed FASTQ files. The heavy lifting
// (transfer, integrity checking, format conversion) is delegated to the SRA
// toolkit binaries; this package supplies accession resolution, the
// per-accession pipeline, and a batch orchestrator with bounded concurrency
// and per-item failure isolation.
package sra

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/grailbio/base/errors"
)

// Accession is a public archive identifier, e.g. SRR8595490 (a run),
// SRX5395107 (an experiment), or GSE188486 (a GEO series).
type Accession string

// AccessionType classifies an accession by its prefix.
type AccessionType int

const (
	UnknownAccession AccessionType = iota
	Run                            // SRR, ERR, DRR
	Experiment                     // SRX, ERX, DRX
	Sample                         // SRS, ERS, DRS
	Study                          // SRP, ERP, DRP
	Project                        // PRJNA, PRJEB, PRJDB
	GEOSeries                      // GSE
	GEOSample                      // GSM
)

var accessionRE = regexp.MustCompile(`^([SED]R[RXSP]|GSE|GSM|PRJ[NED][A-Z])[0-9]+$`)

// ParseAccession validates s as an archive accession. The returned error has
// kind Invalid for an empty or malformed identifier; callers reject such
// input before dispatching any work for it.
func ParseAccession(s string) (Accession, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.E(errors.Invalid, "empty accession")
	}
	if !accessionRE.MatchString(s) {
		return "", errors.E(errors.Invalid, fmt.Sprintf("malformed accession %q", s))
	}
	return Accession(s), nil
}

// Type reports the accession class implied by the prefix.
func (a Accession) Type() AccessionType {
	s := string(a)
	switch {
	case len(s) < 3:
		return UnknownAccession
	case strings.HasPrefix(s, "GSE"):
		return GEOSeries
	case strings.HasPrefix(s, "GSM"):
		return GEOSample
	case strings.HasPrefix(s, "PRJ"):
		return Project
	}
	if s[0] != 'S' && s[0] != 'E' && s[0] != 'D' || s[1] != 'R' {
		return UnknownAccession
	}
	switch s[2] {
	case 'R':
		return Run
	case 'X':
		return Experiment
	case 'S':
		return Sample
	case 'P':
		return Study
	}
	return UnknownAccession
}

// IsRun reports whether the accession names a single sequencing run, i.e. it
// can be fetched directly without resolving children first.
func (a Accession) IsRun() bool { return a.Type() == Run }

func (a Accession) String() string { return string(a) }
