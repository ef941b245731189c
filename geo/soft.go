// Package geo retrieves Gene Expression Omnibus series: it downloads and
// parses SOFT family files, exports sample metadata as TSV, filters samples
// by metadata patterns, downloads supplementary files, and summarizes a
// dataset. Network transfer and parsing are limited to GEO's own formats;
// sequencing data behind a series is handled by package sra.
package geo

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Sample is one GSM record in a series family file. Metadata maps an
// attribute name (the SOFT key without its Sample_ prefix) to its values in
// file order; repeated attributes keep every occurrence.
type Sample struct {
	Accession string
	Metadata  map[string][]string
	keys      []string // attribute names in order of first appearance
}

// Platform is one GPL record in a series family file.
type Platform struct {
	Accession string
	Metadata  map[string][]string
}

// Series is a parsed GSE family file.
type Series struct {
	Accession string
	Metadata  map[string][]string
	Platforms []*Platform
	Samples   []*Sample
}

// First returns the first value of the named series attribute, or "N/A".
func (s *Series) First(key string) string {
	if v := s.Metadata[key]; len(v) > 0 {
		return v[0]
	}
	return "N/A"
}

// First returns the first value of the named platform attribute, or "N/A".
func (p *Platform) First(key string) string {
	if v := p.Metadata[key]; len(v) > 0 {
		return v[0]
	}
	return "N/A"
}

// Columns returns the phenotype-table column names for the sample: one
// column per attribute occurrence, with repeats numbered from 2
// (supplementary_file, supplementary_file_2, ...), matching GEO's own
// phenotype table conventions.
func (smp *Sample) Columns() []string {
	var cols []string
	for _, k := range smp.keys {
		for i := range smp.Metadata[k] {
			if i == 0 {
				cols = append(cols, k)
			} else {
				cols = append(cols, k+"_"+strconv.Itoa(i+1))
			}
		}
	}
	return cols
}

// Value returns the sample's value for a phenotype-table column, or "".
func (smp *Sample) Value(col string) string {
	key, idx := col, 0
	if i := strings.LastIndex(col, "_"); i > 0 {
		if n, err := strconv.Atoi(col[i+1:]); err == nil && n >= 2 {
			key, idx = col[:i], n-1
		}
	}
	if vals := smp.Metadata[key]; idx < len(vals) {
		return vals[idx]
	}
	return ""
}

// ParseSOFT parses a SOFT-format series family file. Unknown entity types
// and attributes are retained verbatim; structural errors (an attribute
// before any entity line) are reported.
func ParseSOFT(r io.Reader) (*Series, error) {
	series := &Series{Metadata: map[string][]string{}}
	var curSample *Sample
	var curPlatform *Platform
	section := ""
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024) // description lines can be long
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch line[0] {
		case '^':
			typ, val := splitSOFTLine(line[1:])
			switch typ {
			case "SERIES":
				section = "series"
				series.Accession = val
			case "PLATFORM":
				section = "platform"
				curPlatform = &Platform{Accession: val, Metadata: map[string][]string{}}
				series.Platforms = append(series.Platforms, curPlatform)
			case "SAMPLE":
				section = "sample"
				curSample = &Sample{Accession: val, Metadata: map[string][]string{}}
				series.Samples = append(series.Samples, curSample)
			default:
				section = strings.ToLower(typ)
			}
		case '!':
			key, val := splitSOFTLine(line[1:])
			switch section {
			case "series":
				series.Metadata[strings.TrimPrefix(key, "Series_")] = append(series.Metadata[strings.TrimPrefix(key, "Series_")], val)
			case "platform":
				k := strings.TrimPrefix(key, "Platform_")
				curPlatform.Metadata[k] = append(curPlatform.Metadata[k], val)
			case "sample":
				k := strings.TrimPrefix(key, "Sample_")
				if _, seen := curSample.Metadata[k]; !seen {
					curSample.keys = append(curSample.keys, k)
				}
				curSample.Metadata[k] = append(curSample.Metadata[k], val)
			case "":
				return nil, errors.Errorf("line %d: attribute before any entity line", lineno)
			}
		case '#':
			// Column descriptors of data tables; the phenotype data lives in
			// the attribute lines, so these are skipped.
		default:
			// Data-table rows (expression matrices) are outside this
			// package's scope.
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading SOFT file")
	}
	if series.Accession == "" {
		return nil, errors.New("no SERIES entity found in SOFT file")
	}
	return series, nil
}

func splitSOFTLine(line string) (string, string) {
	if i := strings.Index(line, "="); i >= 0 {
		return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
	}
	return strings.TrimSpace(line), ""
}

// SupplementaryFiles returns every supplementary-file URL in the series:
// series-level first, then per-sample, in file order. Entries recorded as
// NONE are dropped.
func (s *Series) SupplementaryFiles() []string {
	var urls []string
	add := func(vals []string) {
		for _, v := range vals {
			if v != "" && !strings.EqualFold(v, "NONE") {
				urls = append(urls, v)
			}
		}
	}
	var seriesKeys []string
	for k := range s.Metadata {
		if strings.HasPrefix(k, "supplementary_file") {
			seriesKeys = append(seriesKeys, k)
		}
	}
	sort.Strings(seriesKeys)
	for _, k := range seriesKeys {
		add(s.Metadata[k])
	}
	for _, smp := range s.Samples {
		for _, k := range smp.keys {
			if strings.HasPrefix(k, "supplementary_file") {
				add(smp.Metadata[k])
			}
		}
	}
	return urls
}
