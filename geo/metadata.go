package geo

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	gerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

// DefaultAnnotationColumns are the metadata columns kept in the sample
// annotation file when the caller does not choose their own.
var DefaultAnnotationColumns = []string{
	"title", "geo_accession", "source_name_ch1",
	"characteristics_ch1", "description", "supplementary_file",
}

// Columns returns the union of all samples' phenotype columns, in order of
// first appearance.
func (s *Series) Columns() []string {
	var cols []string
	seen := map[string]bool{}
	for _, smp := range s.Samples {
		for _, c := range smp.Columns() {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	return cols
}

// WriteMetadataTSV writes the sample phenotype table to w, one row per
// sample, indexed by sample accession. With an empty columns list every
// column is written. Requested columns absent from the table are returned
// so the caller can warn about them; if none of the requested columns
// exist, the full table is written instead.
func WriteMetadataTSV(w io.Writer, s *Series, columns []string) (missing []string, err error) {
	all := s.Columns()
	if len(columns) == 0 {
		columns = all
	} else {
		have := map[string]bool{}
		for _, c := range all {
			have[c] = true
		}
		var selected []string
		for _, c := range columns {
			if have[c] {
				selected = append(selected, c)
			} else {
				missing = append(missing, c)
			}
		}
		if len(selected) == 0 {
			log.Printf("%s: none of the requested columns found, writing all %d columns", s.Accession, len(all))
			selected = all
		}
		columns = selected
	}
	tw := tsv.NewWriter(w)
	tw.WriteString("")
	for _, c := range columns {
		tw.WriteString(c)
	}
	if err = tw.EndLine(); err != nil {
		return missing, err
	}
	for _, smp := range s.Samples {
		tw.WriteString(smp.Accession)
		for _, c := range columns {
			tw.WriteString(smp.Value(c))
		}
		if err = tw.EndLine(); err != nil {
			return missing, err
		}
	}
	return missing, tw.Flush()
}

// FilterSamples returns the samples whose value in column matches pattern
// (a regular expression; case-insensitive unless caseSensitive). The error
// has kind Invalid when no sample carries the column at all, and lists the
// available columns.
func FilterSamples(s *Series, column, pattern string, caseSensitive bool) ([]*Sample, error) {
	have := false
	for _, c := range s.Columns() {
		if c == column {
			have = true
			break
		}
	}
	if !have {
		return nil, gerrors.E(gerrors.Invalid,
			fmt.Sprintf("column %q not found in metadata; available columns: %s",
				column, strings.Join(s.Columns(), ", ")))
	}
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, gerrors.E(gerrors.Invalid, fmt.Sprintf("bad filter pattern %q", pattern), err)
	}
	var matched []*Sample
	for _, smp := range s.Samples {
		if re.MatchString(smp.Value(column)) {
			matched = append(matched, smp)
		}
	}
	log.Printf("%s: filtered %d of %d samples on %s ~ %q",
		s.Accession, len(matched), len(s.Samples), column, pattern)
	return matched, nil
}

// UniqueValues counts the distinct values of a phenotype column across
// samples.
func UniqueValues(samples []*Sample, column string) map[string]int {
	counts := map[string]int{}
	for _, smp := range samples {
		if v := smp.Value(column); v != "" {
			counts[v]++
		}
	}
	return counts
}

// WriteAnnotationTSV writes a cleaned annotation table for samples: the
// requested columns (DefaultAnnotationColumns if empty), skipping columns
// no sample has, with spaces in header names normalized to underscores.
func WriteAnnotationTSV(w io.Writer, samples []*Sample, columns []string) error {
	if len(columns) == 0 {
		columns = DefaultAnnotationColumns
	}
	have := map[string]bool{}
	for _, smp := range samples {
		for _, c := range smp.Columns() {
			have[c] = true
		}
	}
	var selected []string
	for _, c := range columns {
		if have[c] {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		// Nothing matched; keep every column rather than writing an empty table.
		for _, smp := range samples {
			for _, c := range smp.Columns() {
				if !containsString(selected, c) {
					selected = append(selected, c)
				}
			}
		}
	}
	tw := tsv.NewWriter(w)
	tw.WriteString("")
	for _, c := range selected {
		tw.WriteString(strings.ReplaceAll(c, " ", "_"))
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, smp := range samples {
		tw.WriteString(smp.Accession)
		for _, c := range selected {
			tw.WriteString(smp.Value(c))
		}
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

var identifierCleaner = strings.NewReplacer(" ", "_", "/", "_")

// RenameSupplementary copies each sample's supplementary files from srcDir
// into dstDir as <identifier>-<original name>, where the identifier is the
// sample's value in keyColumn (the accession when the column is empty).
// Files never downloaded are logged and skipped. The returned map is
// original name -> new name.
func RenameSupplementary(samples []*Sample, srcDir, dstDir, keyColumn string) (map[string]string, error) {
	if err := os.MkdirAll(dstDir, 0777); err != nil {
		return nil, gerrors.E(fmt.Sprintf("creating %s", dstDir), err)
	}
	renamed := map[string]string{}
	for _, smp := range samples {
		id := smp.Value(keyColumn)
		if id == "" {
			id = smp.Accession
		}
		id = identifierCleaner.Replace(id)
		for _, col := range smp.Columns() {
			if !strings.HasPrefix(col, "supplementary_file") {
				continue
			}
			u := smp.Value(col)
			if u == "" || strings.EqualFold(u, "NONE") {
				continue
			}
			name := u[strings.LastIndex(u, "/")+1:]
			src := filepath.Join(srcDir, name)
			if _, err := os.Stat(src); err != nil {
				log.Printf("%s: supplementary file %s not present locally, skipping", smp.Accession, name)
				continue
			}
			newName := id + "-" + name
			if err := copyFile(src, filepath.Join(dstDir, newName)); err != nil {
				log.Error.Printf("%s: renaming %s: %v", smp.Accession, name, err)
				continue
			}
			renamed[name] = newName
			log.Printf("renamed %s -> %s", name, newName)
		}
	}
	log.Printf("renamed %d supplementary files into %s", len(renamed), dstDir)
	return renamed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		_ = in.Close()
		return err
	}
	_, err = io.Copy(out, in)
	e := gerrors.Once{}
	e.Set(err)
	e.Set(out.Close())
	e.Set(in.Close())
	return e.Err()
}
