package sra

import (
	"bufio"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
)

// ReadAccessionList reads one accession per line from r. Blank lines and
// lines starting with '#' are skipped. Accessions are not validated here;
// the batch orchestrator rejects malformed entries before dispatch so that
// they still appear, as failures, in the final report.
func ReadAccessionList(r io.Reader) ([]Accession, error) {
	var accs []Accession
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		accs = append(accs, Accession(line))
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E("reading accession list", err)
	}
	return accs, nil
}
