package sra

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestAggregateCounts(t *testing.T) {
	items := []Outcome{
		{Accession: "SRR001", Status: Succeeded},
		{Accession: "SRR002", Status: Failed, Err: errors.E("download failed")},
		{Accession: "SRR003", Status: SucceededWithWarning, Warnings: []string{"validation failed"}},
		{Accession: "SRR004", Status: Succeeded},
		{Accession: "SRR005", Status: Skipped},
	}
	r := Aggregate(items)
	assert.EQ(t, 5, r.Total)
	assert.EQ(t, 2, r.Succeeded)
	assert.EQ(t, 1, r.Warned)
	assert.EQ(t, 1, r.Failed)
	assert.EQ(t, 1, r.Skipped)
	expect.False(t, r.Ok())
}

func TestAggregateEmpty(t *testing.T) {
	r := Aggregate(nil)
	assert.EQ(t, 0, r.Total)
	assert.EQ(t, 0, r.Failed)
	expect.True(t, r.Ok())
}

func TestWriteReport(t *testing.T) {
	now := time.Now()
	items := []Outcome{
		{Accession: "SRX100", Runs: []Accession{"SRR001", "SRR002"}, Status: Succeeded,
			StartedAt: now, FinishedAt: now.Add(3 * time.Second)},
		{Accession: "SRR003", Status: Failed, Err: errors.E("download of SRR003 failed"),
			StartedAt: now, FinishedAt: now.Add(time.Second)},
	}
	r := Aggregate(items)
	r.Elapsed = 4 * time.Second
	var buf bytes.Buffer
	assert.NoError(t, r.WriteReport(&buf))
	got := buf.String()
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	assert.EQ(t, 4, len(lines))
	assert.EQ(t, "ACCESSION\tSTATUS\tRUNS\tELAPSED\tDETAIL", lines[0])
	// Report rows keep input order.
	expect.True(t, strings.HasPrefix(lines[1], "SRX100\tok\tSRR001,SRR002\t"))
	expect.True(t, strings.HasPrefix(lines[2], "SRR003\tfailed\t-\t"))
	expect.HasSubstr(t, lines[2], "download of SRR003 failed")
	expect.HasSubstr(t, lines[3], "total 2: 1 ok, 0 with warnings, 1 failed, 0 skipped")
}

func TestWriteReportEmpty(t *testing.T) {
	r := Aggregate(nil)
	var buf bytes.Buffer
	assert.NoError(t, r.WriteReport(&buf))
	expect.HasSubstr(t, buf.String(), "total 0: 0 ok, 0 with warnings, 0 failed, 0 skipped")
}
