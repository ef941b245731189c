package geo

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	gerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, data string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(data))
	assert.NoError(t, err)
	assert.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestSeriesBucket(t *testing.T) {
	assert.EQ(t, "GSE188nnn", seriesBucket("GSE188486"))
	assert.EQ(t, "GSEnnn", seriesBucket("GSE486"))
	assert.EQ(t, "GSE1nnn", seriesBucket("GSE1486"))
}

func TestFetchSeries(t *testing.T) {
	family := gzipBytes(t, familySOFT)
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/GSE188nnn/GSE188486/soft/GSE188486_family.soft.gz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(family)
	}))
	defer srv.Close()
	oldBase := seriesURLBase
	seriesURLBase = srv.URL
	defer func() { seriesURLBase = oldBase }()

	dir, err := ioutil.TempDir("", "geofetch")
	assert.NoError(t, err)
	defer os.RemoveAll(dir) // nolint: errcheck

	s, err := FetchSeries(context.Background(), srv.Client(), "GSE188486", dir)
	require.NoError(t, err)
	assert.EQ(t, "GSE188486", s.Accession)
	assert.EQ(t, 2, len(s.Samples))
	assert.EQ(t, 1, hits)

	// Second fetch reuses the cached family file.
	s, err = FetchSeries(context.Background(), srv.Client(), "GSE188486", dir)
	require.NoError(t, err)
	assert.EQ(t, 2, len(s.Samples))
	assert.EQ(t, 1, hits)
}

func TestFetchSeriesCorruptFamilyFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "geofetch")
	assert.NoError(t, err)
	defer os.RemoveAll(dir) // nolint: errcheck
	// A cached family file with a corrupted gzip checksum must fail the
	// fetch, not silently yield a truncated or garbled series.
	family := gzipBytes(t, familySOFT)
	family[len(family)-5] ^= 0xff
	assert.NoError(t, ioutil.WriteFile(filepath.Join(dir, "GSE188486_family.soft.gz"), family, 0644))

	_, err = FetchSeries(context.Background(), nil, "GSE188486", dir)
	require.Error(t, err)
}

func TestFetchSeriesRejectsNonGSE(t *testing.T) {
	_, err := FetchSeries(context.Background(), nil, "SRR001", "/tmp/nope")
	require.Error(t, err)
	expect.True(t, gerrors.Is(gerrors.Invalid, err))
}

func TestFetchSeriesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	oldBase := seriesURLBase
	seriesURLBase = srv.URL
	defer func() { seriesURLBase = oldBase }()

	dir, err := ioutil.TempDir("", "geofetch")
	assert.NoError(t, err)
	defer os.RemoveAll(dir) // nolint: errcheck

	_, err = FetchSeries(context.Background(), srv.Client(), "GSE999999", dir)
	require.Error(t, err)
	expect.True(t, gerrors.Is(gerrors.Unavailable, err))
	// No partial file left behind.
	_, err = os.Stat(filepath.Join(dir, "GSE999999_family.soft.gz"))
	expect.True(t, os.IsNotExist(err))
}

func TestDownloadSupplementary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/suppl/a.txt":
			_, _ = w.Write([]byte("contents-a"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir, err := ioutil.TempDir("", "geosupp")
	assert.NoError(t, err)
	defer os.RemoveAll(dir) // nolint: errcheck

	urls := []string{srv.URL + "/suppl/a.txt", srv.URL + "/suppl/missing.txt"}
	got, err := DownloadSupplementary(context.Background(), srv.Client(), urls, dir)
	assert.NoError(t, err)
	// One bad URL does not stop the other download.
	assert.EQ(t, []string{"a.txt"}, got)
	data, err := ioutil.ReadFile(filepath.Join(dir, "a.txt"))
	assert.NoError(t, err)
	assert.EQ(t, "contents-a", string(data))
}

func TestProcessSeries(t *testing.T) {
	family := gzipBytes(t, familySOFT)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(family)
	}))
	defer srv.Close()
	oldBase := seriesURLBase
	seriesURLBase = srv.URL
	defer func() { seriesURLBase = oldBase }()

	dir, err := ioutil.TempDir("", "geoprocess")
	assert.NoError(t, err)
	defer os.RemoveAll(dir) // nolint: errcheck

	err = ProcessSeries(context.Background(), "GSE188486", Options{
		OutputDir:     dir,
		FilterPattern: "H3K",
		FilterColumn:  "title",
		Client:        srv.Client(),
	})
	require.NoError(t, err)
	for _, name := range []string{
		"GSE188486_metadata.tsv",
		"GSE188486_filtered_metadata.tsv",
		"GSE188486_sample_annotation.tsv",
		"GSE188486_summary.json",
	} {
		_, err := os.Stat(filepath.Join(dir, "GSE188486", name))
		expect.NoError(t, err, name)
	}
	filtered, err := ioutil.ReadFile(filepath.Join(dir, "GSE188486", "GSE188486_filtered_metadata.tsv"))
	assert.NoError(t, err)
	expect.HasSubstr(t, string(filtered), "GSM5682839")
	expect.True(t, !bytes.Contains(filtered, []byte("GSM5682840")))
}
