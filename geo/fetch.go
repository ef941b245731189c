package geo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/compress"
	gerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// seriesURLBase is the root of the series tree on the NCBI mirror. Tests
// point it at a local server.
var seriesURLBase = "https://ftp.ncbi.nlm.nih.gov/geo/series"

// seriesURL is the location of a GSE family file on the NCBI mirror.
// Accessions are bucketed by their leading digits, e.g. GSE188486 lives
// under series/GSE188nnn/.
func seriesURL(acc string) string {
	return fmt.Sprintf("%s/%s/%s/soft/%s_family.soft.gz",
		seriesURLBase, seriesBucket(acc), acc, acc)
}

func seriesBucket(acc string) string {
	if len(acc) <= 6 {
		return acc[:3] + "nnn"
	}
	return acc[:len(acc)-3] + "nnn"
}

// FetchSeries downloads and parses the family file for a GSE accession. The
// compressed family file is cached under destDir; a file already present is
// reused without a network round trip.
func FetchSeries(ctx context.Context, client *http.Client, acc, destDir string) (*Series, error) {
	if !strings.HasPrefix(acc, "GSE") {
		return nil, gerrors.E(gerrors.Invalid, fmt.Sprintf("%q is not a GEO series accession", acc))
	}
	if err := os.MkdirAll(destDir, 0777); err != nil {
		return nil, gerrors.E(fmt.Sprintf("creating %s", destDir), err)
	}
	softPath := filepath.Join(destDir, acc+"_family.soft.gz")
	if _, err := os.Stat(softPath); os.IsNotExist(err) {
		log.Printf("%s: downloading family file", acc)
		if err := download(ctx, client, seriesURL(acc), softPath); err != nil {
			return nil, gerrors.E(gerrors.Unavailable, fmt.Sprintf("downloading family file for %s", acc), err)
		}
	} else {
		log.Printf("%s: reusing cached family file %s", acc, softPath)
	}
	f, err := os.Open(softPath)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck
	var in io.Reader = f
	uncompressor := compress.NewReaderPath(f, softPath)
	if uncompressor != nil {
		in = uncompressor
	}
	series, err := ParseSOFT(in)
	if uncompressor != nil {
		// Close also verifies the trailing checksum of the compressed stream.
		if cerr := uncompressor.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return nil, gerrors.E(fmt.Sprintf("parsing family file for %s", acc), err)
	}
	log.Printf("%s: %q, %d samples, %d platforms, %d supplementary files",
		acc, series.First("title"), len(series.Samples), len(series.Platforms),
		len(series.SupplementaryFiles()))
	return series, nil
}

// DownloadSupplementary fetches each URL into dir and returns the local
// names of the files actually downloaded. A failure on one file is logged
// and skipped so the remaining files still transfer; only a failure to
// create dir itself is an error. Files already present are not fetched
// again.
func DownloadSupplementary(ctx context.Context, client *http.Client, urls []string, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, gerrors.E(fmt.Sprintf("creating %s", dir), err)
	}
	var downloaded []string
	for _, u := range urls {
		name := path.Base(u)
		local := filepath.Join(dir, name)
		if _, err := os.Stat(local); err == nil {
			log.Printf("supplementary file %s already present, skipping", name)
			downloaded = append(downloaded, name)
			continue
		}
		log.Printf("downloading supplementary file %s", name)
		if err := download(ctx, client, u, local); err != nil {
			log.Error.Printf("failed to download %s: %v", u, err)
			continue
		}
		downloaded = append(downloaded, name)
	}
	log.Printf("downloaded %d of %d supplementary files", len(downloaded), len(urls))
	return downloaded, nil
}

// download writes the body of url to dest via a temporary file, so a partial
// transfer never masquerades as a complete one. GEO records its
// supplementary URLs with an ftp scheme; NCBI serves the same tree over
// HTTPS, so the scheme is rewritten.
func download(ctx context.Context, client *http.Client, url, dest string) (err error) {
	if client == nil {
		client = http.DefaultClient
	}
	url = strings.Replace(url, "ftp://", "https://", 1)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint: errcheck
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	tmp, err := os.Create(dest + ".partial")
	if err != nil {
		return err
	}
	_, err = io.Copy(tmp, resp.Body)
	e := gerrors.Once{}
	e.Set(err)
	e.Set(tmp.Close())
	if err := e.Err(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
