package geo

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	gerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Options controls one series-processing run.
type Options struct {
	// OutputDir is the directory receiving every artifact for the series.
	OutputDir string
	// DownloadSupplementary fetches the series' supplementary files.
	DownloadSupplementary bool
	// FilterPattern, when non-empty, writes an extra metadata table holding
	// only the samples whose FilterColumn matches the pattern, and restricts
	// supplementary-file renaming to those samples.
	FilterPattern string
	// FilterColumn is the metadata column the pattern applies to.
	FilterColumn string
	// Columns restricts the exported metadata table; empty keeps everything.
	Columns []string
	// RenameColumn keys the renamed supplementary-file copies; empty uses
	// source_name_ch1.
	RenameColumn string
	// Client is the HTTP client for downloads; nil uses http.DefaultClient.
	Client *http.Client
}

// ProcessSeries runs the complete workflow for one GSE accession: fetch and
// parse the family file, export the metadata and annotation tables, write
// the dataset summary, and optionally download and rename supplementary
// files. Artifacts land in <OutputDir>/<accession>/.
func ProcessSeries(ctx context.Context, acc string, opts Options) error {
	dir := filepath.Join(opts.OutputDir, acc)
	series, err := FetchSeries(ctx, opts.Client, acc, dir)
	if err != nil {
		return err
	}

	if err := writeArtifact(filepath.Join(dir, acc+"_metadata.tsv"), func(f *os.File) error {
		missing, err := WriteMetadataTSV(f, series, opts.Columns)
		for _, c := range missing {
			log.Printf("%s: requested metadata column %q not found", acc, c)
		}
		return err
	}); err != nil {
		return gerrors.E("writing metadata table", err)
	}

	samples := series.Samples
	if opts.FilterPattern != "" {
		col := opts.FilterColumn
		if col == "" {
			col = "title"
		}
		filtered, err := FilterSamples(series, col, opts.FilterPattern, false)
		if err != nil {
			// A bad filter spoils only the filtered artifacts, not the rest of
			// the workflow.
			log.Error.Printf("%s: filtering samples: %v", acc, err)
		} else if len(filtered) > 0 {
			samples = filtered
			if err := writeArtifact(filepath.Join(dir, acc+"_filtered_metadata.tsv"), func(f *os.File) error {
				return WriteAnnotationTSV(f, filtered, series.Columns())
			}); err != nil {
				return gerrors.E("writing filtered metadata table", err)
			}
		} else {
			log.Printf("%s: no samples matched %q on %s", acc, opts.FilterPattern, col)
		}
	}

	if err := writeArtifact(filepath.Join(dir, acc+"_sample_annotation.tsv"), func(f *os.File) error {
		return WriteAnnotationTSV(f, series.Samples, nil)
	}); err != nil {
		return gerrors.E("writing sample annotation", err)
	}

	if err := writeArtifact(filepath.Join(dir, acc+"_summary.json"), func(f *os.File) error {
		return BuildSummary(series).WriteJSON(f)
	}); err != nil {
		return gerrors.E("writing summary", err)
	}

	if opts.DownloadSupplementary {
		urls := series.SupplementaryFiles()
		if len(urls) == 0 {
			log.Printf("%s: no supplementary files to download", acc)
		} else {
			if _, err := DownloadSupplementary(ctx, opts.Client, urls, dir); err != nil {
				return err
			}
			keyCol := opts.RenameColumn
			if keyCol == "" {
				keyCol = "source_name_ch1"
			}
			if _, err := RenameSupplementary(samples, dir, filepath.Join(dir, "renamed_files"), keyCol); err != nil {
				return err
			}
		}
	}
	log.Printf("%s: series processing complete, artifacts in %s", acc, dir)
	return nil
}

func writeArtifact(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = fn(f)
	e := gerrors.Once{}
	e.Set(err)
	e.Set(f.Close())
	if err := e.Err(); err != nil {
		return err
	}
	log.Printf("wrote %s", path)
	return nil
}
