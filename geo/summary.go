package geo

import (
	"encoding/json"
	"io"
)

// PlatformSummary describes one platform in a dataset summary.
type PlatformSummary struct {
	Title      string `json:"title"`
	Technology string `json:"technology"`
	Organism   string `json:"organism"`
}

// Summary is the per-dataset summary artifact, serialized as JSON next to
// the metadata files.
type Summary struct {
	Accession          string                     `json:"gse_id"`
	Title              string                     `json:"title"`
	Description        string                     `json:"summary"`
	OverallDesign      string                     `json:"overall_design"`
	SubmissionDate     string                     `json:"submission_date"`
	LastUpdateDate     string                     `json:"last_update_date"`
	PubmedID           string                     `json:"pubmed_id"`
	PlatformCount      int                        `json:"platform_count"`
	SampleCount        int                        `json:"sample_count"`
	SupplementaryCount int                        `json:"supplementary_file_count"`
	Columns            []string                   `json:"columns_in_metadata"`
	Platforms          map[string]PlatformSummary `json:"platforms,omitempty"`
	SampleTypes        map[string]int             `json:"sample_type_distribution,omitempty"`
}

// BuildSummary assembles the summary for a parsed series.
func BuildSummary(s *Series) Summary {
	sum := Summary{
		Accession:          s.Accession,
		Title:              s.First("title"),
		Description:        s.First("summary"),
		OverallDesign:      s.First("overall_design"),
		SubmissionDate:     s.First("submission_date"),
		LastUpdateDate:     s.First("last_update_date"),
		PubmedID:           s.First("pubmed_id"),
		PlatformCount:      len(s.Platforms),
		SampleCount:        len(s.Samples),
		SupplementaryCount: len(s.SupplementaryFiles()),
		Columns:            s.Columns(),
	}
	if len(s.Platforms) > 0 {
		sum.Platforms = map[string]PlatformSummary{}
		for _, p := range s.Platforms {
			sum.Platforms[p.Accession] = PlatformSummary{
				Title:      p.First("title"),
				Technology: p.First("technology"),
				Organism:   p.First("organism"),
			}
		}
	}
	if types := UniqueValues(s.Samples, "source_name_ch1"); len(types) > 0 {
		sum.SampleTypes = types
	}
	return sum
}

// WriteJSON writes the summary as indented JSON.
func (s Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
