// Package cli provides CLI utilities for Miru.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nSession %s, iteration %d: %d results from %d items in %dms\n\n",
		response.SessionID, response.Iteration, len(response.Results), response.TotalItems, response.QueryTimeMs)
	for rank, result := range response.Results {
		writeOneResult(w, result, rank+1)
	}
}

func writeOneResult(w io.Writer, result *models.ItemResult, rank int) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", rank, result.Score)
	fmt.Fprintf(w, "ID: %s\n", result.ID)
	if len(result.Metadata) > 0 {
		keys := make([]string, 0, len(result.Metadata))
		for k := range result.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, utils.Truncate(fmt.Sprintf("%v", result.Metadata[k]), 120))
		}
	}
	fmt.Fprintln(w)
}

// WriteIngestResult writes a bulk ingest summary to w.
func WriteIngestResult(w io.Writer, response *models.IngestResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		fmt.Fprintf(w, "Ingested %d items (corpus now %d)\n", response.Ingested, response.TotalItems)
		return nil
	}
}
