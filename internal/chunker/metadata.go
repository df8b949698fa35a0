package chunker

import (
	"strconv"
	"strings"
)

// financialKeywords marks chunks that discuss financial content.
// Matching is case-insensitive substring search.
var financialKeywords = []string{
	"financial statement", "balance sheet", "income statement",
	"cash flow", "revenue", "profit", "loss", "assets", "liabilities",
	"shareholder", "dividend", "fiscal year", "quarterly report",
	"annual report", "financial performance", "financial results",
}

const (
	yearScanFrom = 2000
	yearScanTo   = 2029
)

// ExtractMetadata tags chunk text with its source, page, mentioned
// years (2000-2029), and whether it contains financial language.
func ExtractMetadata(text, source string, page int) Metadata {
	lower := strings.ToLower(text)

	meta := Metadata{Source: source, Page: page}
	for _, kw := range financialKeywords {
		if strings.Contains(lower, kw) {
			meta.Financial = true
			break
		}
	}
	for year := yearScanFrom; year <= yearScanTo; year++ {
		if strings.Contains(text, strconv.Itoa(year)) {
			meta.Years = append(meta.Years, year)
		}
	}
	return meta
}
