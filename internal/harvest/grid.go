package harvest

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	gridSelector    = ".w2ui-grid-records"
	rowSelector     = "tr[recid]"
	lastRowSelector = "table tr[recid]:last-of-type"
	// metadataSelector is the cell whose title packs the setup fields.
	metadataSelector = `td[col="12"] div`
)

// ParseTitles returns the packed metadata title of every rendered data row,
// in document order. Rows without a comma separated title are skipped.
func ParseTitles(gridHTML string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(gridHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing result grid: %w", err)
	}
	var titles []string
	doc.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		title, ok := row.Find(metadataSelector).First().Attr("title")
		if !ok || !strings.Contains(title, ",") {
			return
		}
		titles = append(titles, title)
	})
	return titles, nil
}
