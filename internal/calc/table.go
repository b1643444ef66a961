package calc

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/CodedDrexler/eCalc-Auto/internal/records"
)

// Row is one throttle step of the efficiency table.
type Row struct {
	Throttle   float64 `json:"throttle_pct"`
	Power      float64 `json:"power_w"`
	Efficiency float64 `json:"efficiency_pct"`
	Thrust     float64 `json:"thrust_g"`
}

type column int

const (
	colThrottle column = iota
	colEfficiency
	colThrust
	colPower
	numColumns
)

// columnMarkers are matched against normalized header text. Power is
// checked last because its markers are the most generic.
var columnMarkers = [numColumns][]string{
	colThrottle:   {"throttle", "gas"},
	colEfficiency: {"efficiency", "wirkungsgrad", "eff"},
	colThrust:     {"thrust", "schub"},
	colPower:      {"elpower", "powerin", "pin", "power"},
}

// fallbackColumns is the layout observed when no header can be recognised;
// the first two rows are then header and units.
var fallbackColumns = [numColumns]int{
	colThrottle:   3,
	colEfficiency: 7,
	colThrust:     8,
	colPower:      6,
}

const fallbackSkipRows = 2

// ParseEfficiencyTable reads the rows of the serialized efficiency table.
// Columns are located by their header text; rows whose throttle, power,
// efficiency or thrust cell does not parse are dropped. Row order is kept.
func ParseEfficiencyTable(tableHTML string) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return nil, fmt.Errorf("parsing efficiency table: %w", err)
	}
	trs := doc.Find("tr")

	cols, start := fallbackColumns, fallbackSkipRows
	trs.EachWithBreak(func(i int, tr *goquery.Selection) bool {
		if found, ok := headerColumns(tr); ok {
			cols, start = found, i+1
			return false
		}
		return true
	})

	var rows []Row
	trs.Each(func(i int, tr *goquery.Selection) {
		if i < start {
			return
		}
		cells := tr.Find("td")
		var vals [numColumns]float64
		for c := range numColumns {
			idx := cols[c]
			if idx >= cells.Length() {
				return
			}
			f, ok := ParseLocaleNumber(cells.Eq(idx).Text())
			if !ok {
				return
			}
			vals[c] = f
		}
		rows = append(rows, Row{
			Throttle:   vals[colThrottle],
			Power:      vals[colPower],
			Efficiency: vals[colEfficiency],
			Thrust:     vals[colThrust],
		})
	})
	return rows, nil
}

// headerColumns maps each column kind to the first header cell carrying one
// of its markers. A row is a header when every kind is found.
func headerColumns(tr *goquery.Selection) ([numColumns]int, bool) {
	var cols [numColumns]int
	var found [numColumns]bool
	tr.Find("th, td").Each(func(i int, cell *goquery.Selection) {
		text := records.NormalizeText(cell.Text())
		if text == "" {
			return
		}
		for c := range numColumns {
			if found[c] {
				continue
			}
			if hasMarker(text, columnMarkers[c]) {
				cols[c], found[c] = i, true
				return
			}
		}
	})
	for _, ok := range found {
		if !ok {
			return cols, false
		}
	}
	return cols, true
}

func hasMarker(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
