package iris

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"iris-scraper/models"
	"iris-scraper/normalize"
	"iris-scraper/utils"
)

type unitColumn int

const (
	colUnknown unitColumn = iota
	colTypology
	colRent
	col360
	colInternal
	colExternal
	colTotal
	colPriceTo
	colPriceFrom
	colStatus
)

// headerKeywords maps header text fragments to column meanings. Order is
// priority: "alquiler" must win over "desde" so a rent column with a price
// hint still lands in the rent slot.
var headerKeywords = []struct {
	fragment string
	col      unitColumn
}{
	{"tipolog", colTypology},
	{"unidad", colTypology},
	{"alquiler", colRent},
	{"360", col360},
	{"interna", colInternal},
	{"interno", colInternal},
	{"externa", colExternal},
	{"externo", colExternal},
	{"terraza", colExternal},
	{"total", colTotal},
	{"hasta", colPriceTo},
	{"desde", colPriceFrom},
	{"estado", colStatus},
	{"disponib", colStatus},
}

// minimum header columns that must map before a table is accepted as the
// unit inventory; one hit alone is likely a coincidence in a generic table.
const minRecognizedColumns = 2

// extractUnits finds the unit inventory table in a detail page snapshot and
// extracts one UnitRecord per data row. The bool result reports whether no
// inventory structure was detected at all, which is a legitimate page state
// and distinct from a present-but-empty table.
func extractUnits(doc *goquery.Document, logger *utils.Logger) ([]models.UnitRecord, bool) {
	table, columns := findUnitTable(doc)
	if table == nil {
		return nil, true
	}

	var units []models.UnitRecord
	dataRows(table).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < minRecognizedColumns {
			return
		}
		if unit, ok := parseUnitRow(cells, columns); ok {
			units = append(units, unit)
		}
	})
	logger.Debug("[units] %d unit rows extracted from %d mapped columns", len(units), len(columns))
	return units, false
}

// findUnitTable walks the table candidates and keeps the first whose header
// row maps enough recognized columns.
func findUnitTable(doc *goquery.Document) (*goquery.Selection, []unitColumn) {
	for _, sel := range unitTableSelectors {
		var found *goquery.Selection
		var columns []unitColumn
		doc.Find(sel).EachWithBreak(func(_ int, table *goquery.Selection) bool {
			cols := mapHeaders(headerCells(table))
			if recognized(cols) < minRecognizedColumns {
				return true
			}
			found, columns = table, cols
			return false
		})
		if found != nil {
			return found, columns
		}
	}
	return nil, nil
}

// headerCells returns the text of the table's header row: thead cells when
// present, otherwise the first row of the table.
func headerCells(table *goquery.Selection) []string {
	header := table.Find("thead tr").First()
	if header.Length() == 0 {
		header = table.Find("tr").First()
	}
	var cells []string
	header.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, strings.ToLower(selText(cell)))
	})
	return cells
}

// dataRows returns the table's body rows, skipping the header row when the
// table has no explicit thead.
func dataRows(table *goquery.Selection) *goquery.Selection {
	if body := table.Find("tbody tr"); body.Length() > 0 {
		if table.Find("thead").Length() > 0 {
			return body
		}
		return body.Slice(1, body.Length())
	}
	rows := table.Find("tr")
	if rows.Length() <= 1 {
		return rows.Slice(0, 0)
	}
	return rows.Slice(1, rows.Length())
}

func mapHeaders(cells []string) []unitColumn {
	columns := make([]unitColumn, len(cells))
	for i, cell := range cells {
		columns[i] = matchHeader(cell)
	}
	return columns
}

func matchHeader(cell string) unitColumn {
	for _, kw := range headerKeywords {
		if strings.Contains(cell, kw.fragment) {
			return kw.col
		}
	}
	return colUnknown
}

func recognized(columns []unitColumn) int {
	n := 0
	for _, c := range columns {
		if c != colUnknown {
			n++
		}
	}
	return n
}

// parseUnitRow assigns each cell to its mapped column. Rows where nothing
// parses are dropped rather than emitted as all-nil records.
func parseUnitRow(cells *goquery.Selection, columns []unitColumn) (models.UnitRecord, bool) {
	var unit models.UnitRecord
	populated := false

	cells.Each(func(i int, cell *goquery.Selection) {
		if i >= len(columns) {
			return
		}
		txt := selText(cell)
		switch columns[i] {
		case colTypology:
			if txt != "" {
				unit.Typology = &txt
				populated = true
			}
		case colInternal:
			if v := normalize.Number(txt); v != nil {
				unit.InternalArea = v
				populated = true
			}
		case colExternal:
			if v := normalize.Number(txt); v != nil {
				unit.ExternalArea = v
				populated = true
			}
		case colTotal:
			if v := normalize.Number(txt); v != nil {
				unit.TotalArea = v
				populated = true
			}
		case colPriceFrom:
			if v := normalize.Number(txt); v != nil {
				unit.PriceFrom = v
				populated = true
			}
		case colPriceTo:
			if v := normalize.Number(txt); v != nil {
				unit.PriceTo = v
				populated = true
			}
		case colRent:
			if normalize.Bool(txt) || normalize.Number(txt) != nil {
				unit.RentAvailable = true
				populated = true
			}
		case col360:
			if normalize.Bool(txt) || cell.Find("a").Length() > 0 {
				unit.Has360 = true
				populated = true
			}
		case colStatus:
			if txt != "" {
				unit.Status = &txt
				populated = true
			}
		}
	})
	return unit, populated
}
