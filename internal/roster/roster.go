// Package roster loads activist rosters from CSV or XLSX files into
// records the geocoding pipeline can process.
package roster

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/carto-collectif/rostermap/internal/address"
)

// Name columns, tried in order. Rosters exported from the member database
// carry one of these depending on the export template.
var nameColumns = []string{"Nom", "NomUsage", "NomNaissance"}

// Record is one roster row. Fields preserves every original column so the
// output artifacts can echo the input verbatim.
type Record struct {
	Name       string
	Street     string
	PostalCode string
	City       string
	Fields     map[string]string
}

// Roster is a parsed input file: the original header order plus all rows.
type Roster struct {
	Header  []string
	Records []Record
}

// Load reads a roster file, dispatching on extension: .xlsx is parsed as a
// spreadsheet, anything else as CSV.
func Load(path string) (*Roster, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return LoadXLSX(path)
	}
	return LoadCSV(path)
}

// buildRoster maps raw rows onto Records using the header. Returns an
// error when the required address columns or a usable name column are
// missing from the header.
func buildRoster(header []string, rows [][]string) (*Roster, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[address.Fold(h)] = i
	}

	var missing []string
	for _, col := range []string{address.FieldStreet, address.FieldPostalCode, address.FieldCity} {
		if _, ok := idx[address.Fold(col)]; !ok {
			missing = append(missing, col)
		}
	}
	nameIdx := -1
	for _, col := range nameColumns {
		if i, ok := idx[address.Fold(col)]; ok {
			nameIdx = i
			break
		}
	}
	if nameIdx < 0 {
		missing = append(missing, strings.Join(nameColumns, "/"))
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("roster: missing required columns: %s", strings.Join(missing, ", "))
	}

	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	r := &Roster{Header: header}
	for _, row := range rows {
		rec := Record{
			Street:     cell(row, idx[address.Fold(address.FieldStreet)]),
			PostalCode: cell(row, idx[address.Fold(address.FieldPostalCode)]),
			City:       cell(row, idx[address.Fold(address.FieldCity)]),
			Fields:     make(map[string]string, len(header)),
		}
		for _, col := range nameColumns {
			if i, ok := idx[address.Fold(col)]; ok {
				if v := cell(row, i); v != "" {
					rec.Name = v
					break
				}
			}
		}
		for i, h := range header {
			rec.Fields[h] = cell(row, i)
		}
		r.Records = append(r.Records, rec)
	}
	return r, nil
}
