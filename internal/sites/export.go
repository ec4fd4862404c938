package sites

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

var exportHeader = []string{
	"Hospital/Center", "City", "Country", "Condition(s)", "Study Title", "NCT ID", "Location Status",
}

// utf8BOM makes the CSV open cleanly in Excel.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV writes rows as a BOM-prefixed CSV.
func WriteCSV(w io.Writer, rows []Row) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return eris.Wrap(err, "sites: write BOM")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return eris.Wrap(err, "sites: write csv header")
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Facility, r.City, r.Country, r.Conditions, r.Title, r.NCTID, r.Status}); err != nil {
			return eris.Wrap(err, "sites: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "sites: flush csv")
}

// WriteXLSX writes rows as a single-sheet workbook at the given path.
func WriteXLSX(path string, rows []Row) error {
	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("Sites")
	if err != nil {
		return eris.Wrap(err, "sites: add xlsx sheet")
	}

	hdr := sheet.AddRow()
	for _, h := range exportHeader {
		hdr.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range []string{r.Facility, r.City, r.Country, r.Conditions, r.Title, r.NCTID, r.Status} {
			row.AddCell().SetString(v)
		}
	}

	if err := wb.Save(path); err != nil {
		return eris.Wrapf(err, "sites: save xlsx %s", path)
	}
	return nil
}
