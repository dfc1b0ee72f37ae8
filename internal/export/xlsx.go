package export

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/diligence-cli/internal/inventory"
	"github.com/sells-group/diligence-cli/internal/model"
)

// sheetNames maps each record kind to its workbook sheet title.
var sheetNames = map[model.Kind]string{
	model.KindApplication:    "Applications",
	model.KindInfrastructure: "Infrastructure",
	model.KindOrgUnit:        "Org Units",
}

var recordHeader = []string{
	"ID", "Entity", "Name", "Vendor", "Retired", "Observations", "Fields",
}

var observationHeader = []string{
	"Record ID", "Field", "Value", "Tier", "Entity", "Source Document", "Quote", "Observed At",
}

// ExportXLSX writes the deal inventory as a workbook: one sheet per record
// kind plus a raw Observations sheet. Emission runs the same contract
// validation as the JSON path.
func ExportXLSX(path string, deal *model.Deal, recs []inventory.Record) error {
	doc, err := ExportDeal(deal, recs)
	if err != nil {
		return err
	}

	f := xlsx.NewFile()

	for _, kind := range model.Kinds {
		sheet, err := f.AddSheet(sheetNames[kind])
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", sheetNames[kind])
		}
		writeHeader(sheet, recordHeader)

		for _, rec := range doc.Records {
			if rec.Kind != kind {
				continue
			}
			row := sheet.AddRow()
			row.AddCell().SetString(rec.ID)
			row.AddCell().SetString(string(rec.Entity))
			row.AddCell().SetString(rec.Name)
			if rec.Vendor != nil {
				row.AddCell().SetString(*rec.Vendor)
			} else {
				row.AddCell().SetString("")
			}
			row.AddCell().SetBool(rec.Retired)
			row.AddCell().SetInt(len(rec.Observations))
			row.AddCell().SetString(formatFields(rec.Fields))
		}
	}

	obsSheet, err := f.AddSheet("Observations")
	if err != nil {
		return eris.Wrap(err, "export: add observations sheet")
	}
	writeHeader(obsSheet, observationHeader)

	for _, rec := range doc.Records {
		for _, obs := range rec.Observations {
			row := obsSheet.AddRow()
			row.AddCell().SetString(rec.ID)
			row.AddCell().SetString(obs.Field)
			row.AddCell().SetString(formatValue(obs.Value))
			row.AddCell().SetString(obs.Tier.String())
			row.AddCell().SetString(string(obs.Entity))
			row.AddCell().SetString(obs.SourceDocID)
			row.AddCell().SetString(obs.Quote)
			row.AddCell().SetString(obs.ObservedAt.Format("2006-01-02 15:04:05"))
		}
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func writeHeader(sheet *xlsx.Sheet, cols []string) {
	row := sheet.AddRow()
	for _, col := range cols {
		row.AddCell().SetString(col)
	}
}

// formatFields renders the merged field map as "field=value (tier)" pairs in
// stable field order.
func formatFields(fields map[string]inventory.FieldValue) string {
	if len(fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := ""
	for i, name := range names {
		if i > 0 {
			out += "; "
		}
		fv := fields[name]
		out += name + "=" + formatValue(fv.Value) + " (" + fv.Tier.String() + ")"
	}
	return out
}
