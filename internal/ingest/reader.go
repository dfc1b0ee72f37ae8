// Package ingest reads candidate facts from extraction output files and pumps
// them through the reconciliation kernel with a bounded worker pool.
package ingest

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/diligence-cli/internal/model"
)

// ReadFacts loads candidate facts from a file, dispatching on extension:
// .jsonl/.ndjson (one fact per line), .json (array), .csv, .xlsx.
func ReadFacts(path string) ([]model.CandidateFact, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return readJSONL(path)
	case ".json":
		return readJSONArray(path)
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, eris.Errorf("ingest: unsupported fact file %s", path)
	}
}

func readJSONL(path string) ([]model.CandidateFact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	var facts []model.CandidateFact
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var fact model.CandidateFact
		if err := json.Unmarshal([]byte(text), &fact); err != nil {
			return nil, eris.Wrapf(err, "ingest: %s line %d", path, line)
		}
		facts = append(facts, fact)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "ingest: scan %s", path)
	}
	return facts, nil
}

func readJSONArray(path string) ([]model.CandidateFact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}
	var facts []model.CandidateFact
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", path)
	}
	return facts, nil
}

// factColumns maps recognized header names to fact fields. Headers are
// matched lowercased with surrounding whitespace trimmed.
var factColumns = map[string]func(*model.CandidateFact, string){
	"document_id": func(f *model.CandidateFact, v string) { f.DocumentID = v },
	"doc_id":      func(f *model.CandidateFact, v string) { f.DocumentID = v },
	"kind": func(f *model.CandidateFact, v string) {
		if k, err := model.ParseKind(v); err == nil {
			f.Kind = k
		} else {
			f.Kind = model.Kind(v) // invalid; rejected later by Validate
		}
	},
	"name":        func(f *model.CandidateFact, v string) { f.Name = v },
	"vendor":      func(f *model.CandidateFact, v string) { f.Vendor = v },
	"entity":      func(f *model.CandidateFact, v string) { f.Entity = v },
	"context":     func(f *model.CandidateFact, v string) { f.Context = v },
	"field":       func(f *model.CandidateFact, v string) { f.Field = v },
	"value":       func(f *model.CandidateFact, v string) { f.Value = v },
	"quote":       func(f *model.CandidateFact, v string) { f.Quote = v },
	"tier":        func(f *model.CandidateFact, v string) { f.Tier = model.ParseTier(v) },
}

func readCSV(path string) ([]model.CandidateFact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read header %s", path)
	}

	var facts []model.CandidateFact
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read row %s", path)
		}
		facts = append(facts, rowToFact(header, row))
	}
	return facts, nil
}

func readXLSX(path string) ([]model.CandidateFact, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("ingest: %s has no sheets", path)
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(sheet.Rows[0].Cells))
	for j, cell := range sheet.Rows[0].Cells {
		header[j] = cell.String()
	}

	var facts []model.CandidateFact
	for _, row := range sheet.Rows[1:] {
		cells := make([]string, len(row.Cells))
		empty := true
		for j, cell := range row.Cells {
			cells[j] = cell.String()
			if strings.TrimSpace(cells[j]) != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		facts = append(facts, rowToFact(header, cells))
	}
	return facts, nil
}

// rowToFact maps one tabular row onto a fact using the header. Unknown
// columns are ignored; a row shorter than the header leaves trailing fields
// unset.
func rowToFact(header, cells []string) model.CandidateFact {
	var fact model.CandidateFact
	for j, name := range header {
		if j >= len(cells) {
			break
		}
		set, ok := factColumns[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		set(&fact, strings.TrimSpace(cells[j]))
	}
	return fact
}
