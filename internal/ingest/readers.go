package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"github.com/lendops/tapekpi/internal/contracts"
)

// readCSV parses a comma-separated export. The first record is the header.
func readCSV(r io.Reader) (*contracts.Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV input")
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	f := contracts.NewFrame(header)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV record: %w", err)
		}
		if err := f.AppendRow(record); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// readJSON parses an array-of-objects export. Columns are the sorted union
// of keys across all objects, so ragged exports still align.
func readJSON(data []byte) (*contracts.Frame, error) {
	var records []map[string]interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse JSON array: %w", err)
	}
	return framesFromRecords(records)
}

// readJSONLines parses newline-delimited JSON objects.
func readJSONLines(data []byte) (*contracts.Frame, error) {
	var records []map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec map[string]interface{}
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("parse JSON line %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty JSON-lines input")
	}
	return framesFromRecords(records)
}

func framesFromRecords(records []map[string]interface{}) (*contracts.Frame, error) {
	keySet := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			keySet[strings.ToLower(k)] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := contracts.NewFrame(keys)
	row := make([]string, len(keys))
	for _, rec := range records {
		lowered := make(map[string]interface{}, len(rec))
		for k, v := range rec {
			lowered[strings.ToLower(k)] = v
		}
		for i, k := range keys {
			row[i] = stringifyJSONValue(lowered[k])
		}
		if err := f.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func stringifyJSONValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// readXLSX parses the first sheet of an Excel export; the first row is the
// header.
func readXLSX(r io.Reader) (*contracts.Frame, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open XLSX: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("XLSX has no sheets")
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read XLSX rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty XLSX sheet %q", sheets[0])
	}

	header := rows[0]
	f := contracts.NewFrame(header)
	for _, row := range rows[1:] {
		// Trailing empty cells are omitted by the reader; pad to width.
		padded := make([]string, len(header))
		copy(padded, row)
		if err := f.AppendRow(padded); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// readHTMLTable parses the first <table> in a scraped HTML export.
// Headers come from <th> cells (or the first row when the table has none).
func readHTMLTable(r io.Reader) (*contracts.Frame, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("no table element found in HTML input")
	}

	var header []string
	table.Find("tr").First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		header = append(header, strings.TrimSpace(cell.Text()))
	})
	if len(header) == 0 {
		return nil, fmt.Errorf("HTML table has no header row")
	}

	f := contracts.NewFrame(header)
	var rowErr error
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		if i == 0 || rowErr != nil {
			return
		}
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		row := make([]string, len(header))
		cells.Each(func(j int, td *goquery.Selection) {
			if j < len(row) {
				row[j] = strings.TrimSpace(td.Text())
			}
		})
		rowErr = f.AppendRow(row)
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return f, nil
}
