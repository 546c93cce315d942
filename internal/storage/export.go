package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Record is one equilibrium of a saved diagram.
type Record struct {
	Branch   int       `json:"branch"`
	Param    float64   `json:"param"`
	State    []float64 `json:"state"`
	Stable   bool      `json:"stable"`
	Residual float64   `json:"residual"`
}

type ExportData struct {
	Run     *RunMetadata `json:"run"`
	Records []Record     `json:"records"`
}

func ExportJSON(w io.Writer, meta *RunMetadata, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{Run: meta, Records: records})
}

// ExportCSV writes records as branch,param,x0..xn,stable,residual. Floats
// use the shortest representation that parses back to the same value.
func ExportCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)

	dim := 0
	if len(records) > 0 {
		dim = len(records[0].State)
	}
	header := []string{"branch", "param"}
	for i := 0; i < dim; i++ {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	header = append(header, "stable", "residual")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{strconv.Itoa(r.Branch), formatFloat(r.Param)}
		for _, v := range r.State {
			row = append(row, formatFloat(v))
		}
		row = append(row, strconv.FormatBool(r.Stable), formatFloat(r.Residual))
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses the output of ExportCSV.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return []Record{}, nil
	}

	dim := len(rows[0]) - 4
	if dim < 0 {
		return nil, fmt.Errorf("storage: malformed header %v", rows[0])
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := parseRecord(row, dim)
		if err != nil {
			return nil, fmt.Errorf("storage: line %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRecord(row []string, dim int) (Record, error) {
	var rec Record
	var err error
	if rec.Branch, err = strconv.Atoi(row[0]); err != nil {
		return rec, err
	}
	if rec.Param, err = strconv.ParseFloat(row[1], 64); err != nil {
		return rec, err
	}
	rec.State = make([]float64, dim)
	for j := range rec.State {
		if rec.State[j], err = strconv.ParseFloat(row[2+j], 64); err != nil {
			return rec, err
		}
	}
	if rec.Stable, err = strconv.ParseBool(row[2+dim]); err != nil {
		return rec, err
	}
	if rec.Residual, err = strconv.ParseFloat(row[3+dim], 64); err != nil {
		return rec, err
	}
	return rec, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
