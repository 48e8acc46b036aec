package store

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/ecosim/internal/engine"
)

type SeriesData struct {
	Name     string            `json:"name"`
	Equation string            `json:"equation"`
	Unit     string            `json:"unit,omitempty"`
	Index    map[string]string `json:"index,omitempty"`
	Values   []float64         `json:"values"`
}

type ExportData struct {
	RunMetadata
	Times  []float64    `json:"times"`
	Series []SeriesData `json:"series"`
}

// NewExportData gathers meta and every recorded series into one
// document.
func NewExportData(meta RunMetadata, rec *engine.Recorder) ExportData {
	m := rec.Program().Model
	sp := m.Space()

	data := ExportData{
		RunMetadata: meta,
		Times:       rec.Times(),
	}
	for _, c := range Columns(rec) {
		s := SeriesData{
			Name:     c.Name,
			Equation: m.Equation(c.Equation).Name,
			Unit:     c.Unit,
			Values:   rec.Series(c.Equation, c.Offset),
		}
		if len(c.Index) > 0 {
			s.Index = make(map[string]string, len(c.Index))
			for _, p := range c.Index {
				set := sp.Set(p.Set)
				s.Index[set.Name] = set.Label(p.Member)
			}
		}
		data.Series = append(data.Series, s)
	}
	return data
}

// TableExportData is NewExportData for a stored run. Units are not
// kept in results.csv and are left empty.
func TableExportData(meta RunMetadata, t *Table) ExportData {
	data := ExportData{
		RunMetadata: meta,
		Times:       t.Times,
	}
	for i, name := range t.Columns {
		eq, idx := ParseColumn(name)
		data.Series = append(data.Series, SeriesData{
			Name:     name,
			Equation: eq,
			Index:    idx,
			Values:   t.Series[i],
		})
	}
	return data
}

func ExportJSON(path string, data ExportData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteJSON(file, data)
}

func WriteJSON(w io.Writer, data ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
