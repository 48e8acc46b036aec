package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/engine"
)

const (
	metadataFile = "metadata.json"
	resultsFile  = "results.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type SolverMetadata struct {
	Name      string  `json:"name"`
	Method    string  `json:"method"`
	Step      float64 `json:"step"`
	Tolerance float64 `json:"tolerance"`
}

type RunMetadata struct {
	ID           string             `json:"id"`
	Model        string             `json:"model"`
	ModelName    string             `json:"model_name"`
	Timestamp    time.Time          `json:"timestamp"`
	Steps        int                `json:"steps"`
	Completed    int                `json:"completed"`
	Dt           float64            `json:"dt"`
	StartDate    time.Time          `json:"start_date"`
	StepDuration string             `json:"step_duration"`
	Phase        string             `json:"phase"`
	Error        string             `json:"error,omitempty"`
	Solvers      []SolverMetadata   `json:"solvers"`
	Overrides    map[string]float64 `json:"overrides,omitempty"`
	Metrics      map[string]float64 `json:"metrics"`
}

// NewMetadata describes a run of prog under cfg. The outcome is filled
// in by SetResult.
func NewMetadata(name string, prog *engine.Program, cfg dynamo.Config) RunMetadata {
	meta := RunMetadata{
		Model:        name,
		ModelName:    prog.Model.Name,
		Steps:        cfg.Steps,
		Dt:           cfg.Dt,
		StartDate:    cfg.StartDate,
		StepDuration: cfg.StepDuration.String(),
		Phase:        engine.PhaseBuilt.String(),
	}
	for _, s := range prog.Model.Solvers() {
		meta.Solvers = append(meta.Solvers, SolverMetadata{
			Name:      s.Name,
			Method:    s.Method,
			Step:      s.Step,
			Tolerance: s.Tolerance,
		})
	}
	return meta
}

func (m *RunMetadata) SetResult(res *engine.Result, metrics map[string]float64) {
	m.Phase = res.Phase.String()
	m.Completed = res.Steps
	m.Metrics = metrics
	if res.Err != nil {
		m.Error = res.Err.Error()
	}
}

// Save writes a new run directory holding meta and every recorded
// series.
func (s *Store) Save(meta RunMetadata, rec *engine.Recorder) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", meta.Model, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = now
	if meta.Metrics == nil {
		meta.Metrics = map[string]float64{}
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if err := writeResults(filepath.Join(runDir, resultsFile), rec); err != nil {
		return "", err
	}

	dynamo.Logger().Debug("run saved",
		zap.String("id", runID),
		zap.Int("steps", rec.Len()),
		zap.String("dir", runDir),
	)
	return runID, nil
}

func writeResults(path string, rec *engine.Recorder) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cols := Columns(rec)
	w := csv.NewWriter(f)

	header := []string{"step", "time"}
	for _, c := range cols {
		header = append(header, c.Name)
	}
	if err := w.Write(header); err != nil {
		return err
	}

	times := rec.Times()
	row := make([]string, len(header))
	for i, t := range times {
		row[0] = strconv.Itoa(i)
		row[1] = strconv.FormatFloat(t, 'g', -1, 64)
		for j, c := range cols {
			v := rec.Step(c.Equation, i)
			row[j+2] = strconv.FormatFloat(v[c.Offset], 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// List returns the metadata of every run, oldest first. Directories
// without readable metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}

		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// Table is a stored run's results, one series per column.
type Table struct {
	Columns []string
	Times   []float64
	Series  [][]float64
}

func (t *Table) Column(name string) ([]float64, bool) {
	for i, c := range t.Columns {
		if c == name {
			return t.Series[i], true
		}
	}
	return nil, false
}

func (s *Store) LoadResults(runID string) (*Table, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, resultsFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) == 0 || len(records[0]) < 2 {
		return nil, fmt.Errorf("%s: missing header", resultsFile)
	}

	header := records[0]
	table := &Table{
		Columns: header[2:],
		Times:   make([]float64, 0, len(records)-1),
		Series:  make([][]float64, len(header)-2),
	}

	for i, record := range records[1:] {
		t, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", resultsFile, i+1, err)
		}
		table.Times = append(table.Times, t)

		for j, field := range record[2:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d, %s: %w", resultsFile, i+1, table.Columns[j], err)
			}
			table.Series[j] = append(table.Series[j], v)
		}
	}

	return table, nil
}
