package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/san-kum/seaice/internal/analysis"
	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/experiment"
)

const (
	metadataFile = "metadata.json"
	branchesFile = "branches.csv"
	catalogFile  = "catalog.db"
)

// Store keeps one directory per run, holding metadata.json and
// branches.csv, and indexes the runs in a SQLite catalog at the root.
type Store struct {
	baseDir string
	db      *sql.DB
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return err
	}
	db, err := openCatalog(filepath.Join(s.baseDir, catalogFile))
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type BranchSummary struct {
	ID           int     `json:"id"`
	Points       int     `json:"points"`
	ParamMin     float64 `json:"param_min"`
	ParamMax     float64 `json:"param_max"`
	StablePoints int     `json:"stable_points"`
	Err          string  `json:"error,omitempty"`
}

type EventRecord struct {
	Kind   string    `json:"kind"`
	Param  float64   `json:"param"`
	State  []float64 `json:"state,omitempty"`
	Branch int       `json:"branch"`
	Before int       `json:"before,omitempty"`
	After  int       `json:"after,omitempty"`
}

type RunMetadata struct {
	ID            string             `json:"id"`
	Model         string             `json:"model"`
	ParamName     string             `json:"param_name"`
	Timestamp     time.Time          `json:"timestamp"`
	ElapsedMS     int64              `json:"elapsed_ms"`
	Method        string             `json:"method"`
	ParamMin      float64            `json:"param_min"`
	ParamMax      float64            `json:"param_max"`
	ParamStep     float64            `json:"param_step"`
	MinStep       float64            `json:"min_step"`
	Tolerance     float64            `json:"tolerance"`
	MaxIterations int                `json:"max_iterations"`
	Constants     map[string]float64 `json:"constants,omitempty"`
	Branches      []BranchSummary    `json:"branches"`
	Events        []EventRecord      `json:"events"`
}

// Folds counts the fold events of the run.
func (m *RunMetadata) Folds() int {
	n := 0
	for _, e := range m.Events {
		if e.Kind == dynamo.Fold.String() {
			n++
		}
	}
	return n
}

// Points is the number of equilibria over all branches.
func (m *RunMetadata) Points() int {
	n := 0
	for _, b := range m.Branches {
		n += b.Points
	}
	return n
}

func Metadata(id string, run *experiment.Run) *RunMetadata {
	res := run.Result
	cfg := res.Config
	meta := &RunMetadata{
		ID:            id,
		Model:         run.Model,
		ParamName:     run.ParamName,
		Timestamp:     run.Started,
		ElapsedMS:     run.Elapsed.Milliseconds(),
		Method:        cfg.Method,
		ParamMin:      cfg.ParamMin,
		ParamMax:      cfg.ParamMax,
		ParamStep:     cfg.ParamStep,
		MinStep:       cfg.MinStep,
		Tolerance:     cfg.Tolerance,
		MaxIterations: cfg.MaxIterations,
		Constants:     run.Constants,
		Branches:      make([]BranchSummary, 0, len(res.Branches)),
		Events:        make([]EventRecord, 0, len(res.Events)),
	}
	for _, b := range res.Branches {
		meta.Branches = append(meta.Branches, summarize(b))
	}
	for _, e := range res.Events {
		meta.Events = append(meta.Events, EventRecord{
			Kind:   e.Kind.String(),
			Param:  e.Param,
			State:  e.State,
			Branch: e.Branch,
			Before: e.Before,
			After:  e.After,
		})
	}
	return meta
}

func summarize(b dynamo.Branch) BranchSummary {
	sum := BranchSummary{ID: b.ID, Points: b.Len()}
	sum.ParamMin, sum.ParamMax = b.ParamRange()
	if math.IsNaN(sum.ParamMin) {
		sum.ParamMin, sum.ParamMax = 0, 0
	}
	for _, pt := range b.Points {
		if pt.Stable {
			sum.StablePoints++
		}
	}
	if b.Err != nil {
		sum.Err = b.Err.Error()
	}
	return sum
}

// Save writes the run directory and adds the run to the catalog.
func (s *Store) Save(run *experiment.Run) (string, error) {
	if s.db == nil {
		return "", errors.New("storage: store not initialised")
	}
	if run == nil || run.Result == nil {
		return "", errors.New("storage: run has no result")
	}
	if run.Started.IsZero() {
		run.Started = time.Now()
	}

	runID := fmt.Sprintf("%s_%d", run.Model, run.Started.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)
	if _, err := os.Stat(runDir); err == nil {
		return "", fmt.Errorf("storage: run %s already exists", runID)
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	if err := s.write(runID, runDir, run); err != nil {
		os.RemoveAll(runDir)
		return "", err
	}
	return runID, nil
}

// write fills a fresh run directory and catalogs it. The caller removes
// the directory on error.
func (s *Store) write(runID, runDir string, run *experiment.Run) error {
	meta := Metadata(runID, run)
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return err
	}

	csvFile, err := os.Create(filepath.Join(runDir, branchesFile))
	if err != nil {
		return err
	}
	if err := ExportCSV(csvFile, Records(run.Result)); err != nil {
		csvFile.Close()
		return err
	}
	if err := csvFile.Close(); err != nil {
		return err
	}

	if err := insertRun(context.Background(), s.db, meta); err != nil {
		return fmt.Errorf("catalog run %s: %w", runID, err)
	}
	return nil
}

// List returns the catalogued runs, oldest first.
func (s *Store) List() ([]CatalogEntry, error) {
	if s.db == nil {
		return nil, errors.New("storage: store not initialised")
	}
	return listRuns(context.Background(), s.db)
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

func (s *Store) LoadRecords(runID string) ([]Record, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, branchesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Records flattens the branches of a diagram into rows ordered by branch
// and then by position along the branch.
func Records(res *analysis.Result) []Record {
	var out []Record
	for _, b := range res.Branches {
		for _, pt := range b.Points {
			out = append(out, Record{
				Branch:   b.ID,
				Param:    pt.Param,
				State:    pt.State.Clone(),
				Stable:   pt.Stable,
				Residual: pt.Residual,
			})
		}
	}
	return out
}

// Rebuild reassembles a diagram from saved metadata and records, enough to
// plot or inspect it again. Scan slices are not stored.
func Rebuild(meta *RunMetadata, records []Record) *analysis.Result {
	cfg := dynamo.DefaultConfig()
	cfg.ParamMin, cfg.ParamMax, cfg.ParamStep = meta.ParamMin, meta.ParamMax, meta.ParamStep
	cfg.MinStep, cfg.Tolerance, cfg.MaxIterations = meta.MinStep, meta.Tolerance, meta.MaxIterations
	if meta.Method != "" {
		cfg.Method = meta.Method
	}

	res := &analysis.Result{Config: cfg}
	index := make(map[int]int)
	for _, r := range records {
		i, ok := index[r.Branch]
		if !ok {
			i = len(res.Branches)
			index[r.Branch] = i
			res.Branches = append(res.Branches, dynamo.Branch{ID: r.Branch})
		}
		res.Branches[i].Points = append(res.Branches[i].Points, dynamo.Equilibrium{
			Param:    r.Param,
			State:    dynamo.State(r.State).Clone(),
			Stable:   r.Stable,
			Residual: r.Residual,
		})
	}

	kinds := map[string]dynamo.EventKind{}
	for _, k := range []dynamo.EventKind{dynamo.Fold, dynamo.StabilityChange, dynamo.CountChange} {
		kinds[k.String()] = k
	}
	for _, e := range meta.Events {
		kind, ok := kinds[e.Kind]
		if !ok {
			continue
		}
		ev := dynamo.Event{Kind: kind, Param: e.Param, State: dynamo.State(e.State).Clone(), Branch: e.Branch, Before: e.Before, After: e.After}
		res.Events = append(res.Events, ev)
		if i, ok := index[e.Branch]; ok {
			res.Branches[i].Events = append(res.Branches[i].Events, ev)
		}
	}
	return res
}
