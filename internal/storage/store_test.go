package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/seaice/internal/analysis"
	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/experiment"
)

func testRun(model string, started time.Time) *experiment.Run {
	cfg := dynamo.DefaultConfig()
	branch := dynamo.Branch{
		ID: 0,
		Points: []dynamo.Equilibrium{
			{Param: 1, State: dynamo.State{-1}, Stable: false, Residual: 1e-12},
			{Param: 0.25, State: dynamo.State{-0.5}, Stable: false},
			{Param: 0.25, State: dynamo.State{0.5}, Stable: true, Residual: 3.5e-11},
			{Param: 1, State: dynamo.State{1}, Stable: true},
		},
		Events: []dynamo.Event{
			{Kind: dynamo.Fold, Param: 0.0001, State: dynamo.State{0}, Branch: 0},
		},
	}
	return &experiment.Run{
		Model:     model,
		ParamName: "p",
		Constants: map[string]float64{"a": 1},
		Started:   started,
		Elapsed:   1500 * time.Millisecond,
		Result: &analysis.Result{
			Config:   cfg,
			Branches: []dynamo.Branch{branch},
			Events:   branch.Events,
		},
	}
}

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	st := New(dir)
	require.NoError(t, st.Init())
	t.Cleanup(func() { st.Close() })
	return st, dir
}

func TestStoreSaveLoad(t *testing.T) {
	st, _ := newStore(t)

	runID, err := st.Save(testRun("fold", time.Unix(1700000000, 42)))
	require.NoError(t, err)
	assert.Equal(t, "fold_1700000000000000042", runID)

	meta, err := st.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, "fold", meta.Model)
	assert.Equal(t, "p", meta.ParamName)
	assert.Equal(t, dynamo.MethodArclength, meta.Method)
	assert.Equal(t, int64(1500), meta.ElapsedMS)
	assert.Equal(t, 1.0, meta.Constants["a"])
	require.Len(t, meta.Branches, 1)
	assert.Equal(t, 4, meta.Branches[0].Points)
	assert.Equal(t, 2, meta.Branches[0].StablePoints)
	assert.Equal(t, 0.25, meta.Branches[0].ParamMin)
	assert.Equal(t, 1.0, meta.Branches[0].ParamMax)
	assert.Equal(t, 1, meta.Folds())

	records, err := st.LoadRecords(runID)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []float64{0.5}, records[2].State)
	assert.True(t, records[2].Stable)
	assert.Equal(t, 3.5e-11, records[2].Residual)
}

func TestStoreBranchError(t *testing.T) {
	st, _ := newStore(t)

	run := testRun("fold", time.Unix(1700000000, 0))
	run.Result.Branches[0].Err = dynamo.ErrContinuationStalled
	runID, err := st.Save(run)
	require.NoError(t, err)

	meta, err := st.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, dynamo.ErrContinuationStalled.Error(), meta.Branches[0].Err)
}

func TestStoreList(t *testing.T) {
	st, _ := newStore(t)

	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = st.Save(testRun("seaice", time.Unix(1700000100, 0)))
	require.NoError(t, err)
	_, err = st.Save(testRun("fold", time.Unix(1700000000, 0)))
	require.NoError(t, err)

	runs, err = st.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "fold", runs[0].Model)
	assert.Equal(t, "seaice", runs[1].Model)
	assert.Equal(t, 1, runs[0].Branches)
	assert.Equal(t, 4, runs[0].Points)
	assert.Equal(t, 1, runs[0].Folds)
	assert.True(t, runs[0].Created.Equal(time.Unix(1700000000, 0)))
}

func TestStoreListSubSecond(t *testing.T) {
	st, _ := newStore(t)

	base := time.Unix(1700000000, 0)
	for _, offset := range []time.Duration{120 * time.Millisecond, 0, 100 * time.Millisecond} {
		_, err := st.Save(testRun("fold", base.Add(offset)))
		require.NoError(t, err)
	}

	runs, err := st.List()
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].Created.Equal(base))
	assert.True(t, runs[1].Created.Equal(base.Add(100*time.Millisecond)))
	assert.True(t, runs[2].Created.Equal(base.Add(120*time.Millisecond)))
}

func TestStoreSaveDuplicate(t *testing.T) {
	st, dir := newStore(t)

	run := testRun("fold", time.Unix(1700000000, 0))
	runID, err := st.Save(run)
	require.NoError(t, err)

	_, err = st.Save(run)
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, runID, metadataFile))
}

func TestStoreSaveCleansUpOnFailure(t *testing.T) {
	st, dir := newStore(t)
	require.NoError(t, st.db.Close())

	_, err := st.Save(testRun("fold", time.Unix(1700000000, 0)))
	require.Error(t, err)
	assert.NoDirExists(t, filepath.Join(dir, "fold_1700000000000000000"))
}

func TestStoreCatalogPersists(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	require.NoError(t, st.Init())
	_, err := st.Save(testRun("fold", time.Unix(1700000000, 0)))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	reopened := New(dir)
	require.NoError(t, reopened.Init())
	defer reopened.Close()

	runs, err := reopened.List()
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStoreFileStructure(t *testing.T) {
	st, dir := newStore(t)

	runID, err := st.Save(testRun("fold", time.Unix(1700000000, 0)))
	require.NoError(t, err)

	for _, name := range []string{metadataFile, branchesFile} {
		_, err := os.Stat(filepath.Join(dir, runID, name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(dir, catalogFile))
	assert.NoError(t, err)
}

func TestStoreNotInitialised(t *testing.T) {
	st := New(t.TempDir())
	_, err := st.Save(testRun("fold", time.Now()))
	assert.Error(t, err)
	_, err = st.List()
	assert.Error(t, err)
}

func TestLoadMissingRun(t *testing.T) {
	st, _ := newStore(t)
	_, err := st.Load("nope")
	assert.Error(t, err)
	_, err = st.LoadRecords("nope")
	assert.Error(t, err)
}

func TestExportCSV(t *testing.T) {
	records := []Record{
		{Branch: 0, Param: -0.1, State: []float64{1.0 / 3, 2}, Stable: true, Residual: 1e-13},
		{Branch: 1, Param: 0.2, State: []float64{-4, 5e-7}, Stable: false},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, records))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "branch,param,x0,x1,stable,residual", lines[0])

	parsed, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, parsed)
}

func TestReadCSVMalformed(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("branch,param,x0,stable,residual\n0,abc,1,true,0\n"))
	assert.Error(t, err)
}

func TestExportJSON(t *testing.T) {
	run := testRun("fold", time.Unix(1700000000, 0))
	meta := Metadata("fold_1", run)

	var buf bytes.Buffer
	require.NoError(t, ExportJSON(&buf, meta, Records(run.Result)))

	var decoded ExportData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "fold_1", decoded.Run.ID)
	assert.Len(t, decoded.Records, 4)
	assert.Equal(t, "fold", decoded.Run.Events[0].Kind)
}

func TestRebuild(t *testing.T) {
	st, _ := newStore(t)
	run := testRun("fold", time.Unix(1700000000, 0))
	runID, err := st.Save(run)
	require.NoError(t, err)

	meta, err := st.Load(runID)
	require.NoError(t, err)
	records, err := st.LoadRecords(runID)
	require.NoError(t, err)

	res := Rebuild(meta, records)
	require.Len(t, res.Branches, 1)
	assert.Equal(t, run.Result.Branches[0].Points[2].State, res.Branches[0].Points[2].State)
	assert.Len(t, res.Folds(), 1)
	assert.Equal(t, run.Result.Config.ParamStep, res.Config.ParamStep)
}
