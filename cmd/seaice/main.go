package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/seaice/internal/analysis"
	"github.com/san-kum/seaice/internal/config"
	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/experiment"
	"github.com/san-kum/seaice/internal/logging"
	"github.com/san-kum/seaice/internal/rootfind"
	"github.com/san-kum/seaice/internal/stability"
	"github.com/san-kum/seaice/internal/storage"
	"github.com/san-kum/seaice/internal/tui"
	"github.com/san-kum/seaice/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	logLevel   string

	paramMin  float64
	paramMax  float64
	paramStep float64
	minStep   float64
	tolerance float64
	maxIter   int
	method    string
	workers   int
	constants []string

	param     float64
	curve     bool
	noSave    bool
	ascii     bool
	outFile   string
	configOut string
	width     int
	height    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "seaice",
		Short:        "steady states and bifurcations of parameterised ODE models",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".seaice", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	diagramCmd := &cobra.Command{
		Use:     "diagram [model]",
		Aliases: []string{"run"},
		Short:   "trace the bifurcation diagram of a model and save it",
		Args:    cobra.MaximumNArgs(1),
		RunE:    runDiagram,
	}
	addSolverFlags(diagramCmd)
	diagramCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	diagramCmd.Flags().BoolVar(&ascii, "ascii", false, "plot with stability marks instead of colours")
	addPlotFlags(diagramCmd)

	solveCmd := &cobra.Command{
		Use:   "solve [model]",
		Short: "find the equilibria at one parameter value",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSolve,
	}
	addSolverFlags(solveCmd)
	solveCmd.Flags().Float64Var(&param, "param", 0, "parameter value")

	scanCmd := &cobra.Command{
		Use:   "scan [model]",
		Short: "count the equilibria of a one-dimensional model across the range",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScan,
	}
	addSolverFlags(scanCmd)
	scanCmd.Flags().BoolVar(&curve, "curve", false, "also plot the rate curve at --param")
	scanCmd.Flags().Float64Var(&param, "param", 0, "parameter value for --curve")
	addPlotFlags(scanCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	addPlotFlags(showCmd)

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run branches to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and branches to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list available models",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := experiment.NewRegistry()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tPARAM\tDIM\tPRESETS")
			for _, name := range reg.ListModels() {
				sys, _ := reg.GetModel(name)
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", name, experiment.ParamName(sys), sys.StateDim(),
					strings.Join(config.ListPresets(name), ","))
			}
			return w.Flush()
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init-config [model]",
		Short: "write a config file for a model",
		Args:  cobra.MaximumNArgs(1),
		RunE:  initConfig,
	}
	initCmd.Flags().StringVar(&preset, "preset", "", "start from a preset")
	initCmd.Flags().StringVarP(&configOut, "output", "o", "seaice.yaml", "output file")

	exploreCmd := &cobra.Command{
		Use:   "explore [model]",
		Short: "explore equilibria interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExplore,
	}
	addSolverFlags(exploreCmd)

	rootCmd.AddCommand(diagramCmd, solveCmd, scanCmd, listCmd, showCmd, exportCSVCmd, exportJSONCmd,
		modelsCmd, presetsCmd, initCmd, exploreCmd)
	rootCmd.AddCommand(batchCommands()...)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSolverFlags(cmd *cobra.Command) {
	d := dynamo.DefaultConfig()
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&paramMin, "param-min", d.ParamMin, "lower end of the parameter range")
	cmd.Flags().Float64Var(&paramMax, "param-max", d.ParamMax, "upper end of the parameter range")
	cmd.Flags().Float64Var(&paramStep, "param-step", d.ParamStep, "continuation step")
	cmd.Flags().Float64Var(&minStep, "min-step", d.MinStep, "smallest step before a branch is abandoned")
	cmd.Flags().Float64Var(&tolerance, "tolerance", d.Tolerance, "residual tolerance")
	cmd.Flags().IntVar(&maxIter, "max-iter", d.MaxIterations, "root finder iteration limit")
	cmd.Flags().StringVar(&method, "method", d.Method, "continuation method (natural, arclength)")
	cmd.Flags().IntVar(&workers, "workers", d.Workers, "branches traced in parallel")
	cmd.Flags().StringArrayVar(&constants, "set", nil, "model constant as name=value (repeatable)")
}

func addPlotFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&width, "width", 80, "plot width")
	cmd.Flags().IntVar(&height, "height", 20, "plot height")
}

// resolveConfig builds the run configuration: preset or config file first,
// then any flag the user set explicitly.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	default:
		model := config.DefaultModel
		if len(args) > 0 {
			model = args[0]
		}
		if preset == "" {
			cfg = config.ForModel(model)
			break
		}
		cfg = config.GetPreset(model, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
	}
	if len(args) > 0 {
		cfg.Model = args[0]
	}

	flags := cmd.Flags()
	if flags.Changed("param-min") {
		cfg.Sweep.ParamMin = paramMin
	}
	if flags.Changed("param-max") {
		cfg.Sweep.ParamMax = paramMax
	}
	if flags.Changed("param-step") {
		cfg.Sweep.ParamStep = paramStep
	}
	if flags.Changed("min-step") {
		cfg.Sweep.MinStep = minStep
	}
	if flags.Changed("tolerance") {
		cfg.Sweep.Tolerance = tolerance
	}
	if flags.Changed("max-iter") {
		cfg.Sweep.MaxIterations = maxIter
	}
	if flags.Changed("method") {
		cfg.Method = method
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	for _, kv := range constants {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("%w: --set wants name=value, got %q", dynamo.ErrInvalidConfig, kv)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: constant %s: %v", dynamo.ErrInvalidConfig, name, err)
		}
		if cfg.Constants == nil {
			cfg.Constants = make(map[string]float64)
		}
		cfg.Constants[name] = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newExperiment(cfg *config.Config, logger *slog.Logger) (*experiment.Experiment, error) {
	seeds, err := cfg.SeedEquilibria()
	if err != nil {
		return nil, err
	}
	sys, err := experiment.NewRegistry().GetModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	exp := experiment.New(experiment.Config{
		Model:     cfg.Model,
		Constants: cfg.Constants,
		Solver:    cfg.Solver(),
		Seeds:     seeds,
	}, logger)
	if err := exp.Setup(sys); err != nil {
		return nil, err
	}
	return exp, nil
}

func runDiagram(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.LogLevel, os.Stderr)

	exp, err := newExperiment(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	run, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	res := run.Result

	fmt.Printf("%s: %d branches, %d points in %v\n", run.Model, len(res.Branches), res.Points(), run.Elapsed)
	printBranches(os.Stdout, res)
	printEvents(os.Stdout, run.ParamName, res.Events)
	fmt.Println()
	fmt.Println(plot(res, run.ParamName))

	if noSave {
		return nil
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	defer st.Close()

	runID, err := st.Save(run)
	if err != nil {
		return err
	}
	fmt.Printf("\nrun id: %s\n", runID)
	return nil
}

func plot(res *analysis.Result, paramName string) string {
	if ascii {
		return analysis.RenderASCII(res, width, height)
	}
	return viz.Preview(res, width, height, "x0 vs "+paramName)
}

func printBranches(w io.Writer, res *analysis.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BRANCH\tPOINTS\tFROM\tTO\tSTATUS")
	for _, b := range res.Branches {
		lo, hi := b.ParamRange()
		status := "complete"
		if b.Err != nil {
			status = b.Err.Error()
		}
		fmt.Fprintf(tw, "%d\t%d\t%.4g\t%.4g\t%s\n", b.ID, b.Len(), lo, hi, status)
	}
	tw.Flush()
}

func printEvents(w io.Writer, paramName string, events []dynamo.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no bifurcations in range")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "EVENT\t%s\tSTATE\tBRANCH\n", strings.ToUpper(paramName))
	for _, e := range events {
		branch := strconv.Itoa(e.Branch)
		if e.Kind == dynamo.CountChange {
			branch = fmt.Sprintf("scan %d->%d", e.Before, e.After)
		}
		fmt.Fprintf(tw, "%s\t%.6g\t%v\t%s\n", e.Kind, e.Param, []float64(e.State), branch)
	}
	tw.Flush()
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := newExperiment(cfg, logging.NewLogger(cfg.LogLevel, os.Stderr))
	if err != nil {
		return err
	}
	sys := exp.System()
	solver := cfg.Solver()

	var eqs []dynamo.Equilibrium
	if sys.StateDim() == 1 {
		s, err := analysis.SliceAt(sys, solver, param)
		if err != nil {
			return err
		}
		eqs = s.Equilibria
	} else {
		eqs, err = solveFromSeeds(sys, solver, cfg, param)
		if err != nil {
			return err
		}
	}

	fmt.Printf("%s at %s = %g: %d equilibria\n", cfg.Model, experiment.ParamName(sys), param, len(eqs))
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tSTABILITY\tLEADING\tRESIDUAL")
	for _, e := range eqs {
		tag := "unstable"
		if e.Stable {
			tag = "stable"
		}
		fmt.Fprintf(tw, "%v\t%s\t%.4g\t%.2e\n", []float64(e.State), tag, stability.Leading(e), e.Residual)
	}
	return tw.Flush()
}

// solveFromSeeds corrects every configured seed state at p. Seeds that
// converge to the same state are reported once.
func solveFromSeeds(sys dynamo.System, solver dynamo.Config, cfg *config.Config, p float64) ([]dynamo.Equilibrium, error) {
	seeds, err := cfg.SeedEquilibria()
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: model %s needs seeds to solve", dynamo.ErrInvalidConfig, cfg.Model)
	}

	rf := rootfind.NewSolver(solver)
	var out []dynamo.Equilibrium
	for _, seed := range seeds {
		x, _, err := rf.Solve(sys, seed.State, p)
		if dynamo.IsFatal(err) {
			return nil, err
		}
		if err != nil {
			continue
		}
		seen := false
		for _, e := range out {
			if e.State.Sub(x).Norm() < 1e3*solver.Tolerance {
				seen = true
			}
		}
		if seen {
			continue
		}
		e, err := stability.Point(sys, x, p, solver.FDStep)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := newExperiment(cfg, nil)
	if err != nil {
		return err
	}

	slices, err := analysis.Scan(exp.System(), cfg.Solver())
	if err != nil {
		return err
	}

	counts := make([]float64, len(slices))
	for i, s := range slices {
		counts[i] = float64(len(s.Equilibria))
	}
	fmt.Printf("%s: %d slices, equilibria per slice %s\n", cfg.Model, len(slices), viz.Sparkline(counts, min(len(counts), 72)))
	printEvents(os.Stdout, experiment.ParamName(exp.System()), analysis.CountEvents(slices))

	if !curve {
		return nil
	}
	lo, hi := analysis.StateWindow(exp.System(), cfg.Solver())
	c, err := analysis.SampleRate(exp.System(), param, lo, hi, max(2*width, 2))
	if err != nil {
		return err
	}
	fmt.Printf("\ndx/dt at %s = %g over [%g, %g]\n", experiment.ParamName(exp.System()), param, lo, hi)
	fmt.Println(analysis.RateCurveToASCII(c, width, height))
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tMETHOD\tRANGE\tBRANCHES\tPOINTS\tFOLDS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t[%g, %g]\t%d\t%d\t%d\n",
			run.ID,
			run.Model,
			run.Created.Local().Format("2006-01-02 15:04:05"),
			run.Method,
			run.ParamMin, run.ParamMax,
			run.Branches,
			run.Points,
			run.Folds,
		)
	}
	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, []storage.Record, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	records, err := st.LoadRecords(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, records, nil
}

func showRun(cmd *cobra.Command, args []string) error {
	meta, records, err := loadRun(args[0])
	if err != nil {
		return err
	}
	res := storage.Rebuild(meta, records)

	fmt.Printf("run:    %s\n", meta.ID)
	fmt.Printf("model:  %s (%s in [%g, %g], step %g, %s)\n", meta.Model, meta.ParamName,
		meta.ParamMin, meta.ParamMax, meta.ParamStep, meta.Method)
	fmt.Printf("time:   %s, %dms\n\n", meta.Timestamp.Format("2006-01-02 15:04:05"), meta.ElapsedMS)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BRANCH\tPOINTS\tSTABLE\tFROM\tTO\tSTATUS")
	for _, b := range meta.Branches {
		status := "complete"
		if b.Err != "" {
			status = b.Err
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.4g\t%.4g\t%s\n", b.ID, b.Points, b.StablePoints, b.ParamMin, b.ParamMax, status)
	}
	tw.Flush()
	printEvents(os.Stdout, meta.ParamName, res.Events)
	fmt.Println()
	fmt.Println(viz.Preview(res, width, height, "x0 vs "+meta.ParamName))
	return nil
}

func output() (io.WriteCloser, error) {
	if outFile == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(outFile)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func exportCSV(cmd *cobra.Command, args []string) error {
	_, records, err := loadRun(args[0])
	if err != nil {
		return err
	}
	w, err := output()
	if err != nil {
		return err
	}
	if err := storage.ExportCSV(w, records); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, records, err := loadRun(args[0])
	if err != nil {
		return err
	}
	w, err := output()
	if err != nil {
		return err
	}
	if err := storage.ExportJSON(w, meta, records); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func initConfig(cmd *cobra.Command, args []string) error {
	model := config.DefaultModel
	if len(args) > 0 {
		model = args[0]
	}
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(model, preset)
		if cfg == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
	}
	cfg.Model = model
	if _, err := experiment.NewRegistry().GetModel(model); err != nil {
		return err
	}
	if err := config.Save(configOut, cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", configOut)
	return nil
}

func runExplore(cmd *cobra.Command, args []string) error {
	load := func(model string) (*tui.Session, error) {
		margs := []string{model}
		cfg, err := resolveConfig(cmd, margs)
		if err != nil {
			return nil, err
		}
		exp, err := newExperiment(cfg, logging.Discard())
		if err != nil {
			return nil, err
		}
		run, err := exp.Run(context.Background())
		if err != nil {
			return nil, err
		}
		return &tui.Session{
			Model:     run.Model,
			ParamName: run.ParamName,
			System:    exp.System(),
			Config:    run.Result.Config,
			Result:    run.Result,
		}, nil
	}

	if len(args) == 0 {
		return tui.RunExplorer(tui.NewExplorer(experiment.NewRegistry().ListModels(), load))
	}
	s, err := load(args[0])
	if err != nil {
		if errors.Is(err, dynamo.ErrInvalidModel) {
			return fmt.Errorf("model %s cannot be explored: %w", args[0], err)
		}
		return err
	}
	return tui.RunExplorer(tui.NewSessionExplorer(s))
}
