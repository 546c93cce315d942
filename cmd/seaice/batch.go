package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/seaice/internal/automation"
	"github.com/san-kum/seaice/internal/config"
	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/experiment"
	"github.com/san-kum/seaice/internal/export"
	"github.com/san-kum/seaice/internal/integrators"
	"github.com/san-kum/seaice/internal/logging"
	"github.com/san-kum/seaice/internal/optim"
	"github.com/san-kum/seaice/internal/storage"
	"github.com/san-kum/seaice/internal/viz"
)

var (
	initState  []float64
	integrator string
	dt         float64
	duration   float64
	svgFile    string
	svgWidth   int
	svgHeight  int
	theme      string

	steps     int
	jumpSize  float64
	spread    float64
	trials    int
	seed      int64
	basinTol  float64
	vary      []string
	scoreName string
	minimize  bool
	braille   bool
)

func batchCommands() []*cobra.Command {
	relaxCmd := &cobra.Command{
		Use:   "relax [model]",
		Short: "integrate a state at fixed parameter until it settles",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRelax,
	}
	addSolverFlags(relaxCmd)
	addRelaxFlags(relaxCmd)
	relaxCmd.Flags().Float64Var(&param, "param", 0, "parameter value")
	relaxCmd.Flags().StringVar(&svgFile, "svg", "", "write the trajectory to an svg file")
	relaxCmd.Flags().StringVar(&theme, "theme", "polar", "svg colour theme")
	relaxCmd.Flags().IntVar(&svgWidth, "width", 640, "svg width in pixels")
	relaxCmd.Flags().IntVar(&svgHeight, "height", 400, "svg height in pixels")

	hysteresisCmd := &cobra.Command{
		Use:   "hysteresis [model]",
		Short: "ramp the parameter up and down, relaxing at every step",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHysteresis,
	}
	addSolverFlags(hysteresisCmd)
	addRelaxFlags(hysteresisCmd)
	hysteresisCmd.Flags().IntVar(&steps, "steps", 121, "parameter values per pass")
	hysteresisCmd.Flags().Float64Var(&jumpSize, "jump", 1, "state change reported as a jump")

	basinsCmd := &cobra.Command{
		Use:   "basins [model]",
		Short: "sample initial states and count where they settle",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBasins,
	}
	addSolverFlags(basinsCmd)
	addRelaxFlags(basinsCmd)
	basinsCmd.Flags().Float64Var(&param, "param", 0, "parameter value")
	basinsCmd.Flags().Float64Var(&spread, "spread", 1, "uniform perturbation around --state")
	basinsCmd.Flags().IntVar(&trials, "trials", 100, "number of samples")
	basinsCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 uses the clock)")
	basinsCmd.Flags().Float64Var(&basinTol, "basin-tol", 1e-3, "distance under which final states share a basin")

	batchCmd := &cobra.Command{
		Use:   "batch [scenario.yaml]",
		Short: "run and save every step of a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the runs")

	gridCmd := &cobra.Command{
		Use:   "grid [model]",
		Short: "search model constants for the best scoring diagram",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGrid,
	}
	addSolverFlags(gridCmd)
	gridCmd.Flags().StringArrayVar(&vary, "vary", nil, "constant and its values as name=v1,v2,... (repeatable)")
	gridCmd.Flags().StringVar(&scoreName, "score", "hysteresis-width", "objective: "+strings.Join(optim.ScoreNames(), ", "))
	gridCmd.Flags().BoolVar(&minimize, "minimize", false, "prefer the lowest score")

	svgCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "render a saved run as svg",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	svgCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")
	svgCmd.Flags().IntVar(&svgWidth, "width", 640, "image width in pixels")
	svgCmd.Flags().IntVar(&svgHeight, "height", 400, "image height in pixels")
	svgCmd.Flags().BoolVar(&braille, "braille", false, "draw the dot canvas the explorer shows")
	svgCmd.Flags().StringVar(&theme, "theme", "polar", "colour theme: "+strings.Join(viz.ThemeNames(), ", "))

	return []*cobra.Command{relaxCmd, hysteresisCmd, basinsCmd, batchCmd, gridCmd, svgCmd}
}

func addRelaxFlags(cmd *cobra.Command) {
	d := integrators.DefaultRelaxOptions()
	cmd.Flags().Float64SliceVar(&initState, "state", nil, "initial state, comma separated")
	cmd.Flags().StringVar(&integrator, "integrator", d.Method, "integrator: "+strings.Join(integrators.Names(), ", "))
	cmd.Flags().Float64Var(&dt, "dt", d.Dt, "initial time step")
	cmd.Flags().Float64Var(&duration, "duration", d.Duration, "longest integration time")
}

func relaxOptions() integrators.RelaxOptions {
	opts := integrators.DefaultRelaxOptions()
	opts.Method = integrator
	opts.Dt = dt
	opts.Duration = duration
	return opts
}

func requireState(cfg *config.Config) ([]float64, error) {
	if len(initState) > 0 {
		return initState, nil
	}
	if len(cfg.Seeds) > 0 {
		return cfg.Seeds[0][1:], nil
	}
	return nil, fmt.Errorf("%w: --state is required for %s", dynamo.ErrInvalidConfig, cfg.Model)
}

func runRelax(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	x0, err := requireState(cfg)
	if err != nil {
		return err
	}
	exp, err := newExperiment(cfg, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := relaxOptions()
	opts.Record = svgFile != ""
	rel, err := integrators.Relax(ctx, exp.System(), x0, param, opts)
	if err != nil {
		return err
	}

	status := "settled"
	switch {
	case rel.Escaped:
		status = "escaped"
	case !rel.Settled:
		status = "still moving"
	}
	fmt.Printf("%s at %s = %g from %v: %s at t=%.4g after %d steps\n",
		cfg.Model, experiment.ParamName(exp.System()), param, x0, status, rel.Time, rel.Steps)
	fmt.Printf("state: %v\n", []float64(rel.State))

	if svgFile == "" {
		return nil
	}
	svg := export.TrajectoryToSVG(rel.Times, rel.States, svgWidth, svgHeight, viz.GetTheme(theme))
	return os.WriteFile(svgFile, []byte(svg), 0644)
}

func runHysteresis(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	x0, err := requireState(cfg)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunSweep(ctx, automation.ParameterSweep{
		Model:     cfg.Model,
		Constants: cfg.Constants,
		ParamMin:  cfg.Sweep.ParamMin,
		ParamMax:  cfg.Sweep.ParamMax,
		NumSteps:  steps,
		InitState: x0,
		Relax:     relaxOptions(),
	}, experiment.NewRegistry(), logger)
	if err != nil {
		return err
	}

	up := make([]float64, 0, steps)
	down := make([]float64, 0, steps)
	for _, r := range results {
		if r.Direction == automation.Up {
			up = append(up, r.State[0])
		} else {
			down = append(down, r.State[0])
		}
	}
	n := min(steps, 72)
	fmt.Printf("up   %s\n", viz.Sparkline(up, n))
	fmt.Printf("down %s\n", viz.Sparkline(down, n))

	jumps := automation.Jumps(results, jumpSize)
	if len(jumps) == 0 {
		fmt.Println("no jumps: the ramp is reversible")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PASS\tFROM\tTO\tBEFORE\tAFTER")
	for _, j := range jumps {
		fmt.Fprintf(tw, "%s\t%.4g\t%.4g\t%.6g\t%.6g\n", j.Direction, j.From, j.To, j.Before, j.After)
	}
	return tw.Flush()
}

func runBasins(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	x0, err := requireState(cfg)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunMonteCarlo(ctx, automation.MonteCarloConfig{
		Model:        cfg.Model,
		Constants:    cfg.Constants,
		Param:        param,
		BaseState:    x0,
		Perturbation: spread,
		NumTrials:    trials,
		Seed:         seed,
		Workers:      cfg.Workers,
		Relax:        relaxOptions(),
	}, experiment.NewRegistry(), logger)
	if err != nil {
		return err
	}

	basins, unsettled := automation.MonteCarloStats(results, basinTol)
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ATTRACTOR\tTRIALS\tSHARE")
	for _, b := range basins {
		fmt.Fprintf(tw, "%v\t%d\t%.1f%%\n", []float64(b.State), b.Count, 100*float64(b.Count)/float64(len(results)))
	}
	if unsettled > 0 {
		fmt.Fprintf(tw, "unsettled\t%d\t%.1f%%\n", unsettled, 100*float64(unsettled)/float64(len(results)))
	}
	return tw.Flush()
}

func runBatch(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	level := logLevel
	if level == "" {
		level = config.DefaultLogLevel
	}
	logger := logging.NewLogger(level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, runErr := automation.RunScenario(ctx, sc, experiment.NewRegistry(), logger)

	var st *storage.Store
	if !noSave && len(results) > 0 {
		st = storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		defer st.Close()
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tMODEL\tBRANCHES\tPOINTS\tFOLDS\tRUN")
	for _, r := range results {
		id := "-"
		if st != nil {
			if id, err = st.Save(r.Run); err != nil {
				return err
			}
		}
		res := r.Run.Result
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", r.Name, r.Run.Model, len(res.Branches), res.Points(), len(res.Folds()), id)
	}
	tw.Flush()
	return runErr
}

// parseVary reads name=v1,v2,... into a grid axis.
func parseVary(kv string) (string, []float64, error) {
	name, list, ok := strings.Cut(kv, "=")
	if !ok || list == "" {
		return "", nil, fmt.Errorf("%w: --vary wants name=v1,v2,..., got %q", dynamo.ErrInvalidConfig, kv)
	}
	var values []float64
	for _, s := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return "", nil, fmt.Errorf("%w: --vary %s: %v", dynamo.ErrInvalidConfig, name, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}

func runGrid(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	score, ok := optim.Scores[scoreName]
	if !ok {
		return fmt.Errorf("%w: unknown score %s (available: %v)", dynamo.ErrInvalidConfig, scoreName, optim.ScoreNames())
	}
	if len(vary) == 0 {
		return fmt.Errorf("%w: grid needs at least one --vary", dynamo.ErrInvalidConfig)
	}

	var names []string
	var ranges [][]float64
	for _, kv := range vary {
		name, values, err := parseVary(kv)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	build := func(params map[string]float64) (*experiment.Experiment, error) {
		c := cfg.Clone()
		if c.Constants == nil {
			c.Constants = make(map[string]float64, len(params))
		}
		for k, v := range params {
			c.Constants[k] = v
		}
		return newExperiment(c, nil)
	}

	g := optim.NewGridSearch(names, ranges)
	g.Minimize = minimize
	cells, best, err := g.Search(ctx, build, score)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(scoreName))
	for _, c := range cells {
		vals := make([]string, len(names))
		for i, n := range names {
			vals[i] = strconv.FormatFloat(c.Params[n], 'g', -1, 64)
		}
		result := strconv.FormatFloat(c.Score, 'g', 6, 64)
		if c.Err != nil {
			result = "error: " + c.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\n", strings.Join(vals, "\t"), result)
	}
	tw.Flush()
	fmt.Printf("\nbest: %v scores %.6g\n", best.Params, best.Score)
	return nil
}

func exportSVG(cmd *cobra.Command, args []string) error {
	meta, records, err := loadRun(args[0])
	if err != nil {
		return err
	}
	res := storage.Rebuild(meta, records)
	svg := export.DiagramToSVG(res, meta.ParamName, svgWidth, svgHeight, viz.GetTheme(theme))
	if braille {
		svg = export.DiagramToBrailleSVG(res, svgWidth, svgHeight, viz.GetTheme(theme))
	}

	w, err := output()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, svg); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
