// Package analysis assembles bifurcation diagrams from the continuation
// and root finding packages.
//
//   - [Scan]: equilibria of a one-dimensional system on a parameter grid,
//     found by bracketing sign changes of the rate
//   - [CountEvents]: parameter values where the number of equilibria changes
//   - [Diagram]: distinct branches traced from seeds, in parallel
//   - [RenderASCII]: text rendering of a diagram
//   - [SampleRate]: the rate curve f(x; p) at a fixed parameter
//
// # Building a diagram
//
//	cfg := dynamo.DefaultConfig()
//	cfg.ParamMin, cfg.ParamMax, cfg.ParamStep = -30, 30, 0.5
//	cfg.StateMin, cfg.StateMax, cfg.StateSamples = 200, 370, 1701
//	res, err := analysis.Diagram(ctx, physics.NewSeaIce(), cfg, nil, logger)
//	if err != nil {
//	    return err
//	}
//	fmt.Print(analysis.RenderASCII(res, 80, 24))
package analysis
