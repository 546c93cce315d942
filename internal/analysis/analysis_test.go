package analysis_test

import (
	"context"
	"math"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/seaice/internal/analysis"
	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/physics"
)

// broken returns NaN once p passes 0.5.
type broken struct{}

func (broken) StateDim() int { return 1 }
func (broken) Rate(x dynamo.State, p float64) dynamo.State {
	if p > 0.5 {
		return dynamo.State{math.NaN()}
	}
	return dynamo.State{p - x[0]}
}

func seaIceConfig() dynamo.Config {
	cfg := dynamo.DefaultConfig()
	cfg.ParamMin, cfg.ParamMax, cfg.ParamStep = -30, 30, 0.5
	cfg.StateMin, cfg.StateMax, cfg.StateSamples = 200, 370, 1701
	return cfg
}

func countKind(events []dynamo.Event, kind dynamo.EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

var _ = Describe("Scan", func() {
	It("finds two equilibria of p - x² only for p > 0", func() {
		cfg := dynamo.DefaultConfig()
		cfg.ParamStep = 0.3

		slices, err := analysis.Scan(physics.NewFold(), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(slices).To(HaveLen(8))

		for _, s := range slices {
			if s.Param < 0 {
				Expect(s.Equilibria).To(BeEmpty())
				continue
			}
			Expect(s.Equilibria).To(HaveLen(2))
			lo, hi := s.Equilibria[0], s.Equilibria[1]
			Expect(lo.State[0]).To(BeNumerically("~", -math.Sqrt(s.Param), 1e-8))
			Expect(hi.State[0]).To(BeNumerically("~", math.Sqrt(s.Param), 1e-8))
			Expect(lo.Stable).To(BeFalse())
			Expect(hi.Stable).To(BeTrue())
			Expect(lo.Residual).To(BeNumerically("<", cfg.Tolerance))
			Expect(hi.Residual).To(BeNumerically("<", cfg.Tolerance))
		}

		events := analysis.CountEvents(slices)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Kind).To(Equal(dynamo.CountChange))
		Expect(events[0].Param).To(BeNumerically(">", -0.1))
		Expect(events[0].Param).To(BeNumerically("<", 0.2))
		Expect(events[0].Before).To(Equal(0))
		Expect(events[0].After).To(Equal(2))
		Expect(events[0].Branch).To(Equal(-1))
	})

	It("finds the cold, intermediate and warm sea-ice states at ΔF = 0", func() {
		cfg := seaIceConfig()
		cfg.ParamMin, cfg.ParamMax, cfg.ParamStep = -0.5, 0.5, 0.5

		slices, err := analysis.Scan(physics.NewSeaIce(), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(slices).To(HaveLen(3))

		eq := slices[1].Equilibria
		Expect(slices[1].Param).To(BeNumerically("~", 0, 1e-12))
		Expect(eq).To(HaveLen(3))
		Expect(eq[0].State[0]).To(BeNumerically("~", 257.7, 0.1))
		Expect(eq[1].State[0]).To(BeNumerically(">", 263.15))
		Expect(eq[1].State[0]).To(BeNumerically("<", 283.15))
		Expect(eq[2].State[0]).To(BeNumerically("~", 287.8, 0.1))
		Expect([]bool{eq[0].Stable, eq[1].Stable, eq[2].Stable}).To(Equal([]bool{true, false, true}))
	})

	It("rejects systems with more than one state", func() {
		_, err := analysis.Scan(physics.NewDoubleWell(), dynamo.DefaultConfig())
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
	})

	It("rejects an empty state window", func() {
		cfg := dynamo.DefaultConfig()
		cfg.StateMin = cfg.StateMax
		_, err := analysis.Scan(physics.NewFold(), cfg)
		Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
	})

	It("seeds from the first slice and wherever the count rises", func() {
		mk := func(p float64, n int) analysis.Slice {
			s := analysis.Slice{Param: p}
			for i := 0; i < n; i++ {
				s.Equilibria = append(s.Equilibria, dynamo.Equilibrium{Param: p, State: dynamo.State{float64(i)}})
			}
			return s
		}
		seeds := analysis.SeedsFromScan([]analysis.Slice{mk(0, 1), mk(1, 1), mk(2, 3), mk(3, 1), mk(4, 2)})
		Expect(seeds).To(HaveLen(6))
		Expect(seeds[0].Param).To(Equal(0.0))
		Expect(seeds[1].Param).To(Equal(2.0))
		Expect(seeds[5].Param).To(Equal(4.0))
	})
})

var _ = Describe("Diagram", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("joins the sea-ice states into one S-shaped branch with two folds", func() {
		res, err := analysis.Diagram(ctx, physics.NewSeaIce(), seaIceConfig(), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Branches).To(HaveLen(1))
		Expect(res.Branches[0].ID).To(Equal(0))
		Expect(res.Branches[0].Err).NotTo(HaveOccurred())

		folds := res.Folds()
		Expect(folds).To(HaveLen(2))
		Expect(folds[0].Param).To(BeNumerically(">", 15))
		Expect(folds[1].Param).To(BeNumerically("<", -18))
		for _, f := range folds {
			Expect(f.Branch).To(Equal(0))
		}

		Expect(countKind(res.Events, dynamo.CountChange)).To(Equal(2))
		for _, e := range res.Events {
			if e.Kind == dynamo.CountChange {
				Expect(math.Abs(float64(e.After - e.Before))).To(Equal(2.0))
			}
		}
	})

	It("is deterministic across runs and worker counts", func() {
		cfg := seaIceConfig()
		a, err := analysis.Diagram(ctx, physics.NewSeaIce(), cfg, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		cfg.Workers = 1
		b, err := analysis.Diagram(ctx, physics.NewSeaIce(), cfg, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(b.Branches).To(HaveLen(len(a.Branches)))
		for i := range a.Branches {
			Expect(b.Branches[i].Points).To(Equal(a.Branches[i].Points))
		}
		Expect(b.Events).To(Equal(a.Events))
	})

	It("keeps both halves of the fold as separate natural branches", func() {
		cfg := dynamo.DefaultConfig()
		cfg.Method = dynamo.MethodNatural

		res, err := analysis.Diagram(ctx, physics.NewFold(), cfg, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Branches).To(HaveLen(2))
		for _, b := range res.Branches {
			Expect(b.Err).To(MatchError(dynamo.ErrContinuationStalled))
			lo, hi := b.ParamRange()
			Expect(lo).To(BeNumerically(">=", -1e-9))
			Expect(lo).To(BeNumerically("<", 1e-3))
			Expect(hi).To(BeNumerically("~", 1, 1e-9))
		}
		lower, upper := res.Branches[0], res.Branches[1]
		Expect(lower.Points[lower.Len()-1].State[0]).To(BeNumerically("~", -1, 1e-8))
		Expect(upper.Points[upper.Len()-1].State[0]).To(BeNumerically("~", 1, 1e-8))
	})

	It("collapses seeds on the same branch of a planar system", func() {
		cfg := dynamo.DefaultConfig()
		cfg.ParamMin, cfg.ParamMax, cfg.ParamStep = -2, 2, 0.05
		seeds := []dynamo.Equilibrium{
			{Param: 0, State: dynamo.State{1, 0}},
			{Param: 0, State: dynamo.State{0, 0}},
			{Param: 0, State: dynamo.State{-1, 0}},
		}

		res, err := analysis.Diagram(ctx, physics.NewDoubleWell(), cfg, seeds, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Branches).To(HaveLen(1))
		Expect(res.Slices).To(BeEmpty())
		Expect(res.Folds()).To(HaveLen(2))
	})

	It("needs seeds for a planar system", func() {
		_, err := analysis.Diagram(ctx, physics.NewDoubleWell(), dynamo.DefaultConfig(), nil, nil)
		Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
	})

	It("rejects seeds of the wrong dimension", func() {
		seeds := []dynamo.Equilibrium{{Param: 0, State: dynamo.State{1}}}
		_, err := analysis.Diagram(ctx, physics.NewDoubleWell(), dynamo.DefaultConfig(), seeds, nil)
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
	})

	It("aborts on an invalid model", func() {
		_, err := analysis.Diagram(ctx, broken{}, dynamo.DefaultConfig(), nil, nil)
		Expect(err).To(MatchError(dynamo.ErrInvalidModel))
		Expect(dynamo.IsFatal(err)).To(BeTrue())
	})
})

var _ = Describe("Rendering", func() {
	It("draws stable, unstable and event marks", func() {
		cfg := dynamo.DefaultConfig()
		cfg.ParamStep = 0.05
		res, err := analysis.Diagram(context.Background(), physics.NewFold(), cfg, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		out := analysis.RenderASCII(res, 40, 12)
		lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
		Expect(lines).To(HaveLen(12))
		Expect(out).To(ContainSubstring("•"))
		Expect(out).To(ContainSubstring("·"))
		Expect(out).To(ContainSubstring("×"))
	})

	It("returns nothing for an empty result", func() {
		Expect(analysis.RenderASCII(&analysis.Result{}, 40, 12)).To(BeEmpty())
	})

	It("samples the sea-ice rate curve with its two extrema", func() {
		c, err := analysis.SampleRate(physics.NewSeaIce(), 0, 200, 370, 1701)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Points).To(HaveLen(1701))
		Expect(c.Extrema()).To(HaveLen(2))
		Expect(analysis.RateCurveToASCII(c, 60, 15)).To(ContainSubstring("─"))
	})

	It("takes the state window from the model when it has one", func() {
		cfg := dynamo.DefaultConfig()
		lo, hi := analysis.StateWindow(physics.NewSeaIce(), cfg)
		Expect(lo).To(Equal(200.0))
		Expect(hi).To(Equal(370.0))

		lo, hi = analysis.StateWindow(physics.NewFold(), cfg)
		Expect(lo).To(Equal(cfg.StateMin))
		Expect(hi).To(Equal(cfg.StateMax))
	})
})

var _ = Describe("Point queries", func() {
	It("finds the sea-ice equilibria at a single forcing", func() {
		s, err := analysis.SliceAt(physics.NewSeaIce(), seaIceConfig(), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Equilibria).To(HaveLen(3))

		_, err = analysis.SliceAt(physics.NewDoubleWell(), seaIceConfig(), 0)
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
	})

	It("interpolates branch crossings at a parameter value", func() {
		cfg := dynamo.DefaultConfig()
		cfg.ParamStep = 0.05
		res, err := analysis.Diagram(context.Background(), physics.NewFold(), cfg, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		xs := res.Crossings(0.49)
		Expect(xs).To(HaveLen(2))
		Expect(xs[0].State[0]).To(BeNumerically("~", -0.7, 1e-2))
		Expect(xs[0].Stable).To(BeFalse())
		Expect(xs[1].State[0]).To(BeNumerically("~", 0.7, 1e-2))
		Expect(xs[1].Stable).To(BeTrue())

		Expect(res.Crossings(-0.5)).To(BeEmpty())
	})
})
