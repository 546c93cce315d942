package continuation_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/seaice/internal/continuation"
	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/physics"
)

// relax is dx/dt = p - x, a single stable branch x = p.
type relax struct{}

func (relax) StateDim() int                              { return 1 }
func (relax) Rate(x dynamo.State, p float64) dynamo.State { return dynamo.State{p - x[0]} }

// poisoned behaves like relax until p passes 0.5, then returns NaN.
type poisoned struct{ relax }

func (poisoned) Rate(x dynamo.State, p float64) dynamo.State {
	if p > 0.5 {
		return dynamo.State{math.NaN()}
	}
	return dynamo.State{p - x[0]}
}

func folds(b dynamo.Branch) []dynamo.Event {
	var out []dynamo.Event
	for _, e := range b.Events {
		if e.Kind == dynamo.Fold {
			out = append(out, e)
		}
	}
	return out
}

func stabilityFlips(b dynamo.Branch) int {
	n := 0
	for i := 1; i < len(b.Points); i++ {
		if b.Points[i].Stable != b.Points[i-1].Stable {
			n++
		}
	}
	return n
}

func newTracer(cfg dynamo.Config) *continuation.Tracer {
	tr, err := continuation.New(cfg)
	Expect(err).NotTo(HaveOccurred())
	return tr
}

var _ = Describe("Tracer", func() {
	var (
		ctx context.Context
		cfg dynamo.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = dynamo.DefaultConfig()
	})

	Describe("New", func() {
		It("rejects an invalid configuration", func() {
			cfg.MinStep = 1
			_, err := continuation.New(cfg)
			Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
		})
	})

	Context("on the fold normal form p - x²", func() {
		var branch dynamo.Branch

		BeforeEach(func() {
			var err error
			branch, err = newTracer(cfg).TraceBoth(ctx, physics.NewFold(), dynamo.Equilibrium{Param: 1, State: dynamo.State{0.9}})
			Expect(err).NotTo(HaveOccurred())
			Expect(branch.Err).NotTo(HaveOccurred())
		})

		It("turns around a single fold at p = 0", func() {
			f := folds(branch)
			Expect(f).To(HaveLen(1))
			Expect(f[0].Param).To(BeNumerically("~", 0, 1e-3))
			Expect(f[0].State[0]).To(BeNumerically("~", 0, 2e-2))
		})

		It("finds no equilibria for p < 0", func() {
			for _, pt := range branch.Points {
				Expect(pt.Param).To(BeNumerically(">=", -1e-9))
			}
		})

		It("covers both branches up to the range end", func() {
			first, last := branch.Points[0], branch.Points[branch.Len()-1]
			Expect(first.Param).To(BeNumerically("~", 1, 1e-9))
			Expect(first.State[0]).To(BeNumerically("~", -1, 1e-8))
			Expect(last.Param).To(BeNumerically("~", 1, 1e-9))
			Expect(last.State[0]).To(BeNumerically("~", 1, 1e-8))
		})

		It("keeps every point converged and within one parameter step", func() {
			for i, pt := range branch.Points {
				Expect(pt.Residual).To(BeNumerically("<", cfg.Tolerance))
				Expect(pt.Param - pt.State[0]*pt.State[0]).To(BeNumerically("~", 0, 1e-8))
				if i > 0 {
					dp := math.Abs(pt.Param - branch.Points[i-1].Param)
					Expect(dp).To(BeNumerically("<=", cfg.ParamStep*(1+1e-9)))
				}
			}
		})

		It("flips stability at the fold", func() {
			Expect(branch.Points[0].Stable).To(BeFalse())
			Expect(branch.Points[branch.Len()-1].Stable).To(BeTrue())
			Expect(stabilityFlips(branch)).To(Equal(len(branch.Events)))
			for _, e := range branch.Events {
				Expect(e.Kind).To(Equal(dynamo.Fold))
			}
		})
	})

	Context("with natural continuation", func() {
		BeforeEach(func() {
			cfg.Method = dynamo.MethodNatural
		})

		It("stalls at the fold", func() {
			branch, err := newTracer(cfg).Trace(ctx, physics.NewFold(), dynamo.Equilibrium{Param: 1, State: dynamo.State{1}}, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(branch.Err).To(MatchError(dynamo.ErrContinuationStalled))

			var se *dynamo.SolveError
			Expect(errors.As(branch.Err, &se)).To(BeTrue())

			last := branch.Points[branch.Len()-1]
			Expect(last.Param).To(BeNumerically(">=", -1e-9))
			Expect(last.Param).To(BeNumerically("<", 1e-4))
			Expect(se.Param).To(Equal(last.Param))
		})

		It("takes range/step steps on a regular branch", func() {
			cfg.ParamStep = 0.1
			branch, err := newTracer(cfg).Trace(ctx, relax{}, dynamo.Equilibrium{Param: -1, State: dynamo.State{-1}}, +1)
			Expect(err).NotTo(HaveOccurred())
			Expect(branch.Err).NotTo(HaveOccurred())
			Expect(branch.Len()).To(Equal(21))
			Expect(branch.Points[20].Param).To(Equal(1.0))
			for i := 1; i < branch.Len(); i++ {
				Expect(branch.Points[i].Param - branch.Points[i-1].Param).To(BeNumerically("~", 0.1, 1e-9))
			}
		})

		It("aborts on a model that returns NaN", func() {
			_, err := newTracer(cfg).Trace(ctx, poisoned{}, dynamo.Equilibrium{Param: -1, State: dynamo.State{-1}}, +1)
			Expect(err).To(MatchError(dynamo.ErrInvalidModel))
			Expect(dynamo.IsFatal(err)).To(BeTrue())
		})
	})

	It("covers the range with arclength steps on a regular branch", func() {
		cfg.ParamStep = 0.1
		branch, err := newTracer(cfg).Trace(ctx, relax{}, dynamo.Equilibrium{Param: -1, State: dynamo.State{-1}}, +1)
		Expect(err).NotTo(HaveOccurred())
		Expect(branch.Points[branch.Len()-1].Param).To(BeNumerically("~", 1, 1e-9))
		Expect(float64(branch.Len()-1) * cfg.ParamStep).To(BeNumerically(">=", 2))
		Expect(branch.Events).To(BeEmpty())
	})

	It("aborts with arclength on a model that returns NaN", func() {
		_, err := newTracer(cfg).Trace(ctx, poisoned{}, dynamo.Equilibrium{Param: -1, State: dynamo.State{-1}}, +1)
		Expect(err).To(MatchError(dynamo.ErrInvalidModel))
	})

	It("reports a start without an equilibrium on the branch", func() {
		branch, err := newTracer(cfg).TraceBoth(ctx, physics.NewFold(), dynamo.Equilibrium{Param: -0.5, State: dynamo.State{0}})
		Expect(err).NotTo(HaveOccurred())
		Expect(branch.Points).To(BeEmpty())
		Expect(branch.Err).To(MatchError(dynamo.ErrNoConvergence))
	})

	It("rejects a start outside the parameter range", func() {
		_, err := newTracer(cfg).Trace(ctx, physics.NewFold(), dynamo.Equilibrium{Param: 3, State: dynamo.State{1}}, -1)
		Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
	})

	It("stops when the context is cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := newTracer(cfg).Trace(cctx, relax{}, dynamo.Equilibrium{Param: -1, State: dynamo.State{-1}}, +1)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("reports a Hopf point as a stability change", func() {
		branch, err := newTracer(cfg).Trace(ctx, physics.NewVanDerPol(), dynamo.Equilibrium{Param: -1, State: dynamo.State{0, 0}}, +1)
		Expect(err).NotTo(HaveOccurred())
		Expect(branch.Events).To(HaveLen(1))
		Expect(branch.Events[0].Kind).To(Equal(dynamo.StabilityChange))
		Expect(branch.Events[0].Param).To(BeNumerically("~", 0, 1e-6))
		Expect(branch.Points[0].Stable).To(BeTrue())
		Expect(branch.Points[branch.Len()-1].Stable).To(BeFalse())
	})

	Context("on the sea-ice energy balance", func() {
		BeforeEach(func() {
			cfg.ParamMin, cfg.ParamMax = -30, 30
			cfg.ParamStep = 0.5
		})

		trace := func() dynamo.Branch {
			m := physics.NewSeaIce()
			branch, err := newTracer(cfg).TraceBoth(ctx, m, dynamo.Equilibrium{Param: 0, State: dynamo.State{255}})
			Expect(err).NotTo(HaveOccurred())
			Expect(branch.Err).NotTo(HaveOccurred())
			return branch
		}

		It("links the cold and warm states through two folds", func() {
			branch := trace()
			f := folds(branch)
			Expect(f).To(HaveLen(2))
			Expect(f[0].Param).To(BeNumerically(">", 15))
			Expect(f[0].Param).To(BeNumerically("<", 28))
			Expect(f[1].Param).To(BeNumerically("<", -18))
			Expect(f[1].Param).To(BeNumerically(">", -29))

			first, last := branch.Points[0], branch.Points[branch.Len()-1]
			Expect(first.Param).To(BeNumerically("~", -30, 1e-9))
			Expect(last.Param).To(BeNumerically("~", 30, 1e-9))
			Expect(first.State[0]).To(BeNumerically("<", last.State[0]))
			Expect(first.Stable).To(BeTrue())
			Expect(last.Stable).To(BeTrue())
			Expect(stabilityFlips(branch)).To(Equal(2))
		})

		It("is deterministic", func() {
			a, b := trace(), trace()
			Expect(a.Points).To(Equal(b.Points))
			Expect(a.Events).To(Equal(b.Events))
		})
	})

	It("follows the two-dimensional double well around both folds", func() {
		cfg.ParamMin, cfg.ParamMax = -2, 2
		cfg.ParamStep = 0.05
		dw := physics.NewDoubleWell()

		branch, err := newTracer(cfg).TraceBoth(ctx, dw, dynamo.Equilibrium{Param: 0, State: dynamo.State{1, 0}})
		Expect(err).NotTo(HaveOccurred())
		Expect(branch.Err).NotTo(HaveOccurred())

		f := folds(branch)
		Expect(f).To(HaveLen(2))
		Expect(math.Abs(f[0].Param)).To(BeNumerically("~", dw.FoldForce(), 1e-2))
		Expect(math.Abs(f[1].Param)).To(BeNumerically("~", dw.FoldForce(), 1e-2))
		Expect(f[0].Param * f[1].Param).To(BeNumerically("<", 0))
		Expect(stabilityFlips(branch)).To(Equal(2))
		for _, pt := range branch.Points {
			Expect(pt.State[1]).To(BeNumerically("~", 0, 1e-9))
		}
	})
})
