package continuation

import (
	"math"
	"sort"

	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/stability"
)

// detectEvents reports folds, where the parameter component of the tangent
// reverses, and stability changes between consecutive points. A stability
// change inside a fold segment is reported once, as the fold.
func detectEvents(tr trace, id int) []dynamo.Event {
	type located struct {
		seg int
		ev  dynamo.Event
	}
	var found []located
	folded := make(map[int]bool)

	last := -1
	for k := range tr.points {
		if tr.tp[k] == 0 {
			continue
		}
		if last >= 0 && math.Signbit(tr.tp[last]) != math.Signbit(tr.tp[k]) {
			found = append(found, located{k, foldEvent(tr, last, k, id)})
			for s := last + 1; s <= k; s++ {
				folded[s] = true
			}
		}
		last = k
	}

	for k := 1; k < len(tr.points); k++ {
		a, b := tr.points[k-1], tr.points[k]
		if a.Stable == b.Stable || folded[k] {
			continue
		}
		found = append(found, located{k, stabilityEvent(a, b, id)})
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].seg < found[j].seg })
	events := make([]dynamo.Event, 0, len(found))
	for _, l := range found {
		events = append(events, l.ev)
	}
	return events
}

// foldEvent locates the turning point between points i and k with a
// quadratic model of p along the arc, using the tangent slopes at both ends.
func foldEvent(tr trace, i, k, id int) dynamo.Event {
	a, b := tr.points[i], tr.points[k]
	ta, tb := tr.tp[i], tr.tp[k]

	ds := 0.0
	for s := i + 1; s <= k; s++ {
		ds += tr.ds[s]
	}

	alpha := ta / (ta - tb)
	p := a.Param + ds*(ta*alpha+0.5*(tb-ta)*alpha*alpha)

	return dynamo.Event{
		Kind:   dynamo.Fold,
		Param:  p,
		State:  lerp(a.State, b.State, alpha),
		Branch: id,
	}
}

func stabilityEvent(a, b dynamo.Equilibrium, id int) dynamo.Event {
	la, lb := stability.Leading(a), stability.Leading(b)
	alpha := 0.5
	if la != lb && la*lb <= 0 {
		alpha = la / (la - lb)
	}
	return dynamo.Event{
		Kind:   dynamo.StabilityChange,
		Param:  a.Param + alpha*(b.Param-a.Param),
		State:  lerp(a.State, b.State, alpha),
		Branch: id,
	}
}

func lerp(a, b dynamo.State, alpha float64) dynamo.State {
	out := make(dynamo.State, len(a))
	for i := range a {
		out[i] = a[i] + alpha*(b[i]-a[i])
	}
	return out
}
