// Package allocation keeps a basket's target weights summing to 100 while the user edits them.
package allocation

import (
	"basket_swap/internal/core"
)

// Rebalance sets entry i to v and lets every other entry absorb the difference in proportion
// to its current weight, clamped at zero.
//
// The result is not renormalised after clamping, so its sum may drift away from 100 when
// entries hit the floor. When every other entry is already zero the others stay at zero and
// entry i is set to v regardless. v itself is not clamped. An out-of-range i returns an
// unchanged copy.
func Rebalance(current core.WeightVector, i int, v float64) core.WeightVector {
	next := current.Clone()
	if i < 0 || i >= len(next) {
		return next
	}

	diff := v - current[i].Weight
	totalOthers := othersTotal(current, i)

	if totalOthers > 0 {
		for j := range next {
			if j == i {
				continue
			}
			w := current[j].Weight
			adjusted := w - diff*w/totalOthers
			if adjusted < 0 {
				adjusted = 0
			}
			next[j].Weight = adjusted
		}
	}

	next[i].Weight = v
	return next
}

// othersTotal is the weight held by every entry but i
func othersTotal(v core.WeightVector, i int) float64 {
	total := 0.0
	for j, e := range v {
		if j != i {
			total += e.Weight
		}
	}
	return total
}
