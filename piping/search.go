// Package piping searches for the critical hydraulic head of a scenario: the
// largest candidate head below the first one at which every piping element
// reports an active pipe.
package piping

import (
	"context"
	"math"
)

// Probe runs the model at head and reports whether all pipe elements are active
type Probe func(ctx context.Context, head float64) (active bool, err error)

type Reason uint8

const (
	Found Reason = iota
	EmptySequence
	NeverActive
	ActiveAtFirstHead
	// NoPipeElements means the simulation reported no element states
	NoPipeElements
)

func (r Reason) String() string {
	switch r {
	case Found:
		return "found"
	case EmptySequence:
		return "empty head sequence"
	case NeverActive:
		return "never active"
	case ActiveAtFirstHead:
		return "active at first head"
	case NoPipeElements:
		return "no pipe elements"
	}
	return "unknown"
}

// Search is the outcome of one search over a head sequence
type Search struct {
	Head   float64 // NaN unless Reason is Found
	Reason Reason
	Probes int
	// FirstActive is the index of the first active head, -1 when none was seen
	FirstActive int
}

func (s Search) Found() bool { return s.Reason == Found }

func notFound(reason Reason, probes, firstActive int) Search {
	return Search{Head: math.NaN(), Reason: reason, Probes: probes, FirstActive: firstActive}
}

func foundAt(heads []float64, firstActive, probes int) Search {
	if firstActive == 0 {
		return notFound(ActiveAtFirstHead, probes, 0)
	}
	return Search{Head: heads[firstActive-1], Reason: Found, Probes: probes, FirstActive: firstActive}
}

// LinearSearch probes the heads in order and stops at the first active one
func LinearSearch(ctx context.Context, heads []float64, probe Probe) (Search, error) {
	if len(heads) == 0 {
		return notFound(EmptySequence, 0, -1), nil
	}
	for i, head := range heads {
		active, err := probe(ctx, head)
		if err != nil {
			return notFound(NeverActive, i+1, -1), err
		}
		if active {
			return foundAt(heads, i, i+1), nil
		}
	}
	return notFound(NeverActive, len(heads), -1), nil
}

// BisectSearch finds the first active head with O(log n) probes. It gives the
// same answer as LinearSearch when activation is monotone in the head.
func BisectSearch(ctx context.Context, heads []float64, probe Probe) (Search, error) {
	var (
		probes = 0
		lo, hi = 0, len(heads) // first active index lies in [lo, hi], hi meaning none
	)
	if len(heads) == 0 {
		return notFound(EmptySequence, 0, -1), nil
	}
	for lo < hi {
		mid := lo + (hi-lo)/2
		active, err := probe(ctx, heads[mid])
		probes++
		if err != nil {
			return notFound(NeverActive, probes, -1), err
		}
		if active {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == len(heads) {
		return notFound(NeverActive, probes, -1), nil
	}
	return foundAt(heads, lo, probes), nil
}
