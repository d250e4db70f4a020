package piping

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// Mismatch is a scenario whose critical head differs from its expected value
type Mismatch struct {
	Scenario string
	Expected float64
	Got      float64
}

// IsClose uses a relative tolerance the way math.isclose does, NaN is never close
func IsClose(a, b, relTol float64) bool {
	if a == b {
		return true
	}
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	return math.Abs(a-b) <= relTol*math.Max(math.Abs(a), math.Abs(b))
}

// Compare checks every expected scenario; expected scenarios missing from
// results are reported with a NaN head
func Compare(results []CriticalHead, expected map[string]float64, relTol float64) (mismatches []Mismatch) {
	got := make(map[string]float64, len(results))
	for _, r := range results {
		got[r.Scenario] = r.Head
	}
	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		head, ok := got[name]
		if !ok {
			head = math.NaN()
		}
		if !IsClose(expected[name], head, relTol) {
			mismatches = append(mismatches, Mismatch{Scenario: name, Expected: expected[name], Got: head})
		}
	}
	return
}

var csvHeader = []string{"scenario", "critical_head", "found", "reason", "probes"}

func WriteCSV(w io.Writer, results []CriticalHead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		rec := []string{
			r.Scenario,
			strconv.FormatFloat(r.Head, 'g', -1, 64),
			strconv.FormatBool(r.Found()),
			r.Reason.String(),
			strconv.Itoa(r.Probes),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads scenario -> critical head from a file written by WriteCSV,
// or any csv whose first two columns are scenario and head
func ReadCSV(r io.Reader) (heads map[string]float64, order []string, err error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	heads = make(map[string]float64)
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == csvHeader[0] {
			continue
		}
		if len(rec) < 2 {
			return nil, nil, fmt.Errorf("line %d: want at least 2 fields, got %d", i+1, len(rec))
		}
		var h float64
		if h, err = strconv.ParseFloat(rec[1], 64); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if _, dup := heads[rec[0]]; !dup {
			order = append(order, rec[0])
		}
		heads[rec[0]] = h
	}
	return
}

func Print(w io.Writer, results []CriticalHead) {
	for _, r := range results {
		if r.Found() {
			fmt.Fprintf(w, "%-48s critical head = %8.4f\t(%d runs)\n", r.Scenario, r.Head, r.Probes)
		} else {
			fmt.Fprintf(w, "%-48s critical head =      NaN\t(%d runs, %s)\n", r.Scenario, r.Probes, r.Reason)
		}
	}
}
