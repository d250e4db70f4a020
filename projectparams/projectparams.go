// Package projectparams reads and patches the solver's JSON project parameter
// file. Only the targeted reference coordinates change value. Key order and
// number literals of other fields are kept; the file is reindented, strings
// may come back with HTML characters escaped (\u003c for <), and the patched
// coordinate is written in Go's shortest form (0 rather than 0.0).
package projectparams

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

const Indent = "    "

var (
	ErrNoConstraints = errors.New("parameter file has no processes.constraints_process_list entries")
	ErrNoMatch       = errors.New("no constraint process selected for patching")
)

// Constraint is the part of a constraints_process_list entry the driver looks at
type Constraint struct {
	Index               int
	ModelPartName       string
	ReferenceCoordinate *float64
}

// Selector picks the constraints whose reference coordinate carries the head.
// A constraint is selected when its model part name contains TargetModelPart,
// and the first constraint is always selected when PatchFirst is set.
type Selector struct {
	TargetModelPart string
	PatchFirst      bool
}

func (s Selector) Select(cs []Constraint) (indices []int) {
	for _, c := range cs {
		if (c.Index == 0 && s.PatchFirst) ||
			(len(s.TargetModelPart) != 0 && strings.Contains(c.ModelPartName, s.TargetModelPart)) {
			indices = append(indices, c.Index)
		}
	}
	return
}

type Document struct {
	raw []byte
}

func Parse(data []byte) (*Document, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("parameter file is not valid JSON")
	}
	return &Document{raw: append([]byte(nil), data...)}, nil
}

func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func (d *Document) Bytes() []byte { return d.raw }

type constraintView struct {
	Processes *struct {
		ConstraintsProcessList []struct {
			Parameters struct {
				ModelPartName       string   `json:"model_part_name"`
				ReferenceCoordinate *float64 `json:"reference_coordinate"`
			} `json:"Parameters"`
		} `json:"constraints_process_list"`
	} `json:"processes"`
}

func (d *Document) Constraints() (cs []Constraint, err error) {
	var view constraintView
	if err = json.Unmarshal(d.raw, &view); err != nil {
		return nil, fmt.Errorf("decoding constraints: %w", err)
	}
	if view.Processes == nil || len(view.Processes.ConstraintsProcessList) == 0 {
		return nil, ErrNoConstraints
	}
	cs = make([]Constraint, len(view.Processes.ConstraintsProcessList))
	for i, p := range view.Processes.ConstraintsProcessList {
		cs[i] = Constraint{
			Index:               i,
			ModelPartName:       p.Parameters.ModelPartName,
			ReferenceCoordinate: p.Parameters.ReferenceCoordinate,
		}
	}
	return
}

type operation struct {
	Op    string  `json:"op"`
	Path  string  `json:"path"`
	Value float64 `json:"value"`
}

// SetReferenceCoordinate writes value into every selected constraint and
// returns the patched indices. The document is reindented with four spaces.
func (d *Document) SetReferenceCoordinate(sel Selector, value float64) (indices []int, err error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("reference coordinate must be finite, got %v", value)
	}
	cs, err := d.Constraints()
	if err != nil {
		return nil, err
	}
	if indices = sel.Select(cs); len(indices) == 0 {
		return nil, ErrNoMatch
	}
	ops := make([]operation, len(indices))
	for i, idx := range indices {
		ops[i] = operation{
			// add sets or replaces an object member
			Op:    "add",
			Path:  fmt.Sprintf("/processes/constraints_process_list/%d/Parameters/reference_coordinate", idx),
			Value: value,
		}
	}
	patchJSON, err := json.Marshal(ops)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return nil, fmt.Errorf("building patch: %w", err)
	}
	out, err := patch.ApplyIndent(d.raw, Indent)
	if err != nil {
		return nil, fmt.Errorf("applying patch: %w", err)
	}
	d.raw = out
	return indices, nil
}

// Save replaces path atomically, keeping the file mode of an existing file
func (d *Document) Save(path string) (err error) {
	mode := os.FileMode(0644)
	if fi, serr := os.Stat(path); serr == nil {
		mode = fi.Mode().Perm()
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if _, err = f.Write(d.raw); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Chmod(f.Name(), mode); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// PatchHead loads path, sets the head on the selected constraints and saves it back
func PatchHead(path string, sel Selector, head float64) (indices []int, err error) {
	d, err := Load(path)
	if err != nil {
		return nil, err
	}
	if indices, err = d.SetReferenceCoordinate(sel, head); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err = d.Save(path); err != nil {
		return nil, err
	}
	return indices, nil
}
