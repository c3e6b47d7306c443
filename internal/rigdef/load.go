package rigdef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/facerig/internal/rig"
	"github.com/Faultbox/facerig/pkg/binding"
)

// Load reads and validates a definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rig definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes and validates a definition. Unknown keys are rejected.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid("empty document")
		}
		return nil, fmt.Errorf("parse rig definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Marshal encodes a definition as YAML.
func Marshal(def *Definition) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(def); err != nil {
		return nil, fmt.Errorf("marshal rig definition: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes a definition to path.
func Save(path string, def *Definition) error {
	data, err := Marshal(def)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

// BasisPath resolves the basis mesh path relative to the definition file.
// It returns "" when the definition names no basis.
func (d *Definition) BasisPath(defPath string) string {
	if d.Basis == "" || filepath.IsAbs(d.Basis) {
		return d.Basis
	}
	return filepath.Join(filepath.Dir(defPath), d.Basis)
}

// Timeline returns the named timeline.
func (d *Definition) Timeline(name string) (*rig.Timeline, bool) {
	for i := range d.Timelines {
		if d.Timelines[i].Name == name {
			return &d.Timelines[i], true
		}
	}
	return nil, false
}

// Validate checks the document without a basis: every predicate, rule and
// expression must build, names must be unique, and references must point at
// declared regions and targets. All problems are reported together.
func (d *Definition) Validate() error {
	var errs error

	regions := make(map[string]bool, len(d.Regions))
	for _, reg := range d.Regions {
		if reg.Name == "" {
			errs = multierr.Append(errs, invalid("region without a name"))
			continue
		}
		if regions[reg.Name] {
			errs = multierr.Append(errs, invalid("region %q declared twice", reg.Name))
		}
		regions[reg.Name] = true
		if _, err := Predicate(reg.Where); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("region %q: %w", reg.Name, err))
		}
	}

	params := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		if params[p.Name] {
			errs = multierr.Append(errs, invalid("parameter %q declared twice", p.Name))
		}
		params[p.Name] = true
		if p.Min > p.Max {
			errs = multierr.Append(errs, invalid("parameter %q: min %g > max %g", p.Name, p.Min, p.Max))
		}
	}

	for _, j := range d.Joints {
		if _, err := j.driver(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	targets := make(map[string]bool, len(d.Targets))
	for _, t := range d.Targets {
		if targets[t.Name] {
			errs = multierr.Append(errs, invalid("target %q declared twice", t.Name))
		}
		targets[t.Name] = true
		if !regions[t.Region] {
			errs = multierr.Append(errs, invalid("target %q: unknown region %q", t.Name, t.Region))
		}
		if _, err := t.Spec(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	bound := make(map[string]bool, len(d.Bindings))
	for _, b := range d.Bindings {
		if !targets[b.Target] {
			errs = multierr.Append(errs, invalid("binding: unknown target %q", b.Target))
		}
		if bound[b.Target] {
			errs = multierr.Append(errs, invalid("target %q bound twice", b.Target))
		}
		bound[b.Target] = true
		if _, err := binding.Parse(b.Expression); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("binding %q: %w", b.Target, err))
		}
	}

	for _, tl := range d.Timelines {
		if tl.End < tl.Start {
			errs = multierr.Append(errs, invalid("timeline %q ends before it starts", tl.Name))
		}
		for _, k := range tl.Keys {
			for name := range k.Values {
				if !params[name] {
					errs = multierr.Append(errs, invalid("timeline %q key %d: unknown parameter %q", tl.Name, k.Frame, name))
				}
			}
		}
	}
	return errs
}

func (j JointDef) driver() (rig.JointDriver, error) {
	ch, err := binding.ParseChannel(j.Channel)
	if err != nil {
		return rig.JointDriver{}, fmt.Errorf("joint %q: %w", j.Joint, err)
	}
	expr, err := binding.Parse(j.Expression)
	if err != nil {
		return rig.JointDriver{}, fmt.Errorf("joint %q: %w", j.Joint, err)
	}
	if j.Min > j.Max {
		return rig.JointDriver{}, invalid("joint %q: limit min %g > max %g", j.Joint, j.Min, j.Max)
	}
	return rig.JointDriver{Joint: j.Joint, Channel: ch, Expr: expr, Min: j.Min, Max: j.Max}, nil
}

// Apply declares everything in d on r: regions, parameters, joint drivers,
// targets, then bindings. It stops at the first failure; the rig keeps what
// was declared before it.
func (d *Definition) Apply(r *rig.Rig) error {
	for _, reg := range d.Regions {
		pred, err := Predicate(reg.Where)
		if err != nil {
			return fmt.Errorf("region %q: %w", reg.Name, err)
		}
		if _, _, err := r.DeclareRegion(reg.Name, pred); err != nil {
			return err
		}
	}
	for _, p := range d.Parameters {
		if err := r.DeclareParameter(p.Name, p.Min, p.Max, p.Default); err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
	}
	for _, j := range d.Joints {
		drv, err := j.driver()
		if err != nil {
			return err
		}
		if err := r.DriveJoint(drv); err != nil {
			return err
		}
	}
	for _, t := range d.Targets {
		spec, err := t.Spec()
		if err != nil {
			return err
		}
		if _, err := r.GenerateTarget(spec); err != nil {
			return err
		}
	}
	for _, b := range d.Bindings {
		if err := r.BindText(b.Target, b.Expression); err != nil {
			return fmt.Errorf("binding %q: %w", b.Target, err)
		}
	}
	return nil
}
