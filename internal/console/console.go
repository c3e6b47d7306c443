// Package console is a line-oriented command interpreter over a rig, used for
// scripting and interactive authoring.
//
// Arguments are split shell-style, so predicates and rules can be passed as
// quoted YAML flow mappings:
//
//	declare-region mouth '{axis: x, abs_below: 0.15}' '{axis: y, max: -0.5}'
//	generate-target Smile mouth '{offset: [0, 0, 0.04]}'
//	bind Smile 'smile * 0.8'
//	pose-joint Jaw rotate=-0.2,0,0 translate=0,0.01,0
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/facerig/internal/rig"
	"github.com/Faultbox/facerig/internal/rigdef"
	"github.com/Faultbox/facerig/pkg/binding"
	"github.com/Faultbox/facerig/pkg/formats"
	"github.com/Faultbox/facerig/pkg/math"
)

// Console errors.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

// CommandError reports a failed command and the name it was acting on.
type CommandError struct {
	Line    int
	Command string
	Name    string
	Err     error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	b.WriteString(e.Command)
	if e.Name != "" {
		fmt.Fprintf(&b, " %q", e.Name)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *CommandError) Unwrap() error { return e.Err }

type handler func(ctx context.Context, args []string) error

type command struct {
	usage string
	min   int
	run   handler
}

// Console executes commands against one rig. It is not safe for concurrent
// use; the rig itself is.
type Console struct {
	rig    *rig.Rig
	out    io.Writer
	log    *zap.Logger
	joints binding.Joints
	cmds   map[string]command
	parser *shellwords.Parser
}

// New creates a console writing command output to out.
func New(r *rig.Rig, out io.Writer, log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Console{
		rig:    r,
		out:    out,
		log:    log,
		joints: binding.Joints{},
		parser: shellwords.NewParser(),
	}
	c.cmds = map[string]command{
		"declare-region":    {"declare-region NAME PREDICATE...", 2, c.declareRegion},
		"generate-target":   {"generate-target NAME REGION RULE...", 3, c.generateTarget},
		"declare-parameter": {"declare-parameter NAME MIN MAX [DEFAULT]", 3, c.declareParameter},
		"bind":              {"bind TARGET EXPRESSION", 2, c.bind},
		"unbind":            {"unbind TARGET", 1, c.unbind},
		"set-parameter":     {"set-parameter NAME VALUE", 2, c.setParameter},
		"set-weight":        {"set-weight TARGET VALUE", 2, c.setWeight},
		"set-joint":         {"set-joint JOINT CHANNEL VALUE", 3, c.setJoint},
		"pose-joint":        {"pose-joint JOINT [translate=X,Y,Z] [rotate=X,Y,Z] [scale=X,Y,Z]", 1, c.poseJoint},
		"load-targets":      {"load-targets FILE.mtg", 1, c.loadTargets},
		"remove-target":     {"remove-target NAME", 1, c.removeTarget},
		"evaluate":          {"evaluate", 0, c.evaluate},
		"list":              {"list [regions|targets|parameters|bindings]", 0, c.list},
		"apply":             {"apply FILE", 1, c.apply},
		"help":              {"help", 0, c.help},
	}
	return c
}

// Exec runs one command line. Blank lines and # comments are ignored.
func (c *Console) Exec(ctx context.Context, line string) error {
	return c.exec(ctx, 0, line)
}

func (c *Console) exec(ctx context.Context, lineNo int, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	args, err := c.parser.Parse(line)
	if err != nil {
		return &CommandError{Line: lineNo, Command: "parse", Err: err}
	}
	if len(args) == 0 {
		return nil
	}

	name, args := args[0], args[1:]
	cmd, ok := c.cmds[name]
	if !ok {
		return &CommandError{Line: lineNo, Command: name, Err: ErrUnknownCommand}
	}
	if len(args) < cmd.min {
		return &CommandError{Line: lineNo, Command: name, Err: fmt.Errorf("%w: %s", ErrUsage, cmd.usage)}
	}
	c.log.Debug("console command", zap.String("command", name), zap.Strings("args", args))
	if err := cmd.run(ctx, args); err != nil {
		ce := &CommandError{Line: lineNo, Command: name, Err: err}
		if len(args) > 0 {
			ce.Name = args[0]
		}
		return ce
	}
	return nil
}

// Run executes every line of in. With keepGoing set, failures are reported
// to the output and collected; otherwise the first failure stops the script.
func (c *Console) Run(ctx context.Context, in io.Reader, keepGoing bool) error {
	var errs error
	sc := bufio.NewScanner(in)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.exec(ctx, lineNo, sc.Text())
		if err == nil {
			continue
		}
		if !keepGoing {
			return err
		}
		fmt.Fprintf(c.out, "error: %v\n", err)
		errs = multierr.Append(errs, err)
	}
	if err := sc.Err(); err != nil {
		return multierr.Append(errs, err)
	}
	return errs
}

func (c *Console) declareRegion(_ context.Context, args []string) error {
	terms := make([]rigdef.PredicateDef, len(args)-1)
	for i, a := range args[1:] {
		if err := yaml.Unmarshal([]byte(a), &terms[i]); err != nil {
			return fmt.Errorf("predicate %d: %w", i+1, err)
		}
	}
	pred, err := rigdef.Predicate(terms)
	if err != nil {
		return err
	}
	set, warn, err := c.rig.DeclareRegion(args[0], pred)
	if err != nil {
		return err
	}
	if warn != nil {
		fmt.Fprintf(c.out, "warning: %s\n", warn)
	}
	fmt.Fprintf(c.out, "region %s: %d vertices\n", args[0], len(set))
	return nil
}

func (c *Console) generateTarget(_ context.Context, args []string) error {
	def := rigdef.TargetDef{Name: args[0], Region: args[1]}
	for i, a := range args[2:] {
		var rd rigdef.RuleDef
		if err := yaml.Unmarshal([]byte(a), &rd); err != nil {
			return fmt.Errorf("rule %d: %w", i+1, err)
		}
		def.Rules = append(def.Rules, rd)
	}
	spec, err := def.Spec()
	if err != nil {
		return err
	}
	id, err := c.rig.GenerateTarget(spec)
	if err != nil {
		return err
	}
	if t, ok := c.rig.Store().Get(id); ok {
		fmt.Fprintf(c.out, "target %s: %d vertices displaced\n", t.Name, t.Delta.NonZero())
	}
	return nil
}

func (c *Console) declareParameter(_ context.Context, args []string) error {
	vals, err := floats(args[1:])
	if err != nil {
		return err
	}
	def := vals[0]
	if len(vals) > 2 {
		def = vals[2]
	}
	return c.rig.DeclareParameter(args[0], vals[0], vals[1], def)
}

func (c *Console) bind(_ context.Context, args []string) error {
	return c.rig.BindText(args[0], strings.Join(args[1:], " "))
}

func (c *Console) unbind(_ context.Context, args []string) error {
	return c.rig.Unbind(args[0])
}

func (c *Console) setParameter(_ context.Context, args []string) error {
	v, err := parseFloat(args[1])
	if err != nil {
		return err
	}
	if _, ok := c.lookupParam(args[0]); !ok {
		// Still queued; the rig drops it on the next evaluation.
		fmt.Fprintf(c.out, "warning: parameter %s is not declared\n", args[0])
	}
	c.rig.SetParameter(args[0], v)
	return nil
}

func (c *Console) lookupParam(name string) (float32, bool) {
	v, err := c.rig.Params().Get(name)
	return v, err == nil
}

func (c *Console) setWeight(_ context.Context, args []string) error {
	v, err := parseFloat(args[1])
	if err != nil {
		return err
	}
	return c.rig.SetTargetWeight(args[0], v)
}

func (c *Console) setJoint(_ context.Context, args []string) error {
	ch, err := binding.ParseChannel(args[1])
	if err != nil {
		return err
	}
	v, err := parseFloat(args[2])
	if err != nil {
		return err
	}
	var rot, loc math.Vec3
	if s, ok := c.joints[args[0]]; ok {
		rot, loc = s.Rotation.Euler(), s.Translation
	}
	switch ch {
	case binding.RotX:
		rot.X = v
	case binding.RotY:
		rot.Y = v
	case binding.RotZ:
		rot.Z = v
	case binding.LocX:
		loc.X = v
	case binding.LocY:
		loc.Y = v
	case binding.LocZ:
		loc.Z = v
	}
	c.joints[args[0]] = binding.SampleFromEuler(rot, loc)
	return nil
}

// poseJoint sets a joint from a local transform, composed as
// translate * rotZ * rotY * rotX * scale and decomposed like a skeleton's
// local matrix.
func (c *Console) poseJoint(_ context.Context, args []string) error {
	t, r := math.Vec3{}, math.Vec3{}
	sc := math.Splat(1)
	for _, a := range args[1:] {
		key, val, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("%w: expected key=x,y,z, got %q", ErrUsage, a)
		}
		v, err := parseVec3(val)
		if err != nil {
			return err
		}
		switch key {
		case "translate":
			t = v
		case "rotate":
			r = v
		case "scale":
			sc = v
		default:
			return fmt.Errorf("%w: unknown transform %q", ErrUsage, key)
		}
	}
	m := math.Identity().
		Mul(math.Translate(t.X, t.Y, t.Z)).
		Mul(math.RotateZ(r.Z)).
		Mul(math.RotateY(r.Y)).
		Mul(math.RotateX(r.X)).
		Mul(math.Scale(sc.X, sc.Y, sc.Z))
	c.joints[args[0]] = binding.SampleFromMat4(m)
	return nil
}

func (c *Console) loadTargets(_ context.Context, args []string) error {
	m, err := formats.ParseMTGFile(args[0])
	if err != nil {
		return err
	}
	ids, err := c.rig.ImportTargets(m)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "loaded %d targets from %s (MTG %s)\n", len(ids), args[0], m.Version)
	return nil
}

func (c *Console) removeTarget(_ context.Context, args []string) error {
	return c.rig.RemoveTarget(args[0])
}

func (c *Console) evaluate(ctx context.Context, _ []string) error {
	f, err := c.rig.Evaluate(ctx, c.joints)
	if err != nil {
		return err
	}
	for _, w := range f.Weights {
		state := ""
		if !w.Active {
			state = " (inactive)"
		}
		fmt.Fprintf(c.out, "  %-20s %.4f%s\n", w.Name, w.Weight, state)
	}
	for _, err := range f.Dropped {
		fmt.Fprintf(c.out, "dropped: %v\n", err)
	}
	for _, err := range multierr.Errors(f.BindingErrors) {
		fmt.Fprintf(c.out, "binding error: %v\n", err)
	}
	return nil
}

func (c *Console) list(_ context.Context, args []string) error {
	what := "targets"
	if len(args) > 0 {
		what = args[0]
	}
	switch what {
	case "regions":
		for _, info := range c.rig.Regions() {
			fmt.Fprintf(c.out, "  %-20s %6d  %s\n", info.Name, len(info.Set), info.Predicate)
		}
	case "targets":
		for _, t := range c.rig.Store().Targets() {
			fmt.Fprintf(c.out, "  %-20s %.4f  [%g, %g]  %d vertices\n",
				t.Name, t.Weight, t.Range.Min, t.Range.Max, t.Delta.NonZero())
		}
	case "parameters":
		for _, p := range c.rig.Params().Parameters() {
			fmt.Fprintf(c.out, "  %-20s %.4f  [%g, %g]\n", p.Name, p.Value, p.Min, p.Max)
		}
	case "bindings":
		for _, e := range c.rig.Graph().Table() {
			fmt.Fprintf(c.out, "  %-20s = %s\n", e.Target, e.Expression)
		}
	default:
		return fmt.Errorf("%w: list [regions|targets|parameters|bindings]", ErrUsage)
	}
	return nil
}

func (c *Console) apply(_ context.Context, args []string) error {
	def, err := rigdef.Load(args[0])
	if err != nil {
		return err
	}
	if err := def.Apply(c.rig); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "applied %s: %d regions, %d targets, %d bindings\n",
		def.Name, len(def.Regions), len(def.Targets), len(def.Bindings))
	return nil
}

func (c *Console) help(_ context.Context, _ []string) error {
	names := make([]string, 0, len(c.cmds))
	for name := range c.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.out, "  %s\n", c.cmds[name].usage)
	}
	return nil
}

func parseFloat(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return float32(v), nil
}

func parseVec3(s string) (math.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return math.Vec3{}, fmt.Errorf("invalid vector %q: want x,y,z", s)
	}
	v, err := floats(parts)
	if err != nil {
		return math.Vec3{}, err
	}
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

func floats(args []string) ([]float32, error) {
	out := make([]float32, len(args))
	for i, a := range args {
		v, err := parseFloat(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
