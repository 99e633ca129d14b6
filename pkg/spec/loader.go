package spec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/sim"
	"github.com/netshift-network/netshift/pkg/util"
)

// File is the YAML form of a specification: a list of per-prefix
// invariant declarations with routers referenced by display name.
type File struct {
	Invariants []InvariantSpec `yaml:"invariants"`
}

// InvariantSpec is one declared invariant.
type InvariantSpec struct {
	Prefix    string        `yaml:"prefix"`
	Kind      string        `yaml:"kind"` // reachable, not_reachable, loop_free, path
	Router    string        `yaml:"router"`
	Condition *PathExprSpec `yaml:"condition,omitempty"`
}

// PathExprSpec is the YAML form of a path expression.
type PathExprSpec struct {
	Op     string         `yaml:"op"` // waypoint, avoid, seq, or, not
	Router string         `yaml:"router,omitempty"`
	Args   []PathExprSpec `yaml:"args,omitempty"`
}

// Loader reads and validates specification files, resolving router
// names against a network.
type Loader struct {
	path string
	file *File
}

// NewLoader creates a specification loader.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load parses the specification file.
func (l *Loader) Load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("loading specification: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing specification: %w", err)
	}
	l.file = &file
	return nil
}

// Build resolves the loaded file against a network and returns the
// specification.
func (l *Loader) Build(net *sim.Network) (Specification, error) {
	if l.file == nil {
		return nil, fmt.Errorf("specification not loaded - call Load() first")
	}
	return l.file.Build(net)
}

// Build resolves router names and prefixes against a network.
func (f *File) Build(net *sim.Network) (Specification, error) {
	out := make(Specification)
	v := &util.ValidationBuilder{}
	for i, decl := range f.Invariants {
		prefix, err := model.ParsePrefix(decl.Prefix)
		if err != nil {
			v.AddErrorf("invariant %d: %v", i, err)
			continue
		}
		router, ok := net.RouterByName(decl.Router)
		if !ok {
			v.AddErrorf("invariant %d: router '%s' not found", i, decl.Router)
			continue
		}
		switch decl.Kind {
		case "reachable":
			out.Add(Reachable{R: router, P: prefix})
		case "not_reachable":
			out.Add(NotReachable{R: router, P: prefix})
		case "loop_free":
			out.Add(LoopFree{R: router, P: prefix})
		case "path":
			if decl.Condition == nil {
				v.AddErrorf("invariant %d: path invariant needs a condition", i)
				continue
			}
			cond, err := decl.Condition.build(net)
			if err != nil {
				v.AddErrorf("invariant %d: %v", i, err)
				continue
			}
			out.Add(PathCondition{R: router, P: prefix, Cond: cond})
		default:
			v.AddErrorf("invariant %d: unknown kind '%s'", i, decl.Kind)
		}
	}
	if v.HasErrors() {
		return nil, v.Build()
	}
	return out, nil
}

func (s *PathExprSpec) build(net *sim.Network) (PathExpr, error) {
	resolve := func() (model.RouterID, error) {
		router, ok := net.RouterByName(s.Router)
		if !ok {
			return model.NoRouter, fmt.Errorf("router '%s' not found", s.Router)
		}
		return router, nil
	}
	buildArgs := func() ([]PathExpr, error) {
		out := make([]PathExpr, 0, len(s.Args))
		for i := range s.Args {
			sub, err := s.Args[i].build(net)
			if err != nil {
				return nil, err
			}
			out = append(out, sub)
		}
		return out, nil
	}
	switch s.Op {
	case "waypoint":
		router, err := resolve()
		if err != nil {
			return nil, err
		}
		return Waypoint{W: router}, nil
	case "avoid":
		router, err := resolve()
		if err != nil {
			return nil, err
		}
		return Avoid{W: router}, nil
	case "seq":
		args, err := buildArgs()
		if err != nil {
			return nil, err
		}
		return Seq{Exprs: args}, nil
	case "or":
		args, err := buildArgs()
		if err != nil {
			return nil, err
		}
		return Or{Exprs: args}, nil
	case "not":
		if len(s.Args) != 1 {
			return nil, fmt.Errorf("not takes exactly one argument")
		}
		sub, err := s.Args[0].build(net)
		if err != nil {
			return nil, err
		}
		return Not{Expr: sub}, nil
	default:
		return nil, fmt.Errorf("unknown path expression op '%s'", s.Op)
	}
}

// BuildReachability returns a specification requiring every internal
// router to reach every given prefix. It is the default specification of
// the evaluate command.
func BuildReachability(net *sim.Network, prefixes ...model.Prefix) Specification {
	out := make(Specification)
	for _, prefix := range prefixes {
		for _, router := range net.InternalRouters() {
			out.Add(Reachable{R: router, P: prefix})
		}
	}
	return out
}
