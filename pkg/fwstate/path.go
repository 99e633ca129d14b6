package fwstate

import (
	"fmt"
	"strings"

	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/util"
)

// PathError reports a forwarding loop or black hole detected during path
// extraction. Path is the partial path walked up to and including the
// offending router.
type PathError struct {
	Kind   error // util.ErrForwardingLoop or util.ErrForwardingBlackHole
	Prefix model.Prefix
	Path   []model.RouterID
}

func (e *PathError) Error() string {
	hops := make([]string, len(e.Path))
	for i, r := range e.Path {
		hops[i] = r.String()
	}
	return fmt.Sprintf("%v for prefix %s: %s", e.Kind, e.Prefix, strings.Join(hops, " -> "))
}

func (e *PathError) Unwrap() error {
	return e.Kind
}

// Paths returns every forwarding path from the router for the prefix,
// each ending at an egress. The walk fails with a PathError on the first
// loop (a router revisited within one walk) or black hole (a non-egress
// router without next hops).
func (s *State) Paths(router model.RouterID, prefix model.Prefix) ([][]model.RouterID, error) {
	var out [][]model.RouterID
	var walk func(node model.RouterID, path []model.RouterID) error
	walk = func(node model.RouterID, path []model.RouterID) error {
		for _, visited := range path {
			if visited == node {
				return &PathError{
					Kind:   util.ErrForwardingLoop,
					Prefix: prefix,
					Path:   append(append([]model.RouterID(nil), path...), node),
				}
			}
		}
		path = append(path, node)
		if s.egress[node] {
			out = append(out, append([]model.RouterID(nil), path...))
			return nil
		}
		hops := s.NextHops(node, prefix)
		if len(hops) == 0 {
			return &PathError{
				Kind:   util.ErrForwardingBlackHole,
				Prefix: prefix,
				Path:   append([]model.RouterID(nil), path...),
			}
		}
		for _, hop := range hops {
			if err := walk(hop, path); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(router, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// Path returns the first forwarding path from the router for the prefix.
func (s *State) Path(router model.RouterID, prefix model.Prefix) ([]model.RouterID, error) {
	paths, err := s.Paths(router, prefix)
	if err != nil {
		return nil, err
	}
	return paths[0], nil
}
