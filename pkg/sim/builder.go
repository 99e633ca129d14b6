package sim

import (
	"fmt"

	"github.com/netshift-network/netshift/pkg/model"
)

// Builder provides programmatic network construction helpers used by
// tests, scenarios and the CLI.
type Builder struct {
	Net *Network
}

// NewBuilder wraps a network for construction.
func NewBuilder(net *Network) *Builder {
	return &Builder{Net: net}
}

// CompleteGraph creates k internal routers connected pairwise with the
// given link weight.
func (b *Builder) CompleteGraph(k int, weight float64) ([]model.RouterID, error) {
	ids := make([]model.RouterID, 0, k)
	for i := 0; i < k; i++ {
		ids = append(ids, b.Net.AddRouter(fmt.Sprintf("r%d", i)))
	}
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			if err := b.Net.AddLink(ids[i], ids[j]); err != nil {
				return nil, err
			}
			if err := b.Net.SetLinkWeight(ids[i], ids[j], weight); err != nil {
				return nil, err
			}
			if err := b.Net.SetLinkWeight(ids[j], ids[i], weight); err != nil {
				return nil, err
			}
		}
	}
	return ids, nil
}

// LinearPath creates a chain of internal routers with unit link weights.
func (b *Builder) LinearPath(names ...string) ([]model.RouterID, error) {
	ids := make([]model.RouterID, 0, len(names))
	for _, name := range names {
		ids = append(ids, b.Net.AddRouter(name))
	}
	for i := 0; i+1 < len(ids); i++ {
		if err := b.Net.AddLink(ids[i], ids[i+1]); err != nil {
			return nil, err
		}
		if err := b.Net.SetLinkWeight(ids[i], ids[i+1], 1); err != nil {
			return nil, err
		}
		if err := b.Net.SetLinkWeight(ids[i+1], ids[i], 1); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// AttachExternal creates an external router linked to the given internal
// router with an eBGP session and unit link weights.
func (b *Builder) AttachExternal(name string, asn model.ASN, attach model.RouterID) (model.RouterID, error) {
	ext := b.Net.AddExternalRouter(name, asn)
	if err := b.Net.AddLink(ext, attach); err != nil {
		return model.NoRouter, err
	}
	if err := b.Net.SetLinkWeight(ext, attach, 1); err != nil {
		return model.NoRouter, err
	}
	if err := b.Net.SetLinkWeight(attach, ext, 1); err != nil {
		return model.NoRouter, err
	}
	if err := b.Net.SetBgpSession(attach, ext, model.SessionEBgp); err != nil {
		return model.NoRouter, err
	}
	return ext, nil
}

// IBgpFullMesh creates iBGP peer sessions between every pair of internal
// routers.
func (b *Builder) IBgpFullMesh() error {
	ids := b.Net.InternalRouters()
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if b.Net.HasBgpSession(ids[i], ids[j]) {
				continue
			}
			if err := b.Net.SetBgpSession(ids[i], ids[j], model.SessionIBgpPeer); err != nil {
				return err
			}
		}
	}
	return nil
}

// IBgpRouteReflection builds a route-reflection topology: the given
// reflectors form a full mesh among themselves and every other internal
// router becomes a client of every reflector.
func (b *Builder) IBgpRouteReflection(reflectors ...model.RouterID) error {
	isReflector := make(map[model.RouterID]bool, len(reflectors))
	for _, r := range reflectors {
		isReflector[r] = true
	}
	for i := 0; i < len(reflectors); i++ {
		for j := i + 1; j < len(reflectors); j++ {
			if err := b.Net.SetBgpSession(reflectors[i], reflectors[j], model.SessionIBgpPeer); err != nil {
				return err
			}
		}
	}
	for _, id := range b.Net.InternalRouters() {
		if isReflector[id] {
			continue
		}
		for _, rr := range reflectors {
			if err := b.Net.SetBgpSession(rr, id, model.SessionIBgpClient); err != nil {
				return err
			}
		}
	}
	return nil
}

// UniquePreferences advertises the prefix from each external router with
// a strictly distinct AS-path length, so the first router wins and every
// later router is a progressively worse fallback.
func (b *Builder) UniquePreferences(prefix model.Prefix, externals []model.RouterID) error {
	for i, ext := range externals {
		e, err := b.Net.GetExternal(ext)
		if err != nil {
			return err
		}
		path := make([]model.ASN, 0, i+1)
		path = append(path, e.ASN())
		for j := 0; j < i; j++ {
			path = append(path, e.ASN())
		}
		if err := b.Net.AdvertiseExternalRoute(ext, prefix, path, nil, nil); err != nil {
			return err
		}
	}
	return nil
}
