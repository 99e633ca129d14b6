package policy

import (
	"encoding/json"

	"github.com/netshift-network/netshift/pkg/model"
)

// matchJSON mirrors Match with prefixes in their string form.
type matchJSON struct {
	PrefixIn          []string         `json:"prefix_in,omitempty"`
	ASPathContains    *model.ASN       `json:"as_path_contains,omitempty"`
	ASPathLengthEqual *int             `json:"as_path_length_equal,omitempty"`
	ASPathLengthMin   *int             `json:"as_path_length_min,omitempty"`
	ASPathLengthMax   *int             `json:"as_path_length_max,omitempty"`
	NextHopIs         *model.RouterID  `json:"next_hop_is,omitempty"`
	CommunityPresent  *model.Community `json:"community_present,omitempty"`
	CommunityAbsent   *model.Community `json:"community_absent,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m Match) MarshalJSON() ([]byte, error) {
	w := matchJSON{
		ASPathContains:    m.ASPathContains,
		ASPathLengthEqual: m.ASPathLengthEqual,
		ASPathLengthMin:   m.ASPathLengthMin,
		ASPathLengthMax:   m.ASPathLengthMax,
		NextHopIs:         m.NextHopIs,
		CommunityPresent:  m.CommunityPresent,
		CommunityAbsent:   m.CommunityAbsent,
	}
	for _, p := range m.PrefixIn {
		w.PrefixIn = append(w.PrefixIn, p.String())
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Match) UnmarshalJSON(data []byte) error {
	var w matchJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.PrefixIn = nil
	for _, s := range w.PrefixIn {
		p, err := model.ParsePrefix(s)
		if err != nil {
			return err
		}
		m.PrefixIn = append(m.PrefixIn, p)
	}
	m.ASPathContains = w.ASPathContains
	m.ASPathLengthEqual = w.ASPathLengthEqual
	m.ASPathLengthMin = w.ASPathLengthMin
	m.ASPathLengthMax = w.ASPathLengthMax
	m.NextHopIs = w.NextHopIs
	m.CommunityPresent = w.CommunityPresent
	m.CommunityAbsent = w.CommunityAbsent
	return nil
}
