package entity

import (
	"fmt"
	"sort"

	"github.com/pabra/hilfmir/pkg/authkeys"
	"github.com/pabra/hilfmir/pkg/registry"
)

// Drift describes a mismatch between the registry and authorized_keys.
type Drift struct {
	Name    string
	Role    registry.Role
	Problem string
}

func (d Drift) String() string {
	return fmt.Sprintf("%s %s: %s", d.Role, d.Name, d.Problem)
}

// Audit compares the registry with the managed authorized_keys entries.
// Without an authorized_keys file to maintain it reports nothing.
func (m *Manager) Audit() ([]Drift, error) {
	if m.keys == nil {
		return nil, nil
	}

	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	entries, err := m.keys.Entries()
	if err != nil {
		return nil, err
	}

	type id struct {
		name string
		role registry.Role
	}
	want := make(map[id]string, len(doc.Helpers)+len(doc.Seekers))
	for name, h := range doc.Helpers {
		want[id{name, registry.RoleHelper}] = h.PublicKey
	}
	for name, s := range doc.Seekers {
		want[id{name, registry.RoleSeeker}] = s.PublicKey
	}

	found := make(map[id][]authkeys.Entry)
	for _, e := range entries {
		k := id{e.Name, e.Role}
		found[k] = append(found[k], e)
	}

	var drift []Drift
	for k, key := range want {
		got := found[k]
		switch {
		case len(got) == 0:
			drift = append(drift, Drift{k.name, k.role, "missing from authorized_keys"})
		case len(got) > 1:
			drift = append(drift, Drift{k.name, k.role, fmt.Sprintf("%d entries in authorized_keys", len(got))})
		case got[0].PublicKey != key:
			drift = append(drift, Drift{k.name, k.role, "authorized_keys has a different key"})
		}
	}
	for k := range found {
		if _, ok := want[k]; !ok {
			drift = append(drift, Drift{k.name, k.role, "in authorized_keys but not registered"})
		}
	}

	sort.Slice(drift, func(i, j int) bool {
		if drift[i].Role != drift[j].Role {
			return drift[i].Role < drift[j].Role
		}
		return drift[i].Name < drift[j].Name
	})
	return drift, nil
}
