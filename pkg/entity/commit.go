package entity

import (
	"github.com/pabra/hilfmir/internal/logging"
	"github.com/pabra/hilfmir/pkg/authkeys"
	"github.com/pabra/hilfmir/pkg/registry"
)

type keyRef struct {
	publicKey string
	name      string
	role      registry.Role
}

// change lists the authorized_keys edits that go with a registry write.
// remove is applied before add.
type change struct {
	remove *keyRef
	add    *keyRef
}

// commit applies c to the authorized_keys file, then saves doc. If any step
// fails, the authorized_keys file is put back byte for byte.
func (m *Manager) commit(doc *registry.Document, c change) error {
	if m.keys == nil {
		return m.store.Save(doc)
	}

	snap, err := m.keys.Snapshot()
	if err != nil {
		return err
	}

	if c.remove != nil {
		changed, err := m.keys.Remove(c.remove.publicKey, c.remove.name, c.remove.role)
		if err != nil {
			m.revert(snap)
			return err
		}
		if !changed {
			logging.Warnf("%s has no entry for %s %q with the registered key; run 'hilfmir check'",
				m.keys.Path(), c.remove.role, c.remove.name)
		}
	}

	if c.add != nil {
		if err := m.keys.Append(c.add.publicKey, c.add.name, c.add.role); err != nil {
			m.revert(snap)
			return err
		}
	}

	if err := m.store.Save(doc); err != nil {
		m.revert(snap)
		return err
	}
	return nil
}

func (m *Manager) revert(snap authkeys.Snapshot) {
	if err := m.keys.Restore(snap); err != nil {
		logging.Errorf("could not revert %s: %v", m.keys.Path(), err)
	}
}
