// Package entity adds, updates and removes helpers and seekers, keeping the
// registry and the proxy's authorized_keys file in step.
package entity

import (
	"fmt"
	"sort"

	"github.com/pabra/hilfmir/internal/errors"
	"github.com/pabra/hilfmir/internal/logging"
	"github.com/pabra/hilfmir/pkg/authkeys"
	"github.com/pabra/hilfmir/pkg/registry"
)

// NamedHelper is a helper together with its registry name.
type NamedHelper struct {
	Name string
	registry.Helper
}

// NamedSeeker is a seeker together with its registry name.
type NamedSeeker struct {
	Name string
	registry.Seeker
}

// Manager performs one validated change per call. Every operation validates
// all input before anything is written.
type Manager struct {
	store *registry.Store
	keys  *authkeys.Editor
}

// NewManager creates a manager. keys may be nil, in which case no
// authorized_keys file is maintained.
func NewManager(store *registry.Store, keys *authkeys.Editor) *Manager {
	return &Manager{
		store: store,
		keys:  keys,
	}
}

// Store returns the registry store.
func (m *Manager) Store() *registry.Store {
	return m.store
}

// ManagesKeys reports whether an authorized_keys file is maintained.
func (m *Manager) ManagesKeys() bool {
	return m.keys != nil
}

// CheckNewHelper fails unless name is valid and not yet a helper.
func (m *Manager) CheckNewHelper(name string) error {
	_, err := m.prepareNew(name, registry.RoleHelper)
	return err
}

// CheckNewSeeker fails unless name is valid and not yet a seeker.
func (m *Manager) CheckNewSeeker(name string) error {
	_, err := m.prepareNew(name, registry.RoleSeeker)
	return err
}

// Helper returns the helper called name.
func (m *Manager) Helper(name string) (registry.Helper, error) {
	doc, err := m.store.Load()
	if err != nil {
		return registry.Helper{}, err
	}
	h, ok := doc.Helpers[name]
	if !ok {
		return registry.Helper{}, notFound(registry.RoleHelper, name)
	}
	return h, nil
}

// Seeker returns the seeker called name.
func (m *Manager) Seeker(name string) (registry.Seeker, error) {
	doc, err := m.store.Load()
	if err != nil {
		return registry.Seeker{}, err
	}
	s, ok := doc.Seekers[name]
	if !ok {
		return registry.Seeker{}, notFound(registry.RoleSeeker, name)
	}
	return s, nil
}

// Helpers returns all helpers sorted by name.
func (m *Manager) Helpers() ([]NamedHelper, error) {
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	helpers := make([]NamedHelper, 0, len(doc.Helpers))
	for name, h := range doc.Helpers {
		helpers = append(helpers, NamedHelper{Name: name, Helper: h})
	}
	sort.Slice(helpers, func(i, j int) bool { return helpers[i].Name < helpers[j].Name })
	return helpers, nil
}

// Seekers returns all seekers sorted by name.
func (m *Manager) Seekers() ([]NamedSeeker, error) {
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	seekers := make([]NamedSeeker, 0, len(doc.Seekers))
	for name, s := range doc.Seekers {
		seekers = append(seekers, NamedSeeker{Name: name, Seeker: s})
	}
	sort.Slice(seekers, func(i, j int) bool { return seekers[i].Name < seekers[j].Name })
	return seekers, nil
}

// Init replaces the registry with an empty one pointing at the given proxy.
// Existing helpers and seekers are dropped; authorized_keys is not touched.
func (m *Manager) Init(sshProxy string, sshPort int, sshUser string) (*registry.Document, error) {
	if sshPort < 0 || sshPort > 65535 {
		return nil, errors.Newf(errors.KindConfigInvalid, "SSH port %d is outside 1-65535.", sshPort)
	}

	doc := registry.DefaultDocument()
	if sshProxy != "" {
		doc.SSHProxy = sshProxy
	}
	if sshPort != 0 {
		doc.SSHPort = sshPort
	}
	if sshUser != "" {
		doc.SSHUser = sshUser
	}
	if err := m.store.Save(doc); err != nil {
		return nil, err
	}
	logging.Infof("registry %s initialized for %s@%s:%d", m.store.Path(), doc.SSHUser, doc.SSHProxy, doc.SSHPort)
	return doc, nil
}

// AddHelper registers a new helper.
func (m *Manager) AddHelper(name, rawKey string) (registry.Helper, error) {
	doc, err := m.prepareNew(name, registry.RoleHelper)
	if err != nil {
		return registry.Helper{}, err
	}
	key, err := registry.CleanPublicKey(rawKey)
	if err != nil {
		return registry.Helper{}, err
	}

	h := registry.Helper{PublicKey: key}
	doc.Helpers[name] = h

	if err := m.commit(doc, change{add: &keyRef{key, name, registry.RoleHelper}}); err != nil {
		return registry.Helper{}, err
	}
	logging.Infof("helper %q added", name)
	return h, nil
}

// UpdateHelper replaces the public key of an existing helper.
func (m *Manager) UpdateHelper(name, rawKey string) (registry.Helper, error) {
	doc, err := m.store.Load()
	if err != nil {
		return registry.Helper{}, err
	}
	old, ok := doc.Helpers[name]
	if !ok {
		return registry.Helper{}, notFound(registry.RoleHelper, name)
	}
	key, err := registry.CleanPublicKey(rawKey)
	if err != nil {
		return registry.Helper{}, err
	}

	h := registry.Helper{PublicKey: key}
	doc.Helpers[name] = h

	c := change{
		remove: &keyRef{old.PublicKey, name, registry.RoleHelper},
		add:    &keyRef{key, name, registry.RoleHelper},
	}
	if err := m.commit(doc, c); err != nil {
		return registry.Helper{}, err
	}
	logging.Infof("helper %q updated", name)
	return h, nil
}

// RemoveHelper deletes a helper.
func (m *Manager) RemoveHelper(name string) error {
	doc, err := m.store.Load()
	if err != nil {
		return err
	}
	old, ok := doc.Helpers[name]
	if !ok {
		return notFound(registry.RoleHelper, name)
	}

	delete(doc.Helpers, name)

	if err := m.commit(doc, change{remove: &keyRef{old.PublicKey, name, registry.RoleHelper}}); err != nil {
		return err
	}
	logging.Infof("helper %q removed", name)
	return nil
}

// AddSeeker registers a new seeker on the lowest free port. An empty
// userName defaults to name.
func (m *Manager) AddSeeker(name, userName, rawKey string) (registry.Seeker, error) {
	doc, err := m.prepareNew(name, registry.RoleSeeker)
	if err != nil {
		return registry.Seeker{}, err
	}
	port, err := registry.NextFreePort(doc.UsedPorts())
	if err != nil {
		return registry.Seeker{}, err
	}
	key, err := registry.CleanPublicKey(rawKey)
	if err != nil {
		return registry.Seeker{}, err
	}
	if userName == "" {
		userName = name
	}

	s := registry.Seeker{Port: port, UserName: userName, PublicKey: key}
	doc.Seekers[name] = s

	if err := m.commit(doc, change{add: &keyRef{key, name, registry.RoleSeeker}}); err != nil {
		return registry.Seeker{}, err
	}
	logging.Infof("seeker %q added on port %d", name, port)
	return s, nil
}

// UpdateSeeker replaces the user name and public key of an existing seeker.
// The port never changes. An empty userName keeps the current one.
func (m *Manager) UpdateSeeker(name, userName, rawKey string) (registry.Seeker, error) {
	doc, err := m.store.Load()
	if err != nil {
		return registry.Seeker{}, err
	}
	old, ok := doc.Seekers[name]
	if !ok {
		return registry.Seeker{}, notFound(registry.RoleSeeker, name)
	}
	key, err := registry.CleanPublicKey(rawKey)
	if err != nil {
		return registry.Seeker{}, err
	}
	if userName == "" {
		userName = old.UserName
	}

	s := registry.Seeker{Port: old.Port, UserName: userName, PublicKey: key}
	doc.Seekers[name] = s

	c := change{
		remove: &keyRef{old.PublicKey, name, registry.RoleSeeker},
		add:    &keyRef{key, name, registry.RoleSeeker},
	}
	if err := m.commit(doc, c); err != nil {
		return registry.Seeker{}, err
	}
	logging.Infof("seeker %q updated", name)
	return s, nil
}

// RemoveSeeker deletes a seeker and frees its port.
func (m *Manager) RemoveSeeker(name string) error {
	doc, err := m.store.Load()
	if err != nil {
		return err
	}
	old, ok := doc.Seekers[name]
	if !ok {
		return notFound(registry.RoleSeeker, name)
	}

	delete(doc.Seekers, name)

	if err := m.commit(doc, change{remove: &keyRef{old.PublicKey, name, registry.RoleSeeker}}); err != nil {
		return err
	}
	logging.Infof("seeker %q removed, port %d is free", name, old.Port)
	return nil
}

func (m *Manager) prepareNew(name string, role registry.Role) (*registry.Document, error) {
	if err := registry.ValidateName(name); err != nil {
		return nil, err
	}
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	exists := false
	switch role {
	case registry.RoleHelper:
		_, exists = doc.Helpers[name]
	case registry.RoleSeeker:
		_, exists = doc.Seekers[name]
	}
	if exists {
		return nil, errors.New(errors.KindAlreadyExists,
			fmt.Sprintf("%s %q already exists.", title(role), name),
			fmt.Sprintf("Use 'hilfmir %s update %s' to change it", role, name))
	}
	return doc, nil
}

func notFound(role registry.Role, name string) error {
	return errors.New(errors.KindNotFound,
		fmt.Sprintf("%s %q does not exist.", title(role), name),
		fmt.Sprintf("Use 'hilfmir %s add %s' to create it", role, name))
}

func title(role registry.Role) string {
	switch role {
	case registry.RoleHelper:
		return "Helper"
	case registry.RoleSeeker:
		return "Seeker"
	}
	return string(role)
}
