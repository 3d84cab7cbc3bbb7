package entity

import (
	"bytes"
	"fmt"
	"testing"

	clog "github.com/charmbracelet/log"
	"github.com/pabra/hilfmir/internal/errors"
	"github.com/pabra/hilfmir/internal/logging"
	"github.com/pabra/hilfmir/pkg/authkeys"
	"github.com/pabra/hilfmir/pkg/registry"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	registryPath = "/opt/hilfmir/proxy_conf.json"
	keysPath     = "/home/hilfmir/.ssh/authorized_keys"

	keyA = "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAABAQC7aaaa"
	keyB = "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAABAQC7bbbb"
)

type fixture struct {
	fs      afero.Fs
	store   *registry.Store
	keys    *authkeys.Editor
	manager *Manager
}

func newProxyFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	store := registry.NewStore(fs, registryPath, true)
	require.NoError(t, store.Save(registry.DefaultDocument()))
	keys := authkeys.NewEditor(fs, keysPath, "")
	return &fixture{fs: fs, store: store, keys: keys, manager: NewManager(store, keys)}
}

func newManageFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	store := registry.NewStore(fs, "/opt/hilfmir/manage.json", false)
	return &fixture{fs: fs, store: store, manager: NewManager(store, nil)}
}

func (f *fixture) registryBytes(t *testing.T) string {
	t.Helper()
	data, err := afero.ReadFile(f.fs, f.store.Path())
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) keysContent(t *testing.T) string {
	t.Helper()
	data, err := afero.ReadFile(f.fs, keysPath)
	if err != nil {
		return ""
	}
	return string(data)
}

func TestAddSeeker_AllocatesPortsInOrder(t *testing.T) {
	f := newProxyFixture(t)

	alice, err := f.manager.AddSeeker("alice", "", keyA+" alice@laptop")
	require.NoError(t, err)
	assert.Equal(t, 41300, alice.Port)
	assert.Equal(t, "alice", alice.UserName, "user name defaults to the seeker name")
	assert.Equal(t, keyA, alice.PublicKey, "comment is stripped")

	bob, err := f.manager.AddSeeker("bob", "robert", keyB)
	require.NoError(t, err)
	assert.Equal(t, 41301, bob.Port)
	assert.Equal(t, "robert", bob.UserName)

	doc, err := f.store.ForceReload()
	require.NoError(t, err)
	assert.Equal(t, alice, doc.Seekers["alice"])
	assert.Equal(t, bob, doc.Seekers["bob"])

	assert.Equal(t,
		f.keys.Line(keyA, "alice", registry.RoleSeeker)+"\n"+f.keys.Line(keyB, "bob", registry.RoleSeeker)+"\n",
		f.keysContent(t))
}

func TestAddSeeker_AlreadyExistsLeavesRegistryUnchanged(t *testing.T) {
	f := newProxyFixture(t)
	_, err := f.manager.AddSeeker("alice", "", keyA)
	require.NoError(t, err)
	before := f.registryBytes(t)
	keysBefore := f.keysContent(t)

	_, err = f.manager.AddSeeker("alice", "", keyB)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAlreadyExists))

	assert.Equal(t, before, f.registryBytes(t))
	assert.Equal(t, keysBefore, f.keysContent(t))
}

func TestAddSeeker_InvalidInputWritesNothing(t *testing.T) {
	tests := []struct {
		name   string
		seeker string
		key    string
		kind   errors.Kind
	}{
		{"invalid name", "9lives", keyA, errors.KindNameInvalid},
		{"invalid key", "alice", "ssh-dsa AAAA", errors.KindInvalidPublicKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProxyFixture(t)
			before := f.registryBytes(t)

			_, err := f.manager.AddSeeker(tt.seeker, "", tt.key)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, tt.kind))

			assert.Equal(t, before, f.registryBytes(t))
			assert.Empty(t, f.keysContent(t))
		})
	}
}

func TestAddSeeker_NoFreePorts(t *testing.T) {
	f := newProxyFixture(t)
	doc := registry.DefaultDocument()
	for p := registry.PortMin; p <= registry.PortMax; p++ {
		doc.Seekers[fmt.Sprintf("seeker%d", p)] = registry.Seeker{Port: p}
	}
	require.Len(t, doc.Seekers, registry.PortMax-registry.PortMin+1)
	require.NoError(t, f.store.Save(doc))

	_, err := f.manager.AddSeeker("latecomer", "", keyA)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNoFreePorts))
}

func TestAddSeeker_ReusesFreedPort(t *testing.T) {
	f := newProxyFixture(t)
	_, err := f.manager.AddSeeker("alice", "", keyA)
	require.NoError(t, err)
	_, err = f.manager.AddSeeker("bob", "", keyB)
	require.NoError(t, err)
	require.NoError(t, f.manager.RemoveSeeker("alice"))

	carol, err := f.manager.AddSeeker("carol", "", keyA)
	require.NoError(t, err)
	assert.Equal(t, 41300, carol.Port)
}

func TestUpdateSeeker_KeepsPort(t *testing.T) {
	f := newProxyFixture(t)
	_, err := f.manager.AddSeeker("alice", "", keyA)
	require.NoError(t, err)
	_, err = f.manager.AddSeeker("bob", "", keyA)
	require.NoError(t, err)
	require.NoError(t, f.manager.RemoveSeeker("alice"))

	bob, err := f.manager.UpdateSeeker("bob", "", keyB+" new key")
	require.NoError(t, err)
	assert.Equal(t, 41301, bob.Port, "port 41300 is free again but bob keeps its port")
	assert.Equal(t, "bob", bob.UserName, "empty user name keeps the old one")
	assert.Equal(t, keyB, bob.PublicKey)

	assert.Equal(t, f.keys.Line(keyB, "bob", registry.RoleSeeker)+"\n", f.keysContent(t))
}

func TestUpdateSeeker_ChangesUserName(t *testing.T) {
	f := newProxyFixture(t)
	_, err := f.manager.AddSeeker("alice", "", keyA)
	require.NoError(t, err)

	alice, err := f.manager.UpdateSeeker("alice", "ali", keyA)
	require.NoError(t, err)
	assert.Equal(t, "ali", alice.UserName)
	assert.Equal(t, f.keys.Line(keyA, "alice", registry.RoleSeeker)+"\n", f.keysContent(t), "exactly one entry per name and role")
}

func TestUpdateSeeker_NotFound(t *testing.T) {
	f := newProxyFixture(t)

	_, err := f.manager.UpdateSeeker("ghost", "", keyA)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestUpdateSeeker_InvalidKeyKeepsOldEntry(t *testing.T) {
	f := newProxyFixture(t)
	_, err := f.manager.AddSeeker("alice", "", keyA)
	require.NoError(t, err)
	before := f.registryBytes(t)
	keysBefore := f.keysContent(t)

	_, err = f.manager.UpdateSeeker("alice", "", "not a key")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidPublicKey))

	assert.Equal(t, before, f.registryBytes(t))
	assert.Equal(t, keysBefore, f.keysContent(t))
}

func TestRemoveSeeker(t *testing.T) {
	f := newProxyFixture(t)
	_, err := f.manager.AddSeeker("alice", "", keyA)
	require.NoError(t, err)
	_, err = f.manager.AddHelper("alice", keyA)
	require.NoError(t, err)

	require.NoError(t, f.manager.RemoveSeeker("alice"))

	_, err = f.manager.Seeker("alice")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
	assert.Equal(t, f.keys.Line(keyA, "alice", registry.RoleHelper)+"\n", f.keysContent(t), "helper entry of the same name stays")
}

func TestRemoveSeeker_NotFound(t *testing.T) {
	f := newProxyFixture(t)

	err := f.manager.RemoveSeeker("ghost")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestHelperLifecycle(t *testing.T) {
	f := newProxyFixture(t)

	h, err := f.manager.AddHelper("bob", keyA+" bob@desk")
	require.NoError(t, err)
	assert.Equal(t, keyA, h.PublicKey)
	assert.Equal(t, f.keys.Line(keyA, "bob", registry.RoleHelper)+"\n", f.keysContent(t))

	_, err = f.manager.AddHelper("bob", keyB)
	assert.True(t, errors.IsKind(err, errors.KindAlreadyExists))

	h, err = f.manager.UpdateHelper("bob", keyB)
	require.NoError(t, err)
	assert.Equal(t, keyB, h.PublicKey)
	assert.Equal(t, f.keys.Line(keyB, "bob", registry.RoleHelper)+"\n", f.keysContent(t))

	require.NoError(t, f.manager.RemoveHelper("bob"))
	assert.Empty(t, f.keysContent(t))

	helpers, err := f.manager.Helpers()
	require.NoError(t, err)
	assert.Empty(t, helpers)

	assert.True(t, errors.IsKind(f.manager.RemoveHelper("bob"), errors.KindNotFound))
	_, err = f.manager.UpdateHelper("bob", keyA)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestNamespacesAreIndependent(t *testing.T) {
	f := newProxyFixture(t)

	_, err := f.manager.AddHelper("alice", keyA)
	require.NoError(t, err)
	_, err = f.manager.AddSeeker("alice", "", keyA)
	require.NoError(t, err)

	require.NoError(t, f.manager.CheckNewHelper("carol"))
	assert.True(t, errors.IsKind(f.manager.CheckNewHelper("alice"), errors.KindAlreadyExists))
	assert.True(t, errors.IsKind(f.manager.CheckNewSeeker("alice"), errors.KindAlreadyExists))
	assert.True(t, errors.IsKind(f.manager.CheckNewSeeker("x"), errors.KindNameInvalid))
}

func TestListsAreSorted(t *testing.T) {
	f := newProxyFixture(t)
	for _, name := range []string{"zoe", "adam", "mike"} {
		_, err := f.manager.AddSeeker(name, "", keyA)
		require.NoError(t, err)
		_, err = f.manager.AddHelper(name, keyB)
		require.NoError(t, err)
	}

	seekers, err := f.manager.Seekers()
	require.NoError(t, err)
	require.Len(t, seekers, 3)
	assert.Equal(t, []string{"adam", "mike", "zoe"}, []string{seekers[0].Name, seekers[1].Name, seekers[2].Name})
	assert.Equal(t, 41302, seekers[2].Port)

	helpers, err := f.manager.Helpers()
	require.NoError(t, err)
	require.Len(t, helpers, 3)
	assert.Equal(t, "adam", helpers[0].Name)
}

func TestStrictStoreWithoutInit(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := registry.NewStore(fs, registryPath, true)
	m := NewManager(store, authkeys.NewEditor(fs, keysPath, ""))

	_, err := m.AddHelper("bob", keyA)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfigMissing))

	exists, err := afero.Exists(fs, keysPath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInit_CreatesRegistryForStrictStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := registry.NewStore(fs, registryPath, true)
	m := NewManager(store, authkeys.NewEditor(fs, keysPath, ""))

	doc, err := m.Init("proxy.example.net", 2222, "tunnel")
	require.NoError(t, err)
	assert.Equal(t, "proxy.example.net", doc.SSHProxy)

	_, err = m.AddHelper("bob", keyA)
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 2222, loaded.SSHPort)
	assert.Equal(t, "tunnel", loaded.SSHUser)
	assert.Contains(t, loaded.Helpers, "bob")
}

func TestInit_DropsEntitiesAndFillsDefaults(t *testing.T) {
	f := newManageFixture(t)
	_, err := f.manager.AddSeeker("alice", "", keyA)
	require.NoError(t, err)

	doc, err := f.manager.Init("", 0, "")
	require.NoError(t, err)
	assert.Equal(t, registry.DefaultDocument(), doc)

	seekers, err := f.manager.Seekers()
	require.NoError(t, err)
	assert.Empty(t, seekers)
}

func TestInit_RejectsPortOutOfRange(t *testing.T) {
	for _, port := range []int{-1, 65536, 70000} {
		f := newManageFixture(t)

		_, err := f.manager.Init("proxy.example.net", port, "tunnel")
		require.Error(t, err, "port %d", port)
		assert.True(t, errors.IsKind(err, errors.KindConfigInvalid))

		exists, err := afero.Exists(f.fs, f.store.Path())
		require.NoError(t, err)
		assert.False(t, exists, "nothing is written for port %d", port)
	}
}

func TestManageDeploymentDoesNotTouchAuthorizedKeys(t *testing.T) {
	f := newManageFixture(t)
	assert.False(t, f.manager.ManagesKeys())

	s, err := f.manager.AddSeeker("alice", "", keyA)
	require.NoError(t, err)
	assert.Equal(t, 41300, s.Port)
	_, err = f.manager.AddHelper("bob", keyB)
	require.NoError(t, err)
	require.NoError(t, f.manager.RemoveHelper("bob"))

	exists, err := afero.Exists(f.fs, keysPath)
	require.NoError(t, err)
	assert.False(t, exists)

	doc, err := f.store.ForceReload()
	require.NoError(t, err)
	assert.Contains(t, doc.Seekers, "alice")
	assert.NotContains(t, doc.Helpers, "bob")
}

// The registry can be read but not written while authorized_keys stays
// writable, so every save fails after the key edit succeeded.
func TestSaveFailureRevertsAuthorizedKeys(t *testing.T) {
	base := afero.NewMemMapFs()
	writable := afero.NewMemMapFs()
	okStore := registry.NewStore(base, registryPath, true)
	require.NoError(t, okStore.Save(registry.DefaultDocument()))

	keys := authkeys.NewEditor(writable, keysPath, "")
	require.NoError(t, keys.Append(keyA, "bob", registry.RoleHelper))
	before, err := afero.ReadFile(writable, keysPath)
	require.NoError(t, err)

	doc := registry.DefaultDocument()
	doc.Helpers["bob"] = registry.Helper{PublicKey: keyA}
	require.NoError(t, okStore.Save(doc))

	store := registry.NewStore(afero.NewReadOnlyFs(base), registryPath, true)
	m := NewManager(store, keys)

	_, err = m.AddSeeker("alice", "", keyB)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindIO))

	_, err = m.UpdateHelper("bob", keyB)
	require.Error(t, err)

	err = m.RemoveHelper("bob")
	require.Error(t, err)

	after, err := afero.ReadFile(writable, keysPath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func readOnlyRegistryManager(t *testing.T, keysFs afero.Fs) *Manager {
	t.Helper()
	base := afero.NewMemMapFs()
	require.NoError(t, registry.NewStore(base, registryPath, true).Save(registry.DefaultDocument()))
	store := registry.NewStore(afero.NewReadOnlyFs(base), registryPath, true)
	return NewManager(store, authkeys.NewEditor(keysFs, keysPath, ""))
}

func TestSaveFailureKeepsExistingMatchingLine(t *testing.T) {
	keysFs := afero.NewMemMapFs()
	existing := "# operator\n" + authkeys.FormatLine(authkeys.DefaultForcedCommand, keyA, "bob", registry.RoleHelper) + "\n"
	require.NoError(t, afero.WriteFile(keysFs, keysPath, []byte(existing), 0600))
	m := readOnlyRegistryManager(t, keysFs)

	_, err := m.AddHelper("bob", keyA)
	require.Error(t, err)

	after, err := afero.ReadFile(keysFs, keysPath)
	require.NoError(t, err)
	assert.Equal(t, existing, string(after))
}

func TestSaveFailureRemovesCreatedKeysFile(t *testing.T) {
	keysFs := afero.NewMemMapFs()
	m := readOnlyRegistryManager(t, keysFs)

	_, err := m.AddSeeker("alice", "", keyA)
	require.Error(t, err)

	exists, err := afero.Exists(keysFs, keysPath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRemoveWarnsWhenKeysEntryMissing(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.L
	logging.L = clog.New(&buf)
	t.Cleanup(func() { logging.L = prev })

	f := newProxyFixture(t)
	_, err := f.manager.AddHelper("bob", keyA)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(f.fs, keysPath, []byte(f.keys.Line(keyB, "bob", registry.RoleHelper)+"\n"), 0600))

	require.NoError(t, f.manager.RemoveHelper("bob"))

	assert.Contains(t, buf.String(), "hilfmir check")
	assert.Equal(t, f.keys.Line(keyB, "bob", registry.RoleHelper)+"\n", f.keysContent(t),
		"a line with a different key is left for the operator")
}

func TestAudit(t *testing.T) {
	f := newProxyFixture(t)
	_, err := f.manager.AddSeeker("alice", "", keyA)
	require.NoError(t, err)
	_, err = f.manager.AddHelper("bob", keyA)
	require.NoError(t, err)
	_, err = f.manager.AddHelper("carol", keyA)
	require.NoError(t, err)

	drift, err := f.manager.Audit()
	require.NoError(t, err)
	assert.Empty(t, drift)

	// edits made by hand
	_, err = f.keys.Remove(keyA, "alice", registry.RoleSeeker)
	require.NoError(t, err)
	_, err = f.keys.Remove(keyA, "carol", registry.RoleHelper)
	require.NoError(t, err)
	require.NoError(t, f.keys.Append(keyB, "carol", registry.RoleHelper))
	require.NoError(t, f.keys.Append(keyB, "dave", registry.RoleHelper))

	drift, err = f.manager.Audit()
	require.NoError(t, err)
	require.Len(t, drift, 3)
	assert.Equal(t, Drift{"carol", registry.RoleHelper, "authorized_keys has a different key"}, drift[0])
	assert.Equal(t, Drift{"dave", registry.RoleHelper, "in authorized_keys but not registered"}, drift[1])
	assert.Equal(t, Drift{"alice", registry.RoleSeeker, "missing from authorized_keys"}, drift[2])
	assert.Equal(t, "seeker alice: missing from authorized_keys", drift[2].String())
}

func TestAudit_ManageDeployment(t *testing.T) {
	f := newManageFixture(t)

	drift, err := f.manager.Audit()
	require.NoError(t, err)
	assert.Nil(t, drift)
}
