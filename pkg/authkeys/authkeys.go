// Package authkeys maintains the proxy user's authorized_keys file: one
// restricted entry per registered helper or seeker.
package authkeys

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pabra/hilfmir/internal/errors"
	"github.com/pabra/hilfmir/internal/fsutil"
	"github.com/pabra/hilfmir/internal/logging"
	"github.com/pabra/hilfmir/pkg/registry"
	"github.com/spf13/afero"
)

// DefaultForcedCommand is run by sshd for every managed key. It only lists
// seekers, so helpers and seekers get port forwarding and nothing else.
const DefaultForcedCommand = "~/hilfmir/hilfmir --deployment proxy list_seekers"

// Entry is a parsed managed line.
type Entry struct {
	Options   string
	PublicKey string
	Name      string
	Role      registry.Role
}

// Editor appends and removes managed entries in one authorized_keys file.
type Editor struct {
	fs      afero.Fs
	path    string
	command string
}

// NewEditor creates an editor for the file at path. An empty forcedCommand
// selects DefaultForcedCommand.
func NewEditor(fs afero.Fs, path, forcedCommand string) *Editor {
	if forcedCommand == "" {
		forcedCommand = DefaultForcedCommand
	}
	return &Editor{
		fs:      fs,
		path:    path,
		command: forcedCommand,
	}
}

// Path returns the location of the authorized_keys file.
func (e *Editor) Path() string {
	return e.path
}

// Line renders the managed entry for a key.
func (e *Editor) Line(publicKey, name string, role registry.Role) string {
	return FormatLine(e.command, publicKey, name, role)
}

// FormatLine renders a managed entry that runs forcedCommand. Double quotes
// in the command are written as \"; everything else is kept as is.
func FormatLine(forcedCommand, publicKey, name string, role registry.Role) string {
	command := strings.ReplaceAll(forcedCommand, `"`, `\"`)
	return fmt.Sprintf(`restrict,port-forwarding,command="%s" %s %s as %s`, command, publicKey, name, role)
}

// ParseLine splits a managed line into its fields. Lines that were not
// produced by Line do not parse.
//
// The options may contain quoted spaces, so the line is read from the end:
// "<options> <type> <body> <name> as <role>".
func ParseLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	n := len(fields)
	if n < 6 || fields[n-2] != "as" {
		return Entry{}, false
	}

	role := registry.Role(fields[n-1])
	if !role.Valid() {
		return Entry{}, false
	}

	options := strings.Join(fields[:n-5], " ")
	if !strings.HasPrefix(options, "restrict,") {
		return Entry{}, false
	}

	return Entry{
		Options:   options,
		PublicKey: fields[n-5] + " " + fields[n-4],
		Name:      fields[n-3],
		Role:      role,
	}, true
}

// Append adds the entry for a key, creating the file if needed.
func (e *Editor) Append(publicKey, name string, role registry.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}

	data, _, err := fsutil.ReadFile(e.fs, e.path)
	if err != nil {
		return errors.Wrap(err, "failed to read "+e.path)
	}

	var buf bytes.Buffer
	buf.Write(data)
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(e.Line(publicKey, name, role))
	buf.WriteByte('\n')

	if err := fsutil.WriteFileAtomic(e.fs, e.path, buf.Bytes(), 0600); err != nil {
		return errors.Wrap(err, "failed to update "+e.path)
	}

	logging.Debugf("added %s %q to %s", role, name, e.path)
	return nil
}

// Remove drops every managed line whose key, name and role all match.
// It reports whether the file changed; an unchanged file is not rewritten.
func (e *Editor) Remove(publicKey, name string, role registry.Role) (bool, error) {
	if !role.Valid() {
		return false, fmt.Errorf("unknown role %q", role)
	}

	data, ok, err := fsutil.ReadFile(e.fs, e.path)
	if err != nil {
		return false, errors.Wrap(err, "failed to read "+e.path)
	}
	if !ok {
		return false, nil
	}

	lines := bytes.SplitAfter(data, []byte("\n"))
	kept := make([][]byte, 0, len(lines))
	changed := false
	for _, line := range lines {
		entry, managed := ParseLine(string(line))
		if managed && entry.PublicKey == publicKey && entry.Name == name && entry.Role == role {
			changed = true
			continue
		}
		kept = append(kept, line)
	}

	if !changed {
		return false, nil
	}

	if err := fsutil.WriteFileAtomic(e.fs, e.path, bytes.Join(kept, nil), 0600); err != nil {
		return false, errors.Wrap(err, "failed to update "+e.path)
	}

	logging.Debugf("removed %s %q from %s", role, name, e.path)
	return true, nil
}

// Snapshot is the content of the authorized_keys file at one point in time.
type Snapshot struct {
	data   []byte
	exists bool
}

// Snapshot reads the current content of the file.
func (e *Editor) Snapshot() (Snapshot, error) {
	data, ok, err := fsutil.ReadFile(e.fs, e.path)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "failed to read "+e.path)
	}
	return Snapshot{data: data, exists: ok}, nil
}

// Restore puts back exactly the content recorded in snap. A file that did
// not exist then is removed.
func (e *Editor) Restore(snap Snapshot) error {
	if !snap.exists {
		if err := e.fs.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "failed to remove "+e.path)
		}
		return nil
	}
	if err := fsutil.WriteFileAtomic(e.fs, e.path, snap.data, 0600); err != nil {
		return errors.Wrap(err, "failed to restore "+e.path)
	}
	logging.Debugf("restored %s", e.path)
	return nil
}

// Entries returns the managed entries in file order.
func (e *Editor) Entries() ([]Entry, error) {
	data, _, err := fsutil.ReadFile(e.fs, e.path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read "+e.path)
	}

	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		if entry, ok := ParseLine(line); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
