package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode"
	"unicode/utf16"

	"github.com/pabra/hilfmir/internal/errors"
	"github.com/pabra/hilfmir/internal/fsutil"
	"github.com/pabra/hilfmir/internal/logging"
	"github.com/spf13/afero"
)

// Store loads and saves the registry document and caches the last read copy.
//
// A strict store treats a missing file as an error; a permissive store
// returns DefaultDocument instead.
type Store struct {
	fs     afero.Fs
	path   string
	strict bool
	cached *Document
}

// NewStore creates a store for the document at path.
func NewStore(fs afero.Fs, path string, strict bool) *Store {
	return &Store{
		fs:     fs,
		path:   path,
		strict: strict,
	}
}

// Path returns the location of the document.
func (s *Store) Path() string {
	return s.path
}

// Strict reports whether a missing document is an error.
func (s *Store) Strict() bool {
	return s.strict
}

// Load returns a copy of the document, reading it from disk only when no
// copy is cached. Callers may modify the returned document freely.
func (s *Store) Load() (*Document, error) {
	if s.cached == nil {
		doc, err := s.read()
		if err != nil {
			return nil, err
		}
		s.cached = doc
	}
	return s.cached.Clone(), nil
}

// ForceReload drops the cached copy and reads the document again.
func (s *Store) ForceReload() (*Document, error) {
	s.cached = nil
	return s.Load()
}

// Save replaces the persisted document with doc and invalidates the cache.
func (s *Store) Save(doc *Document) error {
	data, err := Marshal(doc.Clone())
	if err != nil {
		return errors.Wrap(err, "failed to encode registry")
	}

	if err := fsutil.WriteFileAtomic(s.fs, s.path, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write registry "+s.path)
	}
	s.cached = nil

	logging.Debugf("registry written to %s (%d helpers, %d seekers)", s.path, len(doc.Helpers), len(doc.Seekers))
	return nil
}

func (s *Store) read() (*Document, error) {
	data, ok, err := fsutil.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read registry "+s.path)
	}
	if !ok {
		if s.strict {
			return nil, errors.New(errors.KindConfigMissing,
				fmt.Sprintf("No config file found at %q.", s.path),
				"Run 'hilfmir init' first")
		}
		logging.Debugf("no registry at %s, using defaults", s.path)
		return DefaultDocument(), nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse registry "+s.path)
	}
	doc.normalize()

	logging.Debugf("registry read from %s", s.path)
	return &doc, nil
}

// Marshal encodes doc the way the registry is stored on disk: keys sorted,
// four-space indentation, no HTML escaping, non-ASCII as \uXXXX escapes and
// no trailing newline.
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return escapeNonASCII(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// escapeNonASCII rewrites every rune above U+007F as a lowercase \uXXXX
// escape, using a surrogate pair above U+FFFF. Encoded JSON only carries
// such runes inside strings, so the result is the same document.
func escapeNonASCII(data []byte) []byte {
	if !bytes.ContainsFunc(data, func(r rune) bool { return r > unicode.MaxASCII }) {
		return data
	}

	out := make([]byte, 0, len(data)+16)
	for _, r := range string(data) {
		if r <= unicode.MaxASCII {
			out = append(out, byte(r))
			continue
		}
		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			out = fmt.Appendf(out, "\\u%04x\\u%04x", hi, lo)
			continue
		}
		out = fmt.Appendf(out, "\\u%04x", r)
	}
	return out
}
