// Package registry holds the persisted helper/seeker registry: its document
// model, name and key validation, seeker port allocation and the file-backed
// store.
package registry

// Role names the category of a registered entity.
type Role string

const (
	RoleHelper Role = "helper"
	RoleSeeker Role = "seeker"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleHelper || r == RoleSeeker
}

// Defaults written by init and returned for a missing file in permissive mode.
const (
	DefaultSSHProxy = "example.org"
	DefaultSSHPort  = 22
	DefaultSSHUser  = "hilfmir"
)

// Helper is a person who connects through the proxy to seekers.
type Helper struct {
	PublicKey string `json:"public_key"`
}

// Seeker is a machine that opens a reverse tunnel on its allocated proxy port.
// Fields are declared in key order so the JSON output is sorted.
type Seeker struct {
	Port      int    `json:"port"`
	PublicKey string `json:"public_key"`
	UserName  string `json:"user_name"`
}

// Document is the whole persisted registry.
// Fields are declared in key order so the JSON output is sorted.
type Document struct {
	Helpers  map[string]Helper `json:"helpers"`
	Seekers  map[string]Seeker `json:"seekers"`
	SSHPort  int               `json:"ssh_port"`
	SSHProxy string            `json:"ssh_proxy"`
	SSHUser  string            `json:"ssh_user"`
}

// DefaultDocument returns an empty registry with default proxy settings.
func DefaultDocument() *Document {
	return &Document{
		Helpers:  map[string]Helper{},
		Seekers:  map[string]Seeker{},
		SSHPort:  DefaultSSHPort,
		SSHProxy: DefaultSSHProxy,
		SSHUser:  DefaultSSHUser,
	}
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	c := *d
	c.Helpers = make(map[string]Helper, len(d.Helpers))
	for name, h := range d.Helpers {
		c.Helpers[name] = h
	}
	c.Seekers = make(map[string]Seeker, len(d.Seekers))
	for name, s := range d.Seekers {
		c.Seekers[name] = s
	}
	return &c
}

// UsedPorts returns the set of ports allocated to seekers.
func (d *Document) UsedPorts() map[int]bool {
	used := make(map[int]bool, len(d.Seekers))
	for _, s := range d.Seekers {
		used[s.Port] = true
	}
	return used
}

func (d *Document) normalize() {
	if d.Helpers == nil {
		d.Helpers = map[string]Helper{}
	}
	if d.Seekers == nil {
		d.Seekers = map[string]Seeker{}
	}
}
