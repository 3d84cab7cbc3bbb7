package menu

import (
	"fmt"
	"strings"

	"github.com/net2share/go-corelib/tui"

	"github.com/pabra/hilfmir/internal/config"
	"github.com/pabra/hilfmir/internal/errors"
	"github.com/pabra/hilfmir/pkg/entity"
	"github.com/pabra/hilfmir/pkg/registry"
)

// Session is what the add, update and remove flows work on. The same flows
// serve the subcommands and the interactive menu.
type Session struct {
	Manager  *entity.Manager
	Settings config.Settings
}

// HelperRequest holds the values given on the command line. Interactive
// flows prompt for anything missing; the others fail instead.
type HelperRequest struct {
	Name        string
	PublicKey   string
	Interactive bool
}

// SeekerRequest is HelperRequest for seekers. Helpers is a space separated
// list of helper names that should reach the seeker machine, all of them
// when empty.
type SeekerRequest struct {
	Name        string
	UserName    string
	PublicKey   string
	Helpers     string
	Interactive bool
}

// InitRequest configures a fresh registry. Zero values select defaults.
type InitRequest struct {
	SSHProxy    string
	SSHPort     int
	SSHUser     string
	Yes         bool
	Interactive bool
}

func (s *Session) manage() bool {
	return s.Settings.Deployment == config.DeploymentManage
}

// Init writes a fresh registry after confirmation.
func (s *Session) Init(req InitRequest) error {
	if !req.Yes {
		if !req.Interactive {
			return errors.New(errors.KindConfigInvalid,
				"Refusing to overwrite the registry without confirmation.",
				"Pass --yes to confirm")
		}
		if !s.manage() {
			tui.PrintInfo("Only continue after the proxy user has been set up as printed by 'hilfmir init' in the manage deployment.")
			ok, err := Confirm("Continue?", false)
			if err != nil {
				return err
			}
			if !ok {
				return ErrCancelled
			}
		}
		tui.PrintWarning("This will overwrite an existing config at " + s.Manager.Store().Path())
		ok, err := Confirm("Continue?", false)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCancelled
		}
	}

	if req.Interactive {
		var err error
		if req.SSHProxy == "" {
			if req.SSHProxy, err = Input("Hostname of SSH proxy", "", registry.DefaultSSHProxy); err != nil {
				return err
			}
		}
		if req.SSHPort == 0 {
			if req.SSHPort, err = InputInt("SSH port of proxy", registry.DefaultSSHPort, 1, 65535); err != nil {
				return err
			}
		}
		if req.SSHUser == "" {
			if req.SSHUser, err = Input("User name on SSH proxy", "", registry.DefaultSSHUser); err != nil {
				return err
			}
		}
	}

	doc, err := s.Manager.Init(req.SSHProxy, req.SSHPort, req.SSHUser)
	if err != nil {
		return err
	}

	tui.PrintSuccess(fmt.Sprintf("Registry written to %s", s.Manager.Store().Path()))
	if s.manage() {
		PrintInitInstructions(doc)
	}
	return nil
}

// AddHelper registers a helper. In the manage deployment it then prints the
// line to add on the proxy.
func (s *Session) AddHelper(req HelperRequest) error {
	name, err := s.newName(req.Name, registry.RoleHelper, req.Interactive, s.Manager.CheckNewHelper)
	if err != nil {
		return err
	}

	key := req.PublicKey
	if key == "" {
		if !req.Interactive {
			return errPubkeyRequired()
		}
		PrintKeygenHint(registry.RoleHelper)
		if key, err = PromptPubkey(name, ""); err != nil {
			return err
		}
	}

	h, err := s.Manager.AddHelper(name, key)
	if err != nil {
		return err
	}
	tui.PrintSuccess(fmt.Sprintf("Helper %q added.", name))

	if s.manage() {
		doc, err := s.Manager.Store().Load()
		if err != nil {
			return err
		}
		PrintProxyHelperInstructions(s.Settings.ForcedCommand, doc.SSHUser, entity.NamedHelper{Name: name, Helper: h})
	}
	return nil
}

// UpdateHelper replaces a helper's key. Without a new key on the command
// line the current one is offered as the default.
func (s *Session) UpdateHelper(req HelperRequest) error {
	name, err := s.existingName(req.Name, registry.RoleHelper, req.Interactive, "update")
	if err != nil {
		return err
	}
	current, err := s.Manager.Helper(name)
	if err != nil {
		return err
	}

	key := req.PublicKey
	if key == "" {
		if !req.Interactive {
			return errPubkeyRequired()
		}
		PrintKeygenHint(registry.RoleHelper)
		if key, err = PromptPubkey(name, current.PublicKey); err != nil {
			return err
		}
	}

	if _, err := s.Manager.UpdateHelper(name, key); err != nil {
		return err
	}
	tui.PrintSuccess(fmt.Sprintf("Helper %q updated.", name))
	return nil
}

// RemoveHelper deletes a helper, asking first when interactive.
func (s *Session) RemoveHelper(name string, interactive bool) error {
	name, err := s.existingName(name, registry.RoleHelper, interactive, "remove")
	if err != nil {
		return err
	}
	if interactive {
		if err := confirmRemove(registry.RoleHelper, name); err != nil {
			return err
		}
	}
	if err := s.Manager.RemoveHelper(name); err != nil {
		return err
	}
	tui.PrintSuccess(fmt.Sprintf("Helper %q removed.", name))
	return nil
}

// AddSeeker registers a seeker on the next free port. In the manage
// deployment it also explains how to prepare the seeker machine and which
// helper keys to install there.
func (s *Session) AddSeeker(req SeekerRequest) error {
	name, err := s.newName(req.Name, registry.RoleSeeker, req.Interactive, s.Manager.CheckNewSeeker)
	if err != nil {
		return err
	}

	userName := req.UserName
	if userName == "" && req.Interactive {
		if userName, err = Input("User name", fmt.Sprintf("Enter user name of %q", name), name); err != nil {
			return err
		}
	}

	key := req.PublicKey
	if key == "" {
		if !req.Interactive {
			return errPubkeyRequired()
		}
		if s.manage() {
			PrintSeekerPrerequisites()
		} else {
			PrintKeygenHint(registry.RoleSeeker)
		}
		if key, err = PromptPubkey(name, ""); err != nil {
			return err
		}
	}

	seeker, err := s.Manager.AddSeeker(name, userName, key)
	if err != nil {
		return err
	}
	tui.PrintSuccess(fmt.Sprintf("Seeker %q added on port %d.", name, seeker.Port))

	if s.manage() {
		return s.grantHelpers(seeker.UserName, req.Helpers, req.Interactive)
	}
	return nil
}

func (s *Session) grantHelpers(userName, answer string, interactive bool) error {
	all, err := s.Manager.Helpers()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		tui.PrintInfo("No helpers registered yet. Add one with 'hilfmir add-helper'.")
		return nil
	}

	if answer == "" && interactive {
		names := strings.Join(helperNames(all), " ")
		answer, err = Input("Helper names",
			"Space separated list of helpers who should get access to the seeker's machine. Possible helpers are: "+names,
			names)
		if err != nil {
			return err
		}
	}

	selected, err := SelectHelpers(all, answer)
	if err != nil {
		return err
	}
	PrintSeekerAccess(userName, selected)
	return nil
}

// UpdateSeeker replaces a seeker's user name and key. The port stays.
func (s *Session) UpdateSeeker(req SeekerRequest) error {
	name, err := s.existingName(req.Name, registry.RoleSeeker, req.Interactive, "update")
	if err != nil {
		return err
	}
	current, err := s.Manager.Seeker(name)
	if err != nil {
		return err
	}

	userName := req.UserName
	key := req.PublicKey
	if req.Interactive {
		if userName == "" {
			if userName, err = Input("User name", fmt.Sprintf("Enter user name of %q", name), current.UserName); err != nil {
				return err
			}
		}
		if key == "" {
			PrintKeygenHint(registry.RoleSeeker)
			if key, err = PromptPubkey(name, current.PublicKey); err != nil {
				return err
			}
		}
	} else if key == "" {
		key = current.PublicKey
	}

	if _, err := s.Manager.UpdateSeeker(name, userName, key); err != nil {
		return err
	}
	tui.PrintSuccess(fmt.Sprintf("Seeker %q updated, port %d kept.", name, current.Port))
	return nil
}

// RemoveSeeker deletes a seeker, asking first when interactive.
func (s *Session) RemoveSeeker(name string, interactive bool) error {
	name, err := s.existingName(name, registry.RoleSeeker, interactive, "remove")
	if err != nil {
		return err
	}
	if interactive {
		if err := confirmRemove(registry.RoleSeeker, name); err != nil {
			return err
		}
	}
	if err := s.Manager.RemoveSeeker(name); err != nil {
		return err
	}
	tui.PrintSuccess(fmt.Sprintf("Seeker %q removed.", name))
	return nil
}

// Check reports differences between the registry and authorized_keys.
func (s *Session) Check() error {
	if !s.Manager.ManagesKeys() {
		tui.PrintInfo("The manage deployment keeps no authorized_keys file, nothing to check.")
		return nil
	}
	drift, err := s.Manager.Audit()
	if err != nil {
		return err
	}
	if len(drift) == 0 {
		tui.PrintSuccess("Registry and authorized_keys agree.")
		return nil
	}
	for _, d := range drift {
		tui.PrintWarning(d.String())
	}
	return errors.New(errors.KindDrift,
		fmt.Sprintf("%d problem(s) between the registry and authorized_keys.", len(drift)),
		"Run 'hilfmir <helper|seeker> update <name>' to rewrite an entry")
}

// newName returns a valid name that is not taken yet. Interactive sessions
// are asked again until they give one.
func (s *Session) newName(name string, role registry.Role, interactive bool, check func(string) error) (string, error) {
	if name != "" || !interactive {
		if name == "" {
			return "", errNameRequired(role)
		}
		return name, check(name)
	}

	for {
		value, err := Input("Name", fmt.Sprintf("Enter name of new %s", role), "")
		if err != nil {
			return "", err
		}
		if err := check(value); err != nil {
			tui.PrintError(err.Error())
			continue
		}
		return value, nil
	}
}

// existingName returns name, or lets an interactive session pick one.
func (s *Session) existingName(name string, role registry.Role, interactive bool, verb string) (string, error) {
	if name != "" {
		return name, nil
	}
	if !interactive {
		return "", errNameRequired(role)
	}

	var names []string
	switch role {
	case registry.RoleHelper:
		helpers, err := s.Manager.Helpers()
		if err != nil {
			return "", err
		}
		names = helperNames(helpers)
	case registry.RoleSeeker:
		seekers, err := s.Manager.Seekers()
		if err != nil {
			return "", err
		}
		for _, sk := range seekers {
			names = append(names, sk.Name)
		}
	}

	if len(names) == 0 {
		tui.PrintInfo(fmt.Sprintf("No %ss to %s.", role, verb))
		return "", ErrCancelled
	}

	options := []tui.MenuOption{{Label: "Back", Value: ""}}
	for _, n := range names {
		options = append(options, tui.MenuOption{Label: n, Value: n})
	}
	choice, err := tui.RunMenu(tui.MenuConfig{
		Title:   fmt.Sprintf("Select %s to %s", role, verb),
		Options: options,
	})
	if err != nil {
		return "", err
	}
	if choice == "" {
		return "", ErrCancelled
	}
	return choice, nil
}

func confirmRemove(role registry.Role, name string) error {
	ok, err := tui.RunConfirm(tui.ConfirmConfig{
		Title: fmt.Sprintf("Remove %s %q?", role, name),
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrCancelled
	}
	return nil
}

// PromptPubkey asks for a public key until one matches the accepted format.
func PromptPubkey(name, current string) (string, error) {
	for {
		key, err := Input("SSH Public Key", fmt.Sprintf("Enter public key for %q", name), current)
		if err != nil {
			return "", err
		}
		if _, err := registry.CleanPublicKey(key); err != nil {
			tui.PrintError(err.Error())
			continue
		}
		return key, nil
	}
}

func errNameRequired(role registry.Role) error {
	return errors.New(errors.KindNameInvalid,
		fmt.Sprintf("A %s name is required.", role),
		"Pass the name as argument")
}

func errPubkeyRequired() error {
	return errors.New(errors.KindInvalidPublicKey,
		"A public key is required.",
		"Pass it with --pubkey")
}
