// Package menu provides the interactive menu and the prompts shared with the
// hilfmir subcommands.
package menu

import (
	"errors"
	"fmt"

	"github.com/net2share/go-corelib/tui"

	"github.com/pabra/hilfmir/pkg/registry"
)

// ErrCancelled is returned when user cancels an operation.
// In menu context, this skips WaitForEnter. In CLI context, this can be handled as an error.
var ErrCancelled = errors.New("cancelled")

// Version and BuildTime are set by cmd package.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Run shows the main interactive menu.
func Run(s *Session) error {
	tui.SetAppInfo("hilfmir", Version, BuildTime)
	fmt.Printf("Deployment: %s, registry: %s\n", s.Settings.Deployment, s.Manager.Store().Path())

	return runMenuLoop(s)
}

func runMenuLoop(s *Session) error {
	for {
		fmt.Println()
		_, err := s.Manager.Store().ForceReload()
		initialized := err == nil

		choice, err := tui.RunMenu(tui.MenuConfig{
			Title:   "hilfmir",
			Options: buildMenuOptions(initialized, s.Manager.ManagesKeys()),
		})
		if err != nil {
			return err
		}

		if choice == "" || choice == "exit" {
			tui.PrintInfo("Goodbye!")
			return nil
		}

		err = handleChoice(s, choice)
		if errors.Is(err, ErrCancelled) {
			continue
		}
		if err != nil {
			tui.PrintError(err.Error())
		}
		tui.WaitForEnter()
	}
}

func buildMenuOptions(initialized, managesKeys bool) []tui.MenuOption {
	var options []tui.MenuOption

	// Entity management - only once a registry can be read
	if initialized {
		options = append(options,
			tui.MenuOption{Label: "Add helper", Value: "add-helper"},
			tui.MenuOption{Label: "Update helper", Value: "update-helper"},
			tui.MenuOption{Label: "Remove helper", Value: "remove-helper"},
			tui.MenuOption{Label: "List helpers", Value: "list-helpers"},
			tui.MenuOption{Label: "Add seeker", Value: "add-seeker"},
			tui.MenuOption{Label: "Update seeker", Value: "update-seeker"},
			tui.MenuOption{Label: "Remove seeker", Value: "remove-seeker"},
			tui.MenuOption{Label: "List seekers", Value: "list-seekers"},
		)
		if managesKeys {
			options = append(options, tui.MenuOption{Label: "Check authorized_keys", Value: "check"})
		}
	}

	options = append(options,
		tui.MenuOption{Label: "Initialize registry", Value: "init"},
		tui.MenuOption{Label: "Exit", Value: "exit"},
	)

	return options
}

func handleChoice(s *Session, choice string) error {
	switch choice {
	case "init":
		return s.Init(InitRequest{Interactive: true})
	case "add-helper":
		return s.AddHelper(HelperRequest{Interactive: true})
	case "update-helper":
		return s.UpdateHelper(HelperRequest{Interactive: true})
	case "remove-helper":
		return s.RemoveHelper("", true)
	case "list-helpers":
		return listHelpersFullscreen(s)
	case "add-seeker":
		return s.AddSeeker(SeekerRequest{Interactive: true})
	case "update-seeker":
		return s.UpdateSeeker(SeekerRequest{Interactive: true})
	case "remove-seeker":
		return s.RemoveSeeker("", true)
	case "list-seekers":
		return listSeekersFullscreen(s)
	case "check":
		return s.Check()
	}
	return nil
}

func listHelpersFullscreen(s *Session) error {
	helpers, err := s.Manager.Helpers()
	if err != nil {
		return err
	}

	if err := tui.ShowList(tui.ListConfig{
		Title:     "Helpers",
		Items:     helperNames(helpers),
		EmptyText: "No helpers found.",
	}); err != nil {
		return err
	}

	return ErrCancelled
}

func listSeekersFullscreen(s *Session) error {
	seekers, err := s.Manager.Seekers()
	if err != nil {
		return err
	}

	items := make([]string, len(seekers))
	for i, sk := range seekers {
		items[i] = fmt.Sprintf("%s (user %s, port %d)", sk.Name, sk.UserName, sk.Port)
	}

	if err := tui.ShowList(tui.ListConfig{
		Title:     fmt.Sprintf("Seekers (ports %d-%d)", registry.PortMin, registry.PortMax),
		Items:     items,
		EmptyText: "No seekers found.",
	}); err != nil {
		return err
	}

	return ErrCancelled
}
