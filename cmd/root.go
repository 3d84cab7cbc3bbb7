// Package cmd provides the Cobra CLI for hilfmir.
package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/net2share/go-corelib/osdetect"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pabra/hilfmir/internal/config"
	"github.com/pabra/hilfmir/internal/errors"
	"github.com/pabra/hilfmir/internal/logging"
	"github.com/pabra/hilfmir/internal/menu"
	"github.com/pabra/hilfmir/pkg/authkeys"
	"github.com/pabra/hilfmir/pkg/entity"
	"github.com/pabra/hilfmir/pkg/registry"
)

// Version and BuildTime are set at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	configFile string
	session    *menu.Session
)

// fs is where the registry and authorized_keys live.
var fs = afero.NewOsFs()

var rootCmd = &cobra.Command{
	Use:   "hilfmir",
	Short: "SSH access provisioning for helpers and seekers",
	Long: "hilfmir keeps a registry of helpers and seekers, allocates seeker ports on the\n" +
		"SSH proxy and maintains the proxy user's authorized_keys file.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		menu.Version = Version
		menu.BuildTime = BuildTime
		return menu.Run(session)
	},
}

func init() {
	rootCmd.Version = Version

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Settings file (default: hilfmir.yaml in the user config dir, /etc/hilfmir or .)")
	flags.String("deployment", "", "Deployment: manage or proxy")
	flags.String("registry", "", "Registry file (default: next to the executable)")
	flags.String("authorized-keys", "", "authorized_keys file maintained in the proxy deployment")
	flags.Bool("debug", false, "Log debug messages")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(helperCmd)
	rootCmd.AddCommand(seekerCmd)
	rootCmd.AddCommand(listSeekersCmd)
	rootCmd.AddCommand(showHelpersCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(manageCommands()...)
}

// setup resolves the settings and opens the registry for every command.
func setup(cmd *cobra.Command, args []string) error {
	s, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return err
	}
	logging.SetDebug(s.Debug)
	logging.Debugf("deployment %s, registry %s", s.Deployment, s.Registry)

	if s.Deployment == config.DeploymentProxy && osdetect.IsRoot() {
		return errors.New(errors.KindConfigInvalid,
			"Do not run hilfmir as root in the proxy deployment.",
			"Run it as the proxy user")
	}

	session = newSession(fs, s)
	return nil
}

func newSession(fs afero.Fs, s config.Settings) *menu.Session {
	store := registry.NewStore(fs, s.Registry, s.Strict())
	var keys *authkeys.Editor
	if s.Deployment == config.DeploymentProxy {
		keys = authkeys.NewEditor(fs, s.AuthorizedKeys, s.ForcedCommand)
	}
	return &menu.Session{
		Manager:  entity.NewManager(store, keys),
		Settings: s,
	}
}

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

// printError writes err as one ERROR line, followed by its hint if any.
func printError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("ERROR:"), err.Error())
	if hint := errors.Hint(err); hint != "" {
		fmt.Fprintln(w, "  "+hint)
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if stderrors.Is(err, menu.ErrCancelled) {
			fmt.Fprintln(os.Stderr, "Cancelled.")
		} else {
			printError(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// SetVersionInfo sets version information for the CLI.
func SetVersionInfo(version, buildTime string) {
	Version = version
	BuildTime = buildTime
	rootCmd.Version = version + " (built " + buildTime + ")"
}
