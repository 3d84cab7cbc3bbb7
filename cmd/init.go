package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pabra/hilfmir/internal/menu"
)

var (
	initYes       bool
	initProxyHost string
	initProxyPort int
	initProxyUser string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a fresh registry for an SSH proxy",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initYes, "yes", "y", false, "Overwrite an existing registry without asking")
	initCmd.Flags().StringVar(&initProxyHost, "proxy-host", "", "Hostname of the SSH proxy")
	initCmd.Flags().IntVar(&initProxyPort, "proxy-port", 0, "SSH port of the proxy")
	initCmd.Flags().StringVar(&initProxyUser, "proxy-user", "", "User name on the SSH proxy")
}

func runInit(cmd *cobra.Command, args []string) error {
	// Determine CLI vs interactive mode
	cliMode := cmd.Flags().Changed("yes") ||
		cmd.Flags().Changed("proxy-host") ||
		cmd.Flags().Changed("proxy-port") ||
		cmd.Flags().Changed("proxy-user")

	return session.Init(menu.InitRequest{
		SSHProxy:    initProxyHost,
		SSHPort:     initProxyPort,
		SSHUser:     initProxyUser,
		Yes:         initYes,
		Interactive: !cliMode,
	})
}
