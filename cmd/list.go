package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pabra/hilfmir/internal/menu"
)

var listSeekersCmd = &cobra.Command{
	Use:     "list_seekers",
	Aliases: []string{"show-seekers"},
	Short:   "Print one name,user_name,port line per seeker",
	Args:    cobra.NoArgs,
	RunE:    runListSeekers,
}

var showHelpersCmd = &cobra.Command{
	Use:   "show-helpers",
	Short: "Print the names of all helpers",
	Args:  cobra.NoArgs,
	RunE:  runShowHelpers,
}

func runListSeekers(cmd *cobra.Command, args []string) error {
	seekers, err := session.Manager.Seekers()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, s := range seekers {
		fmt.Fprintln(out, menu.SeekerLine(s))
	}
	return nil
}

func runShowHelpers(cmd *cobra.Command, args []string) error {
	helpers, err := session.Manager.Helpers()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, h := range helpers {
		fmt.Fprintln(out, h.Name)
	}
	return nil
}
