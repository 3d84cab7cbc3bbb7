package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pabra/hilfmir/internal/menu"
)

var (
	seekerPubkey   string
	seekerUserName string
	seekerHelpers  string
)

var seekerCmd = &cobra.Command{
	Use:   "seeker",
	Short: "Add, update or remove a seeker",
}

var seekerAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Register a new seeker on the next free port",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSeekerAdd,
}

var seekerUpdateCmd = &cobra.Command{
	Use:   "update [name]",
	Short: "Change the user name or public key of a seeker",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSeekerUpdate,
}

var seekerRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a seeker and free its port",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSeekerRemove,
}

func init() {
	addSeekerFlags(seekerAddCmd)
	seekerUpdateCmd.Flags().StringVar(&seekerPubkey, "pubkey", "", "New public key of the seeker")
	seekerUpdateCmd.Flags().StringVar(&seekerUserName, "user-name", "", "New login name on the seeker machine")

	seekerCmd.AddCommand(seekerAddCmd)
	seekerCmd.AddCommand(seekerUpdateCmd)
	seekerCmd.AddCommand(seekerRemoveCmd)
}

func addSeekerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&seekerPubkey, "pubkey", "", "Public key of the seeker")
	cmd.Flags().StringVar(&seekerUserName, "user-name", "", "Login name on the seeker machine (default: the seeker name)")
	cmd.Flags().StringVar(&seekerHelpers, "helpers", "", "Space separated helpers that get access, manage deployment only (default: all)")
}

func runSeekerAdd(cmd *cobra.Command, args []string) error {
	return session.AddSeeker(menu.SeekerRequest{
		Name:        nameArg(args),
		UserName:    seekerUserName,
		PublicKey:   seekerPubkey,
		Helpers:     seekerHelpers,
		Interactive: !cmd.Flags().Changed("pubkey"),
	})
}

func runSeekerUpdate(cmd *cobra.Command, args []string) error {
	// Determine CLI vs interactive mode
	cliMode := cmd.Flags().Changed("pubkey") || cmd.Flags().Changed("user-name")

	return session.UpdateSeeker(menu.SeekerRequest{
		Name:        nameArg(args),
		UserName:    seekerUserName,
		PublicKey:   seekerPubkey,
		Interactive: !cliMode,
	})
}

func runSeekerRemove(cmd *cobra.Command, args []string) error {
	return session.RemoveSeeker(nameArg(args), len(args) == 0)
}
