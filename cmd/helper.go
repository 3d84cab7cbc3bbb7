package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pabra/hilfmir/internal/menu"
)

var helperPubkey string

var helperCmd = &cobra.Command{
	Use:   "helper",
	Short: "Add, update or remove a helper",
}

var helperAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Register a new helper",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHelperAdd,
}

var helperUpdateCmd = &cobra.Command{
	Use:   "update [name]",
	Short: "Replace the public key of a helper",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHelperUpdate,
}

var helperRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a helper",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHelperRemove,
}

func init() {
	helperAddCmd.Flags().StringVar(&helperPubkey, "pubkey", "", "Public key of the helper")
	helperUpdateCmd.Flags().StringVar(&helperPubkey, "pubkey", "", "New public key of the helper")

	helperCmd.AddCommand(helperAddCmd)
	helperCmd.AddCommand(helperUpdateCmd)
	helperCmd.AddCommand(helperRemoveCmd)
}

func nameArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func runHelperAdd(cmd *cobra.Command, args []string) error {
	return session.AddHelper(menu.HelperRequest{
		Name:        nameArg(args),
		PublicKey:   helperPubkey,
		Interactive: !cmd.Flags().Changed("pubkey"),
	})
}

func runHelperUpdate(cmd *cobra.Command, args []string) error {
	return session.UpdateHelper(menu.HelperRequest{
		Name:        nameArg(args),
		PublicKey:   helperPubkey,
		Interactive: !cmd.Flags().Changed("pubkey"),
	})
}

func runHelperRemove(cmd *cobra.Command, args []string) error {
	return session.RemoveHelper(nameArg(args), len(args) == 0)
}
