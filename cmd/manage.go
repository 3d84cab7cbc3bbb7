package cmd

import "github.com/spf13/cobra"

// manageCommands returns the hyphenated commands used on the operator's
// machine. They share flags and behavior with the helper and seeker
// subcommands.
func manageCommands() []*cobra.Command {
	addHelper := &cobra.Command{
		Use:   "add-helper [name]",
		Short: "Register a new helper",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHelperAdd,
	}
	addHelper.Flags().StringVar(&helperPubkey, "pubkey", "", "Public key of the helper")

	removeHelper := &cobra.Command{
		Use:   "remove-helper [name]",
		Short: "Remove a helper",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHelperRemove,
	}

	addSeeker := &cobra.Command{
		Use:   "add-seeker [name]",
		Short: "Register a new seeker and print its setup instructions",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSeekerAdd,
	}
	addSeekerFlags(addSeeker)

	removeSeeker := &cobra.Command{
		Use:   "remove-seeker [name]",
		Short: "Remove a seeker and free its port",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSeekerRemove,
	}

	return []*cobra.Command{addHelper, removeHelper, addSeeker, removeSeeker}
}
