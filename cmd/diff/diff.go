package diff

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/aemtools/aemcli/cmd/util"
	"github.com/aemtools/aemcli/pkg/transfer"
)

// New creates a new `diff` command showing local changes against the
// server.
func New() *cobra.Command {
	return newDiffCommand(&cobra.Command{
		Use:     "diff [path]",
		Aliases: []string{"localdiff"},
		Short:   "Show local changes as line diffs against the server.",
	}, transfer.Push)
}

// NewServerDiff creates a new `serverdiff` command showing what a pull
// would change.
func NewServerDiff() *cobra.Command {
	return newDiffCommand(&cobra.Command{
		Use:   "serverdiff [path]",
		Short: "Show server changes as line diffs against the checkout.",
	}, transfer.Pull)
}

func newDiffCommand(cmd *cobra.Command, direction transfer.Direction) *cobra.Command {
	flags := &util.CommonFlags{}
	cmd.Args = cobra.MaximumNArgs(1)
	cmd.Run = func(_ *cobra.Command, args []string) {
		if err := run(flags, util.PathArg(args), direction); err != nil {
			util.HandleFatalError(err)
		}
	}
	flags.Register(cmd)
	return cmd
}

func run(flags *util.CommonFlags, path string, direction transfer.Direction) error {
	scope, err := transfer.ResolveScope(path)
	if err != nil {
		return err
	}
	flags.Apply(&scope.Config)

	return scope.ContentDiff(context.Background(), direction, os.Stdout)
}
