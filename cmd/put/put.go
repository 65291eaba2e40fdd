package put

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aemtools/aemcli/cmd/util"
	"github.com/aemtools/aemcli/pkg/transfer"
)

// New creates a new `put` command.
func New() *cobra.Command {
	flags := &util.CommonFlags{}
	cmd := &cobra.Command{
		Use:   "put [path]",
		Short: "Push local changes to the server.",
		Long: "Package the local changes under the given path and install\n" +
			"them on the server. Paths that only exist on the server are\n" +
			"deleted there; unchanged content is never touched.",
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(flags, util.PathArg(args)); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	flags.Register(cmd)
	return cmd
}

func run(flags *util.CommonFlags, path string) error {
	scope, err := transfer.ResolveScope(path)
	if err != nil {
		return err
	}
	flags.Apply(&scope.Config)

	report, err := scope.Put(context.Background())
	if err != nil {
		return err
	}

	if scope.Config.Quiet {
		return nil
	}
	if report.Empty() {
		fmt.Printf("%s is up to date with %s\n",
			scope.RepoPath, scope.Config.Server)
		return nil
	}
	report.Render(os.Stdout)
	return nil
}
