package status

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aemtools/aemcli/cmd/util"
	"github.com/aemtools/aemcli/pkg/transfer"
)

// New creates a new `status` command.
func New() *cobra.Command {
	flags := &util.CommonFlags{}
	cmd := &cobra.Command{
		Use:     "status [path]",
		Aliases: []string{"st"},
		Short:   "Show how the checkout differs from the server.",
		Long: "Compare the local checkout with the server and list every\n" +
			"path that differs. Nothing is transferred.",
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

	plan, err := scope.BuildPlan(context.Background())
	if err != nil {
		return err
	}

	report := scope.Report(plan, transfer.Push)
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
