package checkout

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aemtools/aemcli/cmd/util"
	"github.com/aemtools/aemcli/pkg/config"
	"github.com/aemtools/aemcli/pkg/transfer"
)

// New creates a new `checkout` command.
func New() *cobra.Command {
	flags := &util.CommonFlags{}
	var dir string

	cmd := &cobra.Command{
		Use:   "checkout <repository-path>",
		Short: "Create a local checkout of a repository subtree.",
		Long: "Create the jcr_root directory and the .repo configuration,\n" +
			"then pull the content of the given repository path into it.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(flags, dir, args[0]); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	flags.Register(cmd)
	cmd.Flags().StringVarP(&dir, "dir", "d", ".",
		"Directory to create the checkout in")
	return cmd
}

func run(flags *util.CommonFlags, dir, repoPath string) error {
	cfg := config.Default()
	flags.Apply(&cfg)

	scope, report, err := transfer.Checkout(context.Background(), cfg, dir, repoPath)
	if err != nil {
		return err
	}

	if !cfg.Quiet {
		report.Render(os.Stdout)
		fmt.Printf("Checked out %s from %s into %s\n",
			repoPath, cfg.Server, scope.CheckoutRoot)
	}
	return nil
}
