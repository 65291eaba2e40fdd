package get

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aemtools/aemcli/cmd/util"
	"github.com/aemtools/aemcli/pkg/gitstatus"
	"github.com/aemtools/aemcli/pkg/snapshot"
	"github.com/aemtools/aemcli/pkg/transfer"
)

// New creates a new `get` command.
func New() *cobra.Command {
	flags := &util.CommonFlags{}
	cmd := &cobra.Command{
		Use:   "get [path]",
		Short: "Pull server content into the checkout.",
		Long: "Replace the content under the given path with the server's\n" +
			"version. Local paths that no longer exist on the server are\n" +
			"only deleted after confirmation (or with --force).",
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

	ctx := context.Background()
	plan, err := scope.BuildPlan(ctx)
	if err != nil {
		return err
	}

	applyDeletions := scope.Config.Force
	if !applyDeletions {
		applyDeletions = confirmDeletions(scope, plan)
	}

	report, err := scope.Get(ctx, transfer.GetOptions{
		ApplyDeletions: applyDeletions,
		Plan:           plan,
	})
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
	printGitStatus(scope.CheckoutRoot)
	return nil
}

// confirmDeletions lists the local-only paths the pull would remove and
// asks before removing them. Declining keeps them and pulls the rest. The
// plan is the one the pull itself applies, so the confirmed list can't
// drift from what happens.
func confirmDeletions(scope *transfer.Scope, plan *transfer.Plan) bool {
	var doomed []string
	for _, entry := range scope.Report(plan, transfer.Pull).Entries {
		if entry.Classification == snapshot.DeletedRemote {
			doomed = append(doomed, entry.Path)
		}
	}
	if len(doomed) == 0 {
		return false
	}

	fmt.Println("These paths only exist locally and would be deleted:")
	for _, path := range doomed {
		fmt.Printf("  %s\n", path)
	}
	return util.Confirm(os.Stdin, os.Stdout, "Delete them?")
}

func printGitStatus(checkoutRoot string) {
	lines, err := gitstatus.Summary(checkoutRoot)
	if err != nil {
		log.WithError(err).Debug("Failed to compute the git status")
		return
	}
	if len(lines) == 0 {
		return
	}

	fmt.Println("\ngit status:")
	for _, line := range lines {
		fmt.Printf("  %s\n", line)
	}
}
