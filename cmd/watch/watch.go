package watch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aemtools/aemcli/cmd/util"
	"github.com/aemtools/aemcli/pkg/fswatch"
	"github.com/aemtools/aemcli/pkg/transfer"
)

// New creates a new `watch` command.
func New() *cobra.Command {
	flags := &util.CommonFlags{}
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Push local changes to the server as they happen.",
		Long: "Run an initial put, then watch the checkout and push again\n" +
			"whenever local files change. Stops on Ctrl-C.",
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(flags, util.PathArg(args), debounce); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	flags.Register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond,
		"How long to wait for the filesystem to settle before pushing")
	return cmd
}

func run(flags *util.CommonFlags, path string, debounce time.Duration) error {
	scope, err := transfer.ResolveScope(path)
	if err != nil {
		return err
	}
	flags.Apply(&scope.Config)

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	push(ctx, scope)
	if !scope.Config.Quiet {
		fmt.Printf("Watching %s\n", scope.LocalPath)
	}

	return fswatch.Watch(ctx, scope.LocalPath, debounce, func(paths []string) {
		log.WithField("changes", len(paths)).Debug("Filesystem settled, pushing")
		push(ctx, scope)
	})
}

// push runs one put and reports the outcome without stopping the watch. A
// failed push is retried implicitly by the next filesystem change.
func push(ctx context.Context, scope *transfer.Scope) {
	report, err := scope.Put(ctx)
	if err != nil {
		log.WithError(err).Warn("Push failed. Will retry on the next change.")
		return
	}
	if !scope.Config.Quiet && !report.Empty() {
		report.Render(os.Stdout)
	}
}
