package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	assetsCmd "github.com/aemtools/aemcli/cmd/assets"
	"github.com/aemtools/aemcli/cmd/checkout"
	cleanupCmd "github.com/aemtools/aemcli/cmd/cleanup"
	diffCmd "github.com/aemtools/aemcli/cmd/diff"
	"github.com/aemtools/aemcli/cmd/get"
	"github.com/aemtools/aemcli/cmd/put"
	"github.com/aemtools/aemcli/cmd/status"
	"github.com/aemtools/aemcli/cmd/util"
	"github.com/aemtools/aemcli/cmd/version"
	"github.com/aemtools/aemcli/cmd/watch"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "AEMCLI_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "aemcli",
		Short:        "Sync content between a local checkout and a repository server.",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		assetsCmd.New(),
		checkout.New(),
		cleanupCmd.New(),
		diffCmd.New(),
		diffCmd.NewServerDiff(),
		get.New(),
		put.New(),
		status.New(),
		version.New(),
		watch.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
