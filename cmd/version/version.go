package version

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aemtools/aemcli/pkg/remote"
	"github.com/aemtools/aemcli/pkg/transfer"
	"github.com/aemtools/aemcli/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version and the server's listing format.",
		Run: func(_ *cobra.Command, _ []string) {
			run()
		},
	}
}

func run() {
	fmt.Printf("client version: %s\n", version.Version)

	// The server half is best effort: outside a checkout, or with the
	// server unreachable, only the client version prints.
	scope, err := transfer.ResolveScope(".")
	if err != nil {
		log.WithError(err).Debug("Not inside a checkout; skipping the server version")
		return
	}

	client := remote.NewClient(scope.Config)
	format, err := client.ServerFormat(context.Background())
	if err != nil {
		log.WithError(err).Debug("Failed to fetch the server listing format")
		return
	}

	fmt.Printf("server listing format: %s\n", format)
	if err := remote.CheckListFormat(format); err != nil {
		fmt.Println("The server and client are incompatible. Upgrade one of them.")
	}
}
