package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aemtools/aemcli/pkg/config"
	"github.com/aemtools/aemcli/pkg/errors"
)

// HandleFatalError prints the error and exits non-zero. Friendly errors are
// shown as-is; everything else keeps its context chain so the failure can
// be traced.
func HandleFatalError(err error) {
	if friendly, ok := errors.RootCause(err).(errors.FriendlyError); ok {
		fmt.Fprintln(os.Stderr, friendly.FriendlyMessage())
	} else {
		fmt.Fprintf(os.Stderr, "aemcli: %s\n", err)
	}
	os.Exit(1)
}

// HandlePanic converts a panic into a readable crash report.
func HandlePanic() {
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr, "aemcli crashed: %v\n\n%s", r, debug.Stack())
		os.Exit(1)
	}
}

// Confirm asks a yes/no question and defaults to no.
func Confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// CommonFlags are the overrides every sync command accepts on top of the
// .repo configuration.
type CommonFlags struct {
	Server      string
	Credentials string
	Force       bool
	Quiet       bool
}

// Register adds the flags to the command.
func (f *CommonFlags) Register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.Server, "server", "s", "",
		"Server URL to sync with (overrides the .repo file)")
	flags.StringVarP(&f.Credentials, "credentials", "u", "",
		"user:password credentials (overrides the .repo file)")
	flags.BoolVarP(&f.Force, "force", "f", false,
		"Skip file/directory conflicts and deletion confirmations")
	flags.BoolVarP(&f.Quiet, "quiet", "q", false,
		"Only print errors")
}

// Apply layers the flag overrides onto the loaded configuration.
func (f *CommonFlags) Apply(cfg *config.Config) {
	if f.Server != "" {
		cfg.Server = f.Server
	}
	if f.Credentials != "" {
		cfg.Credentials = f.Credentials
	}
	if f.Force {
		cfg.Force = true
	}
	if f.Quiet {
		cfg.Quiet = true
	}
}

// PathArg resolves the optional positional path argument, defaulting to the
// working directory.
func PathArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
