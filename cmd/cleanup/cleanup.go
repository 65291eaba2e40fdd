package cleanup

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aemtools/aemcli/cmd/util"
	"github.com/aemtools/aemcli/pkg/cleanup"
	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/jcr"
)

var fs = afero.NewOsFs()

// New creates a new `cleanup` command.
func New() *cobra.Command {
	var rulesPath string
	var properties []string
	var dryRun bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "cleanup [path]",
		Short: "Strip volatile properties from serialized content.",
		Long: "Remove server-managed properties (jcr:lastModified,\n" +
			"jcr:uuid, ...) from the .content.xml files under the given\n" +
			"path, so they stop showing up as spurious changes.",
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(util.PathArg(args), rulesPath, properties, dryRun, quiet); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "",
		"YAML file listing the properties to strip")
	cmd.Flags().StringArrayVar(&properties, "property", nil,
		"Property to strip instead of the default set (repeatable)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false,
		"Only report the files that would change")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false,
		"Only print errors")
	return cmd
}

func run(path, rulesPath string, properties []string, dryRun, quiet bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.WithContext(err, "resolve path")
	}
	if _, _, err := jcr.SplitCheckoutPath(abs); err != nil {
		return err
	}

	rules := cleanup.DefaultRules()
	if rulesPath != "" {
		rules, err = cleanup.LoadRules(fs, rulesPath)
		if err != nil {
			return err
		}
	}
	if len(properties) > 0 {
		rules = cleanup.Rules{Properties: properties}
	}

	result, err := cleanup.Run(fs, abs, rules, dryRun)
	if err != nil {
		return err
	}

	if quiet {
		return nil
	}
	if len(result.Changed) == 0 {
		fmt.Println("Nothing to clean.")
		return nil
	}
	verb := "cleaned"
	if dryRun {
		verb = "would clean"
	}
	for _, changed := range result.Changed {
		fmt.Printf("%s %s\n", verb, changed)
	}
	return nil
}
