package assets

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aemtools/aemcli/cmd/util"
	"github.com/aemtools/aemcli/pkg/assets"
	"github.com/aemtools/aemcli/pkg/errors"
	"github.com/aemtools/aemcli/pkg/jcr"
)

var fs = afero.NewOsFs()

// New creates a new `unused-assets` command.
func New() *cobra.Command {
	var remove bool
	var force bool

	cmd := &cobra.Command{
		Use:   "unused-assets [path]",
		Short: "List assets that no content references.",
		Long: "Scan the checkout for assets under /content/dam that nothing\n" +
			"references, and optionally delete them locally. A following\n" +
			"`put` propagates the deletions to the server.",
		Args: cobra.MaximumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(util.PathArg(args), remove, force); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false,
		"Delete the unused assets from the checkout")
	cmd.Flags().BoolVarP(&force, "force", "f", false,
		"Delete without asking")
	return cmd
}

func run(path string, remove, force bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.WithContext(err, "resolve path")
	}
	checkoutRoot, _, err := jcr.SplitCheckoutPath(abs)
	if err != nil {
		return err
	}

	unused, err := assets.FindUnused(fs, checkoutRoot)
	if err != nil {
		return err
	}
	if len(unused) == 0 {
		fmt.Println("No unused assets found.")
		return nil
	}

	for _, assetPath := range unused {
		fmt.Println(assetPath)
	}
	if !remove {
		return nil
	}

	if !force {
		prompt := fmt.Sprintf("Delete these %d assets from the checkout?", len(unused))
		if !util.Confirm(os.Stdin, os.Stdout, prompt) {
			return nil
		}
	}
	if err := assets.Remove(fs, checkoutRoot, unused); err != nil {
		return err
	}
	fmt.Printf("Deleted %d assets. Run `put` to apply on the server.\n", len(unused))
	return nil
}
