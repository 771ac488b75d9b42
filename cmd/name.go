package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ngld/star/pkg/release"
)

func newNameCmd() *cobra.Command {
	nameCmd := &cobra.Command{
		Use:   "name",
		Short: "Prints the release artifact name for the current platform",
		Long: `Prints star-<os>-<arch>-<toolchain>.<ext>. The TRAVIS_OS_NAME, TRAVIS_CPU_ARCH and
TRAVIS_GO_VERSION variables override the values of the running binary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ext, err := cmd.Flags().GetString("ext")
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), release.ArtifactName(os.Getenv, ext))
			return err
		},
	}

	nameCmd.Flags().String("ext", "tar.xz", "file extension of the artifact")
	return nameCmd
}
