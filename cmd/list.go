package cmd

import (
	"archive/tar"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/ngld/star/pkg/archive"
)

func newListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:     "l FILE_PATH",
		Aliases: []string{"list"},
		Short:   "list archive contents",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := resolveFormat(cmd, args[0])
			if err != nil {
				return err
			}

			long, err := cmd.Flags().GetBool("long")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return archive.List(cmd.Context(), args[0], format, func(hdr *tar.Header) error {
				if !long {
					_, err := fmt.Fprintln(out, hdr.Name)
					return err
				}

				_, err := fmt.Fprintln(out, formatHeader(hdr))
				return err
			})
		},
	}

	listCmd.Flags().BoolP("long", "l", false, "show mode, size and modification time")
	return listCmd
}

func formatHeader(hdr *tar.Header) string {
	mode := hdr.FileInfo().Mode()
	name := hdr.Name
	if mode&fs.ModeSymlink != 0 {
		name += " -> " + hdr.Linkname
	} else if hdr.Typeflag == tar.TypeLink {
		name += " link to " + hdr.Linkname
	}

	return fmt.Sprintf("%s %12d %s %s", mode, hdr.Size, hdr.ModTime.Format("2006-01-02 15:04"), name)
}
