package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ngld/star/pkg/archive"
)

func newExtractCmd() *cobra.Command {
	extractCmd := &cobra.Command{
		Use:     "x FILE_PATH [EXTRACT_DIR]",
		Aliases: []string{"extract"},
		Short:   "extract archive",
		Long: `Extracts the archive at FILE_PATH to EXTRACT_DIR (defaults to ./). With -c the
decompressed stream is written to EXTRACT_DIR as a single file instead.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runExtract,
	}

	extractCmd.Flags().Int("strip", 0, "remove the given number of leading path components")
	extractCmd.Flags().Bool("force", false, "overwrite an existing file (compression only)")

	return extractCmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	archivePath := args[0]
	dst := "./"
	if len(args) > 1 {
		dst = args[1]
	}

	format, err := resolveFormat(cmd, archivePath)
	if err != nil {
		return err
	}

	compressionOnly, err := cmd.Flags().GetBool("compression-only")
	if err != nil {
		return err
	}

	strip, err := cmd.Flags().GetInt("strip")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	size, err := archive.FileSize(archivePath)
	if err != nil {
		return err
	}

	progress := newTransfer(cmd, size, "extract")
	defer progress.Finish(ctx)

	opts := archive.ExtractOptions{
		Strip:     strip,
		Overwrite: force,
		Progress:  progress.Writer(),
	}

	if compressionOnly {
		_, err = archive.Decompress(ctx, archivePath, format, dst, opts)
		return err
	}

	_, err = archive.Extract(ctx, archivePath, format, dst, opts)
	return err
}
