package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ngld/star/pkg/archive"
)

func newCreateCmd() *cobra.Command {
	createCmd := &cobra.Command{
		Use:     "c FILE_PATH [from ]APPEND_PATH[ to NEW_PATH]...",
		Aliases: []string{"create"},
		Short:   "new archive",
		Long: `Creates a new archive at FILE_PATH. Every APPEND_PATH may be a glob pattern
("**" matches any number of directories). "to NEW_PATH" renames the preceding
path inside the archive, a NEW_PATH ending in "/" places it in that directory.
"from" collects several patterns that share one "to" target.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runCreate,
	}

	createCmd.Flags().Bool("force", false, "overwrite an existing archive")
	createCmd.Flags().Bool("strict", false, "fail if a pattern has no matches")

	return createCmd
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := settings(cmd)
	archivePath := args[0]

	format, err := resolveFormat(cmd, archivePath)
	if err != nil {
		return err
	}

	compressionOnly, err := cmd.Flags().GetBool("compression-only")
	if err != nil {
		return err
	}

	level, err := cmd.Flags().GetInt("level")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	strict, err := cmd.Flags().GetBool("strict")
	if err != nil {
		return err
	}

	opts := archive.CreateOptions{
		Codec:     cfg.CodecOptions(format, level),
		Overwrite: force,
		Strict:    strict,
	}

	if compressionOnly {
		size := int64(0)
		matches, err := archive.ExpandPattern(args[1])
		if err == nil && len(matches) > 0 {
			size, _ = archive.FileSize(matches[0])
		}

		progress := newTransfer(cmd, size, "compress")
		opts.Progress = progress.Writer()
		_, err = archive.Compress(ctx, archivePath, format, args[1:], opts)
		progress.Finish(ctx)
		return err
	}

	mappings, err := archive.ParseMappings(args[1:])
	if err != nil {
		return err
	}

	total, err := archive.MeasureMappings(mappings)
	if err != nil {
		return err
	}

	progress := newTransfer(cmd, total, "pack")
	opts.Progress = progress.Writer()
	_, err = archive.Create(ctx, archivePath, format, mappings, opts)
	progress.Finish(ctx)
	return err
}
