package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rotisserie/eris"
)

// Entry describes a single filesystem path that was added to an archive
type Entry struct {
	Source string
	Name   string
	Dir    bool
}

// CreateOptions controls how Create and Compress write their output
type CreateOptions struct {
	Codec CodecOptions
	// Overwrite replaces an existing archive instead of failing with ArchiveExists
	Overwrite bool
	// Strict turns patterns without any matches into a NoMatch error
	Strict bool
	// OnEntry is called for every top-level path that has been added
	OnEntry func(Entry)
	// Progress receives a copy of every byte read from the source files
	Progress io.Writer
}

// Result summarizes a finished Create or Compress call
type Result struct {
	Path    string
	Entries int
	// Input is the amount of uncompressed file data that was read
	Input int64
	// Size is the size of the created file
	Size int64
}

type tarBuilder struct {
	ctx     context.Context
	tw      *tar.Writer
	opts    CreateOptions
	buffer  []byte
	self    fs.FileInfo
	entries int
	input   int64
}

func openOutput(filename string, overwrite bool) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}

	hdl, err := os.OpenFile(filename, flags, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ArchiveExists{Path: filename}
		}
		return nil, eris.Wrapf(err, "Failed to create %s", filename)
	}

	return hdl, nil
}

func finishOutput(hdl *os.File, result *Result) error {
	info, err := hdl.Stat()
	if err != nil {
		hdl.Close()
		return eris.Wrapf(err, "Failed to stat %s", hdl.Name())
	}
	result.Size = info.Size()

	err = hdl.Close()
	if err != nil {
		return eris.Wrapf(err, "Failed to close %s", hdl.Name())
	}
	return nil
}

// ExpandPattern resolves a glob pattern ("**" matches any number of directories) into a sorted list of paths.
func ExpandPattern(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to resolve pattern %s", pattern)
	}

	sort.Strings(matches)
	return matches, nil
}

// Create writes a new tar archive wrapped in the given compression format. Every mapping is resolved against
// the filesystem and added in order. On failure the partially written archive is removed.
func Create(ctx context.Context, filename string, format Format, mappings []Mapping, opts CreateOptions) (result Result, err error) {
	result.Path = filename
	hdl, err := openOutput(filename, opts.Overwrite)
	if err != nil {
		return result, err
	}
	defer func() {
		if err != nil {
			hdl.Close()
			os.Remove(filename)
		}
	}()

	encoder, err := NewEncoder(format, hdl, opts.Codec)
	if err != nil {
		return result, err
	}

	builder := &tarBuilder{
		ctx:    ctx,
		tw:     tar.NewWriter(encoder),
		opts:   opts,
		buffer: make([]byte, 32*1024),
	}

	// the archive may live inside one of the directories that are being packed
	builder.self, err = hdl.Stat()
	if err != nil {
		return result, eris.Wrapf(err, "Failed to stat %s", filename)
	}

	for _, mapping := range mappings {
		err = builder.addMapping(mapping)
		if err != nil {
			return result, err
		}
	}

	err = builder.tw.Close()
	if err != nil {
		return result, eris.Wrapf(err, "Failed to finish tar stream in %s", filename)
	}

	err = encoder.Close()
	if err != nil {
		return result, eris.Wrapf(err, "Failed to finish %s stream in %s", format, filename)
	}

	result.Entries = builder.entries
	result.Input = builder.input
	err = finishOutput(hdl, &result)
	if err != nil {
		return result, err
	}

	Log(ctx).Info().Str("path", filename).Int64("size", result.Size).
		Msgf("%s created. (%s)", filename, FormatBytes(float64(result.Size)))
	return result, nil
}

func (b *tarBuilder) addMapping(mapping Mapping) error {
	for _, pattern := range mapping.Patterns {
		matches, err := ExpandPattern(pattern)
		if err != nil {
			return err
		}

		if len(matches) == 0 {
			if b.opts.Strict {
				return NoMatch{Pattern: pattern}
			}
			Log(b.ctx).Warn().Str("pattern", pattern).Msgf("Pattern %s produced no matches", pattern)
			continue
		}

		for _, match := range matches {
			if err := b.ctx.Err(); err != nil {
				return eris.Wrap(err, "Archive creation cancelled")
			}

			target := ResolveTarget(match, mapping.Target, mapping.HasTarget)
			name, err := ArchiveName(target)
			if err != nil {
				return err
			}

			info, err := os.Lstat(match)
			if err != nil {
				return eris.Wrapf(err, "Failed to stat %s", match)
			}

			entry := Entry{Source: match, Name: name, Dir: info.IsDir()}
			if info.IsDir() {
				err = b.addDirectory(match, name, info)
				if err != nil {
					return err
				}
				Log(b.ctx).Info().Str("src", match).Str("dst", name).Msgf("dir %s to %s", match, name)
			} else {
				err = b.addFile(match, name, info)
				if err != nil {
					return err
				}
				Log(b.ctx).Info().Str("src", match).Str("dst", name).Msgf("file %s to %s", match, name)
			}

			if b.opts.OnEntry != nil {
				b.opts.OnEntry(entry)
			}
		}
	}

	return nil
}

// addDirectory recursively adds dir under the given name. An empty name places the directory's contents at the
// root of the archive.
func (b *tarBuilder) addDirectory(dir, name string, info fs.FileInfo) error {
	if name != "" {
		err := b.writeHeader(dir, name, info)
		if err != nil {
			return err
		}
	}

	items, err := os.ReadDir(dir)
	if err != nil {
		return eris.Wrapf(err, "Failed to read dir %s", dir)
	}

	for _, item := range items {
		if err := b.ctx.Err(); err != nil {
			return eris.Wrap(err, "Archive creation cancelled")
		}

		itemPath := dir + string(os.PathSeparator) + item.Name()
		itemName := path.Join(name, item.Name())
		itemInfo, err := os.Lstat(itemPath)
		if err != nil {
			return eris.Wrapf(err, "Failed to stat %s", itemPath)
		}

		if itemInfo.IsDir() {
			err = b.addDirectory(itemPath, itemName, itemInfo)
		} else {
			err = b.addFile(itemPath, itemName, itemInfo)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (b *tarBuilder) addFile(filename, name string, info fs.FileInfo) error {
	if name == "" {
		return UnsafePath{Name: filename}
	}

	if os.SameFile(b.self, info) {
		Log(b.ctx).Debug().Str("src", filename).Msg("Skipping the archive itself")
		return nil
	}

	err := b.writeHeader(filename, name, info)
	if err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(filename)
	if err != nil {
		return eris.Wrapf(err, "Failed to open file %s", filename)
	}
	defer f.Close()

	var src io.Reader = f
	if b.opts.Progress != nil {
		src = io.TeeReader(f, b.opts.Progress)
	}

	n, err := io.CopyBuffer(b.tw, src, b.buffer)
	b.input += n
	if err != nil {
		return eris.Wrapf(err, "Failed to pack file %s", filename)
	}

	return nil
}

func (b *tarBuilder) writeHeader(filename, name string, info fs.FileInfo) error {
	link := ""
	if info.Mode()&fs.ModeSymlink != 0 {
		var err error
		link, err = os.Readlink(filename)
		if err != nil {
			return eris.Wrapf(err, "Failed to read symlink %s", filename)
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return eris.Wrapf(err, "Failed to build tar header for %s", filename)
	}

	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}

	err = b.tw.WriteHeader(hdr)
	if err != nil {
		return eris.Wrapf(err, "Failed to write tar header for %s", filename)
	}

	b.entries++
	return nil
}

// Compress streams a single file through the compression format without a tar layer. sources must contain
// exactly one pattern, the first match is used.
func Compress(ctx context.Context, filename string, format Format, sources []string, opts CreateOptions) (result Result, err error) {
	result.Path = filename
	if len(sources) == 0 {
		return result, NoMatch{}
	}
	if len(sources) > 1 {
		return result, ErrTooManySources
	}

	matches, err := ExpandPattern(sources[0])
	if err != nil {
		return result, err
	}
	if len(matches) == 0 {
		return result, NoMatch{Pattern: sources[0]}
	}
	source := matches[0]

	src, err := os.Open(source)
	if err != nil {
		return result, eris.Wrapf(err, "Failed to open file %s", source)
	}
	defer src.Close()

	hdl, err := openOutput(filename, opts.Overwrite)
	if err != nil {
		return result, err
	}
	defer func() {
		if err != nil {
			hdl.Close()
			os.Remove(filename)
		}
	}()

	encoder, err := NewEncoder(format, hdl, opts.Codec)
	if err != nil {
		return result, err
	}

	var reader io.Reader = src
	if opts.Progress != nil {
		reader = io.TeeReader(src, opts.Progress)
	}

	result.Input, err = io.Copy(encoder, reader)
	if err != nil {
		return result, eris.Wrapf(err, "Failed to compress %s", source)
	}

	err = encoder.Close()
	if err != nil {
		return result, eris.Wrapf(err, "Failed to finish %s stream in %s", format, filename)
	}

	result.Entries = 1
	err = finishOutput(hdl, &result)
	if err != nil {
		return result, err
	}

	if opts.OnEntry != nil {
		opts.OnEntry(Entry{Source: source, Name: filename})
	}

	Log(ctx).Info().Str("path", filename).Int64("size", result.Size).
		Msgf("%s created. (%s)", filename, FormatBytes(float64(result.Size)))
	return result, nil
}
