package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ExtractOptions controls Extract and Decompress
type ExtractOptions struct {
	// Strip removes the given number of leading path components from every entry
	Strip int
	// Overwrite allows Decompress to replace an existing file
	Overwrite bool
	// Progress receives a copy of every (compressed) byte read from the archive file
	Progress io.Writer
}

type archiveStream struct {
	hdl     *os.File
	decoder io.ReadCloser
}

func (s *archiveStream) Read(p []byte) (int, error) {
	return s.decoder.Read(p)
}

func (s *archiveStream) Close() error {
	err := s.decoder.Close()
	cErr := s.hdl.Close()
	if err != nil {
		return err
	}
	return cErr
}

func openArchive(filename string, format Format, progress io.Writer) (*archiveStream, error) {
	hdl, err := os.Open(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to open archive %s", filename)
	}

	var src io.Reader = hdl
	if progress != nil {
		src = io.TeeReader(hdl, progress)
	}

	decoder, err := NewDecoder(format, src)
	if err != nil {
		hdl.Close()
		return nil, err
	}

	return &archiveStream{hdl: hdl, decoder: decoder}, nil
}

func prepareDestination(dst string) (string, error) {
	if dst == "" {
		dst = "./"
	}

	info, err := os.Stat(dst)
	if err == nil {
		if !info.IsDir() {
			return "", DestinationNotDir{Path: dst}
		}
		return dst, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return "", eris.Wrapf(err, "Failed to stat %s", dst)
	}

	err = os.MkdirAll(dst, 0755)
	if err != nil {
		return "", eris.Wrapf(err, "Failed to create directory %s", dst)
	}
	return dst, nil
}

// checkParents makes sure that no directory between root and dest is a symlink. Otherwise an archive could
// first create a link pointing outside of root and then write through it.
func checkParents(root, dest, name string) error {
	rel, err := filepath.Rel(root, filepath.Dir(dest))
	if err != nil {
		return UnsafePath{Name: name}
	}
	if rel == "." {
		return nil
	}

	current := root
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return eris.Wrapf(err, "Failed to stat %s", current)
		}

		if info.Mode()&fs.ModeSymlink != 0 {
			return UnsafePath{Name: name}
		}
	}

	return nil
}

type dirTimes struct {
	path  string
	mode  fs.FileMode
	mtime time.Time
}

// Extract unpacks the tar archive filename into dst. Entries that would be placed outside of dst are rejected.
func Extract(ctx context.Context, filename string, format Format, dst string, opts ExtractOptions) (int, error) {
	dst, err := prepareDestination(dst)
	if err != nil {
		return 0, err
	}

	stream, err := openArchive(filename, format, opts.Progress)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	archive := tar.NewReader(stream)
	buf := make([]byte, 32*1024)
	dirs := make([]dirTimes, 0)
	count := 0

	for {
		if err := ctx.Err(); err != nil {
			return count, eris.Wrap(err, "Extraction cancelled")
		}

		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return count, eris.Wrap(err, "Failed to read archive entry")
		}

		dest, ok, err := SafeJoin(dst, item.Name, opts.Strip)
		if err != nil {
			return count, err
		}
		if !ok {
			continue
		}

		err = checkParents(dst, dest, item.Name)
		if err != nil {
			return count, err
		}

		fi := item.FileInfo()
		switch item.Typeflag {
		case tar.TypeDir:
			info, err := os.Lstat(dest)
			if err == nil && !info.IsDir() {
				if info.Mode()&fs.ModeSymlink != 0 {
					return count, UnsafePath{Name: item.Name}
				}
				err = os.Remove(dest)
				if err != nil {
					return count, eris.Wrapf(err, "Failed to remove %s", dest)
				}
			}

			err = os.MkdirAll(dest, 0755)
			if err != nil {
				return count, eris.Wrapf(err, "Failed to create directory %s", dest)
			}
			dirs = append(dirs, dirTimes{path: dest, mode: fi.Mode().Perm(), mtime: item.ModTime})

		case tar.TypeReg, tar.TypeRegA:
			err = extractFile(archive, dest, fi.Mode().Perm(), buf)
			if err != nil {
				return count, err
			}
			err = os.Chtimes(dest, item.ModTime, item.ModTime)
			if err != nil {
				Log(ctx).Warn().Err(err).Str("path", dest).Msgf("Failed to set modification time of %s", dest)
			}

		case tar.TypeSymlink:
			err = replaceWith(dest, func() error {
				return os.Symlink(item.Linkname, dest)
			})
			if err != nil {
				return count, eris.Wrapf(err, "Failed to create symlink %s pointing to %s", dest, item.Linkname)
			}

		case tar.TypeLink:
			target, ok, err := SafeJoin(dst, item.Linkname, opts.Strip)
			if err != nil {
				return count, err
			}
			if !ok {
				Log(ctx).Warn().Str("name", item.Name).Msgf("Skipping hardlink %s whose target was stripped", item.Name)
				continue
			}

			err = checkLinkTarget(dst, target, item.Linkname)
			if err != nil {
				return count, err
			}

			err = replaceWith(dest, func() error {
				return os.Link(target, dest)
			})
			if err != nil {
				return count, eris.Wrapf(err, "Failed to create hardlink %s pointing to %s", dest, target)
			}

		case tar.TypeXGlobalHeader:
			continue

		default:
			Log(ctx).Warn().Str("name", item.Name).Msgf("Skipping unsupported entry %s (type %c)", item.Name, item.Typeflag)
			continue
		}

		count++
		Log(ctx).Debug().Str("name", item.Name).Str("path", dest).Msg("extracted")
	}

	// directories are finalized last so that read-only directories don't block their own contents
	for idx := len(dirs) - 1; idx >= 0; idx-- {
		dir := dirs[idx]
		err = finalizeDirectory(ctx, dst, dir)
		if err != nil {
			return count, err
		}
	}

	Log(ctx).Info().Str("path", dst).Int("entries", count).Msg("ok.")
	return count, nil
}

// checkLinkTarget only allows hardlinks to regular files that were extracted below root
func checkLinkTarget(root, target, name string) error {
	err := checkParents(root, target, name)
	if err != nil {
		return err
	}

	info, err := os.Lstat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return UnsafePath{Name: name}
		}
		return eris.Wrapf(err, "Failed to stat %s", target)
	}

	if !info.Mode().IsRegular() {
		return UnsafePath{Name: name}
	}
	return nil
}

func finalizeDirectory(ctx context.Context, root string, dir dirTimes) error {
	// a later entry may have replaced the directory
	info, err := os.Lstat(dir.path)
	if err != nil || !info.IsDir() {
		Log(ctx).Warn().Str("path", dir.path).Msgf("Directory %s was replaced, skipping its mode and time", dir.path)
		return nil
	}

	err = checkParents(root, dir.path, dir.path)
	if err != nil {
		return err
	}

	err = os.Chmod(dir.path, dir.mode)
	if err != nil {
		Log(ctx).Warn().Err(err).Str("path", dir.path).Msgf("Failed to set mode of %s", dir.path)
	}

	err = os.Chtimes(dir.path, dir.mtime, dir.mtime)
	if err != nil {
		Log(ctx).Warn().Err(err).Str("path", dir.path).Msgf("Failed to set modification time of %s", dir.path)
	}
	return nil
}

func replaceWith(dest string, create func() error) error {
	err := os.MkdirAll(filepath.Dir(dest), 0755)
	if err != nil {
		return err
	}

	err = os.Remove(dest)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return create()
}

func extractFile(r io.Reader, dest string, mode fs.FileMode, buf []byte) error {
	destParent := filepath.Dir(dest)
	err := os.MkdirAll(destParent, 0755)
	if err != nil {
		return eris.Wrapf(err, "Failed to create directory %s", destParent)
	}

	// existing symlinks and hardlinks must not redirect the write
	_, err = os.Lstat(dest)
	if err == nil {
		err = os.RemoveAll(dest)
		if err != nil {
			return eris.Wrapf(err, "Failed to remove %s", dest)
		}
	}

	destHandle, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return eris.Wrapf(err, "Failed to create file %s", dest)
	}

	_, err = io.CopyBuffer(destHandle, r, buf)
	if err != nil {
		destHandle.Close()
		return eris.Wrapf(err, "Failed to write extracted file %s", dest)
	}

	err = destHandle.Close()
	if err != nil {
		return eris.Wrapf(err, "Failed to write extracted file %s", dest)
	}

	// OpenFile only applies the mode to new files and respects the umask
	return os.Chmod(dest, mode)
}

// Decompress decodes the compression stream in filename into a single file without interpreting it as a tar
// archive. If dst is empty or a directory, the output file is named after the archive minus its extension.
func Decompress(ctx context.Context, filename string, format Format, dst string, opts ExtractOptions) (Result, error) {
	result := Result{}
	if dst == "" {
		dst = "./"
	}

	info, err := os.Stat(dst)
	if err == nil && info.IsDir() || IsDirTarget(dst) {
		base := filepath.Base(filename)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		if base == "" {
			return result, UnsafePath{Name: filename}
		}
		dst = filepath.Join(dst, base)
	}
	result.Path = dst

	stream, err := openArchive(filename, format, opts.Progress)
	if err != nil {
		return result, err
	}
	defer stream.Close()

	hdl, err := openOutput(dst, opts.Overwrite)
	if err != nil {
		return result, err
	}

	result.Input, err = io.Copy(hdl, stream)
	if err != nil {
		hdl.Close()
		os.Remove(dst)
		return result, eris.Wrapf(err, "Failed to decompress %s", filename)
	}

	result.Entries = 1
	err = finishOutput(hdl, &result)
	if err != nil {
		return result, err
	}

	Log(ctx).Info().Str("path", dst).Int64("size", result.Size).Msg("ok.")
	return result, nil
}

// List calls fn for every entry in the archive without extracting anything
func List(ctx context.Context, filename string, format Format, fn func(*tar.Header) error) error {
	stream, err := openArchive(filename, format, nil)
	if err != nil {
		return err
	}
	defer stream.Close()

	archive := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "Listing cancelled")
		}

		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return eris.Wrap(err, "Failed to read archive entry")
		}

		err = fn(item)
		if err != nil {
			return err
		}
	}
}
