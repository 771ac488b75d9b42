package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRejectsTraversal(t *testing.T) {
	tests := []struct {
		name    string
		entries []rawEntry
	}{
		{
			name:    "parent directory",
			entries: []rawEntry{{hdr: tar.Header{Name: "../evil.txt", Typeflag: tar.TypeReg}, content: "evil"}},
		},
		{
			name:    "nested parent directory",
			entries: []rawEntry{{hdr: tar.Header{Name: "a/../../evil.txt", Typeflag: tar.TypeReg}, content: "evil"}},
		},
		{
			name:    "absolute path",
			entries: []rawEntry{{hdr: tar.Header{Name: "/evil.txt", Typeflag: tar.TypeReg}, content: "evil"}},
		},
		{
			name: "hardlink target outside",
			entries: []rawEntry{
				{hdr: tar.Header{Name: "link", Typeflag: tar.TypeLink, Linkname: "../evil.txt"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			archivePath := filepath.Join(root, "evil.tar")
			dst := filepath.Join(root, "dst")
			writeRawTar(t, archivePath, tt.entries)

			_, err := Extract(context.Background(), archivePath, FormatTar, dst, ExtractOptions{})
			var unsafe UnsafePath
			require.True(t, errors.As(err, &unsafe), "got %v", err)

			_, err = os.Stat(filepath.Join(root, "evil.txt"))
			assert.True(t, errors.Is(err, os.ErrNotExist))
		})
	}
}

func TestExtractRejectsSymlinkParents(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated permissions on Windows")
	}

	root := t.TempDir()
	outside := filepath.Join(root, "outside")
	require.NoError(t, os.Mkdir(outside, 0755))

	archivePath := filepath.Join(root, "evil.tar")
	writeRawTar(t, archivePath, []rawEntry{
		{hdr: tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: outside}},
		{hdr: tar.Header{Name: "link/evil.txt", Typeflag: tar.TypeReg}, content: "evil"},
	})

	_, err := Extract(context.Background(), archivePath, FormatTar, filepath.Join(root, "dst"), ExtractOptions{})
	var unsafe UnsafePath
	require.True(t, errors.As(err, &unsafe), "got %v", err)

	_, err = os.Stat(filepath.Join(outside, "evil.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestExtractRejectsSymlinkEscapes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated permissions on Windows")
	}

	tests := []struct {
		name    string
		entries func(outside string) []rawEntry
	}{
		{
			name: "hardlink through symlinked parent",
			entries: func(outside string) []rawEntry {
				return []rawEntry{
					{hdr: tar.Header{Name: "esc", Typeflag: tar.TypeSymlink, Linkname: outside}},
					{hdr: tar.Header{Name: "hl", Typeflag: tar.TypeLink, Linkname: "esc/secret.txt"}},
					{hdr: tar.Header{Name: "hl", Typeflag: tar.TypeReg}, content: "evil"},
				}
			},
		},
		{
			name: "hardlink to symlink",
			entries: func(outside string) []rawEntry {
				return []rawEntry{
					{hdr: tar.Header{Name: "s", Typeflag: tar.TypeSymlink, Linkname: filepath.Join(outside, "secret.txt")}},
					{hdr: tar.Header{Name: "hl", Typeflag: tar.TypeLink, Linkname: "s"}},
					{hdr: tar.Header{Name: "hl", Typeflag: tar.TypeReg}, content: "evil"},
				}
			},
		},
		{
			name: "hardlink to missing file",
			entries: func(outside string) []rawEntry {
				return []rawEntry{
					{hdr: tar.Header{Name: "hl", Typeflag: tar.TypeLink, Linkname: "missing.txt"}},
				}
			},
		},
		{
			name: "directory over symlink",
			entries: func(outside string) []rawEntry {
				return []rawEntry{
					{hdr: tar.Header{Name: "d", Typeflag: tar.TypeSymlink, Linkname: outside}},
					{hdr: tar.Header{Name: "d/", Typeflag: tar.TypeDir, Mode: 0777}},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			outside := filepath.Join(root, "outside")
			require.NoError(t, os.Mkdir(outside, 0700))
			secret := filepath.Join(outside, "secret.txt")
			require.NoError(t, os.WriteFile(secret, []byte("secret"), 0600))

			archivePath := filepath.Join(root, "evil.tar")
			writeRawTar(t, archivePath, tt.entries(outside))

			_, err := Extract(context.Background(), archivePath, FormatTar, filepath.Join(root, "dst"), ExtractOptions{})
			var unsafe UnsafePath
			require.True(t, errors.As(err, &unsafe), "got %v", err)

			assert.Equal(t, "secret", readFile(t, secret))
			info, err := os.Stat(outside)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
		})
	}
}

func TestExtractSkipsReplacedDirectories(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated permissions on Windows")
	}

	root := t.TempDir()
	outside := filepath.Join(root, "outside")
	require.NoError(t, os.Mkdir(outside, 0700))

	archivePath := filepath.Join(root, "replaced.tar")
	writeRawTar(t, archivePath, []rawEntry{
		{hdr: tar.Header{Name: "d/", Typeflag: tar.TypeDir, Mode: 0777}},
		{hdr: tar.Header{Name: "d", Typeflag: tar.TypeSymlink, Linkname: outside}},
	})

	logs := new(bytes.Buffer)
	logger := zerolog.New(logs)
	ctx := WithLogger(context.Background(), &logger)

	_, err := Extract(ctx, archivePath, FormatTar, filepath.Join(root, "dst"), ExtractOptions{})
	require.NoError(t, err)

	info, err := os.Stat(outside)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "was replaced")
}

func TestExtractDoesNotWriteThroughHardlinks(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(root, "links.tar")
	writeRawTar(t, archivePath, []rawEntry{
		{hdr: tar.Header{Name: "a.txt", Typeflag: tar.TypeReg}, content: "a"},
		{hdr: tar.Header{Name: "b.txt", Typeflag: tar.TypeLink, Linkname: "a.txt"}},
		{hdr: tar.Header{Name: "b.txt", Typeflag: tar.TypeReg}, content: "b"},
	})

	dst := filepath.Join(root, "dst")
	_, err := Extract(context.Background(), archivePath, FormatTar, dst, ExtractOptions{})
	require.NoError(t, err)

	assert.Equal(t, "a", readFile(t, filepath.Join(dst, "a.txt")))
	assert.Equal(t, "b", readFile(t, filepath.Join(dst, "b.txt")))
}

func TestExtractStrip(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(root, "strip.tar")
	writeRawTar(t, archivePath, []rawEntry{
		{hdr: tar.Header{Name: "top/", Typeflag: tar.TypeDir, Mode: 0755}},
		{hdr: tar.Header{Name: "top/a.txt", Typeflag: tar.TypeReg}, content: "a"},
		{hdr: tar.Header{Name: "top/sub/b.txt", Typeflag: tar.TypeReg}, content: "b"},
		{hdr: tar.Header{Name: "top/sub/b-link", Typeflag: tar.TypeLink, Linkname: "top/sub/b.txt"}},
	})

	dst := filepath.Join(root, "dst")
	count, err := Extract(context.Background(), archivePath, FormatTar, dst, ExtractOptions{Strip: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.Equal(t, "a", readFile(t, filepath.Join(dst, "a.txt")))
	assert.Equal(t, "b", readFile(t, filepath.Join(dst, "sub", "b.txt")))
	assert.Equal(t, "b", readFile(t, filepath.Join(dst, "sub", "b-link")))
	_, err = os.Stat(filepath.Join(dst, "top"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestExtractModesAndTimes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions are not available on Windows")
	}

	mtime := time.Date(2020, 5, 17, 12, 0, 0, 0, time.UTC)
	root := t.TempDir()
	archivePath := filepath.Join(root, "modes.tar")
	writeRawTar(t, archivePath, []rawEntry{
		{hdr: tar.Header{Name: "ro/", Typeflag: tar.TypeDir, Mode: 0555, ModTime: mtime}},
		{hdr: tar.Header{Name: "ro/run.sh", Typeflag: tar.TypeReg, Mode: 0750, ModTime: mtime}, content: "#!/bin/sh\n"},
	})

	dst := filepath.Join(root, "dst")
	_, err := Extract(context.Background(), archivePath, FormatTar, dst, ExtractOptions{})
	require.NoError(t, err)
	t.Cleanup(func() {
		os.Chmod(filepath.Join(dst, "ro"), 0755)
	})

	info, err := os.Stat(filepath.Join(dst, "ro", "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0750), info.Mode().Perm())
	assert.True(t, mtime.Equal(info.ModTime()))

	info, err = os.Stat(filepath.Join(dst, "ro"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0555), info.Mode().Perm())
	assert.True(t, mtime.Equal(info.ModTime()))
}

func TestExtractDestinationIsFile(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(root, "a.tar")
	writeRawTar(t, archivePath, []rawEntry{{hdr: tar.Header{Name: "a.txt", Typeflag: tar.TypeReg}, content: "a"}})

	dst := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(dst, []byte("keep"), 0644))

	_, err := Extract(context.Background(), archivePath, FormatTar, dst, ExtractOptions{})
	var notDir DestinationNotDir
	require.True(t, errors.As(err, &notDir))
	assert.Equal(t, "keep", readFile(t, dst))
}

func TestExtractOverwritesExistingFiles(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(root, "a.tar")
	writeRawTar(t, archivePath, []rawEntry{{hdr: tar.Header{Name: "a.txt", Typeflag: tar.TypeReg}, content: "new"}})

	dst := filepath.Join(root, "dst")
	writeTree(t, dst, map[string]string{"a.txt": "old content that is longer"})

	_, err := Extract(context.Background(), archivePath, FormatTar, dst, ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, "new", readFile(t, filepath.Join(dst, "a.txt")))
}

func TestExtractWrongFormat(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(root, "a.tar")
	writeRawTar(t, archivePath, []rawEntry{{hdr: tar.Header{Name: "a.txt", Typeflag: tar.TypeReg}, content: "a"}})

	_, err := Extract(context.Background(), archivePath, FormatGzip, filepath.Join(root, "dst"), ExtractOptions{})
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(root, "a.tar")
	writeRawTar(t, archivePath, []rawEntry{
		{hdr: tar.Header{Name: "dir/", Typeflag: tar.TypeDir, Mode: 0755}},
		{hdr: tar.Header{Name: "dir/a.txt", Typeflag: tar.TypeReg}, content: "a"},
		{hdr: tar.Header{Name: "dir/link", Typeflag: tar.TypeSymlink, Linkname: "a.txt"}},
	})

	assert.Equal(t, []string{"dir/", "dir/a.txt", "dir/link"}, listNames(t, archivePath, FormatTar))

	stop := errors.New("stop")
	seen := 0
	err := List(context.Background(), archivePath, FormatTar, func(hdr *tar.Header) error {
		seen++
		return stop
	})
	assert.True(t, errors.Is(err, stop))
	assert.Equal(t, 1, seen)
}
