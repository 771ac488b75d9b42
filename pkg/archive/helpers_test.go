package archive

import (
	"archive/tar"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// chdir switches into dir for the duration of the test
func chdir(t *testing.T, dir string) {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(wd)
	})
}

// writeTree creates the given files (relative path -> content) below root
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		dest := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0755))
		require.NoError(t, os.WriteFile(dest, []byte(content), 0644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func listNames(t *testing.T, filename string, format Format) []string {
	t.Helper()

	names := make([]string, 0)
	err := List(context.Background(), filename, format, func(hdr *tar.Header) error {
		names = append(names, hdr.Name)
		return nil
	})
	require.NoError(t, err)
	return names
}

type rawEntry struct {
	hdr     tar.Header
	content string
}

// writeRawTar builds a plain tar file from hand written headers
func writeRawTar(t *testing.T, filename string, entries []rawEntry) {
	t.Helper()

	f, err := os.Create(filename)
	require.NoError(t, err)
	defer f.Close()

	tw := tar.NewWriter(f)
	for _, entry := range entries {
		hdr := entry.hdr
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(entry.content))
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0644
		}
		require.NoError(t, tw.WriteHeader(&hdr))
		if entry.content != "" {
			_, err = tw.Write([]byte(entry.content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
}
