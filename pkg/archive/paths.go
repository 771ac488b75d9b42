package archive

import (
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// IsDirTarget reports whether target names a directory inside the archive (empty or trailing separator).
func IsDirTarget(target string) bool {
	if target == "" {
		return true
	}
	if strings.HasSuffix(target, "/") {
		return true
	}
	if runtime.GOOS == "windows" && strings.HasSuffix(target, "\\") {
		return true
	}
	return false
}

// ResolveTarget determines the name a matched source path gets inside the archive.
func ResolveTarget(source, target string, hasTarget bool) string {
	if !hasTarget {
		return source
	}

	if IsDirTarget(target) {
		return filepath.Join(target, filepath.Base(source))
	}
	return target
}

// ArchiveName normalizes a filesystem path into the slash separated, relative form used for tar entries.
// Leading slashes and volume names are dropped. An empty result means the archive root.
func ArchiveName(name string) (string, error) {
	slashed := strings.TrimPrefix(name, filepath.VolumeName(name))
	slashed = strings.ReplaceAll(filepath.ToSlash(slashed), "\\", "/")

	for _, part := range strings.Split(path.Clean(slashed), "/") {
		if part == ".." {
			return "", UnsafePath{Name: name}
		}
	}

	return path.Clean("/" + slashed)[1:], nil
}

// SafeJoin returns the location of the archive entry name below root after removing strip leading
// components. The second return value is false if nothing is left of the name after stripping.
func SafeJoin(root, name string, strip int) (string, bool, error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", false, UnsafePath{Name: name}
	}

	parts := make([]string, 0)
	for _, part := range strings.Split(slashed, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", false, UnsafePath{Name: name}
		}
		parts = append(parts, part)
	}

	if strip > 0 {
		if strip >= len(parts) {
			return "", false, nil
		}
		parts = parts[strip:]
	}

	if len(parts) == 0 {
		return "", false, nil
	}

	dest := filepath.Join(append([]string{root}, parts...)...)
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", false, UnsafePath{Name: name}
	}

	return dest, true, nil
}
