package archive

import (
	"path/filepath"
	"sort"
	"strings"
)

// Format identifies the compression stream that wraps an archive
type Format string

const (
	FormatTar    Format = "tar"
	FormatXz     Format = "xz"
	FormatGzip   Format = "gzip"
	FormatZstd   Format = "zstd"
	FormatBrotli Format = "brotli"
	FormatBzip2  Format = "bzip2"
	FormatLz4    Format = "lz4"
)

var formatAliases = map[string]Format{
	"tar":    FormatTar,
	"xz":     FormatXz,
	"txz":    FormatXz,
	"gzip":   FormatGzip,
	"gz":     FormatGzip,
	"tgz":    FormatGzip,
	"z":      FormatGzip,
	"zst":    FormatZstd,
	"zstd":   FormatZstd,
	"br":     FormatBrotli,
	"brotli": FormatBrotli,
	"bz2":    FormatBzip2,
	"bzip2":  FormatBzip2,
	"tbz":    FormatBzip2,
	"tbz2":   FormatBzip2,
	"lz4":    FormatLz4,
}

var formatExtensions = map[Format]string{
	FormatTar:    "tar",
	FormatXz:     "xz",
	FormatGzip:   "gz",
	FormatZstd:   "zst",
	FormatBrotli: "br",
	FormatBzip2:  "bz2",
	FormatLz4:    "lz4",
}

// FormatNames returns every accepted format name (including aliases) in alphabetical order
func FormatNames() []string {
	names := make([]string, 0, len(formatAliases))
	for name := range formatAliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseFormat maps a format name or one of its aliases to a Format. The comparison is case-insensitive.
func ParseFormat(name string) (Format, error) {
	format, ok := formatAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", UnknownFormat{Name: name}
	}
	return format, nil
}

// DetectFormat returns the explicitly requested format if there is one and falls back to the extension of path.
func DetectFormat(explicit, path string) (Format, error) {
	if explicit != "" {
		return ParseFormat(explicit)
	}

	ext := filepath.Ext(path)
	if ext == "" {
		return "", UnknownFormat{}
	}
	return ParseFormat(ext[1:])
}

// Extension returns the canonical file extension (without a dot)
func (f Format) Extension() string {
	return formatExtensions[f]
}

func (f Format) String() string {
	return string(f)
}
