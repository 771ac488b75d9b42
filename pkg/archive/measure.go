package archive

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// MeasureMappings returns the total size of all regular files the mappings resolve to. Unmatched patterns
// are ignored since Create reports them.
func MeasureMappings(mappings []Mapping) (int64, error) {
	total := int64(0)
	for _, mapping := range mappings {
		for _, pattern := range mapping.Patterns {
			matches, err := ExpandPattern(pattern)
			if err != nil {
				return 0, err
			}

			for _, match := range matches {
				err = filepath.WalkDir(match, func(item string, d fs.DirEntry, err error) error {
					if err != nil {
						return err
					}
					if !d.Type().IsRegular() {
						return nil
					}

					info, err := d.Info()
					if err != nil {
						return err
					}
					total += info.Size()
					return nil
				})
				if err != nil {
					return 0, eris.Wrapf(err, "Failed to measure %s", match)
				}
			}
		}
	}

	return total, nil
}

// FileSize returns the size of the given file
func FileSize(filename string) (int64, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return 0, eris.Wrapf(err, "Failed to stat %s", filename)
	}
	return info.Size(), nil
}
