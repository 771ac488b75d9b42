package archive

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	ErrTooManySources = eris.New("more than one file. can not compression only")
	ErrEmptyGroup     = eris.New("from must be followed by at least one path")
	ErrDanglingTo     = eris.New("to must follow a source path and be followed by a target")
)

type UnknownFormat struct {
	Name string
}

var _ error = (*UnknownFormat)(nil)

func (e UnknownFormat) Error() string {
	if e.Name == "" {
		return "unknown format"
	}
	return fmt.Sprintf("unknown format %s", e.Name)
}

type ArchiveExists struct {
	Path string
}

var _ error = (*ArchiveExists)(nil)

func (e ArchiveExists) Error() string {
	return fmt.Sprintf("file path %s exists", e.Path)
}

type DestinationNotDir struct {
	Path string
}

var _ error = (*DestinationNotDir)(nil)

func (e DestinationNotDir) Error() string {
	return fmt.Sprintf("dst path %s exists and is not a directory", e.Path)
}

// UnsafePath is returned for names that would end up outside of the archive root or extraction directory.
type UnsafePath struct {
	Name string
}

var _ error = (*UnsafePath)(nil)

func (e UnsafePath) Error() string {
	return fmt.Sprintf("unsafe path %s", e.Name)
}

type NoMatch struct {
	Pattern string
}

var _ error = (*NoMatch)(nil)

func (e NoMatch) Error() string {
	return fmt.Sprintf("pattern %s produced no matches", e.Pattern)
}
