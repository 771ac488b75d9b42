package archive

import "strings"

// Mapping is one group of source patterns that share the same (optional) target name inside the archive.
type Mapping struct {
	Patterns  []string
	Target    string
	HasTarget bool
}

const (
	keywordFrom = "from"
	keywordTo   = "to"
)

// ParseMappings turns the append arguments of the create command into mappings.
//
//	Cargo.toml to foo/                              -> [{[Cargo.toml] foo/}]
//	from ./**/*.dll to lib/ from ./**/*.exe to bin/ -> [{[./**/*.dll] lib/} {[./**/*.exe] bin/}]
//	a.txt b.txt                                     -> [{[a.txt]} {[b.txt]}]
//
// "from" starts a group that collects every following path until "to" or the end of the list.
// A path outside such a group forms a group of its own. "to" assigns the next argument as the target of
// the pending group.
func ParseMappings(args []string) ([]Mapping, error) {
	result := make([]Mapping, 0)
	var current *Mapping
	inFrom := false
	expectTarget := false

	flush := func() {
		if current != nil {
			result = append(result, *current)
			current = nil
		}
	}

	for _, arg := range args {
		if expectTarget {
			current.Target = arg
			current.HasTarget = true
			flush()
			expectTarget = false
			continue
		}

		switch strings.ToLower(arg) {
		case keywordFrom:
			if inFrom && (current == nil || len(current.Patterns) == 0) {
				return nil, ErrEmptyGroup
			}
			flush()
			current = &Mapping{}
			inFrom = true
			continue
		case keywordTo:
			if current == nil || len(current.Patterns) == 0 {
				if inFrom {
					return nil, ErrEmptyGroup
				}
				return nil, ErrDanglingTo
			}
			expectTarget = true
			inFrom = false
			continue
		}

		if inFrom {
			current.Patterns = append(current.Patterns, arg)
			continue
		}

		flush()
		current = &Mapping{Patterns: []string{arg}}
	}

	if expectTarget {
		return nil, ErrDanglingTo
	}
	if inFrom && len(current.Patterns) == 0 {
		return nil, ErrEmptyGroup
	}
	flush()

	return result, nil
}
