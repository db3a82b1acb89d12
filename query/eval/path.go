// Package eval resolves dotted and indexed property paths against parameter
// values. It is the single place where batis-go inspects user values
// structurally; everything else goes through Get, Set, Lookup and Iterate.
package eval

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

type segmentKind int

const (
	segField segmentKind = iota
	segIndex
	segKey
)

type segment struct {
	kind  segmentKind
	name  string
	index int
}

func (s segment) String() string {
	switch s.kind {
	case segIndex:
		return "[" + strconv.Itoa(s.index) + "]"
	case segKey:
		return "[" + strconv.Quote(s.name) + "]"
	default:
		return s.name
	}
}

var pathCache sync.Map // string -> []segment

// parsePath splits paths such as `user.tags[0]` or `attrs["x-y"].value`.
func parsePath(path string) ([]segment, error) {
	if cached, ok := pathCache.Load(path); ok {
		return cached.([]segment), nil
	}
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	pathCache.Store(path, segs)
	return segs, nil
}

func splitPath(path string) ([]segment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty property path")
	}
	var segs []segment
	i := 0
	for i < len(path) {
		switch c := path[i]; {
		case c == '.':
			if i == 0 || i == len(path)-1 || path[i+1] == '.' {
				return nil, fmt.Errorf("malformed property path %q", path)
			}
			i++
		case c == '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated index in property path %q", path)
			}
			inner := strings.TrimSpace(path[i+1 : i+end])
			seg, err := indexSegment(inner)
			if err != nil {
				return nil, fmt.Errorf("property path %q: %w", path, err)
			}
			segs = append(segs, seg)
			i += end + 1
		default:
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				j++
			}
			name := strings.TrimSpace(path[i:j])
			if name == "" {
				return nil, fmt.Errorf("malformed property path %q", path)
			}
			segs = append(segs, segment{kind: segField, name: name})
			i = j
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("malformed property path %q", path)
	}
	return segs, nil
}

func indexSegment(inner string) (segment, error) {
	if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[len(inner)-1] == inner[0] {
		return segment{kind: segKey, name: inner[1 : len(inner)-1]}, nil
	}
	n, err := strconv.Atoi(inner)
	if err != nil {
		return segment{}, fmt.Errorf("invalid index %q", inner)
	}
	return segment{kind: segIndex, index: n}, nil
}

// Head returns the first property name of path and the remainder, which
// starts with '.' or '[' when non-empty.
func Head(path string) (head, rest string) {
	i := strings.IndexAny(path, ".[")
	if i < 0 {
		return path, ""
	}
	return path[:i], path[i:]
}

func joinSegments(segs []segment) string {
	var b strings.Builder
	for i, s := range segs {
		if i > 0 && s.kind == segField {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}
