package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseText splits template text into literal, placeholder (#{...}) and raw
// (${...}) nodes. A backslash before the opening character keeps the marker
// as literal text.
func ParseText(s string) (Node, error) {
	var (
		nodes Sequence
		lit   strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			nodes = append(nodes, &Text{Value: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+2 < len(s) && (s[i+1] == '#' || s[i+1] == '$') && s[i+2] == '{' {
			lit.WriteString(s[i+1 : i+3])
			i += 2
			continue
		}
		if (c != '#' && c != '$') || i+1 >= len(s) || s[i+1] != '{' {
			lit.WriteByte(c)
			continue
		}
		end := strings.IndexByte(s[i+2:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated %c{ at offset %d", c, i)
		}
		content := strings.TrimSpace(s[i+2 : i+2+end])
		if content == "" {
			return nil, fmt.Errorf("empty %c{} at offset %d", c, i)
		}
		flush()
		if c == '#' {
			p, err := ParsePlaceholder(content)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, p)
		} else {
			nodes = append(nodes, &Raw{Property: content})
		}
		i += 2 + end
	}
	flush()
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return nodes, nil
}

// ParsePlaceholder parses the body of #{...}: a property path optionally
// followed by comma separated options, e.g.
// `price,sqlType=NUMERIC,scale=2` or `result,mode=OUT`.
func ParsePlaceholder(content string) (*Placeholder, error) {
	parts := strings.Split(content, ",")
	p := &Placeholder{Property: strings.TrimSpace(parts[0]), Options: Options{Mode: "IN"}}
	if p.Property == "" {
		return nil, fmt.Errorf("placeholder #{%s} has no property", content)
	}
	for _, opt := range parts[1:] {
		k, v, ok := strings.Cut(opt, "=")
		if !ok {
			return nil, fmt.Errorf("placeholder #{%s}: malformed option %q", content, opt)
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		switch strings.ToLower(k) {
		case "sqltype", "jdbctype":
			p.Options.SQLType = strings.ToUpper(v)
		case "mode":
			mode := strings.ToUpper(v)
			if mode != "IN" && mode != "OUT" && mode != "INOUT" {
				return nil, fmt.Errorf("placeholder #{%s}: unknown mode %q", content, v)
			}
			p.Options.Mode = mode
		case "handler", "typehandler":
			p.Options.Handler = v
		case "scale", "numericscale":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("placeholder #{%s}: scale %q is not a number", content, v)
			}
			p.Options.Scale = n
		default:
			return nil, fmt.Errorf("placeholder #{%s}: unknown option %q", content, k)
		}
	}
	return p, nil
}
