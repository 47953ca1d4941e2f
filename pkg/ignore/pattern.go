package ignore

import (
	"regexp"
	"strings"
)

// compiledPattern is one gitignore pattern line translated to a regular
// expression over forward-slash, root-relative candidate paths. Directory
// candidates are matched with a trailing slash appended, which lets dirOnly
// patterns require it and lets any directory match extend to the paths below it.
type compiledPattern struct {
	raw     string // Original line, for logging.
	negated bool   // Leading '!'.
	dirOnly bool   // Trailing '/'.
	re      *regexp.Regexp
}

// parsePattern translates a single pattern line. It returns nil for blank
// lines, comments, and patterns that reduce to nothing.
func parsePattern(line string) (*compiledPattern, error) {
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}

	core := trimTrailingSpace(line)
	if core == "" {
		return nil, nil
	}

	p := &compiledPattern{raw: line}

	if strings.HasPrefix(core, "!") {
		p.negated = true
		core = core[1:]
	}
	if strings.HasSuffix(core, "/") {
		p.dirOnly = true
		core = strings.TrimSuffix(core, "/")
	}
	if core == "" {
		return nil, nil
	}

	// A leading slash anchors the pattern at the root. Any other slash inside
	// the pattern anchors it too; a slash-free pattern matches the basename at
	// any depth.
	anchored := strings.Contains(core, "/")
	core = strings.TrimPrefix(core, "/")

	expr, err := translate(core, anchored, p.dirOnly)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	p.re = re
	return p, nil
}

// trimTrailingSpace removes unescaped trailing spaces, per gitignore rules.
func trimTrailingSpace(s string) string {
	for strings.HasSuffix(s, " ") && !strings.HasSuffix(s, "\\ ") {
		s = s[:len(s)-1]
	}
	return strings.ReplaceAll(s, "\\ ", " ")
}

// translate converts a gitignore glob into an anchored regular expression.
//
//	*   any run of characters except '/'
//	?   one character except '/'
//	**  zero or more whole path segments
//	[]  character class ('!' negates)
func translate(core string, anchored, dirOnly bool) (string, error) {
	var sb strings.Builder
	sb.WriteString("^")
	if !anchored {
		sb.WriteString("(?:.*/)?")
	}

	segs := strings.Split(core, "/")
	for i, seg := range segs {
		isLast := i == len(segs)-1
		if seg == "**" {
			if isLast {
				// Trailing '**' matches everything below the preceding path
				// but not the path itself.
				sb.WriteString(".+")
			} else {
				// '**/' matches zero or more whole segments.
				sb.WriteString("(?:.*/)?")
			}
			continue
		}
		translateSegment(&sb, seg)
		if !isLast {
			sb.WriteString("/")
		}
	}

	if dirOnly {
		// Directory candidates carry a trailing slash, so this both restricts
		// the pattern to directories and matches everything beneath them.
		sb.WriteString("/.*")
	} else {
		sb.WriteString("(?:/.*)?")
	}
	sb.WriteString("$")
	return sb.String(), nil
}

// translateSegment converts one slash-free glob segment into regexp syntax.
func translateSegment(sb *strings.Builder, seg string) {
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch c {
		case '*':
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		case '\\':
			// Escaped literal, e.g. '\!' or '\#'.
			if i+1 < len(seg) {
				sb.WriteString(regexp.QuoteMeta(string(seg[i+1])))
				i++
			} else {
				sb.WriteString(regexp.QuoteMeta("\\"))
			}
		case '[':
			end := strings.IndexByte(seg[i+1:], ']')
			if end < 0 {
				// Unclosed class, treat the bracket literally.
				sb.WriteString(regexp.QuoteMeta("["))
				continue
			}
			class := seg[i+1 : i+1+end]
			sb.WriteString("[")
			if strings.HasPrefix(class, "!") {
				sb.WriteString("^")
				class = class[1:]
			}
			sb.WriteString(class)
			sb.WriteString("]")
			i += end + 1
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
}
