package locate

import (
	"net/url"
	"strings"
)

// URL modes.
const (
	ModeHash = "hash"
	ModePath = "path"
)

// URLFormat describes where a location name lives in a page URL: the hash
// fragment ("/#table.lamp.spoon") or the last path segment below BasePath
// ("/map/table.lamp.spoon").
type URLFormat struct {
	Mode     string
	BasePath string
}

// Extract returns the encoded location text of rawURL, if any.
func (f URLFormat) Extract(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	var text string
	if f.Mode == ModePath {
		// Work on the escaped path so an encoded "/" stays inside the segment.
		rest, ok := strings.CutPrefix(u.EscapedPath(), f.escapedBasePath())
		if !ok {
			return "", false
		}
		rest = strings.TrimRight(rest, "/")
		if text, err = url.PathUnescape(rest[strings.LastIndex(rest, "/")+1:]); err != nil {
			return "", false
		}
	} else {
		text = u.Fragment
	}

	text = strings.TrimSpace(text)
	return text, text != ""
}

// Build returns base with its location text replaced by name. Query
// parameters of base are preserved. In path mode name is escaped as a single
// segment.
func (f URLFormat) Build(base, name string) string {
	u, err := url.Parse(base)
	if err != nil {
		u = &url.URL{}
	}

	if f.Mode == ModePath {
		u.Path = f.basePath() + name
		u.RawPath = f.escapedBasePath() + url.PathEscape(name)
		u.Fragment = ""
		u.RawFragment = ""
	} else {
		u.Fragment = name
		u.RawFragment = ""
	}
	return u.String()
}

func (f URLFormat) basePath() string {
	p := f.BasePath
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func (f URLFormat) escapedBasePath() string {
	return (&url.URL{Path: f.basePath()}).EscapedPath()
}
