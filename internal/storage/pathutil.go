package storage

import (
	"net/url"
	"strings"
)

// PageSegment turns a UI page path such as "/lens/motors" into a
// filesystem-safe directory name ("lens_motors"). Full URLs use their
// fragment route when present, since the Shotover UI routes on "#/page".
func PageSegment(page string) string {
	if u, err := url.Parse(page); err == nil && (u.Scheme != "" || u.Fragment != "") {
		if u.Fragment != "" {
			page = u.Fragment
		} else {
			page = u.Path
		}
	}
	page = strings.Trim(page, "/")
	if page == "" {
		return "root"
	}
	var b strings.Builder
	for _, r := range page {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ShortTabID returns the first 8 chars of a CDP target ID.
func ShortTabID(tabID string) string {
	if len(tabID) >= 8 {
		return tabID[:8]
	}
	return tabID
}
