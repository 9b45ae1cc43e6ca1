package hlsproxy

import (
	"net/url"
	"strings"
)

// contentClass is derived from the upstream URL's filename.
type contentClass int

const (
	classOther contentClass = iota
	classManifest
	classSegment
)

func classify(u *url.URL) contentClass {
	path := strings.ToLower(u.Path)
	switch {
	case strings.HasSuffix(path, ".m3u8"):
		return classManifest
	case strings.HasSuffix(path, ".ts"), strings.HasSuffix(path, ".m4s"):
		return classSegment
	default:
		return classOther
	}
}

// baseDir truncates a manifest URL to its last slash; references relative to
// the playlist resolve against this prefix.
func baseDir(u *url.URL) string {
	s := u.Scheme + "://" + u.Host + u.Path
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[:i+1]
	}
	return s + "/"
}

// resolveRef makes ref absolute against base. Already-absolute references
// pass through untouched.
func resolveRef(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if strings.HasPrefix(ref, "/") {
		// Host-relative: resolve against the base URL's origin.
		if u, err := url.Parse(base); err == nil {
			return u.Scheme + "://" + u.Host + ref
		}
	}
	return base + ref
}

// proxiedURL routes an absolute upstream URL back through the proxy route.
func proxiedURL(route, absolute string) string {
	return route + "?url=" + url.QueryEscape(absolute)
}

// RewriteManifest walks a decoded HLS playlist line by line and replaces
// every URI, segment lines and URI="..." tag attributes alike, with a
// proxied equivalent. All other lines pass through byte for byte; unknown
// tags must never be dropped. Lines are rejoined with \n in original order.
func RewriteManifest(manifest string, manifestURL *url.URL, route string) string {
	base := baseDir(manifestURL)
	lines := strings.Split(manifest, "\n")
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = rewriteLine(line, base, route)
	}
	return strings.Join(out, "\n")
}

func rewriteLine(line, base, route string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return line
	}
	if strings.HasPrefix(trimmed, "#") {
		// Key and init-segment tags carry a URI attribute that must also
		// round-trip through the proxy or playback of encrypted streams breaks.
		if strings.Contains(line, `URI="`) {
			return rewriteURIAttribute(line, base, route)
		}
		return line
	}
	return proxiedURL(route, resolveRef(base, trimmed))
}

func rewriteURIAttribute(line, base, route string) string {
	const marker = `URI="`
	start := strings.Index(line, marker)
	if start < 0 {
		return line
	}
	valStart := start + len(marker)
	end := strings.Index(line[valStart:], `"`)
	if end < 0 {
		return line
	}
	ref := line[valStart : valStart+end]
	proxied := proxiedURL(route, resolveRef(base, ref))
	return line[:valStart] + proxied + line[valStart+end:]
}
