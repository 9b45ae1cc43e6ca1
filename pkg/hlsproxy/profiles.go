// Package hlsproxy serves upstream video streams through a same-origin
// endpoint: it fetches with CDN-appropriate referer/origin headers and
// rewrites HLS playlists so every embedded URI routes back through the proxy.
package hlsproxy

import "strings"

// browserUA is sent on every upstream fetch; most stream CDNs reject
// non-browser user agents outright.
const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Profile is the referer/origin pair sent upstream to look like a real
// browser session against that CDN.
type Profile struct {
	Referer string
	Origin  string
}

type profileRule struct {
	hostContains string
	profile      Profile
}

// profileRules maps CDN hostname substrings to header profiles. First match
// wins, so more specific substrings go first. This is a best-effort
// allow-list, not a guaranteed-correct mapping; unknown hosts get
// defaultProfile.
var profileRules = []profileRule{
	{"megacloud", Profile{Referer: "https://megacloud.club/", Origin: "https://megacloud.club"}},
	{"rapid-cloud", Profile{Referer: "https://rapid-cloud.co/", Origin: "https://rapid-cloud.co"}},
	{"vidwish", Profile{Referer: "https://megaplay.buzz/", Origin: "https://megaplay.buzz"}},
	{"megaplay", Profile{Referer: "https://megaplay.buzz/", Origin: "https://megaplay.buzz"}},
	{"akamaized", Profile{Referer: "https://hianime.to/", Origin: "https://hianime.to"}},
	{"anitaku", Profile{Referer: "https://anitaku.to/", Origin: "https://anitaku.to"}},
	{"gogocdn", Profile{Referer: "https://anitaku.to/", Origin: "https://anitaku.to"}},
	{"padorupado", Profile{Referer: "https://kwik.cx/", Origin: "https://kwik.cx"}},
	{"kwik", Profile{Referer: "https://kwik.cx/", Origin: "https://kwik.cx"}},
}

var defaultProfile = Profile{Referer: "https://megacloud.blog/", Origin: "https://megacloud.blog"}

// profileFor picks the header profile for an upstream hostname.
func profileFor(hostname string) Profile {
	h := strings.ToLower(hostname)
	for _, rule := range profileRules {
		if strings.Contains(h, rule.hostContains) {
			return rule.profile
		}
	}
	return defaultProfile
}
