package provider

import (
	"sort"
	"strconv"
	"strings"

	"github.com/MunifTanjim/go-ptt"
)

// qualityHeight extracts a comparable pixel height from a provider's stream
// label ("1080p", "HD-2 720P", "master.m3u8?res=480"). Labels are free-form
// release-style strings, so they go through the same title parser used for
// search results; a plain "NNNp" fallback covers labels ptt cannot parse.
func qualityHeight(label string) int {
	if label == "" {
		return 0
	}
	info := ptt.Parse(label)
	res := info.Resolution
	if res == "" {
		res = label
	}
	res = strings.ToLower(res)
	if i := strings.Index(res, "p"); i > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(trailingDigits(res[:i]))); err == nil {
			return n
		}
	}
	switch {
	case strings.Contains(res, "4k") || strings.Contains(res, "2160"):
		return 2160
	case strings.Contains(res, "fhd") || strings.Contains(res, "1080"):
		return 1080
	case strings.Contains(res, "hd") || strings.Contains(res, "720"):
		return 720
	case strings.Contains(res, "480"):
		return 480
	case strings.Contains(res, "360"):
		return 360
	}
	return 0
}

func trailingDigits(s string) string {
	end := len(s)
	start := end
	for start > 0 && s[start-1] >= '0' && s[start-1] <= '9' {
		start--
	}
	return s[start:end]
}

// RankSources orders video sources best-first by parsed quality, keeping the
// provider's original order among equals. The input is not modified.
func RankSources(sources []VideoSource) []VideoSource {
	out := make([]VideoSource, len(sources))
	copy(out, sources)
	sort.SliceStable(out, func(i, j int) bool {
		return qualityHeight(out[i].Quality) > qualityHeight(out[j].Quality)
	})
	return out
}
