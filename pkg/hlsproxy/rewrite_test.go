package hlsproxy

import (
	"net/url"
	"strings"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

// decodedTarget extracts the url query parameter from a proxied line.
func decodedTarget(t *testing.T, line string) string {
	t.Helper()
	u, err := url.Parse(line)
	if err != nil {
		t.Fatalf("parse proxied line %q: %v", line, err)
	}
	return u.Query().Get("url")
}

func TestRewriteManifestRoundTrip(t *testing.T) {
	manifest := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXTINF:4.000,",
		"seg1.ts",
		"#EXTINF:4.000,",
		"https://cdn.example/seg2.ts",
		"#EXT-X-ENDLIST",
	}, "\n")
	base := mustParse(t, "https://cdn.example/path/master.m3u8")

	out := RewriteManifest(manifest, base, "/stream/proxy")
	lines := strings.Split(out, "\n")

	if got := decodedTarget(t, lines[3]); got != "https://cdn.example/path/seg1.ts" {
		t.Errorf("relative segment resolved to %q", got)
	}
	if got := decodedTarget(t, lines[5]); got != "https://cdn.example/seg2.ts" {
		t.Errorf("absolute segment resolved to %q", got)
	}
	for _, i := range []int{0, 1, 2, 4, 6} {
		if lines[i] != strings.Split(manifest, "\n")[i] {
			t.Errorf("comment line %d changed: %q", i, lines[i])
		}
	}
	if !strings.HasPrefix(lines[3], "/stream/proxy?url=") {
		t.Errorf("segment line not routed through proxy: %q", lines[3])
	}
}

func TestRewriteManifestKeyURI(t *testing.T) {
	manifest := `#EXTM3U
#EXT-X-KEY:METHOD=AES-128,URI="enc.key",IV=0x9c7db8778570d05c3f9ae7afbeee4cea
#EXTINF:4.000,
seg1.ts`
	base := mustParse(t, "https://cdn.example/path/index.m3u8")

	out := RewriteManifest(manifest, base, "/stream/proxy")
	lines := strings.Split(out, "\n")

	keyLine := lines[1]
	if !strings.HasPrefix(keyLine, "#EXT-X-KEY:METHOD=AES-128,URI=\"/stream/proxy?url=") {
		t.Fatalf("key URI not proxied: %q", keyLine)
	}
	if !strings.HasSuffix(keyLine, `",IV=0x9c7db8778570d05c3f9ae7afbeee4cea`) {
		t.Errorf("attributes after URI were disturbed: %q", keyLine)
	}
	start := strings.Index(keyLine, `URI="`) + len(`URI="`)
	end := strings.Index(keyLine[start:], `"`)
	if got := decodedTarget(t, keyLine[start:start+end]); got != "https://cdn.example/path/enc.key" {
		t.Errorf("key resolved to %q", got)
	}
}

func TestRewriteManifestHostRelativeRef(t *testing.T) {
	manifest := "/hls/1080/seg9.ts"
	base := mustParse(t, "https://cdn.example/path/deep/index.m3u8")

	out := RewriteManifest(manifest, base, "/stream/proxy")
	if got := decodedTarget(t, out); got != "https://cdn.example/hls/1080/seg9.ts" {
		t.Errorf("host-relative ref resolved to %q", got)
	}
}

func TestRewriteManifestPassesUnknownTags(t *testing.T) {
	manifest := "#EXT-X-SOMETHING-NEW:VALUE=1\n\n#EXT-X-ENDLIST"
	base := mustParse(t, "https://cdn.example/a/x.m3u8")

	if out := RewriteManifest(manifest, base, "/stream/proxy"); out != manifest {
		t.Errorf("tags without URIs must pass through unchanged:\n%q\n%q", manifest, out)
	}
}

func TestRewriteIsIdempotentOnProxiedRelativeLines(t *testing.T) {
	// A variant playlist entry that is itself a playlist gets proxied too.
	manifest := "#EXT-X-STREAM-INF:BANDWIDTH=2000000\n1080/index.m3u8"
	base := mustParse(t, "https://cdn.example/v/master.m3u8")

	out := RewriteManifest(manifest, base, "/stream/proxy")
	line := strings.Split(out, "\n")[1]
	if got := decodedTarget(t, line); got != "https://cdn.example/v/1080/index.m3u8" {
		t.Errorf("variant playlist resolved to %q", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		raw  string
		want contentClass
	}{
		{"https://cdn.example/a/master.m3u8", classManifest},
		{"https://cdn.example/a/seg1.ts", classSegment},
		{"https://cdn.example/a/init.m4s", classSegment},
		{"https://cdn.example/a/subs.vtt", classOther},
		{"https://cdn.example/a/MASTER.M3U8", classManifest},
	}
	for _, tc := range cases {
		if got := classify(mustParse(t, tc.raw)); got != tc.want {
			t.Errorf("classify(%s) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestProfileFor(t *testing.T) {
	if p := profileFor("ec-12.megacloud.club"); p.Origin != "https://megacloud.club" {
		t.Errorf("megacloud host got %+v", p)
	}
	if p := profileFor("cdn.unknown-host.example"); p != defaultProfile {
		t.Errorf("unknown host should get default profile, got %+v", p)
	}
}
