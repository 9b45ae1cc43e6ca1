package orchestrator

import (
	"sort"
	"strings"

	"anistream/pkg/provider"
)

// dedupKey groups candidate entries that represent the same underlying title.
func dedupKey(e provider.Entry) string {
	return provider.NormalizeTitle(e.Title) + "\x00" + strings.ToLower(e.Type)
}

// Dedup merges duplicate entries from different providers. Within a group
// sharing (normalized title, type) the entry from the most trusted provider
// (lowest rank) wins; fields left empty on the winner are backfilled from the
// next-best duplicates, first non-empty value wins, and populated fields are
// never overwritten. Kept entries preserve their original relative order.
// The operation is idempotent: Dedup(Dedup(x)) == Dedup(x).
func Dedup(entries []provider.Entry, rankOf func(source string) int) []provider.Entry {
	type group struct {
		firstIdx int
		members  []provider.Entry
	}
	groups := make(map[string]*group)
	order := make([]string, 0, len(entries))

	for i, e := range entries {
		k := dedupKey(e)
		g, ok := groups[k]
		if !ok {
			g = &group{firstIdx: i}
			groups[k] = g
			order = append(order, k)
		}
		g.members = append(g.members, e)
	}

	out := make([]provider.Entry, 0, len(order))
	for _, k := range order {
		g := groups[k]
		// Stable sort by provider rank; unknown sources sink to the end.
		sort.SliceStable(g.members, func(i, j int) bool {
			return effectiveRank(rankOf, g.members[i].Source) < effectiveRank(rankOf, g.members[j].Source)
		})
		kept := g.members[0]
		for _, dup := range g.members[1:] {
			kept = backfill(kept, dup)
		}
		out = append(out, kept)
	}
	return out
}

func effectiveRank(rankOf func(string) int, source string) int {
	if rankOf == nil {
		return 0
	}
	r := rankOf(source)
	if r <= 0 {
		return int(^uint(0) >> 1) // unknown provider: least trusted
	}
	return r
}

// backfill fills kept's empty fields from dup without touching populated ones.
func backfill(kept, dup provider.Entry) provider.Entry {
	if kept.Type == "" {
		kept.Type = dup.Type
	}
	if kept.Status == "" {
		kept.Status = dup.Status
	}
	if kept.Year == 0 {
		kept.Year = dup.Year
	}
	if kept.Image == "" {
		kept.Image = dup.Image
	}
	if kept.Description == "" {
		kept.Description = dup.Description
	}
	if len(kept.Genres) == 0 {
		kept.Genres = dup.Genres
	}
	return kept
}
