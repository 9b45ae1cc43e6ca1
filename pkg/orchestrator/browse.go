package orchestrator

import (
	"sort"
	"strings"

	"anistream/pkg/provider"
)

// applyFiltersLocally re-checks and re-orders a browse page. Providers apply
// filters upstream when they can, but their interpretations differ, so the
// answer is normalized here before it leaves the orchestrator.
func applyFiltersLocally(rs *provider.ResultSet, f provider.BrowseFilters) *provider.ResultSet {
	kept := rs.Entries[:0:0]
	for _, e := range rs.Entries {
		if matchesFilters(e, f) {
			kept = append(kept, e)
		}
	}
	sortEntries(kept, f.Sort, f.Order)
	out := *rs
	out.Entries = kept
	return &out
}

func matchesFilters(e provider.Entry, f provider.BrowseFilters) bool {
	if f.Type != "" && !strings.EqualFold(e.Type, f.Type) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(e.Status, f.Status) {
		return false
	}
	// Year bounds are skipped for entries that do not report a year; dropping
	// them would hide most of some providers' catalogs.
	if e.Year != 0 {
		if f.YearFrom != 0 && e.Year < f.YearFrom {
			return false
		}
		if f.YearTo != 0 && e.Year > f.YearTo {
			return false
		}
	}
	for _, want := range f.Genres {
		if !hasGenre(e.Genres, want) {
			return false
		}
	}
	return true
}

func hasGenre(genres []string, want string) bool {
	for _, g := range genres {
		if strings.EqualFold(g, want) {
			return true
		}
	}
	return false
}

func sortEntries(entries []provider.Entry, key, order string) {
	desc := strings.EqualFold(order, "desc")
	switch strings.ToLower(key) {
	case "title":
		sort.SliceStable(entries, func(i, j int) bool {
			a := provider.NormalizeTitle(entries[i].Title)
			b := provider.NormalizeTitle(entries[j].Title)
			if desc {
				return a > b
			}
			return a < b
		})
	case "year":
		sort.SliceStable(entries, func(i, j int) bool {
			if desc {
				return entries[i].Year > entries[j].Year
			}
			return entries[i].Year < entries[j].Year
		})
	default:
		// Provider relevance order is kept as-is.
	}
}
