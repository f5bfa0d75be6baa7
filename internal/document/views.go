package document

import (
	"sort"
	"strings"
	"time"
)

func filter(docs []*Document, keep func(*Document) bool) []*Document {
	out := make([]*Document, 0, len(docs))
	for _, d := range docs {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// Active returns the documents shown in every "active" view.
func Active(docs []*Document) []*Document {
	return filter(docs, func(d *Document) bool { return d.Status == StatusActive })
}

// Trashed returns soft-deleted documents.
func Trashed(docs []*Document) []*Document {
	return filter(docs, func(d *Document) bool { return d.Status == StatusTrashed })
}

// Favorites returns active, favorited documents.
func Favorites(docs []*Document) []*Document {
	return filter(docs, func(d *Document) bool { return d.Status == StatusActive && d.IsFavorite })
}

// ByCategory narrows docs to one category; an empty category keeps everything.
func ByCategory(docs []*Document, c Category) []*Document {
	if c == "" {
		return docs
	}
	return filter(docs, func(d *Document) bool { return d.Category == c })
}

// Search matches active documents whose title, description or any tag
// contains query, case-insensitively.
func Search(docs []*Document, query string) []*Document {
	return Match(Active(docs), query)
}

// Match applies the Search predicate without the active filter.
func Match(docs []*Document, query string) []*Document {
	q := strings.ToLower(strings.TrimSpace(query))
	return filter(docs, func(d *Document) bool {
		if q == "" {
			return true
		}
		if strings.Contains(strings.ToLower(d.Title), q) || strings.Contains(strings.ToLower(d.Description), q) {
			return true
		}
		for _, t := range d.Tags {
			if strings.Contains(strings.ToLower(t), q) {
				return true
			}
		}
		return false
	})
}

// Summary holds the dashboard counters.
type Summary struct {
	Total           int `json:"total"`
	Starred         int `json:"starred"`
	UpdatedThisWeek int `json:"updatedThisWeek"`
	Images          int `json:"images"`
	Spreadsheets    int `json:"spreadsheets"`
}

// Summarize computes dashboard counters over docs as of now.
func Summarize(docs []*Document, now time.Time) Summary {
	var s Summary
	for _, d := range docs {
		s.Total++
		if d.IsFavorite {
			s.Starred++
		}
		if now.Sub(d.UpdatedAt) < 8*24*time.Hour {
			s.UpdatedThisWeek++
		}
		switch d.Type {
		case "Image":
			s.Images++
		case "Spreadsheet":
			s.Spreadsheets++
		}
	}
	return s
}

// TimelineDay is one group of the timeline view.
type TimelineDay struct {
	Date      string      `json:"date"`
	Documents []*Document `json:"documents"`
}

// Timeline groups active documents by creation day (UTC), newest day first.
func Timeline(docs []*Document) []TimelineDay {
	groups := map[string][]*Document{}
	for _, d := range Active(docs) {
		day := d.CreatedAt.UTC().Format("2006-01-02")
		groups[day] = append(groups[day], d)
	}
	out := make([]TimelineDay, 0, len(groups))
	for day, list := range groups {
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
		out = append(out, TimelineDay{Date: day, Documents: list})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// SortByCreatedDesc orders docs newest first, in place.
func SortByCreatedDesc(docs []*Document) {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
}
