package biz

import (
	"sort"
	"strings"
)

// Match reports whether e satisfies every criterion of p
func Match(e *Entry, p Predicate) bool {
	if e == nil {
		return false
	}
	return p.matcher()(e)
}

// Filter returns the entries matching p in their original order.
// The input slice is never modified.
func Filter(entries []*Entry, p Predicate) []*Entry {
	out := make([]*Entry, 0, len(entries))
	if p.IsMatchAll() {
		for _, e := range entries {
			if e != nil {
				out = append(out, e)
			}
		}
		return out
	}

	match := p.matcher()
	for _, e := range entries {
		if e != nil && match(e) {
			out = append(out, e)
		}
	}
	return out
}

func (p Predicate) matcher() func(*Entry) bool {
	search := strings.ToLower(p.Search)
	return func(e *Entry) bool {
		if search != "" && !strings.Contains(strings.ToLower(e.OriginalFilename), search) {
			return false
		}
		if p.FileType != "" && e.FileType != p.FileType {
			return false
		}
		if p.SizeMin != nil && e.SizeBytes < *p.SizeMin {
			return false
		}
		if p.SizeMax != nil && e.SizeBytes > *p.SizeMax {
			return false
		}
		if p.UploadedAfter != nil && e.UploadedAt.Before(*p.UploadedAfter) {
			return false
		}
		if p.UploadedBefore != nil && e.UploadedAt.After(*p.UploadedBefore) {
			return false
		}
		return true
	}
}

// FileTypesOf returns the distinct non-empty file types of entries, sorted
func FileTypesOf(entries []*Entry) []string {
	seen := make(map[string]struct{})
	for _, e := range entries {
		if e == nil || e.FileType == "" {
			continue
		}
		seen[e.FileType] = struct{}{}
	}

	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
