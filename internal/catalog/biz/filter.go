package biz

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// FileTypeAll 文件类型过滤的哨兵值，等同于不过滤
const FileTypeAll = "all"

// FilterInput 用户输入的原始过滤条件，全部为字符串，允许格式错误
type FilterInput struct {
	Search         string
	FileType       string
	SizeMinKB      string
	SizeMaxKB      string
	UploadedAfter  string
	UploadedBefore string
}

// Predicate 规范化后的过滤条件，只包含生效的条件
type Predicate struct {
	Search         string
	FileType       string
	SizeMin        *int64
	SizeMax        *int64
	UploadedAfter  *time.Time
	UploadedBefore *time.Time
}

// MatchAll returns the predicate of the default, unfiltered view
func MatchAll() Predicate {
	return Predicate{}
}

// BuildPredicate normalizes in using UTC for calendar dates
func BuildPredicate(in FilterInput) Predicate {
	return BuildPredicateIn(in, time.UTC)
}

// BuildPredicateIn normalizes in, resolving calendar dates in loc.
// Malformed sizes and dates are dropped rather than reported.
func BuildPredicateIn(in FilterInput, loc *time.Location) Predicate {
	if loc == nil {
		loc = time.UTC
	}

	var p Predicate
	p.Search = strings.TrimSpace(in.Search)

	if ft := strings.TrimSpace(in.FileType); ft != "" && ft != FileTypeAll {
		p.FileType = ft
	}

	if v, ok := parseKB(in.SizeMinKB); ok {
		p.SizeMin = &v
	}
	if v, ok := parseKB(in.SizeMaxKB); ok {
		p.SizeMax = &v
	}

	if t, ok := parseBound(in.UploadedAfter, loc, false); ok {
		p.UploadedAfter = &t
	}
	if t, ok := parseBound(in.UploadedBefore, loc, true); ok {
		p.UploadedBefore = &t
	}
	return p
}

// parseKB converts a decimal kilobyte string to bytes
func parseKB(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	b := math.Round(v * 1024)
	if b >= math.MaxInt64 {
		return 0, false
	}
	return int64(b), true
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// parseBound parses an inclusive date bound. A bare calendar date expands to
// the first (or, for an upper bound, the last) instant of that day in loc.
func parseBound(s string, loc *time.Location, upper bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if d, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		if upper {
			return d.AddDate(0, 0, 1).Add(-time.Nanosecond), true
		}
		return d, true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsMatchAll reports whether the predicate imposes no constraint
func (p Predicate) IsMatchAll() bool {
	return p.Search == "" &&
		p.FileType == "" &&
		p.SizeMin == nil &&
		p.SizeMax == nil &&
		p.UploadedAfter == nil &&
		p.UploadedBefore == nil
}

// IsActive reports whether any filter is applied
func (p Predicate) IsActive() bool {
	return !p.IsMatchAll()
}

// Key returns the canonical form of p. Predicates that select the same
// entries share a key; search is case-folded because matching ignores case.
func (p Predicate) Key() string {
	if p.IsMatchAll() {
		return "*"
	}

	v := url.Values{}
	if p.Search != "" {
		v.Set("q", strings.ToLower(p.Search))
	}
	if p.FileType != "" {
		v.Set("type", p.FileType)
	}
	if p.SizeMin != nil {
		v.Set("min", strconv.FormatInt(*p.SizeMin, 10))
	}
	if p.SizeMax != nil {
		v.Set("max", strconv.FormatInt(*p.SizeMax, 10))
	}
	if p.UploadedAfter != nil {
		v.Set("after", p.UploadedAfter.UTC().Format(time.RFC3339Nano))
	}
	if p.UploadedBefore != nil {
		v.Set("before", p.UploadedBefore.UTC().Format(time.RFC3339Nano))
	}
	return v.Encode()
}

// Equal compares predicates by their canonical key
func (p Predicate) Equal(o Predicate) bool {
	return p.Key() == o.Key()
}
