// Package merge reconciles freshly imported records with a prior snapshot.
//
// A series can be recognized by its base URL or by its romanized title and
// neither signal is reliable on its own, so records are grouped under both
// keys. A record is unique only when it is alone under both keys. Everything
// else lands in duplicate groups, which are widened across the two keys so
// that records whose signals disagree still end up side by side.
package merge

import (
	"slices"
	"strings"

	"github.com/aluiziolira/go-manga-bookmarks/models"
)

// Source tells which key a duplicate group was built from.
type Source string

const (
	SourceURL    Source = "url"
	SourceRomaji Source = "romaji"
)

// Group is one set of records judged to be the same series.
type Group struct {
	Key     string
	Source  Source
	Members []*models.Record
}

// Stats counts what the merge saw and produced.
type Stats struct {
	Fresh           int
	Prior           int
	ExactDuplicates int
	Input           int
	Unique          int
	Duplicates      int
	Groups          int
	Residual        int
}

// Result is the partition produced by Merge. Every input record, minus exact
// duplicates, appears exactly once across Unique, Duplicates and Residual.
// Residual is expected to be empty.
type Result struct {
	Unique     []*models.Record
	Duplicates []*models.Record
	Residual   []*models.Record
	Groups     []Group
	Stats      Stats
}

// Records returns the emission order: unique records, the marker, the
// duplicates, then any residual records.
func (r *Result) Records() []*models.Record {
	out := make([]*models.Record, 0, len(r.Unique)+1+len(r.Duplicates)+len(r.Residual))
	out = append(out, r.Unique...)
	out = append(out, models.Marker())
	out = append(out, r.Duplicates...)
	out = append(out, r.Residual...)
	return out
}

// Merge partitions prior and fresh records into unique records and duplicate
// groups. It does not modify its inputs and may be called concurrently.
func Merge(fresh, prior []*models.Record) *Result {
	working, dropped := concatDistinct(prior, fresh)
	slices.SortStableFunc(working, byBaseURL)

	urlSingles, urlMulti := groupBy(working, (*models.Record).BaseURL).partition()
	romajiSingles, romajiMulti := groupBy(working, (*models.Record).RomanizedTitle).partition()

	resolved := newResolved()
	urlSingles.each(func(key string, members []*models.Record) {
		resolved.put(SourceURL, key, members[0])
	})
	// Romaji wins when a record is a singleton under both keys.
	romajiSingles.each(func(key string, members []*models.Record) {
		resolved.put(SourceRomaji, key, members[0])
	})
	multis := []struct {
		source  Source
		buckets *buckets
	}{
		{SourceURL, urlMulti},
		{SourceRomaji, romajiMulti},
	}
	for _, multi := range multis {
		multi.buckets.each(func(key string, members []*models.Record) {
			resolved.dropKey(multi.source, key)
			for _, r := range members {
				resolved.dropRecord(r)
			}
		})
	}

	groups := reconcile(urlMulti, romajiMulti)

	res := &Result{Groups: groups}
	emitted := make(map[*models.Record]struct{}, len(working))
	for _, r := range working {
		if resolved.has(r) {
			res.Unique = append(res.Unique, r)
			emitted[r] = struct{}{}
		}
	}
	for _, g := range groups {
		for _, r := range g.Members {
			res.Duplicates = append(res.Duplicates, r)
			emitted[r] = struct{}{}
		}
	}
	slices.SortStableFunc(res.Duplicates, byBaseURL)
	for _, r := range working {
		if _, ok := emitted[r]; !ok {
			res.Residual = append(res.Residual, r)
		}
	}

	res.Stats = Stats{
		Fresh:           countNonNil(fresh),
		Prior:           countNonNil(prior),
		ExactDuplicates: dropped,
		Input:           len(working),
		Unique:          len(res.Unique),
		Duplicates:      len(res.Duplicates),
		Groups:          len(groups),
		Residual:        len(res.Residual),
	}
	return res
}

// reconcile turns the multi-member buckets into duplicate groups. Each URL
// bucket absorbs the romaji bucket of every member it holds, including
// members absorbed along the way, and the absorbed romaji key is consumed.
// The remaining romaji buckets then do the same against the URL buckets.
// A record is placed in the first group that reaches it and skipped after.
func reconcile(urlMulti, romajiMulti *buckets) []Group {
	assigned := make(map[*models.Record]struct{})
	var groups []Group

	build := func(key string, source Source, members []*models.Record, opposite *buckets, oppositeKey func(*models.Record) string) {
		g := Group{Key: key, Source: source}
		add := func(r *models.Record) {
			if _, ok := assigned[r]; ok {
				return
			}
			for _, m := range g.Members {
				if m.Equal(r) {
					return
				}
			}
			assigned[r] = struct{}{}
			g.Members = append(g.Members, r)
		}

		for _, r := range members {
			add(r)
		}
		for i := 0; i < len(g.Members); i++ {
			k := oppositeKey(g.Members[i])
			pulled, ok := opposite.get(k)
			if !ok {
				continue
			}
			opposite.remove(k)
			for _, r := range pulled {
				add(r)
			}
		}
		if len(g.Members) > 0 {
			groups = append(groups, g)
		}
	}

	urlMulti.each(func(key string, members []*models.Record) {
		build(key, SourceURL, members, romajiMulti, (*models.Record).RomanizedTitle)
	})
	romajiMulti.each(func(key string, members []*models.Record) {
		build(key, SourceRomaji, members, urlMulti, (*models.Record).BaseURL)
	})
	return groups
}

// concatDistinct joins prior and fresh, dropping nil records and records
// equal to one already kept. The first occurrence wins, so prior rows keep
// precedence over identical fresh ones.
func concatDistinct(prior, fresh []*models.Record) ([]*models.Record, int) {
	out := make([]*models.Record, 0, len(prior)+len(fresh))
	seen := make(map[string][]*models.Record)
	dropped := 0
	for _, list := range [][]*models.Record{prior, fresh} {
		for _, r := range list {
			if r == nil {
				continue
			}
			key := r.Title() + "\x00" + r.URLWithChapter()
			duplicate := false
			for _, kept := range seen[key] {
				if kept.Equal(r) {
					duplicate = true
					break
				}
			}
			if duplicate {
				dropped++
				continue
			}
			seen[key] = append(seen[key], r)
			out = append(out, r)
		}
	}
	return out, dropped
}

func byBaseURL(a, b *models.Record) int {
	return strings.Compare(a.BaseURL(), b.BaseURL())
}

func countNonNil(records []*models.Record) int {
	n := 0
	for _, r := range records {
		if r != nil {
			n++
		}
	}
	return n
}

// resolvedKey is an identity key qualified by the grouping it came from, so
// a romanized title never collides with an equal base URL.
type resolvedKey struct {
	source Source
	key    string
}

// resolved maps identity keys to records judged unique. A record holds at
// most one key; putting it under a new key releases the old one.
type resolved struct {
	byKey map[resolvedKey]*models.Record
	keyOf map[*models.Record]resolvedKey
}

func newResolved() *resolved {
	return &resolved{
		byKey: make(map[resolvedKey]*models.Record),
		keyOf: make(map[*models.Record]resolvedKey),
	}
}

func (s *resolved) put(source Source, k string, r *models.Record) {
	key := resolvedKey{source: source, key: k}
	if old, ok := s.keyOf[r]; ok {
		delete(s.byKey, old)
	}
	if prev, ok := s.byKey[key]; ok {
		delete(s.keyOf, prev)
	}
	s.byKey[key] = r
	s.keyOf[r] = key
}

func (s *resolved) dropKey(source Source, k string) {
	key := resolvedKey{source: source, key: k}
	if r, ok := s.byKey[key]; ok {
		delete(s.byKey, key)
		delete(s.keyOf, r)
	}
}

func (s *resolved) dropRecord(r *models.Record) {
	if key, ok := s.keyOf[r]; ok {
		delete(s.keyOf, r)
		delete(s.byKey, key)
	}
}

func (s *resolved) has(r *models.Record) bool {
	_, ok := s.keyOf[r]
	return ok
}
