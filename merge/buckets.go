package merge

import "github.com/aluiziolira/go-manga-bookmarks/models"

// buckets groups records by key and remembers the order keys first appeared
// in. Removal marks a key dead instead of reslicing so iteration stays stable
// while the merge consumes keys.
type buckets struct {
	keys    []string
	members map[string][]*models.Record
}

func newBuckets() *buckets {
	return &buckets{members: make(map[string][]*models.Record)}
}

func groupBy(records []*models.Record, key func(*models.Record) string) *buckets {
	b := newBuckets()
	for _, r := range records {
		b.add(key(r), r)
	}
	return b
}

func (b *buckets) add(key string, r *models.Record) {
	if _, ok := b.members[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.members[key] = append(b.members[key], r)
}

func (b *buckets) get(key string) ([]*models.Record, bool) {
	members, ok := b.members[key]
	return members, ok
}

func (b *buckets) remove(key string) {
	delete(b.members, key)
}

// each visits live keys in insertion order. Keys removed during the walk are
// skipped once reached.
func (b *buckets) each(fn func(key string, members []*models.Record)) {
	for _, key := range b.keys {
		members, ok := b.members[key]
		if !ok {
			continue
		}
		fn(key, members)
	}
}

// partition splits b into single-member buckets and buckets with two or more
// members.
func (b *buckets) partition() (singles, multi *buckets) {
	singles, multi = newBuckets(), newBuckets()
	b.each(func(key string, members []*models.Record) {
		target := multi
		if len(members) == 1 {
			target = singles
		}
		for _, r := range members {
			target.add(key, r)
		}
	})
	return singles, multi
}
