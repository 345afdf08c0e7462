// Package pipeline drives one reconciliation run: bookmark leaves become
// records, records are merged with the prior snapshot, and the result is
// written out.
package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/aluiziolira/go-manga-bookmarks/bookmarks"
	"github.com/aluiziolira/go-manga-bookmarks/config"
	"github.com/aluiziolira/go-manga-bookmarks/merge"
	"github.com/aluiziolira/go-manga-bookmarks/models"
	"github.com/aluiziolira/go-manga-bookmarks/parser"
	"github.com/aluiziolira/go-manga-bookmarks/romanize"
	"golang.org/x/sync/errgroup"
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []*models.Record) error
	Close() error
	Validate() error
}

// Source yields the bookmark leaves of one run.
type Source interface {
	Leaves(ctx context.Context) ([]bookmarks.Leaf, error)
}

// ExportSource decodes a bookmark export held in memory.
type ExportSource struct {
	Format string
	Data   []byte
}

// Leaves implements Source.
func (s ExportSource) Leaves(ctx context.Context) ([]bookmarks.Leaf, error) {
	return bookmarks.Load(ctx, s.Format, s.Data)
}

// FileSource reads a bookmark export from disk. HTML exports go through
// Importer, or a default local importer when it is nil.
type FileSource struct {
	Path     string
	Format   string
	Importer *bookmarks.HTMLImporter
}

// Leaves implements Source.
func (s FileSource) Leaves(ctx context.Context) ([]bookmarks.Leaf, error) {
	return bookmarks.LoadFile(ctx, s.Importer, s.Format, s.Path)
}

// LeafSource serves a fixed list of leaves.
type LeafSource []bookmarks.Leaf

// Leaves implements Source.
func (s LeafSource) Leaves(context.Context) ([]bookmarks.Leaf, error) {
	return s, nil
}

// Pipeline builds records and reconciles them.
type Pipeline struct {
	cfg       *config.Config
	romanizer romanize.Romanizer
	metrics   *merge.Metrics

	counters counters
}

// New builds a pipeline. A nil cfg means config.DefaultConfig and a nil
// romanizer leaves titles as they are.
func New(cfg *config.Config, rz romanize.Romanizer, metrics *merge.Metrics) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Pipeline{
		cfg:       cfg,
		romanizer: rz,
		metrics:   metrics,
		counters:  newCounters(),
	}
}

// BuildRecords turns leaves into fresh records sorted by URL. Leaves with no
// title or URI are counted and skipped.
func (p *Pipeline) BuildRecords(leaves []bookmarks.Leaf) []*models.Record {
	records := make([]*models.Record, 0, len(leaves))
	for _, leaf := range leaves {
		r, err := models.FromBookmark(leaf.Title, leaf.URI, leaf.LastModifiedMicros, p.romanizer)
		if err != nil || r.URLWithChapter() == "" {
			p.counters.add("invalid_leaves", 1)
			p.metrics.IncInvalidLeaf()
			slog.Debug("skipping bookmark", slog.String("uri", leaf.URI), slog.Any("error", err))
			continue
		}
		records = append(records, r)
	}
	slices.SortStableFunc(records, func(a, b *models.Record) int {
		return cmp.Compare(a.URLWithChapter(), b.URLWithChapter())
	})
	return records
}

// ReadSnapshot reads a prior snapshot and counts skipped rows.
func (p *Pipeline) ReadSnapshot(r io.Reader) (*SnapshotResult, error) {
	res, err := ReadSnapshot(r, p.romanizer)
	if err != nil {
		return nil, err
	}
	for _, skipped := range res.Skipped {
		kind := parser.ErrorKind(skipped)
		p.counters.addSkipped(kind)
		p.metrics.IncSkippedRow(kind)
	}
	return res, nil
}

// Reconcile merges the records built from leaves with prior. Marker rows in
// prior are ignored. Unique records come back ordered by base URL, then URL,
// then title.
func (p *Pipeline) Reconcile(ctx context.Context, leaves []bookmarks.Leaf, prior []*models.Record) (*merge.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	fresh := p.BuildRecords(leaves)
	prior = withoutMarkers(prior)

	if err := p.warm(ctx, fresh, prior); err != nil {
		return nil, err
	}

	res := merge.Merge(fresh, prior)
	slices.SortStableFunc(res.Unique, func(a, b *models.Record) int {
		return cmp.Or(
			cmp.Compare(a.BaseURL(), b.BaseURL()),
			cmp.Compare(a.URLWithChapter(), b.URLWithChapter()),
			cmp.Compare(a.Title(), b.Title()),
		)
	})

	p.metrics.Observe(res)
	p.counters.observe(res)
	slog.Debug("merge finished",
		slog.Int("fresh", res.Stats.Fresh),
		slog.Int("prior", res.Stats.Prior),
		slog.Int("unique", res.Stats.Unique),
		slog.Int("duplicates", res.Stats.Duplicates),
		slog.Int("groups", res.Stats.Groups),
	)
	return res, nil
}

// Emit writes unique records, the marker, duplicates and any residual.
func (p *Pipeline) Emit(w OutputWriter, res *merge.Result) error {
	for _, r := range res.Residual {
		slog.Warn("record fell through reconciliation", slog.String("record", r.String()))
	}
	if err := w.Write(res.Records()); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}

// Run reads src, reconciles it with prior and writes the result to w.
func (p *Pipeline) Run(ctx context.Context, src Source, prior []*models.Record, w OutputWriter) (*merge.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	leaves, err := src.Leaves(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bookmarks: %w", err)
	}
	res, err := p.Reconcile(ctx, leaves, prior)
	if err != nil {
		return nil, err
	}
	if err := p.Emit(w, res); err != nil {
		return nil, err
	}
	return res, nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.counters.snapshot()
}

// warm memoizes the derived keys of every record on a bounded worker pool.
func (p *Pipeline) warm(ctx context.Context, lists ...[]*models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
feed:
	for _, list := range lists {
		for _, r := range list {
			if gctx.Err() != nil {
				break feed
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				r.BaseURL()
				r.RomanizedTitle()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func withoutMarkers(records []*models.Record) []*models.Record {
	out := make([]*models.Record, 0, len(records))
	for _, r := range records {
		if r == nil || r.IsMarker() {
			continue
		}
		out = append(out, r)
	}
	return out
}

type counters struct {
	mu      sync.Mutex
	values  map[string]int64
	skipped map[string]int
}

func newCounters() counters {
	return counters{
		values:  make(map[string]int64),
		skipped: make(map[string]int),
	}
}

func (c *counters) add(name string, n int64) {
	c.mu.Lock()
	c.values[name] += n
	c.mu.Unlock()
}

func (c *counters) addSkipped(kind string) {
	c.mu.Lock()
	c.skipped[kind]++
	c.mu.Unlock()
}

func (c *counters) observe(res *merge.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values["fresh_records"] += int64(res.Stats.Fresh)
	c.values["prior_records"] += int64(res.Stats.Prior)
	c.values["exact_duplicates"] += int64(res.Stats.ExactDuplicates)
	c.values["unique_records"] += int64(res.Stats.Unique)
	c.values["duplicate_records"] += int64(res.Stats.Duplicates)
	c.values["duplicate_groups"] += int64(res.Stats.Groups)
	c.values["residual_records"] += int64(res.Stats.Residual)
}

func (c *counters) snapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]interface{}, len(c.values)+1)
	for _, name := range []string{"fresh_records", "prior_records", "exact_duplicates", "unique_records", "duplicate_records", "duplicate_groups", "residual_records", "invalid_leaves"} {
		out[name] = c.values[name]
	}
	skipped := make(map[string]int, len(c.skipped))
	for k, v := range c.skipped {
		skipped[k] = v
	}
	out["skipped_rows"] = skipped
	return out
}
