package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-manga-bookmarks/merge"
	"github.com/aluiziolira/go-manga-bookmarks/models"
	"github.com/aluiziolira/go-manga-bookmarks/parser"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "db", "manga.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func record(t *testing.T, f models.Fields) *models.Record {
	t.Helper()
	r, err := models.FromFields(f, nil)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	return r
}

func sampleResult(t *testing.T) *merge.Result {
	t.Helper()
	return merge.Merge([]*models.Record{
		record(t, models.Fields{Title: "Gate", URLWithChapter: "https://x.tld/gate-chapter-10/", LastModified: "2023-07-16T15:00:34", Tags: []string{"#isekai"}}),
		record(t, models.Fields{Title: "Gate", URLWithChapter: "https://x.tld/gate-chapter-11/", LastModified: "2023-07-17T15:00:34", Tags: []string{"#isekai", "#jsdf"}}),
		record(t, models.Fields{Title: "One Piece", URLWithChapter: "https://x.tld/one-piece-chapter-1000/", LastModified: "2023-07-16T15:00:34", Notes: "weekly"}),
	}, nil)
}

func TestOpenExistingDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Path: filepath.Join(t.TempDir(), "manga.db")}

	first, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.SaveResult(ctx, "run-1", sampleResult(t)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()
	loaded, err := second.LoadRecords(ctx, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("loaded = %d after reopen, want 3", len(loaded))
	}
}

func TestOpenEnablesForeignKeys(t *testing.T) {
	store := openTestStore(t)
	var on int
	if err := store.db.QueryRowContext(context.Background(), `PRAGMA foreign_keys`).Scan(&on); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if on != 1 {
		t.Fatalf("foreign_keys = %d, want 1", on)
	}
}

func TestOpenCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "manga.db")}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestLoadRecordsOrdersChaptersNumerically(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	res := merge.Merge([]*models.Record{
		record(t, models.Fields{Title: "Gate", URLWithChapter: "https://x.tld/gate-chapter-10/", LastModified: "2023-07-16T15:00:34"}),
		record(t, models.Fields{Title: "Gate", URLWithChapter: "https://x.tld/gate-chapter-9/", LastModified: "2023-07-16T15:00:34"}),
		record(t, models.Fields{Title: "Gate", URLWithChapter: "https://x.tld/gate-chapter-12-raw/", LastModified: "2023-07-16T15:00:34"}),
	}, nil)
	if err := store.SaveResult(ctx, "run-1", res); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.LoadRecords(ctx, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var got []string
	for _, r := range loaded {
		got = append(got, r.Chapter())
	}
	want := []string{"9", "10", "12.raw"}
	if len(got) != len(want) {
		t.Fatalf("chapters = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chapters = %v, want %v", got, want)
		}
	}

	var nulls int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM manga WHERE chapter_number IS NULL`).Scan(&nulls); err != nil {
		t.Fatalf("count nulls: %v", err)
	}
	if nulls != 1 {
		t.Fatalf("rows without chapter_number = %d, want 1", nulls)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	res := sampleResult(t)

	if err := store.SaveResult(ctx, "run-1", res); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.LoadRecords(ctx, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("loaded = %d, want 3", len(loaded))
	}

	originals := append(append([]*models.Record(nil), res.Unique...), res.Duplicates...)
	for _, want := range originals {
		found := false
		for _, got := range loaded {
			if got.Equal(want) {
				found = true
				if got.BaseURL() != want.BaseURL() || got.RomanizedTitle() != want.RomanizedTitle() {
					t.Fatalf("derived keys differ for %s", want)
				}
			}
		}
		if !found {
			t.Fatalf("record %s not loaded back", want)
		}
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[StatusUnique] != 1 || counts[StatusDuplicate] != 2 {
		t.Fatalf("status counts = %v", counts)
	}
}

func TestSaveResultUpserts(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	res := sampleResult(t)

	for _, runID := range []string{"run-1", "run-2"} {
		if err := store.SaveResult(ctx, runID, res); err != nil {
			t.Fatalf("save %s: %v", runID, err)
		}
	}

	loaded, err := store.LoadRecords(ctx, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("loaded = %d after two saves, want 3", len(loaded))
	}

	tags, err := store.Tags(ctx)
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	want := []TagCount{{Tag: "#isekai", Count: 2}, {Tag: "#jsdf", Count: 1}}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("tags[%d] = %v, want %v", i, tags[i], want[i])
		}
	}
}

func TestSaveResultAbortsOnBadTimestamp(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	res := merge.Merge([]*models.Record{
		record(t, models.Fields{Title: "A", URLWithChapter: "https://x.tld/a/", LastModified: "2023-07-16T15:00:34"}),
		record(t, models.Fields{Title: "B", URLWithChapter: "https://x.tld/b/", LastModified: "16/07/2023"}),
	}, nil)

	err := store.SaveResult(ctx, "run-1", res)
	var tsErr *parser.TimestampError
	if !errors.As(err, &tsErr) {
		t.Fatalf("error = %v, want TimestampError", err)
	}

	loaded, err := store.LoadRecords(ctx, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("transaction should have rolled back, found %d rows", len(loaded))
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); !errors.Is(err, ErrNoPath) {
		t.Fatalf("error = %v, want ErrNoPath", err)
	}
}
