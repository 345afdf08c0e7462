package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aluiziolira/go-manga-bookmarks/merge"
	"github.com/aluiziolira/go-manga-bookmarks/models"
	"github.com/aluiziolira/go-manga-bookmarks/parser"
	"github.com/aluiziolira/go-manga-bookmarks/romanize"
)

// Record status values.
const (
	StatusUnique    = "unique"
	StatusDuplicate = "duplicate"
	StatusResidual  = "residual"
)

// TagCount is a tag and the number of records carrying it.
type TagCount struct {
	Tag   string
	Count int
}

const upsertManga = `
	INSERT INTO manga (title, title_romanized, url, url_with_chapter, chapter, chapter_number, last_update, last_update_millis, notes, tags, status, run_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(title, url_with_chapter) DO UPDATE SET
	  title_romanized = excluded.title_romanized,
	  url = excluded.url,
	  chapter = excluded.chapter,
	  chapter_number = excluded.chapter_number,
	  last_update = excluded.last_update,
	  last_update_millis = excluded.last_update_millis,
	  notes = excluded.notes,
	  tags = excluded.tags,
	  status = excluded.status,
	  run_id = excluded.run_id
	RETURNING id`

// SaveResult upserts every record of res in one transaction, tagged with its
// status and runID. A record whose timestamp cannot be converted aborts the
// whole save. Non-numeric chapters are stored with a NULL chapter_number.
func (s *Store) SaveResult(ctx context.Context, runID string, res *merge.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertManga)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	tags, err := newTagWriter(ctx, tx)
	if err != nil {
		return err
	}
	defer tags.close()

	batches := []struct {
		status  string
		records []*models.Record
	}{
		{StatusUnique, res.Unique},
		{StatusDuplicate, res.Duplicates},
		{StatusResidual, res.Residual},
	}
	for _, batch := range batches {
		for _, r := range batch.records {
			if r == nil || r.IsMarker() {
				continue
			}
			var millis sql.NullInt64
			if r.LastModified() != "" {
				v, err := r.LastModifiedMillis()
				if err != nil {
					return fmt.Errorf("save %s: %w", r, err)
				}
				millis = sql.NullInt64{Int64: v, Valid: true}
			}
			var chapter sql.NullFloat64
			if n, err := r.ChapterNumber(); err == nil {
				chapter = sql.NullFloat64{Float64: n, Valid: true}
			}

			var id int64
			if err := stmt.QueryRowContext(ctx,
				r.Title(),
				r.RomanizedTitle(),
				r.BaseURL(),
				r.URLWithChapter(),
				r.Chapter(),
				chapter,
				r.LastModified(),
				millis,
				r.Notes(),
				r.TagColumn(),
				batch.status,
				runID,
			).Scan(&id); err != nil {
				return fmt.Errorf("upsert %s: %w", r, err)
			}
			if err := tags.replace(ctx, id, r.Tags()); err != nil {
				return fmt.Errorf("tags for %s: %w", r, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadRecords returns stored records ordered by base URL, title and chapter,
// numeric chapters first in numeric order. Stored base URLs and romanized
// titles are reused as cached values.
func (s *Store) LoadRecords(ctx context.Context, rz romanize.Romanizer) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, url_with_chapter, COALESCE(chapter, ''), COALESCE(last_update, ''),
		       COALESCE(notes, ''), COALESCE(tags, ''), url, COALESCE(title_romanized, '')
		FROM manga
		ORDER BY url, title, chapter_number IS NULL, chapter_number, url_with_chapter`)
	if err != nil {
		return nil, fmt.Errorf("query manga: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		var f models.Fields
		var tagColumn string
		if err := rows.Scan(&f.Title, &f.URLWithChapter, &f.Chapter, &f.LastModified, &f.Notes, &tagColumn, &f.BaseURL, &f.RomanizedTitle); err != nil {
			return nil, fmt.Errorf("scan manga: %w", err)
		}
		f.Tags = parser.SplitTags(tagColumn)
		r, err := models.FromFields(f, rz)
		if err != nil {
			return nil, fmt.Errorf("rebuild %q: %w", f.URLWithChapter, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manga: %w", err)
	}
	return out, nil
}

// Tags lists every known tag with its usage count.
func (s *Store) Tags(ctx context.Context) ([]TagCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.tag, COUNT(mt.manga_id)
		FROM tags AS t
		LEFT JOIN manga_to_tags_map AS mt ON mt.tag_id = t.id
		GROUP BY t.id
		ORDER BY t.tag`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return out, nil
}

// CountByStatus returns how many stored records carry each status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM manga GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query status: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

// tagWriter rebuilds the tag map of one record inside a transaction.
type tagWriter struct {
	clear  *sql.Stmt
	insert *sql.Stmt
	lookup *sql.Stmt
	link   *sql.Stmt
}

func newTagWriter(ctx context.Context, tx *sql.Tx) (*tagWriter, error) {
	w := &tagWriter{}
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&w.clear, `DELETE FROM manga_to_tags_map WHERE manga_id = ?`},
		{&w.insert, `INSERT INTO tags (tag) VALUES (?) ON CONFLICT(tag) DO NOTHING`},
		{&w.lookup, `SELECT id FROM tags WHERE tag = ?`},
		{&w.link, `INSERT OR IGNORE INTO manga_to_tags_map (manga_id, tag_id) VALUES (?, ?)`},
	}
	for _, s := range stmts {
		stmt, err := tx.PrepareContext(ctx, s.query)
		if err != nil {
			w.close()
			return nil, fmt.Errorf("prepare tag statement: %w", err)
		}
		*s.dst = stmt
	}
	return w, nil
}

func (w *tagWriter) replace(ctx context.Context, mangaID int64, tags []string) error {
	if _, err := w.clear.ExecContext(ctx, mangaID); err != nil {
		return err
	}
	for _, tag := range tags {
		if _, err := w.insert.ExecContext(ctx, tag); err != nil {
			return err
		}
		var tagID int64
		if err := w.lookup.QueryRowContext(ctx, tag).Scan(&tagID); err != nil {
			return err
		}
		if _, err := w.link.ExecContext(ctx, mangaID, tagID); err != nil {
			return err
		}
	}
	return nil
}

func (w *tagWriter) close() {
	for _, stmt := range []*sql.Stmt{w.clear, w.insert, w.lookup, w.link} {
		if stmt != nil {
			stmt.Close()
		}
	}
}
