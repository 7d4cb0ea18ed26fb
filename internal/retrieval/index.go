// Package retrieval maintains a full-text index over a directory of reference documents
// and answers analysis questions from the best matching chunks.
package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	_ "github.com/mattn/go-sqlite3" // register sqlite3 driver
	"go.uber.org/zap"

	"github.com/jonathan/trend-radar/internal/fetch"
)

// Index is a SQLite FTS4 index of document chunks.
type Index struct {
	db   *sql.DB
	path string
}

// Exists reports whether an index file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// Open opens or creates the index at path.
func Open(path string) (*Index, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	ix := &Index{db: db, path: path}
	if err := ix.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return ix, nil
}

// Close releases the database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

func (ix *Index) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			source TEXT PRIMARY KEY,
			mod_time TEXT NOT NULL,
			chunks INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL REFERENCES documents(source) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			body TEXT NOT NULL,
			UNIQUE(source, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts4(body, content="chunks", tokenize=porter)`,
		`CREATE TRIGGER IF NOT EXISTS chunks_bd BEFORE DELETE ON chunks BEGIN
			DELETE FROM chunks_fts WHERE docid = old.rowid;
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(docid, body) VALUES (new.rowid, new.body);
		END`,
	}
	for _, stmt := range statements {
		if _, err := ix.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// BuildSummary holds counts from one indexing pass.
type BuildSummary struct {
	Indexed   int
	Updated   int
	Unchanged int
	Removed   int
	Skipped   int
	Failed    int
	Chunks    int
}

// Total returns the number of files looked at.
func (s BuildSummary) Total() int {
	return s.Indexed + s.Updated + s.Unchanged + s.Skipped + s.Failed
}

// Build indexes every supported document under dir. Files whose modification time
// is unchanged since the last pass are left alone, and documents that disappeared
// from dir are removed.
func (ix *Index) Build(ctx context.Context, dir string, size, overlap int, logger *zap.Logger) (BuildSummary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	known, err := ix.modTimes(ctx)
	if err != nil {
		return BuildSummary{}, err
	}

	var summary BuildSummary
	seen := make(map[string]bool)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		source, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		source = filepath.ToSlash(source)

		info, err := d.Info()
		if err != nil {
			logger.Warn("stat failed", zap.String("source", source), zap.Error(err))
			summary.Failed++
			return nil
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)
		previous, existed := known[source]
		if existed && previous == modTime {
			seen[source] = true
			summary.Unchanged++
			return nil
		}

		text, err := readDocument(path)
		if errors.Is(err, errUnsupported) {
			summary.Skipped++
			return nil
		}
		seen[source] = true
		if err != nil {
			logger.Warn("read failed", zap.String("source", source), zap.Error(err))
			summary.Failed++
			return nil
		}

		n, err := ix.AddDocument(ctx, source, modTime, text, size, overlap)
		if err != nil {
			logger.Warn("index failed", zap.String("source", source), zap.Error(err))
			summary.Failed++
			return nil
		}
		summary.Chunks += n
		if existed {
			summary.Updated++
		} else {
			summary.Indexed++
		}
		logger.Debug("indexed", zap.String("source", source), zap.Int("chunks", n))
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("walking %s: %w", dir, err)
	}

	for source := range known {
		if seen[source] || strings.Contains(source, "://") {
			continue
		}
		if err := ix.RemoveDocument(ctx, source); err != nil {
			return summary, err
		}
		summary.Removed++
	}
	return summary, nil
}

// AddDocument replaces the chunks of one document and returns how many were stored.
func (ix *Index) AddDocument(ctx context.Context, source, modTime, text string, size, overlap int) (int, error) {
	chunks := Chunk(text, size, overlap)

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source); err != nil {
		return 0, fmt.Errorf("clearing chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (source, mod_time, chunks) VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET mod_time = excluded.mod_time, chunks = excluded.chunks`,
		source, modTime, len(chunks)); err != nil {
		return 0, fmt.Errorf("upserting document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (source, seq, body) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()
	for i, body := range chunks {
		if _, err := stmt.ExecContext(ctx, source, i, body); err != nil {
			return 0, fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return len(chunks), nil
}

// RemoveDocument deletes a document and its chunks.
func (ix *Index) RemoveDocument(ctx context.Context, source string) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source); err != nil {
		return fmt.Errorf("removing chunks of %s: %w", source, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE source = ?`, source); err != nil {
		return fmt.Errorf("removing %s: %w", source, err)
	}
	return tx.Commit()
}

// ChunkCount returns the number of indexed chunks.
func (ix *Index) ChunkCount(ctx context.Context) (int, error) {
	var n int
	if err := ix.db.QueryRowContext(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

func (ix *Index) modTimes(ctx context.Context) (map[string]string, error) {
	rows, err := ix.db.QueryContext(ctx, `SELECT source, mod_time FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var source, modTime string
		if err := rows.Scan(&source, &modTime); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out[source] = modTime
	}
	return out, rows.Err()
}

// Hit is one chunk matching a search.
type Hit struct {
	Source  string
	Seq     int
	Content string
	Score   float64
}

// Search returns up to k chunks ranked by BM25 against the terms of query.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	terms := QueryTerms(query)
	if len(terms) == 0 || k <= 0 {
		return nil, nil
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}

	rows, err := ix.db.QueryContext(ctx, `
		SELECT c.source, c.seq, c.body, matchinfo(chunks_fts, 'pcnalx')
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.docid
		WHERE chunks_fts MATCH ?`, strings.Join(quoted, " OR "))
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var info []byte
		if err := rows.Scan(&h.Source, &h.Seq, &h.Content, &info); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		score, err := bm25(info)
		if err != nil {
			return nil, err
		}
		h.Score = score
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Source != hits[j].Source {
			return hits[i].Source < hits[j].Source
		}
		return hits[i].Seq < hits[j].Seq
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bm25 scores one row from its matchinfo 'pcnalx' blob.
func bm25(info []byte) (float64, error) {
	if len(info)%4 != 0 || len(info) < 12 {
		return 0, fmt.Errorf("malformed matchinfo of %d bytes", len(info))
	}
	vals := make([]float64, len(info)/4)
	for i := range vals {
		vals[i] = float64(binary.NativeEndian.Uint32(info[i*4:]))
	}
	phrases, cols, rows := int(vals[0]), int(vals[1]), vals[2]
	if len(vals) < 3+2*cols+3*phrases*cols {
		return 0, fmt.Errorf("matchinfo too short for %d phrases and %d columns", phrases, cols)
	}

	var score float64
	for j := 0; j < cols; j++ {
		avgLen := math.Max(vals[3+j], 1)
		docLen := vals[3+cols+j]
		for i := 0; i < phrases; i++ {
			x := 3 + 2*cols + 3*(i*cols+j)
			tf, df := vals[x], vals[x+2]
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (rows-df+0.5)/(df+0.5))
			score += idf * tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*docLen/avgLen))
		}
	}
	return score, nil
}

var queryStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "how": true, "in": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "the": true, "this": true, "to": true, "what": true,
	"which": true, "with": true, "their": true, "each": true, "cover": true,
}

const maxQueryTerms = 32

// QueryTerms lowercases query and returns its distinct content words in order.
func QueryTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		if len(w) < 2 || queryStopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == maxQueryTerms {
			break
		}
	}
	return out
}

var errUnsupported = errors.New("unsupported document type")

func readDocument(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".markdown", ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		_, text, err := fetch.DefaultExtractor().Extract(string(data))
		return text, err
	default:
		return "", errUnsupported
	}
}
