package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"

	contexterrors "github.com/sandy-sachin7/contextd/internal/errors"
)

// Config controls how Store opens its backing file and which dense-index
// implementation it wires in.
type Config struct {
	DBPath      string
	Dimensions  int
	VectorIndex string // "exact" (default) or "hnsw"
}

// Store is C6: the single shared mutable resource in the pipeline. It
// serializes writes through SQLite's own single-writer discipline and
// fronts a DenseIndex for vector search plus FTS5 for lexical search.
type Store struct {
	db    *sql.DB
	dense DenseIndex
	lock  *flock.Flock
	cfg   Config
}

// Open creates the schema if absent and returns a ready Store. A gofrs/flock
// advisory lock on "<db_path>.lock" guarantees a single daemon instance per
// store file; failure to acquire it is a store-open failure (exit code 3).
func Open(cfg Config) (*Store, error) {
	InitVectorExtension()

	lock := flock.New(cfg.DBPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("store %q is already open by another instance", cfg.DBPath)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		lock.Unlock()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	var integrity string
	if err := db.QueryRow(`PRAGMA integrity_check`).Scan(&integrity); err != nil {
		db.Close()
		lock.Unlock()
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	if integrity != "ok" {
		db.Close()
		lock.Unlock()
		return nil, fmt.Errorf("%w: %s", contexterrors.ErrStoreCorrupt, integrity)
	}

	version, err := GetSchemaVersion(db)
	if err != nil {
		db.Close()
		lock.Unlock()
		return nil, err
	}
	if version == "0" {
		if err := CreateSchema(db, cfg.Dimensions); err != nil {
			db.Close()
			lock.Unlock()
			return nil, err
		}
	}

	dense, err := newDenseIndex(cfg, db)
	if err != nil {
		db.Close()
		lock.Unlock()
		return nil, err
	}

	return &Store{db: db, dense: dense, lock: lock, cfg: cfg}, nil
}

func newDenseIndex(cfg Config, db *sql.DB) (DenseIndex, error) {
	switch cfg.VectorIndex {
	case "hnsw":
		return newHNSWIndex(cfg.DBPath+".hnsw", db)
	case "", "exact":
		return newExactIndex(db), nil
	default:
		return nil, fmt.Errorf("unknown vector_index %q", cfg.VectorIndex)
	}
}

// Close releases the dense index, the database handle, and the instance
// lock, in that order.
func (s *Store) Close() error {
	if err := s.dense.Close(); err != nil {
		return err
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	return s.lock.Unlock()
}

// UpsertFile writes or updates a File record transactionally.
func (s *Store) UpsertFile(ctx context.Context, f FileRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapBusy(err)
	}
	defer tx.Rollback()

	_, err = sq.Insert("files").
		Columns("path", "mtime", "size", "hash", "file_ext", "state").
		Values(f.Path, f.Mtime, f.Size, f.Hash, f.FileExt, string(f.State)).
		Suffix(`ON CONFLICT(path) DO UPDATE SET
			mtime = excluded.mtime, size = excluded.size,
			hash = excluded.hash, file_ext = excluded.file_ext, state = excluded.state`).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", f.Path, err)
	}

	return tx.Commit()
}

// GetFile returns path's File record and whether it exists at all, used by
// the pipeline to decide whether a content hash actually changed before
// redoing any parse/chunk/embed work, per §8's "no redundant work" invariant.
func (s *Store) GetFile(ctx context.Context, path string) (FileRecord, bool, error) {
	var f FileRecord
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT path, mtime, size, hash, file_ext, state FROM files WHERE path = ?`, path).
		Scan(&f.Path, &f.Mtime, &f.Size, &f.Hash, &f.FileExt, &state)
	if err == sql.ErrNoRows {
		return FileRecord{}, false, nil
	}
	if err != nil {
		return FileRecord{}, false, fmt.Errorf("get file %s: %w", path, err)
	}
	f.State = FileState(state)
	return f, true, nil
}

// Stat implements watcher.KnownFileStater so the Watcher's initial scan can
// skip files whose (mtime, size) already match what's on record.
func (s *Store) Stat(path string) (mtime time.Time, size int64, known bool) {
	f, ok, err := s.GetFile(context.Background(), path)
	if err != nil || !ok {
		return time.Time{}, 0, false
	}
	return time.Unix(f.Mtime, 0), f.Size, true
}

// ReplaceChunks atomically deletes path's previous chunks and installs the
// new set, updating the chunk table and the FTS mirror (via triggers) in one
// transaction so readers never see a mix of pre- and post-state, per §5's
// ordering guarantee. The dense index is updated in a separate step right
// after that commit (see below). Grounded on the teacher's
// per-file delete-then-insert transaction for chunk writes.
func (s *Store) ReplaceChunks(ctx context.Context, path string, chunks []Chunk) error {
	var staleIDs []string
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE file_path = ?`, path)
	if err != nil {
		return fmt.Errorf("list prior chunks for %s: %w", path, err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		staleIDs = append(staleIDs, id)
	}
	rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapBusy(err)
	}
	defer tx.Rollback()

	if _, err := sq.Delete("chunks").Where(sq.Eq{"file_path": path}).RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("delete stale chunks for %s: %w", path, err)
	}

	for _, c := range chunks {
		_, err := sq.Insert("chunks").
			Columns("id", "file_path", "ordinal", "start_offset", "end_offset",
				"kind", "symbol", "heading_path", "page", "text",
				"embedding", "model_name", "model_dim", "stale").
			Values(c.ID, c.FilePath, c.Ordinal, c.StartOffset, c.EndOffset,
				c.Kind, c.Symbol, c.HeadingPath, c.Page, c.Text,
				serializeEmbedding(c.Embedding), c.ModelName, c.ModelDim, boolToInt(c.Stale)).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapBusy(err)
	}

	// The dense index is a separate store (sqlite-vec's own virtual table, or
	// the in-memory HNSW graph); it is updated right after the SQL commit so
	// a crash between the two leaves chunks queryable lexically but not yet
	// semantically — acceptable since the next ReplaceChunks for this path
	// will re-upsert every vector regardless. Stale chunk IDs that didn't
	// survive into the new set (renamed symbols, shrunk file) must be purged
	// here too, or old vectors would keep matching queries forever.
	if len(staleIDs) > 0 {
		if err := s.dense.Delete(ctx, staleIDs); err != nil {
			return fmt.Errorf("purge stale vectors for %s: %w", path, err)
		}
	}

	ids := make([]string, 0, len(chunks))
	vectors := make([][]float32, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		ids = append(ids, c.ID)
		vectors = append(vectors, c.Embedding)
	}
	if len(ids) > 0 {
		if err := s.dense.Upsert(ctx, ids, vectors); err != nil {
			return fmt.Errorf("upsert vectors for %s: %w", path, err)
		}
	}

	return nil
}

// DeleteFile cascades to chunks (FK ON DELETE CASCADE), the FTS mirror (via
// trigger), and the dense index.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	var ids []string
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE file_path = ?`, path)
	if err != nil {
		return fmt.Errorf("list chunks for %s: %w", path, err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapBusy(err)
	}
	defer tx.Rollback()

	if _, err := sq.Delete("files").Where(sq.Eq{"path": path}).RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return wrapBusy(err)
	}

	if len(ids) > 0 {
		if err := s.dense.Delete(ctx, ids); err != nil {
			return fmt.Errorf("delete vectors for %s: %w", path, err)
		}
	}
	return nil
}

// Query returns the top-k chunks by dense similarity, predicate-filtered.
func (s *Store) Query(ctx context.Context, vector []float32, k int, pred Predicates) ([]Result, error) {
	scored, err := s.dense.Search(ctx, vector, k, pred)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, scored, pred)
}

// QueryLexical ranks chunks by the FTS5 index; bm25() is negated so higher
// is better, matching the dense index's score orientation. file_type/mtime
// predicates are pushed into the join against files (§4.6) rather than
// applied after LIMIT, so an excluded top-ranked chunk doesn't under-fill
// the top-k.
func (s *Store) QueryLexical(ctx context.Context, query string, k int, pred Predicates) ([]Result, error) {
	qb := sq.Select("chunks_fts.id").
		Column(sq.Alias(sq.Expr("bm25(chunks_fts)"), "bm25")).
		From("chunks_fts").
		Join("chunks ON chunks.id = chunks_fts.id").
		Join("files ON files.path = chunks.file_path").
		Where("chunks_fts MATCH ?", query).
		OrderBy("bm25(chunks_fts) ASC").
		Limit(uint64(k))
	qb = applyPredicateWhere(qb, pred)

	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lexical query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical query: %w", err)
	}
	defer rows.Close()

	var scored []ScoredChunk
	for rows.Next() {
		var id string
		var bm25 float64
		if err := rows.Scan(&id, &bm25); err != nil {
			return nil, err
		}
		// bm25() returns lower-is-better; invert into a positive score.
		scored = append(scored, ScoredChunk{ChunkID: id, Score: float32(-bm25)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.hydrate(ctx, scored, pred)
}

// hydrate joins scored chunk IDs back against chunk/file metadata. File
// type and mtime predicates are already pushed down into the SQL that
// produced scored (see exactIndex.Search and QueryLexical); only the
// min_score cutoff, which depends on the Go-side score conversion, is
// applied here.
func (s *Store) hydrate(ctx context.Context, scored []ScoredChunk, pred Predicates) ([]Result, error) {
	out := make([]Result, 0, len(scored))
	for _, sc := range scored {
		if sc.Score < pred.MinScore {
			continue
		}

		var r Result
		var mtime int64
		err := s.db.QueryRowContext(ctx, `
			SELECT chunks.file_path, chunks.text, chunks.kind, chunks.symbol,
			       chunks.heading_path, files.mtime
			FROM chunks JOIN files ON files.path = chunks.file_path
			WHERE chunks.id = ?`, sc.ChunkID).
			Scan(&r.FilePath, &r.Text, &r.Kind, &r.Symbol, &r.HeadingPath, &mtime)
		if err == sql.ErrNoRows {
			continue // chunk was deleted after the index search ran
		}
		if err != nil {
			return nil, fmt.Errorf("hydrate chunk %s: %w", sc.ChunkID, err)
		}

		r.ChunkID = sc.ChunkID
		r.Score = sc.Score
		r.Mtime = mtime
		out = append(out, r)
	}
	return out, nil
}

// applyPredicateWhere adds file_type/mtime WHERE clauses to qb, pushing
// Predicates down ahead of the ORDER BY/LIMIT that determine the top-k.
// file_ext is stored lowercased by the pipeline, so matching just lowercases
// the query-side types rather than wrapping the column in LOWER().
func applyPredicateWhere(qb sq.SelectBuilder, pred Predicates) sq.SelectBuilder {
	if len(pred.FileTypes) > 0 {
		types := make([]string, len(pred.FileTypes))
		for i, t := range pred.FileTypes {
			types[i] = strings.ToLower(t)
		}
		qb = qb.Where(sq.Eq{"files.file_ext": types})
	}
	if pred.MTimeFrom > 0 {
		qb = qb.Where(sq.GtOrEq{"files.mtime": pred.MTimeFrom})
	}
	if pred.MTimeTo > 0 {
		qb = qb.Where(sq.LtOrEq{"files.mtime": pred.MTimeTo})
	}
	return qb
}

// Stats reports file count, chunk count, and the on-disk size of the store
// file for the /status endpoint.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&st.FileCount); err != nil {
		return st, fmt.Errorf("count files: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.ChunkCount); err != nil {
		return st, fmt.Errorf("count chunks: %w", err)
	}
	if info, err := os.Stat(s.cfg.DBPath); err == nil {
		st.SizeBytes = info.Size()
	}
	return st, nil
}

func serializeEmbedding(emb []float32) []byte {
	if len(emb) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(emb))
	for i, f := range emb {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// wrapBusy maps a SQLITE_BUSY condition to the typed sentinel §7 names so
// callers can apply the jittered-backoff retry policy uniformly.
func wrapBusy(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
		return fmt.Errorf("%w: %v", contexterrors.ErrStoreBusy, err)
	}
	return err
}
