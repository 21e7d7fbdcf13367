package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/sercha-docs/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
)

// DBName is the database file name inside the data directory.
const DBName = "index.db"

// index_meta keys.
const (
	metaModel      = "embedding_model"
	metaDimensions = "embedding_dimensions"
)

var _ driven.VectorStore = (*Store)(nil)

// Store is the SQLite-backed vector store. Run history shares the same
// database and is exposed through RunStore.
type Store struct {
	db   *sql.DB
	path string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore opens (or creates) the index in dataDir.
// If dataDir is empty, defaults to ~/.sercha-docs/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".sercha-docs", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBName)

	// WAL lets queries proceed while a refresh is writing.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:    db,
		path:  dbPath,
		locks: make(map[string]*sync.Mutex),
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RunStore returns a RunStore backed by this store.
func (s *Store) RunStore() driven.RunStore {
	return &runStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Writes ====================

// Upsert inserts or replaces records in a single transaction.
func (s *Store) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("upsert", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	meta, err := readMeta(ctx, tx)
	if err != nil {
		return storeErr("upsert", err)
	}
	if stored, ok := meta[metaDimensions]; ok {
		dims, _ := strconv.Atoi(stored)
		if err := checkDimensions(records, dims); err != nil {
			return storeErr("upsert", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source_name, document_id, ordinal, title, heading_path,
			text, token_count, embedding, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_name = excluded.source_name,
			document_id = excluded.document_id,
			ordinal = excluded.ordinal,
			title = excluded.title,
			heading_path = excluded.heading_path,
			text = excluded.text,
			token_count = excluded.token_count,
			embedding = excluded.embedding,
			indexed_at = excluded.indexed_at
	`)
	if err != nil {
		return storeErr("upsert", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		if r.ID == "" {
			return storeErr("upsert", fmt.Errorf("%w: record %d has no id", domain.ErrInvalidInput, i))
		}
		headings, err := marshalHeadings(r.HeadingPath)
		if err != nil {
			return storeErr("upsert", err)
		}
		indexedAt := r.IndexedAt
		if indexedAt.IsZero() {
			indexedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.SourceName, r.DocumentID, r.Ordinal, r.Title, headings,
			r.Text, r.TokenCount, float32SliceToBytes(r.Vector), indexedAt.UnixNano(),
		); err != nil {
			return storeErr("upsert", fmt.Errorf("chunk %s: %w", r.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("upsert", err)
	}
	return nil
}

// Prune deletes the source's records whose identifiers are not in live.
// The live set is staged in a temporary table inside the transaction.
func (s *Store) Prune(ctx context.Context, sourceName string, live map[string]struct{}) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("prune", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS live_chunks (id TEXT PRIMARY KEY)`); err != nil {
		return 0, storeErr("prune", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM live_chunks`); err != nil {
		return 0, storeErr("prune", err)
	}

	if len(live) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO live_chunks (id) VALUES (?)`)
		if err != nil {
			return 0, storeErr("prune", err)
		}
		for id := range live {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				stmt.Close()
				return 0, storeErr("prune", err)
			}
		}
		stmt.Close()
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM chunks
		WHERE source_name = ? AND id NOT IN (SELECT id FROM live_chunks)
	`, sourceName)
	if err != nil {
		return 0, storeErr("prune", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("prune", err)
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE live_chunks`); err != nil {
		return 0, storeErr("prune", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storeErr("prune", err)
	}
	return int(deleted), nil
}

// Reset deletes every record and forgets the recorded embedding model,
// so the next run rebuilds the index from scratch.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("reset", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return storeErr("reset", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM index_meta`); err != nil {
		return storeErr("reset", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("reset", err)
	}
	return nil
}

// LockSource serialises writers of one source.
func (s *Store) LockSource(sourceName string) func() {
	s.mu.Lock()
	l, ok := s.locks[sourceName]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sourceName] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// EnsureDimensions records the embedding model and size on first use.
// Any later mismatch returns domain.ErrDimensionMismatch.
func (s *Store) EnsureDimensions(ctx context.Context, model string, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", domain.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("ensure dimensions", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	meta, err := readMeta(ctx, tx)
	if err != nil {
		return storeErr("ensure dimensions", err)
	}

	storedModel, hasModel := meta[metaModel]
	storedDims, hasDims := meta[metaDimensions]
	if hasModel && hasDims {
		dims, _ := strconv.Atoi(storedDims)
		if dims != dimensions || storedModel != model {
			return fmt.Errorf("%w: index was built with %s (%d dimensions), embedder is %s (%d dimensions); rebuild the index",
				domain.ErrDimensionMismatch, storedModel, dims, model, dimensions)
		}
		return nil
	}

	for key, value := range map[string]string{metaModel: model, metaDimensions: strconv.Itoa(dimensions)} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO index_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value); err != nil {
			return storeErr("ensure dimensions", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("ensure dimensions", err)
	}
	return nil
}

// ==================== Reads ====================

// GetByIdentifier returns one record or domain.ErrNotFound.
func (s *Store) GetByIdentifier(ctx context.Context, id string) (*domain.IndexRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get", err)
	}
	return rec, nil
}

// DocumentChunkIDs returns the stored identifiers of one document, in ordinal order.
func (s *Store) DocumentChunkIDs(ctx context.Context, sourceName, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM chunks WHERE source_name = ? AND document_id = ? ORDER BY ordinal
	`, sourceName, documentID)
	if err != nil {
		return nil, storeErr("document chunks", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("document chunks", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("document chunks", err)
	}
	return ids, nil
}

// Stats summarises the index.
func (s *Store) Stats(ctx context.Context) (*domain.IndexStats, error) {
	stats := &domain.IndexStats{ChunksBySource: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT source_name, COUNT(*) FROM chunks GROUP BY source_name`)
	if err != nil {
		return nil, storeErr("stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, storeErr("stats", err)
		}
		stats.ChunksBySource[name] = n
		stats.TotalChunks += n
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("stats", err)
	}

	meta, err := readMeta(ctx, s.db)
	if err != nil {
		return nil, storeErr("stats", err)
	}
	stats.Model = meta[metaModel]
	stats.Dimensions, _ = strconv.Atoi(meta[metaDimensions])

	return stats, nil
}

// IntegrityCheck runs SQLite's integrity check.
func (s *Store) IntegrityCheck(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return storeErr("integrity check", err)
	}
	if result != "ok" {
		return storeErr("integrity check", errors.New(result))
	}
	return nil
}

// ==================== Helper Functions ====================

const chunkColumns = `id, source_name, document_id, ordinal, title, heading_path, text, token_count, embedding, indexed_at`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readMeta(ctx context.Context, q querier) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans one chunks row selected with chunkColumns.
func scanRecord(row scanner) (*domain.IndexRecord, error) {
	var rec domain.IndexRecord
	var headings string
	var embedding []byte
	var indexedAt int64

	if err := row.Scan(&rec.ID, &rec.SourceName, &rec.DocumentID, &rec.Ordinal, &rec.Title,
		&headings, &rec.Text, &rec.TokenCount, &embedding, &indexedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	if err := json.Unmarshal([]byte(headings), &rec.HeadingPath); err != nil {
		return nil, fmt.Errorf("decoding heading path of %s: %w", rec.ID, err)
	}
	rec.Vector = bytesToFloat32Slice(embedding)
	rec.IndexedAt = time.Unix(0, indexedAt)
	return &rec, nil
}

func marshalHeadings(path []string) (string, error) {
	if len(path) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(path)
	if err != nil {
		return "", fmt.Errorf("encoding heading path: %w", err)
	}
	return string(b), nil
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// checkDimensions rejects the batch if any vector differs from dims.
func checkDimensions(records []domain.IndexRecord, dims int) error {
	for i := range records {
		if n := len(records[i].Vector); n != dims {
			return fmt.Errorf("%w: chunk %s has %d dimensions, index has %d",
				domain.ErrDimensionMismatch, records[i].ID, n, dims)
		}
	}
	return nil
}

func storeErr(op string, err error) error {
	var se *domain.StoreError
	if errors.As(err, &se) {
		return err
	}
	return &domain.StoreError{Op: op, Err: err}
}
