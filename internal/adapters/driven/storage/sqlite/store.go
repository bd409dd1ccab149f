package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
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

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/docrag/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
)

// dbFile is the database file name inside the data directory.
const dbFile = "docrag.db"

// Store is a SQLite-backed chunk graph. It hands out the chunk store and
// the built-in vector index, which share one connection pool.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore creates a new SQLite store in the specified data directory.
// If dataDir is empty, defaults to ~/.docrag/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docrag", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := newStoreFromDB(db)
	s.path = dbPath

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// newStoreFromDB wraps an open database without running migrations.
func newStoreFromDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ChunkStore returns a ChunkStore interface backed by this store.
func (s *Store) ChunkStore() driven.ChunkStore {
	return &chunkStore{store: s}
}

// VectorIndex returns the built-in vector index with the given name.
// It searches the embeddings persisted alongside the chunks.
func (s *Store) VectorIndex(name string) driven.VectorIndex {
	return &vectorIndex{store: s, name: name}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
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
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Chunk Store ====================

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

// SaveDocument writes the document, its chunks and the NEXT edges in one
// transaction. Re-saving a document replaces its rows.
func (s *chunkStore) SaveDocument(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error {
	if doc.ID == "" {
		return domain.NewValidationError("document_id", "is required")
	}
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = s.store.now().UTC()
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, filename, file_type, ingested_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			file_type = excluded.file_type,
			ingested_at = excluded.ingested_at
	`, doc.ID, doc.Filename, string(doc.FileType), doc.IngestedAt); err != nil {
		return classify("saving document", err)
	}

	for _, chunk := range chunks {
		if chunk.DocumentID != doc.ID {
			return fmt.Errorf("%w: chunk %s belongs to document %s", domain.ErrInvalidInput, chunk.ID, chunk.DocumentID)
		}
		createdAt := chunk.CreatedAt
		if createdAt.IsZero() {
			createdAt = doc.IngestedAt
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, position, content, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				position = excluded.position,
				content = excluded.content,
				embedding = excluded.embedding
		`, chunk.ID, chunk.DocumentID, chunk.Index, chunk.Text,
			float32SliceToBytes(chunk.Embedding), createdAt); err != nil {
			return classify("saving chunk", err)
		}
	}

	ordered := make([]domain.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	for i := 1; i < len(ordered); i++ {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunk_next (from_id, to_id) VALUES (?, ?)
			ON CONFLICT(from_id) DO UPDATE SET to_id = excluded.to_id
		`, ordered[i-1].ID, ordered[i].ID); err != nil {
			return classify("linking chunks", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("committing transaction", err)
	}
	return nil
}

// GetChunks returns chunks by ID in the order requested. Missing IDs are skipped.
func (s *chunkStore) GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return []domain.Chunk{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, position, content, embedding, created_at
		FROM chunks WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, classify("querying chunks", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Chunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[chunk.ID] = *chunk
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	chunks := make([]domain.Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// NextChunk follows the NEXT edge from a chunk.
func (s *chunkStore) NextChunk(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT c.id, c.document_id, c.position, c.content, c.embedding, c.created_at
		FROM chunk_next n JOIN chunks c ON c.id = n.to_id
		WHERE n.from_id = ?
	`, chunkID)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return chunk, err
}

// SearchText matches chunks containing any query term and ranks them by
// term overlap. Ties keep document and chunk order.
func (s *chunkStore) SearchText(ctx context.Context, query string, limit int) ([]driven.TextHit, error) {
	terms := tokenSet(query)
	if len(terms) == 0 || limit <= 0 {
		return []driven.TextHit{}, nil
	}

	conds := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms))
	for _, term := range sortedTerms(terms) {
		conds = append(conds, `lower(content) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(term)+"%")
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, position, content, embedding, created_at
		FROM chunks WHERE `+strings.Join(conds, " OR ")+`
		ORDER BY document_id, position
	`, args...)
	if err != nil {
		return nil, classify("searching chunks", err)
	}
	defer rows.Close()

	var hits []driven.TextHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		score := ochiai(terms, chunk.Text)
		if score == 0 {
			continue
		}
		chunk.Embedding = nil
		hits = append(hits, driven.TextHit{Chunk: *chunk, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	if hits == nil {
		hits = []driven.TextHit{}
	}
	return hits, nil
}

// CountChunks returns the number of persisted chunks.
func (s *chunkStore) CountChunks(ctx context.Context) (int, error) {
	var count int
	if err := s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, classify("counting chunks", err)
	}
	return count, nil
}

// CountDocuments returns the number of persisted documents.
func (s *chunkStore) CountDocuments(ctx context.Context) (int, error) {
	var count int
	if err := s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		return 0, classify("counting documents", err)
	}
	return count, nil
}

// ListDocuments returns every document with its chunk count, newest first.
func (s *chunkStore) ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT d.id, d.filename, d.file_type, d.ingested_at, COUNT(c.id)
		FROM documents d LEFT JOIN chunks c ON c.document_id = d.id
		GROUP BY d.id
		ORDER BY d.ingested_at DESC, d.id
	`)
	if err != nil {
		return nil, classify("listing documents", err)
	}
	defer rows.Close()

	docs := []domain.DocumentInfo{}
	for rows.Next() {
		var info domain.DocumentInfo
		var fileType string
		if err := rows.Scan(&info.ID, &info.Filename, &fileType, &info.IngestedAt, &info.ChunkCount); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		info.FileType = domain.FileType(fileType)
		docs = append(docs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// ListChunks returns a document's chunks in position order.
func (s *chunkStore) ListChunks(ctx context.Context, documentID string, limit int) ([]domain.Chunk, error) {
	if err := s.requireDocument(ctx, s.store.db, documentID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, position, content, embedding, created_at
		FROM chunks WHERE document_id = ?
		ORDER BY position
		LIMIT ?
	`, documentID, limit)
	if err != nil {
		return nil, classify("listing chunks", err)
	}
	defer rows.Close()

	chunks := []domain.Chunk{}
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// DeleteDocument removes a document. Chunks and edges go with it through
// ON DELETE CASCADE.
func (s *chunkStore) DeleteDocument(ctx context.Context, documentID string) ([]string, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.requireDocument(ctx, tx, documentID); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, "SELECT id FROM chunks WHERE document_id = ? ORDER BY position", documentID)
	if err != nil {
		return nil, classify("listing chunk ids", err)
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk ids: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", documentID); err != nil {
		return nil, classify("deleting document", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify("committing transaction", err)
	}
	return ids, nil
}

// Clear removes every document, chunk and edge.
func (s *chunkStore) Clear(ctx context.Context) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{"DELETE FROM chunk_next", "DELETE FROM chunks", "DELETE FROM documents"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classify("clearing store", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify("committing transaction", err)
	}
	return nil
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *chunkStore) requireDocument(ctx context.Context, q queryRower, documentID string) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", documentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	if err != nil {
		return classify("looking up document", err)
	}
	return nil
}

// Ping checks the database is reachable.
func (s *chunkStore) Ping(ctx context.Context) error {
	if err := s.store.db.PingContext(ctx); err != nil {
		return &domain.StoreUnavailableError{Op: "ping", Err: err}
	}
	return nil
}

// Close closes the underlying database.
func (s *chunkStore) Close() error {
	return s.store.Close()
}

// ==================== Helper Functions ====================

// classify wraps err, marking connection-level failures as store outages.
func classify(op string, err error) error {
	if isUnavailable(err) {
		return &domain.StoreUnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "unable to open database") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "disk i/o error")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanChunk scans one chunk row.
func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var embeddingBlob []byte
	var createdAt sql.NullTime

	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Text,
		&embeddingBlob, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.Embedding = bytesToFloat32Slice(embeddingBlob)
	if createdAt.Valid {
		chunk.CreatedAt = createdAt.Time
	}
	return &chunk, nil
}

// escapeLike escapes LIKE wildcards with a backslash.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
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
