package sqlite

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// Query ranks records by cosine similarity to vector. Scores are cosine
// similarity rescaled to [0,1]. The scan is exhaustive; only ids and
// vectors are loaded until the top k are known.
func (s *Store) Query(ctx context.Context, vector []float32, k int, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}

	query := `SELECT id, embedding FROM chunks`
	var args []any
	if filter.SourceName != "" {
		query += ` WHERE source_name = ?`
		args = append(args, filter.SourceName)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query", err)
	}
	defer rows.Close()

	qnorm := norm(vector)
	type hit struct {
		id    string
		score float64
	}
	var hits []hit
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, storeErr("query", err)
		}
		v := bytesToFloat32Slice(blob)
		if len(v) != len(vector) {
			return nil, storeErr("query", fmt.Errorf("%w: chunk %s has %d dimensions, query has %d",
				domain.ErrDimensionMismatch, id, len(v), len(vector)))
		}
		score := (cosine(vector, v, qnorm) + 1) / 2
		if score < filter.MinScore {
			continue
		}
		hits = append(hits, hit{id: id, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	results := make([]domain.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		rec, err := s.GetByIdentifier(ctx, h.id)
		if err != nil {
			// Pruned between the scan and the load.
			if domain.IsStoreError(err) {
				return nil, err
			}
			continue
		}
		results = append(results, domain.ScoredChunk{Record: *rec, Score: h.score})
	}
	return results, nil
}

// KeywordSearch ranks records by FTS5 BM25 over title, headings and text.
// BM25 ranks are negative (lower is better); they are mapped to
// |rank|/(1+|rank|) so that better matches score higher within [0,1).
func (s *Store) KeywordSearch(ctx context.Context, text string, k int, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	match := ftsQuery(text)
	if k <= 0 || match == "" {
		return nil, nil
	}

	query := `
		SELECT ` + prefixed("c.", chunkColumns) + `, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?`
	args := []any{match}
	if filter.SourceName != "" {
		query += ` AND c.source_name = ?`
		args = append(args, filter.SourceName)
	}
	query += ` ORDER BY rank, c.id LIMIT ?`
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("keyword search", err)
	}
	defer rows.Close()

	var results []domain.ScoredChunk
	for rows.Next() {
		var rank float64
		rec, err := scanRecord(rankScanner{rows: rows, rank: &rank})
		if err != nil {
			return nil, storeErr("keyword search", err)
		}
		r := math.Abs(rank)
		score := r / (1 + r)
		if score < filter.MinScore {
			continue
		}
		results = append(results, domain.ScoredChunk{Record: *rec, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("keyword search", err)
	}
	return results, nil
}

// rankScanner appends the rank column to a chunk scan.
type rankScanner struct {
	rows interface{ Scan(...any) error }
	rank *float64
}

func (r rankScanner) Scan(dest ...any) error {
	return r.rows.Scan(append(dest, r.rank)...)
}

// ftsQuery turns free text into an FTS5 query of quoted terms joined by
// OR, so that user input can never be parsed as FTS5 syntax.
func ftsQuery(text string) string {
	terms := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(terms))
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if seen[t] {
			continue
		}
		seen[t] = true
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func prefixed(prefix, columns string) string {
	cols := strings.Split(columns, ", ")
	for i := range cols {
		cols[i] = prefix + cols[i]
	}
	return strings.Join(cols, ", ")
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(q, v []float32, qnorm float64) float64 {
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	vnorm := norm(v)
	if qnorm == 0 || vnorm == 0 {
		return 0
	}
	return dot / (qnorm * vnorm)
}
