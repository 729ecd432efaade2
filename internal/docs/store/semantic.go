package store

import (
	"context"
	"sort"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// NearestChunks returns the best chunk per document among the k chunks closest
// to vector by cosine distance, ordered by ascending distance.
func (s *Store) NearestChunks(ctx context.Context, tenantID string, vector pgvector.Vector, k int) ([]SearchCandidate, error) {
	if k <= 0 || len(vector.Slice()) == 0 {
		return nil, nil
	}
	if isPostgresDialect(s.db) {
		return s.nearestChunksPostgres(ctx, tenantID, vector, k)
	}
	return s.nearestChunksInMemory(ctx, tenantID, vector, k)
}

// nearestChunksPostgres keeps the closest chunk per document with DISTINCT ON.
func (s *Store) nearestChunksPostgres(ctx context.Context, tenantID string, vector pgvector.Vector, k int) ([]SearchCandidate, error) {
	statement := `SELECT b.document_id, d.title, b.idx, b.content, b.distance,
			(SELECT COUNT(*) FROM doc_chunks cc WHERE cc.document_id = b.document_id) AS total_chunks
		FROM (
			SELECT DISTINCT ON (n.document_id) n.document_id, n.idx, n.content, n.distance
			FROM (
				SELECT c.document_id, c.idx, c.content, c.embedding <=> ? AS distance
				FROM doc_chunks c
				WHERE c.tenant_id = ?
				ORDER BY c.embedding <=> ?
				LIMIT ?
			) n
			ORDER BY n.document_id, n.distance ASC
		) b
		JOIN doc_documents d ON d.id = b.document_id AND d.tenant_id = ?
		ORDER BY b.distance ASC, b.document_id ASC`

	var rows []SearchCandidate
	if err := s.db.WithContext(ctx).Raw(statement, vector, tenantID, vector, k, tenantID).
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query nearest chunks")
	}
	return rows, nil
}

type chunkEmbeddingRow struct {
	DocumentID uuid.UUID
	Title      string
	Idx        int
	Content    string
	Embedding  []float32
}

// nearestChunksInMemory computes cosine distance in-process for dialects without pgvector.
func (s *Store) nearestChunksInMemory(ctx context.Context, tenantID string, vector pgvector.Vector, k int) ([]SearchCandidate, error) {
	rows, err := s.db.WithContext(ctx).Raw(`SELECT c.document_id, d.title, c.idx, c.content, c.embedding
		FROM doc_chunks c
		JOIN doc_documents d ON d.id = c.document_id AND d.tenant_id = c.tenant_id
		WHERE c.tenant_id = ?`, tenantID).Rows()
	if err != nil {
		return nil, errors.Wrap(err, "query chunk embeddings")
	}
	defer rows.Close()

	var loaded []chunkEmbeddingRow
	totals := map[uuid.UUID]int{}
	for rows.Next() {
		var row chunkEmbeddingRow
		var raw any
		if scanErr := rows.Scan(&row.DocumentID, &row.Title, &row.Idx, &row.Content, &raw); scanErr != nil {
			return nil, errors.Wrap(scanErr, "scan chunk embedding")
		}
		emb, err := decodeEmbedding(raw)
		if err != nil {
			return nil, errors.Wrap(err, "decode embedding")
		}
		row.Embedding = emb
		loaded = append(loaded, row)
		totals[row.DocumentID]++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate chunk embeddings")
	}

	query := vector.Slice()
	candidates := make([]SearchCandidate, 0, len(loaded))
	for _, row := range loaded {
		candidates = append(candidates, SearchCandidate{
			DocumentID:  row.DocumentID,
			Title:       row.Title,
			Idx:         row.Idx,
			Content:     row.Content,
			Distance:    cosineDistance(query, row.Embedding),
			TotalChunks: totals[row.DocumentID],
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	seen := make(map[uuid.UUID]struct{}, len(candidates))
	best := make([]SearchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		best = append(best, c)
	}
	return best, nil
}
