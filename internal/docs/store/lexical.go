package store

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
)

// FallbackSnippetChars bounds the snippet used when no headline can be extracted.
const FallbackSnippetChars = 280

const headlineOptions = "StartSel=<mark>, StopSel=</mark>, MaxWords=35, MinWords=15, MaxFragments=2, FragmentDelimiter=\" … \""

// LexicalQuery configures a full-text search.
type LexicalQuery struct {
	TenantID string
	// Terms are normalized query tokens; every term must match.
	Terms []string
	// PrefixMinLength is the shortest term matched as a prefix. Shorter terms match exactly.
	PrefixMinLength int
	Limit           int
}

// LexicalResult holds ranked full-text hits plus the total number of matches.
type LexicalResult struct {
	Hits  []LexicalHit
	Total int
}

// LexicalSearch ranks the tenant's documents against the query terms.
func (s *Store) LexicalSearch(ctx context.Context, q LexicalQuery) (LexicalResult, error) {
	if len(q.Terms) == 0 || q.Limit <= 0 {
		return LexicalResult{}, nil
	}
	if isPostgresDialect(s.db) {
		return s.lexicalSearchPostgres(ctx, q)
	}
	return s.lexicalSearchInMemory(ctx, q)
}

// BuildTSQuery renders terms as a to_tsquery expression, adding :* to long terms.
func BuildTSQuery(terms []string, prefixMinLength int) string {
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		if term == "" {
			continue
		}
		if prefixMinLength > 0 && utf8.RuneCountInString(term) >= prefixMinLength {
			parts = append(parts, term+":*")
			continue
		}
		parts = append(parts, term)
	}
	return strings.Join(parts, " & ")
}

// lexicalSearchPostgres ranks by ts_rank_cd and counts matches in the same statement.
func (s *Store) lexicalSearchPostgres(ctx context.Context, q LexicalQuery) (LexicalResult, error) {
	statement := `WITH q AS (SELECT to_tsquery('simple', ?) AS query),
		ranked AS (
			SELECT d.id, d.title, d.content,
				ts_rank_cd(d.search_vector, q.query) AS score,
				COUNT(*) OVER() AS total
			FROM doc_documents d CROSS JOIN q
			WHERE d.tenant_id = ? AND d.search_vector @@ q.query
			ORDER BY score DESC, d.id ASC
			LIMIT ?
		)
		SELECT r.id AS document_id, r.title, r.score, r.total,
			COALESCE(
				NULLIF(ts_headline('simple', COALESCE(c.body, r.content, ''), q.query, '` + headlineOptions + `'), ''),
				LEFT(COALESCE(r.content, ''), ?)
			) AS snippet
		FROM ranked r CROSS JOIN q
		LEFT JOIN LATERAL (
			SELECT string_agg(dc.content, ' ' ORDER BY dc.idx) AS body
			FROM doc_chunks dc
			WHERE dc.document_id = r.id
		) c ON TRUE
		ORDER BY r.score DESC, r.id ASC`

	type row struct {
		DocumentID uuid.UUID
		Title      string
		Score      float64
		Total      int
		Snippet    string
	}
	var rows []row
	if err := s.db.WithContext(ctx).Raw(statement,
		BuildTSQuery(q.Terms, q.PrefixMinLength),
		q.TenantID,
		q.Limit,
		FallbackSnippetChars,
	).Scan(&rows).Error; err != nil {
		return LexicalResult{}, errors.Wrap(err, "query lexical candidates")
	}

	result := LexicalResult{Hits: make([]LexicalHit, 0, len(rows))}
	for _, r := range rows {
		result.Total = r.Total
		result.Hits = append(result.Hits, LexicalHit{
			DocumentID: r.DocumentID,
			Title:      r.Title,
			Score:      r.Score,
			Snippet:    strings.TrimSpace(r.Snippet),
		})
	}
	return result, nil
}

// lexicalSearchInMemory scores chunk text in-process for dialects without tsvector.
func (s *Store) lexicalSearchInMemory(ctx context.Context, q LexicalQuery) (LexicalResult, error) {
	var docs []Document
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", q.TenantID).
		Find(&docs).Error; err != nil {
		return LexicalResult{}, errors.Wrap(err, "load documents")
	}
	if len(docs) == 0 {
		return LexicalResult{}, nil
	}

	var chunks []DocumentChunk
	if err := s.db.WithContext(ctx).
		Select("document_id", "idx", "content").
		Where("tenant_id = ?", q.TenantID).
		Order("document_id ASC").
		Order("idx ASC").
		Find(&chunks).Error; err != nil {
		return LexicalResult{}, errors.Wrap(err, "load chunks")
	}
	bodies := make(map[uuid.UUID][]string, len(docs))
	for _, ch := range chunks {
		bodies[ch.DocumentID] = append(bodies[ch.DocumentID], ch.Content)
	}

	hits := make([]LexicalHit, 0, len(docs))
	for _, doc := range docs {
		body := strings.Join(bodies[doc.ID], " ")
		if body == "" {
			body = doc.Text()
		}
		score := termScore(q.Terms, words(body), q.PrefixMinLength)
		if score == 0 {
			continue
		}
		snippet := highlight(body, q.Terms, q.PrefixMinLength)
		if snippet == "" {
			snippet = truncateRunes(doc.Text(), FallbackSnippetChars)
		}
		hits = append(hits, LexicalHit{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Score:      score,
			Snippet:    strings.TrimSpace(snippet),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocumentID.String() < hits[j].DocumentID.String()
	})
	result := LexicalResult{Total: len(hits), Hits: hits}
	if len(result.Hits) > q.Limit {
		result.Hits = result.Hits[:q.Limit]
	}
	return result, nil
}

// termMatches reports whether a document word satisfies a query term.
func termMatches(term, word string, prefixMinLength int) bool {
	if word == term {
		return true
	}
	return prefixMinLength > 0 &&
		utf8.RuneCountInString(term) >= prefixMinLength &&
		strings.HasPrefix(word, term)
}

// termScore requires every term to match and scores by total occurrences
// normalized by document length.
func termScore(terms, docWords []string, prefixMinLength int) float64 {
	if len(terms) == 0 || len(docWords) == 0 {
		return 0
	}
	var hits int
	for _, term := range terms {
		var matched int
		for _, w := range docWords {
			if termMatches(term, w, prefixMinLength) {
				matched++
			}
		}
		if matched == 0 {
			return 0
		}
		hits += matched
	}
	return float64(hits) / float64(len(docWords))
}

// highlight wraps matching words of the first matching sentence-sized window in <mark> tags.
func highlight(body string, terms []string, prefixMinLength int) string {
	fields := strings.Fields(body)
	first := -1
	marked := make([]string, len(fields))
	for i, f := range fields {
		marked[i] = f
		for _, w := range words(f) {
			matched := false
			for _, term := range terms {
				if termMatches(term, w, prefixMinLength) {
					matched = true
					break
				}
			}
			if matched {
				marked[i] = "<mark>" + f + "</mark>"
				if first < 0 {
					first = i
				}
				break
			}
		}
	}
	if first < 0 {
		return ""
	}

	const window = 35
	start := first - 5
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(marked) {
		end = len(marked)
	}
	return strings.Join(marked[start:end], " ")
}

// truncateRunes cuts text to at most n runes without splitting a code point.
func truncateRunes(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}
