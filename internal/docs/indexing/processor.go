// Package indexing turns document content into chunk embeddings and keeps the
// per-document index state consistent with the current content.
package indexing

import (
	"context"
	"fmt"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/google/uuid"

	"github.com/Laisky/docspace/internal/docs/embedding"
	"github.com/Laisky/docspace/internal/docs/jobs"
	"github.com/Laisky/docspace/internal/docs/store"
	"github.com/Laisky/docspace/library/log"
)

// Reason explains why an attempt finished as indexed.
type Reason string

const (
	ReasonIndexed        Reason = "indexed"
	ReasonEmptyContent   Reason = "empty-content"
	ReasonAlreadyIndexed Reason = "already-indexed"
	ReasonNoChunks       Reason = "no-chunks"
)

// Outcome reports a successful indexing attempt.
type Outcome struct {
	Reason     Reason
	Checksum   string
	ChunkCount int
}

// Processor runs one indexing attempt per call.
type Processor struct {
	store    *store.Store
	embedder embedding.Embedder
	settings Settings
	logger   logSDK.Logger
}

// NewProcessor constructs a processor.
func NewProcessor(st *store.Store, embedder embedding.Embedder, settings Settings, logger logSDK.Logger) (*Processor, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		logger = log.Logger.Named("docs_indexing_processor")
	}
	return &Processor{
		store:    st,
		embedder: embedder,
		settings: settings.withDefaults(),
		logger:   logger,
	}, nil
}

// Process indexes the document's current content.
//
// The attempt's job row moves processing -> indexed on success. On failure
// every non-terminal job row of the document is marked failed and the error is
// returned so the queue can retry it. Errors that retrying cannot fix are
// returned as *Error with Retryable false.
func (p *Processor) Process(ctx context.Context, tenantID string, documentID uuid.UUID) (outcome Outcome, err error) {
	logger := log.FromContext(ctx, p.logger).With(
		zap.String("tenant_id", tenantID),
		zap.String("document_id", documentID.String()),
	)

	claimed, err := p.store.BeginIndexJob(ctx, tenantID, documentID)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "begin index job")
	}
	if !claimed {
		logger.Info("another attempt holds this document, continuing as duplicate delivery")
	}

	var checksum string
	defer func() {
		if err != nil {
			p.markFailed(ctx, logger, tenantID, documentID, checksum, err)
		}
	}()

	doc, err := p.store.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return Outcome{}, NewError(ErrCodeDocumentNotFound,
				fmt.Sprintf("document %s not found", documentID), false)
		}
		return Outcome{}, errors.Wrap(err, "load document")
	}

	content := doc.Text()
	checksum = Fingerprint(content)

	if strings.TrimSpace(content) == "" {
		if err = p.persist(ctx, tenantID, documentID, content, checksum, nil); err != nil {
			return Outcome{}, err
		}
		return p.finish(ctx, logger, tenantID, documentID, Outcome{Reason: ReasonEmptyContent, Checksum: checksum})
	}

	state, err := p.store.GetIndexState(ctx, tenantID, documentID)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "load index state")
	}
	if state != nil && state.LastChecksum == checksum {
		return p.finish(ctx, logger, tenantID, documentID, Outcome{
			Reason:     ReasonAlreadyIndexed,
			Checksum:   checksum,
			ChunkCount: state.ChunkCount,
		})
	}

	chunks := ChunkText(content, p.settings.ChunkSize, p.settings.ChunkOverlap)
	if len(chunks) == 0 {
		if err = p.persist(ctx, tenantID, documentID, content, checksum, nil); err != nil {
			return Outcome{}, err
		}
		return p.finish(ctx, logger, tenantID, documentID, Outcome{Reason: ReasonNoChunks, Checksum: checksum})
	}
	if p.settings.MaxChunks > 0 && len(chunks) > p.settings.MaxChunks {
		return Outcome{}, NewError(ErrCodeChunkLimitExceeded,
			fmt.Sprintf("chunk limit exceeded: document produced %d chunks, limit is %d", len(chunks), p.settings.MaxChunks), false)
	}

	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}
	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "embed chunks")
	}
	if len(vectors) != len(chunks) {
		return Outcome{}, NewError(ErrCodeEmbeddingMismatch,
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)), true)
	}

	rows := make([]store.Chunk, 0, len(chunks))
	for i, chunk := range chunks {
		rows = append(rows, store.Chunk{Idx: chunk.Idx, Content: chunk.Text, Embedding: vectors[i]})
	}
	if err = p.persist(ctx, tenantID, documentID, content, checksum, rows); err != nil {
		return Outcome{}, err
	}

	return p.finish(ctx, logger, tenantID, documentID, Outcome{
		Reason:     ReasonIndexed,
		Checksum:   checksum,
		ChunkCount: len(rows),
	})
}

// HandleJob adapts Process to the job pool.
func (p *Processor) HandleJob(ctx context.Context, payload jobs.Payload) error {
	job, ok := payload.(jobs.IndexDocument)
	if !ok {
		return NewError(ErrCodeInvalidPayload, fmt.Sprintf("unexpected payload %T", payload), false)
	}
	_, err := p.Process(ctx, job.TenantID, job.DocumentID)
	return err
}

func (p *Processor) persist(ctx context.Context, tenantID string, documentID uuid.UUID,
	content, checksum string, chunks []store.Chunk) error {
	if err := p.store.ReplaceChunks(ctx, store.ReplaceChunksInput{
		TenantID:      tenantID,
		DocumentID:    documentID,
		SourceContent: content,
		Checksum:      checksum,
		Chunks:        chunks,
	}); err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return NewError(ErrCodeDocumentNotFound,
				fmt.Sprintf("document %s not found", documentID), false)
		}
		return errors.Wrap(err, "replace chunks")
	}
	return nil
}

func (p *Processor) finish(ctx context.Context, logger logSDK.Logger, tenantID string,
	documentID uuid.UUID, outcome Outcome) (Outcome, error) {
	affected, err := p.store.TransitionIndexJob(ctx, tenantID, documentID,
		store.JobStatusProcessing, store.JobStatusIndexed, store.IndexJobPatch{
			Reason:            string(outcome.Reason),
			AttemptedChecksum: outcome.Checksum,
		})
	if err != nil {
		return Outcome{}, errors.Wrap(err, "mark index job indexed")
	}
	if affected == 0 {
		logger.Warn("no processing index job to mark indexed",
			zap.String("reason", string(outcome.Reason)))
	}

	logger.Info("document indexed",
		zap.String("reason", string(outcome.Reason)),
		zap.Int("chunks", outcome.ChunkCount))
	return outcome, nil
}

func (p *Processor) markFailed(ctx context.Context, logger logSDK.Logger, tenantID string,
	documentID uuid.UUID, checksum string, cause error) {
	permanent := IsPermanent(cause)
	_, err := p.store.FailIndexJobs(context.WithoutCancel(ctx), tenantID, documentID, cause.Error(),
		store.IndexJobPatch{AttemptedChecksum: checksum, Permanent: permanent})
	if err != nil {
		logger.Error("mark index job failed", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	logger.Warn("index attempt failed", zap.Error(cause), zap.Bool("permanent", permanent))
}
