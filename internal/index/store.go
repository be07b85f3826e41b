package index

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"omnichannel-rag-platform/models"
	"omnichannel-rag-platform/utils"
)

// Store persists chunks, document records and tenant policies in MongoDB.
// Chunk text is compressed at rest; embeddings are stored uncompressed so
// hydration stays cheap. Every query filters on tenant_id.
type Store struct {
	chunks    *mongo.Collection
	documents *mongo.Collection
	policies  *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		chunks:    db.Collection("chunks"),
		documents: db.Collection("documents"),
		policies:  db.Collection("tenant_policies"),
	}
}

type storedChunk struct {
	ChunkID        string                     `bson:"chunk_id"`
	DocumentID     string                     `bson:"document_id"`
	DocumentTitle  string                     `bson:"document_title"`
	TenantID       string                     `bson:"tenant_id"`
	TextCompressed []byte                     `bson:"text_compressed"`
	Compression    utils.CompressionAlgorithm `bson:"compression"`
	SequenceIndex  int                        `bson:"sequence_index"`
	Embedding      []float32                  `bson:"embedding,omitempty"`
	Keywords       []string                   `bson:"keywords,omitempty"`
	CreatedAt      time.Time                  `bson:"created_at"`
}

func toStored(c models.Chunk) (storedChunk, error) {
	compressed, algo, err := utils.CompressText(c.Text)
	if err != nil {
		return storedChunk{}, fmt.Errorf("compress chunk %s: %w", c.ID, err)
	}
	return storedChunk{
		ChunkID:        c.ID,
		DocumentID:     c.DocumentID,
		DocumentTitle:  c.DocumentTitle,
		TenantID:       c.TenantID,
		TextCompressed: compressed,
		Compression:    algo,
		SequenceIndex:  c.SequenceIndex,
		Embedding:      c.Embedding,
		Keywords:       c.Keywords,
		CreatedAt:      c.CreatedAt,
	}, nil
}

func (sc storedChunk) toModel() (models.Chunk, error) {
	text, err := utils.DecompressText(sc.TextCompressed, sc.Compression)
	if err != nil {
		return models.Chunk{}, fmt.Errorf("decompress chunk %s: %w", sc.ChunkID, err)
	}
	return models.Chunk{
		ID:            sc.ChunkID,
		DocumentID:    sc.DocumentID,
		DocumentTitle: sc.DocumentTitle,
		TenantID:      sc.TenantID,
		Text:          text,
		SequenceIndex: sc.SequenceIndex,
		Embedding:     sc.Embedding,
		Keywords:      sc.Keywords,
		CreatedAt:     sc.CreatedAt,
	}, nil
}

// ReplaceChunks swaps one document's persisted chunks. Delete-then-insert
// keeps re-ingestion idempotent; callers serialize per tenant so no two
// writers race on the same document.
func (s *Store) ReplaceChunks(ctx context.Context, tenantID, documentID string, chunks []models.Chunk) error {
	for _, c := range chunks {
		if c.TenantID != tenantID {
			return fmt.Errorf("%w: chunk %s belongs to tenant %s, not %s",
				models.ErrTenantIsolation, c.ID, c.TenantID, tenantID)
		}
	}

	if _, err := s.chunks.DeleteMany(ctx, bson.M{"tenant_id": tenantID, "document_id": documentID}); err != nil {
		return fmt.Errorf("delete chunks for document %s: %w", documentID, err)
	}

	if len(chunks) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(chunks))
	for _, c := range chunks {
		stored, err := toStored(c)
		if err != nil {
			return err
		}
		docs = append(docs, stored)
	}

	if _, err := s.chunks.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert chunks for document %s: %w", documentID, err)
	}
	return nil
}

// ChunksForTenant loads every chunk for one tenant, used to hydrate the
// in-memory index at startup and after ingestion.
func (s *Store) ChunksForTenant(ctx context.Context, tenantID string) ([]models.Chunk, error) {
	cursor, err := s.chunks.Find(ctx, bson.M{"tenant_id": tenantID},
		options.Find().SetSort(bson.D{{Key: "document_id", Value: 1}, {Key: "sequence_index", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find chunks for tenant %s: %w", tenantID, err)
	}
	defer cursor.Close(ctx)

	var chunks []models.Chunk
	for cursor.Next(ctx) {
		var sc storedChunk
		if err := cursor.Decode(&sc); err != nil {
			return nil, err
		}
		chunk, err := sc.toModel()
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, cursor.Err()
}

// ListTenants returns every tenant that has persisted chunks.
func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	raw, err := s.chunks.Distinct(ctx, "tenant_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	tenants := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			tenants = append(tenants, id)
		}
	}
	return tenants, nil
}

// UpsertDocument creates or updates a document record.
func (s *Store) UpsertDocument(ctx context.Context, doc models.Document) error {
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}

	_, err := s.documents.UpdateOne(ctx,
		bson.M{"tenant_id": doc.TenantID, "document_id": doc.ID},
		bson.M{
			"$set": bson.M{
				"title":       doc.Title,
				"status":      doc.Status,
				"chunk_count": doc.ChunkCount,
				"error":       doc.Error,
				"updated_at":  doc.UpdatedAt,
			},
			"$setOnInsert": bson.M{
				"tenant_id":   doc.TenantID,
				"document_id": doc.ID,
				"created_at":  doc.CreatedAt,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// SetDocumentStatus transitions a document's lifecycle state.
func (s *Store) SetDocumentStatus(ctx context.Context, tenantID, documentID, status string, chunkCount int, errMsg string) error {
	res, err := s.documents.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "document_id": documentID},
		bson.M{"$set": bson.M{
			"status":      status,
			"chunk_count": chunkCount,
			"error":       errMsg,
			"updated_at":  time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("update document %s status: %w", documentID, err)
	}
	if res.MatchedCount == 0 {
		return models.ErrDocumentNotFound
	}
	return nil
}

// GetDocument fetches one document record, scoped to the tenant.
func (s *Store) GetDocument(ctx context.Context, tenantID, documentID string) (*models.Document, error) {
	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"tenant_id": tenantID, "document_id": documentID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document %s: %w", documentID, err)
	}
	return &doc, nil
}

// ListDocuments returns all document records for a tenant, newest first.
func (s *Store) ListDocuments(ctx context.Context, tenantID string) ([]models.Document, error) {
	cursor, err := s.documents.Find(ctx, bson.M{"tenant_id": tenantID},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list documents for tenant %s: %w", tenantID, err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteDocument removes the document record and its chunks.
func (s *Store) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	res, err := s.documents.DeleteOne(ctx, bson.M{"tenant_id": tenantID, "document_id": documentID})
	if err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	if res.DeletedCount == 0 {
		return models.ErrDocumentNotFound
	}

	if _, err := s.chunks.DeleteMany(ctx, bson.M{"tenant_id": tenantID, "document_id": documentID}); err != nil {
		return fmt.Errorf("delete chunks for document %s: %w", documentID, err)
	}
	return nil
}

// TenantPolicy returns the tenant's threshold overrides, or nil when the
// tenant runs on platform defaults.
func (s *Store) TenantPolicy(ctx context.Context, tenantID string) (*models.TenantPolicy, error) {
	var policy models.TenantPolicy
	err := s.policies.FindOne(ctx, bson.M{"tenant_id": tenantID}).Decode(&policy)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("get policy for tenant %s: %w", tenantID, err)
	}
	return &policy, nil
}

// UpsertTenantPolicy stores per-tenant threshold overrides.
func (s *Store) UpsertTenantPolicy(ctx context.Context, policy models.TenantPolicy) error {
	_, err := s.policies.UpdateOne(ctx,
		bson.M{"tenant_id": policy.TenantID},
		bson.M{"$set": bson.M{
			"high_threshold": policy.HighThreshold,
			"low_threshold":  policy.LowThreshold,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert policy for tenant %s: %w", policy.TenantID, err)
	}
	return nil
}
