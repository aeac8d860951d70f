package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	chromaemb "github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/faizmisman/dosm-faq-chatbot/internal/dataset"
	"github.com/faizmisman/dosm-faq-chatbot/internal/embedding"
	"go.uber.org/zap"
)

const chromaBatchSize = 100

// ChromaIndex queries a Chroma collection. Chroma reports L2 distance d;
// the raw score is 1 - d/√2, which is 1 for identical unit vectors and
// may go negative for distant ones.
type ChromaIndex struct {
	client     chromago.Client
	collection chromago.Collection
	embedder   embedding.Embedder
	size       int
	logger     *zap.Logger
}

// ConnectChroma opens an HTTP client and gets or creates the named collection.
func ConnectChroma(ctx context.Context, baseURL, name string) (chromago.Client, chromago.Collection, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(ctx, name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "dataset row chunks"),
			),
		),
	)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to get or create chroma collection %s: %w", name, err)
	}
	return client, collection, nil
}

// OpenChroma attaches to a populated collection.
func OpenChroma(ctx context.Context, client chromago.Client, collection chromago.Collection, embedder embedding.Embedder, logger *zap.Logger) (*ChromaIndex, error) {
	count, err := collection.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chroma collection: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: chroma collection %s has no documents", ErrEmpty, collection.Name())
	}
	return &ChromaIndex{client: client, collection: collection, embedder: embedder, size: count, logger: logger}, nil
}

// Kind returns KindChroma.
func (c *ChromaIndex) Kind() Kind { return KindChroma }

// Len returns the document count observed when the index was opened.
func (c *ChromaIndex) Len() int { return c.size }

// Close releases the underlying client when the index owns it.
func (c *ChromaIndex) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Search embeds the query and asks Chroma for the nearest documents.
func (c *ChromaIndex) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	if k <= 0 {
		return []Candidate{}, nil
	}

	vec, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := c.collection.Query(ctx,
		chromago.WithQueryEmbeddings(chromaemb.NewEmbeddingFromFloat32(vec)),
		chromago.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chroma: %w", err)
	}

	return rankTop(candidatesFromChroma(collectChromaHits(results, c.logger)), k), nil
}

type chromaHit struct {
	ID       string
	Document string
	Metadata map[string]interface{}
	Distance float64
}

func collectChromaHits(results chromago.QueryResult, logger *zap.Logger) []chromaHit {
	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 {
		return nil
	}
	docGroups := results.GetDocumentsGroups()
	metaGroups := results.GetMetadatasGroups()
	distGroups := results.GetDistancesGroups()

	hits := make([]chromaHit, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		hit := chromaHit{ID: string(id), Distance: math.NaN()}
		if len(docGroups) > 0 && i < len(docGroups[0]) && docGroups[0][i] != nil {
			hit.Document = docGroups[0][i].ContentString()
		}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			hit.Distance = float64(distGroups[0][i])
		}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) && metaGroups[0][i] != nil {
			// DocumentMetadata exposes no map accessor; round-trip through JSON.
			data, err := json.Marshal(metaGroups[0][i])
			if err == nil {
				err = json.Unmarshal(data, &hit.Metadata)
			}
			if err != nil {
				logger.Warn("could not decode chroma metadata", zap.String("id", hit.ID), zap.Error(err))
			}
		}
		hits = append(hits, hit)
	}
	return hits
}

func candidatesFromChroma(hits []chromaHit) []Candidate {
	cands := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		if h.Document == "" {
			continue
		}
		chunk := dataset.Chunk{ID: h.ID, Content: h.Document}
		start, okStart := metaInt(h.Metadata, "start_row")
		end, okEnd := metaInt(h.Metadata, "end_row")
		if okStart && okEnd {
			chunk.StartRow, chunk.EndRow = start, end
		} else if s, e, ok := dataset.ParseChunkID(h.ID); ok {
			chunk.StartRow, chunk.EndRow = s, e-1
		}
		cands = append(cands, Candidate{Chunk: chunk, RawScore: l2ToRelevance(h.Distance)})
	}
	return cands
}

// l2ToRelevance maps L2 distance between unit vectors onto a similarity.
func l2ToRelevance(d float64) float64 {
	return 1 - d/math.Sqrt2
}

func metaInt(meta map[string]interface{}, key string) (int, bool) {
	switch v := meta[key].(type) {
	case float64:
		return int(v), true
	case int64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// ChromaBuilder upserts embedded chunks into a collection.
type ChromaBuilder struct {
	Client      chromago.Client
	Collection  chromago.Collection
	Embedder    embedding.Embedder
	ExpectedDim int
	Source      string
	Logger      *zap.Logger
}

// Build upserts every chunk by id, deletes documents whose ids are no
// longer produced by the dataset and returns an index over the collection.
func (b *ChromaBuilder) Build(ctx context.Context, chunks []dataset.Chunk) (Index, error) {
	embedded, err := EmbedChunks(ctx, b.Embedder, chunks, b.ExpectedDim)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(embedded); start += chromaBatchSize {
		end := start + chromaBatchSize
		if end > len(embedded) {
			end = len(embedded)
		}
		if err := b.upsert(ctx, embedded[start:end]); err != nil {
			return nil, err
		}
	}

	pruned, err := b.pruneStale(ctx, embedded)
	if err != nil {
		return nil, err
	}

	b.Logger.Info("chroma index built",
		zap.String("collection", b.Collection.Name()),
		zap.Int("chunks", len(embedded)),
		zap.Int("pruned", pruned))
	// the builder's owner keeps the client; Close on this index is a no-op
	return &ChromaIndex{collection: b.Collection, embedder: b.Embedder, size: len(embedded), logger: b.Logger}, nil
}

func (b *ChromaBuilder) upsert(ctx context.Context, batch []EmbeddedChunk) error {
	ids := make([]chromago.DocumentID, len(batch))
	texts := make([]string, len(batch))
	vectors := make([]chromaemb.Embedding, len(batch))
	metas := make([]chromago.DocumentMetadata, len(batch))

	for i, c := range batch {
		ids[i] = chromago.DocumentID(c.ID)
		texts[i] = c.Content
		vectors[i] = chromaemb.NewEmbeddingFromFloat32(c.Embedding)
		metas[i] = chromago.NewDocumentMetadata(
			chromago.NewIntAttribute("start_row", int64(c.StartRow)),
			chromago.NewIntAttribute("end_row", int64(c.EndRow)),
			chromago.NewStringAttribute("source", b.Source),
		)
	}

	err := b.Collection.Upsert(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(vectors...),
		chromago.WithMetadatas(metas...),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %d chunks into chroma: %w", len(batch), err)
	}
	return nil
}

// pruneStale deletes every document whose id is not in keep. Ids are
// listed in full before deleting so paging is not shifted by the deletes.
func (b *ChromaBuilder) pruneStale(ctx context.Context, keep []EmbeddedChunk) (int, error) {
	live := make(map[chromago.DocumentID]struct{}, len(keep))
	for _, c := range keep {
		live[chromago.DocumentID(c.ID)] = struct{}{}
	}

	var stale []chromago.DocumentID
	for offset := 0; ; offset += chromaBatchSize {
		page, err := b.Collection.Get(ctx,
			chromago.WithIncludeGet(chromago.IncludeMetadatas),
			chromago.WithLimitGet(chromaBatchSize),
			chromago.WithOffsetGet(offset),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to list chroma documents: %w", err)
		}
		ids := page.GetIDs()
		for _, id := range ids {
			if _, ok := live[id]; !ok {
				stale = append(stale, id)
			}
		}
		if len(ids) < chromaBatchSize {
			break
		}
	}

	for start := 0; start < len(stale); start += chromaBatchSize {
		end := start + chromaBatchSize
		if end > len(stale) {
			end = len(stale)
		}
		if err := b.Collection.Delete(ctx, chromago.WithIDsDelete(stale[start:end]...)); err != nil {
			return 0, fmt.Errorf("failed to delete %d stale chunks from chroma: %w", end-start, err)
		}
	}
	return len(stale), nil
}
