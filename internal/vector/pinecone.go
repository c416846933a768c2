// Package vector stores and queries learning example embeddings in a Pinecone index.
package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxDeleteBatch is the most IDs Pinecone accepts in one delete request.
const maxDeleteBatch = 1000

// Vector is a single record of the index.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]string
}

// Match is a query hit.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Options configures an Index.
type Options struct {
	APIKey    string
	Host      string // Index host, with or without scheme, e.g. my-index-abc123.svc.us-east1-gcp.pinecone.io
	Namespace string
}

// dataPlane is the subset of *pinecone.IndexConnection the index uses.
type dataPlane interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	DeleteVectorsById(ctx context.Context, ids []string) error
	Close() error
}

// Index is a client for one Pinecone index's data plane.
type Index struct {
	conn dataPlane
}

// NewIndex connects to the index at opts.Host.
func NewIndex(opts Options) (*Index, error) {
	host := strings.TrimPrefix(strings.TrimPrefix(opts.Host, "https://"), "http://")
	host = strings.TrimRight(host, "/")
	if host == "" {
		return nil, errors.New("pinecone: index host is required")
	}
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: opts.APIKey})
	if err != nil {
		return nil, fmt.Errorf("pinecone: create client: %w", err)
	}
	conn, err := pc.Index(pinecone.NewIndexConnParams{Host: host, Namespace: opts.Namespace})
	if err != nil {
		return nil, fmt.Errorf("pinecone: connect to %s: %w", host, err)
	}
	return &Index{conn: conn}, nil
}

// Close releases the index connection.
func (i *Index) Close() error {
	return i.conn.Close()
}

// Upsert writes vectors, replacing any with the same ID.
func (i *Index) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	records := make([]*pinecone.Vector, 0, len(vectors))
	for _, v := range vectors {
		metadata, err := structpb.NewStruct(toAnyMap(v.Metadata))
		if err != nil {
			return fmt.Errorf("pinecone: metadata of %s: %w", v.ID, err)
		}
		records = append(records, &pinecone.Vector{Id: v.ID, Values: v.Values, Metadata: metadata})
	}
	if _, err := i.conn.UpsertVectors(ctx, records); err != nil {
		return fmt.Errorf("pinecone: upsert: %w", err)
	}
	return nil
}

// Query returns the topK nearest vectors whose clientId metadata equals clientID.
func (i *Index) Query(ctx context.Context, clientID string, values []float32, topK int) ([]Match, error) {
	filter, err := structpb.NewStruct(map[string]any{
		"clientId": map[string]any{"$eq": clientID},
	})
	if err != nil {
		return nil, err
	}
	resp, err := i.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          values,
		TopK:            uint32(topK),
		MetadataFilter:  filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone: query: %w", err)
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		matches = append(matches, Match{
			ID:       m.Vector.Id,
			Score:    float64(m.Score),
			Metadata: fromStruct(m.Vector.Metadata),
		})
	}
	return matches, nil
}

// Delete removes vectors by ID, in batches Pinecone accepts.
func (i *Index) Delete(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(ids))
		if err := i.conn.DeleteVectorsById(ctx, ids[start:end]); err != nil {
			return fmt.Errorf("pinecone: delete %d-%d of %d: %w", start, end, len(ids), err)
		}
	}
	return nil
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func fromStruct(s *structpb.Struct) map[string]string {
	if s == nil || len(s.GetFields()) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.GetFields()))
	for k, v := range s.GetFields() {
		out[k] = v.GetStringValue()
	}
	return out
}
