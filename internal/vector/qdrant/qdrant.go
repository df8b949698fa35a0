// Package qdrant implements vector.Index against a Qdrant server over
// gRPC.
package qdrant

import (
	"context"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/quarrylabs/quarry/internal/logger"
	"github.com/quarrylabs/quarry/internal/retry"
	"github.com/quarrylabs/quarry/internal/vector"
)

const upsertBatchSize = 64

// Index is a Qdrant-backed vector index.
type Index struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
	policy      retry.Policy
}

var _ vector.Index = (*Index)(nil)

// New connects to a Qdrant server. addr is host:port of the gRPC
// endpoint (default port 6334).
func New(addr, collection string) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}

	policy := retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      true,
		Timeout:     30 * time.Second,
		Retryable:   retryableGRPC,
	}

	return &Index{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		collection:  collection,
		policy:      policy,
	}, nil
}

func retryableGRPC(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// mapErr converts transport failures into vector.UnavailableError so
// callers can distinguish "Qdrant is down" from bad requests.
func (q *Index) mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return &vector.UnavailableError{Backend: "qdrant", Err: err}
	}
	return err
}

// EnsureCollection creates the collection with cosine distance if it
// does not exist, and fails if it exists with a different dimension.
// Payload indexes back the filterable fields.
func (q *Index) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := q.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: q.collection,
	})
	if err != nil {
		return q.mapErr(err)
	}

	if exists.GetResult().GetExists() {
		info, err := q.collections.Get(ctx, &pb.GetCollectionInfoRequest{
			CollectionName: q.collection,
		})
		if err != nil {
			return q.mapErr(err)
		}
		size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != uint64(dimension) {
			return &vector.DimensionMismatchError{Want: int(size), Got: dimension}
		}
		return nil
	}

	logger.Info("creating collection %s (dim %d)", q.collection, dimension)
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return q.mapErr(err)
	}

	for field, ftype := range map[string]pb.FieldType{
		"source":    pb.FieldType_FieldTypeKeyword,
		"financial": pb.FieldType_FieldTypeBool,
		"years":     pb.FieldType_FieldTypeInteger,
	} {
		ftype := ftype
		_, err = q.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &ftype,
		})
		if err != nil {
			return q.mapErr(err)
		}
	}
	return nil
}

// Upsert writes entries in batches, overwriting existing point IDs.
func (q *Index) Upsert(ctx context.Context, entries []vector.Entry) error {
	wait := true
	for start := 0; start < len(entries); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(entries) {
			end = len(entries)
		}

		points := make([]*pb.PointStruct, 0, end-start)
		for _, e := range entries[start:end] {
			points = append(points, &pb.PointStruct{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: e.ID}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Vector}}},
				Payload: encodePayload(e.Payload),
			})
		}

		err := q.policy.Do(ctx, func(ctx context.Context) error {
			_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
				CollectionName: q.collection,
				Points:         points,
				Wait:           &wait,
			})
			return err
		})
		if err != nil {
			return q.mapErr(err)
		}
	}
	return nil
}

// Search runs filtered nearest-neighbor search.
func (q *Index) Search(ctx context.Context, query []float32, k int, filter vector.Filter) ([]vector.Result, error) {
	var resp *pb.SearchResponse
	err := q.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = q.points.Search(ctx, &pb.SearchPoints{
			CollectionName: q.collection,
			Vector:         query,
			Limit:          uint64(k),
			Filter:         encodeFilter(filter),
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		return err
	})
	if err != nil {
		return nil, q.mapErr(err)
	}

	results := make([]vector.Result, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		results = append(results, vector.Result{
			ID:      pt.GetId().GetUuid(),
			Score:   pt.GetScore(),
			Payload: decodePayload(pt.GetPayload()),
		})
	}
	return results, nil
}

// Scroll fetches entries by filter alone, without a query vector.
func (q *Index) Scroll(ctx context.Context, filter vector.Filter, limit int) ([]vector.Result, error) {
	lim := uint32(limit)
	var resp *pb.ScrollResponse
	err := q.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = q.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: q.collection,
			Filter:         encodeFilter(filter),
			Limit:          &lim,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		return err
	})
	if err != nil {
		return nil, q.mapErr(err)
	}

	results := make([]vector.Result, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		results = append(results, vector.Result{
			ID:      pt.GetId().GetUuid(),
			Payload: decodePayload(pt.GetPayload()),
		})
	}
	return results, nil
}

// Count returns the exact number of stored points.
func (q *Index) Count(ctx context.Context) (uint64, error) {
	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, q.mapErr(err)
	}
	return resp.GetResult().GetCount(), nil
}

// DeleteCollection drops the collection.
func (q *Index) DeleteCollection(ctx context.Context) error {
	_, err := q.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: q.collection,
	})
	return q.mapErr(err)
}

func (q *Index) Close() error {
	return q.conn.Close()
}

func encodePayload(p vector.Payload) map[string]*pb.Value {
	years := make([]*pb.Value, len(p.Years))
	for i, y := range p.Years {
		years[i] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(y)}}
	}
	return map[string]*pb.Value{
		"text":      {Kind: &pb.Value_StringValue{StringValue: p.Text}},
		"source":    {Kind: &pb.Value_StringValue{StringValue: p.Source}},
		"page":      {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.Page)}},
		"years":     {Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: years}}},
		"financial": {Kind: &pb.Value_BoolValue{BoolValue: p.Financial}},
		"ordinal":   {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.Ordinal)}},
	}
}

func decodePayload(values map[string]*pb.Value) vector.Payload {
	p := vector.Payload{
		Text:      values["text"].GetStringValue(),
		Source:    values["source"].GetStringValue(),
		Page:      int(values["page"].GetIntegerValue()),
		Financial: values["financial"].GetBoolValue(),
		Ordinal:   int(values["ordinal"].GetIntegerValue()),
	}
	for _, v := range values["years"].GetListValue().GetValues() {
		p.Years = append(p.Years, int(v.GetIntegerValue()))
	}
	return p
}

// encodeFilter translates a vector.Filter into Qdrant must-conditions.
// The year condition matches membership in the years list.
func encodeFilter(f vector.Filter) *pb.Filter {
	if f.Empty() {
		return nil
	}

	var must []*pb.Condition
	if f.Source != "" {
		must = append(must, fieldCondition("source", &pb.Match{
			MatchValue: &pb.Match_Keyword{Keyword: f.Source},
		}))
	}
	if f.Year != 0 {
		must = append(must, fieldCondition("years", &pb.Match{
			MatchValue: &pb.Match_Integer{Integer: int64(f.Year)},
		}))
	}
	if f.Financial != nil {
		must = append(must, fieldCondition("financial", &pb.Match{
			MatchValue: &pb.Match_Boolean{Boolean: *f.Financial},
		}))
	}
	return &pb.Filter{Must: must}
}

func fieldCondition(key string, match *pb.Match) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Match: match},
		},
	}
}
