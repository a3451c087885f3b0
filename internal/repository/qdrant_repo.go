package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	defaultVectorDimension = 1536
)

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool
	VectorDimension int
}

// apiKeyInterceptor adds the API key to every unary call.
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository stores one vector per photo for similarity lookups.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// Collection returns the collection name.
func (r *QdrantRepository) Collection() string {
	return r.collectionName
}

// EnsureCollection creates the collection if it doesn't exist
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(r.vectorDimension) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if size := vectors.GetParams().GetSize(); size > 0 {
		return size, true
	}
	for _, vectorParams := range vectors.GetParamsMap().GetMap() {
		if size := vectorParams.GetSize(); size > 0 {
			return size, true
		}
	}
	return 0, false
}

// PointID derives a stable point UUID from a photo ID and collection name, so re-indexing a
// photo overwrites its previous vector.
func PointID(photoID, collection string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(collection+":"+photoID)).String()
}

// PhotoPayload is stored with each vector.
type PhotoPayload struct {
	PhotoID     string   `json:"photo_id"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Objects     []string `json:"objects"`
}

// Upsert inserts or replaces the vector of a photo.
func (r *QdrantRepository) Upsert(ctx context.Context, vector []float32, payload *PhotoPayload) error {
	if len(vector) != r.vectorDimension {
		return fmt.Errorf("vector has dimension %d, expected %d", len(vector), r.vectorDimension)
	}

	points := []*pb.PointStruct{
		{
			Id: pointIDValue(PointID(payload.PhotoID, r.collectionName)),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vector},
				},
			},
			Payload: map[string]*pb.Value{
				"photo_id":    {Kind: &pb.Value_StringValue{StringValue: payload.PhotoID}},
				"description": {Kind: &pb.Value_StringValue{StringValue: payload.Description}},
				"tags":        stringsToValue(payload.Tags),
				"objects":     stringsToValue(payload.Objects),
			},
		},
	}

	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func pointIDValue(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func stringsToValue(items []string) *pb.Value {
	values := make([]*pb.Value, len(items))
	for i, item := range items {
		values[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: item}}
	}
	return &pb.Value{
		Kind: &pb.Value_ListValue{
			ListValue: &pb.ListValue{Values: values},
		},
	}
}

// SimilarResult is a photo returned by a similarity query.
type SimilarResult struct {
	PhotoID string
	Score   float32
}

// Similar returns photos whose vectors are closest to the vector stored for photoID.
// The photo itself is never part of the result.
func (r *QdrantRepository) Similar(ctx context.Context, photoID string, limit int) ([]SimilarResult, error) {
	resp, err := r.pointsClient.Recommend(ctx, &pb.RecommendPoints{
		CollectionName: r.collectionName,
		Positive:       []*pb.PointId{pointIDValue(PointID(photoID, r.collectionName))},
		Limit:          uint64(limit),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query similar photos: %w", err)
	}
	return scoredToResults(resp.GetResult(), photoID), nil
}

func scoredToResults(points []*pb.ScoredPoint, exclude string) []SimilarResult {
	results := make([]SimilarResult, 0, len(points))
	for _, scored := range points {
		id := scored.GetPayload()["photo_id"].GetStringValue()
		if id == "" || id == exclude {
			continue
		}
		results = append(results, SimilarResult{PhotoID: id, Score: scored.GetScore()})
	}
	return results
}

// Delete removes the vector of a photo.
func (r *QdrantRepository) Delete(ctx context.Context, photoID string) error {
	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{pointIDValue(PointID(photoID, r.collectionName))},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}
	return nil
}
