package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"streamswarm/internal/domain"
)

const (
	DefaultVideosCollection = "videos"
	DefaultChunksCollection = "chunks"
)

type Repository struct {
	videos *mongo.Collection
	chunks *mongo.Collection
	now    func() time.Time
}

type videoDoc struct {
	ID           string `bson:"_id"`
	Filename     string `bson:"filename"`
	OriginalName string `bson:"original_name"`
	Status       string `bson:"status"`
	TotalChunks  int    `bson:"total_chunks"`
	UserID       string `bson:"user_id,omitempty"`
	Error        string `bson:"error,omitempty"`
	ManifestURL  string `bson:"manifest_url,omitempty"`
	CreatedAt    int64  `bson:"created_at"`
	UpdatedAt    int64  `bson:"updated_at"`
}

type chunkDoc struct {
	VideoID   string `bson:"video_id"`
	ChunkID   int    `bson:"chunk_id"`
	Filename  string `bson:"filename"`
	Hash      string `bson:"hash"`
	Size      int64  `bson:"size"`
	URL       string `bson:"url"`
	CreatedAt int64  `bson:"created_at"`
}

func NewRepository(client *mongo.Client, dbName string) *Repository {
	db := client.Database(dbName)
	return &Repository{
		videos: db.Collection(DefaultVideosCollection),
		chunks: db.Collection(DefaultChunksCollection),
		now:    time.Now,
	}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.videos == nil {
		return nil
	}
	videoModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	}
	if _, err := r.videos.Indexes().CreateMany(ctx, videoModels); err != nil {
		return err
	}
	chunkModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "video_id", Value: 1}, {Key: "chunk_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := r.chunks.Indexes().CreateMany(ctx, chunkModels)
	return err
}

func (r *Repository) Create(ctx context.Context, v domain.Video) error {
	if err := v.Validate(); err != nil {
		return err
	}
	_, err := r.videos.InsertOne(ctx, toDoc(v))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
	}
	return err
}

func (r *Repository) Get(ctx context.Context, id domain.VideoID) (domain.Video, error) {
	var doc videoDoc
	if err := r.videos.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Video{}, domain.ErrNotFound
		}
		return domain.Video{}, err
	}
	return fromDoc(doc), nil
}

func (r *Repository) List(ctx context.Context, filter domain.VideoFilter) ([]domain.Video, error) {
	query := bson.M{}
	if filter.Status != nil {
		query["status"] = string(*filter.Status)
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.videos.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []videoDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Video, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDoc(doc))
	}
	return out, nil
}

func (r *Repository) TransitionStatus(ctx context.Context, id domain.VideoID, from, to domain.VideoStatus) error {
	return r.conditionalSet(ctx, id, from, bson.M{
		"status": string(to),
	})
}

func (r *Repository) MarkReady(ctx context.Context, id domain.VideoID, totalChunks int, manifestURL string) error {
	return r.conditionalSet(ctx, id, domain.VideoProcessing, bson.M{
		"status":       string(domain.VideoReady),
		"total_chunks": totalChunks,
		"manifest_url": manifestURL,
	})
}

func (r *Repository) MarkFailed(ctx context.Context, id domain.VideoID, message string) error {
	return r.conditionalSet(ctx, id, domain.VideoProcessing, bson.M{
		"status": string(domain.VideoFailed),
		"error":  message,
	})
}

// conditionalSet applies set only while the stored status equals from.
func (r *Repository) conditionalSet(ctx context.Context, id domain.VideoID, from domain.VideoStatus, set bson.M) error {
	set["updated_at"] = r.now().UTC().UnixMilli()
	res, err := r.videos.UpdateOne(ctx,
		bson.M{"_id": string(id), "status": string(from)},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s, expected %s", domain.ErrInvalidTransition, id, current.Status, from)
}

func (r *Repository) SaveChunks(ctx context.Context, id domain.VideoID, chunks []domain.Chunk) error {
	if _, err := r.chunks.DeleteMany(ctx, bson.M{"video_id": string(id)}); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(chunks))
	for _, c := range chunks {
		c.VideoID = id
		docs = append(docs, toChunkDoc(c))
	}
	_, err := r.chunks.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return err
}

func (r *Repository) ListChunks(ctx context.Context, id domain.VideoID) ([]domain.Chunk, error) {
	opts := options.Find().SetSort(bson.D{{Key: "chunk_id", Value: 1}})
	cursor, err := r.chunks.Find(ctx, bson.M{"video_id": string(id)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []chunkDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Chunk, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromChunkDoc(doc))
	}
	return out, nil
}

func toDoc(v domain.Video) videoDoc {
	return videoDoc{
		ID:           string(v.ID),
		Filename:     v.Filename,
		OriginalName: v.OriginalName,
		Status:       string(v.Status),
		TotalChunks:  v.TotalChunks,
		UserID:       v.UserID,
		Error:        v.Error,
		ManifestURL:  v.ManifestURL,
		CreatedAt:    toMillis(v.CreatedAt),
		UpdatedAt:    toMillis(v.UpdatedAt),
	}
}

func fromDoc(doc videoDoc) domain.Video {
	return domain.Video{
		ID:           domain.VideoID(doc.ID),
		Filename:     doc.Filename,
		OriginalName: doc.OriginalName,
		Status:       domain.VideoStatus(doc.Status),
		TotalChunks:  doc.TotalChunks,
		UserID:       doc.UserID,
		Error:        doc.Error,
		ManifestURL:  doc.ManifestURL,
		CreatedAt:    fromMillis(doc.CreatedAt),
		UpdatedAt:    fromMillis(doc.UpdatedAt),
	}
}

func toChunkDoc(c domain.Chunk) chunkDoc {
	return chunkDoc{
		VideoID:   string(c.VideoID),
		ChunkID:   c.ChunkID,
		Filename:  c.Filename,
		Hash:      c.Hash,
		Size:      c.Size,
		URL:       c.URL,
		CreatedAt: toMillis(c.CreatedAt),
	}
}

func fromChunkDoc(doc chunkDoc) domain.Chunk {
	return domain.Chunk{
		VideoID:   domain.VideoID(doc.VideoID),
		ChunkID:   doc.ChunkID,
		Filename:  doc.Filename,
		Hash:      doc.Hash,
		Size:      doc.Size,
		URL:       doc.URL,
		CreatedAt: fromMillis(doc.CreatedAt),
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
