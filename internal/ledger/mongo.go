package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "video_records"

// MongoStore keeps one document per video with _id = video URL.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	pageSize   int
}

// ConnectMongo connects and pings the server.
func ConnectMongo(ctx context.Context, uri, database string, pageSize int) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("ledger mongo: MONGO_URI is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("ledger mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ledger mongo: ping: %w", err)
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	slog.Info("ledger mongo connected", slog.String("db", database))
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(mongoCollection),
		pageSize:   pageSize,
	}, nil
}

func (s *MongoStore) Get(ctx context.Context, videoURL string) (*VideoRecord, error) {
	raw, err := s.collection.FindOne(ctx, bson.M{"_id": videoURL}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger mongo: get: %w", err)
	}
	r, err := decodeMongo(videoURL, raw)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *MongoStore) Upsert(ctx context.Context, videoURL string, fields Fields) error {
	if err := checkUpsert(videoURL, fields); err != nil {
		return err
	}
	plain, err := fields.normalize()
	if err != nil {
		return err
	}
	if len(plain) == 0 {
		return nil
	}
	wholeNumbersToInt(plain)
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": videoURL}, bson.M{"$set": plain}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("ledger mongo: upsert: %w", err)
	}
	return nil
}

func (s *MongoStore) Scan(ctx context.Context, filter Filter, cursor string) (Page, error) {
	cur, err := s.collection.Find(ctx, mongoFilter(filter, cursor),
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(s.pageSize)))
	if err != nil {
		return Page{}, fmt.Errorf("ledger mongo: scan: %w", err)
	}
	defer cur.Close(ctx)

	var page Page
	for cur.Next(ctx) {
		id, ok := cur.Current.Lookup("_id").StringValueOK()
		if !ok {
			continue
		}
		r, err := decodeMongo(id, cur.Current)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, r)
	}
	if err := cur.Err(); err != nil {
		return Page{}, fmt.Errorf("ledger mongo: cursor: %w", err)
	}
	if len(page.Items) == s.pageSize {
		page.Next = page.Items[len(page.Items)-1].VideoURL
	}
	return page, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func mongoFilter(filter Filter, cursor string) bson.M {
	q := bson.M{"_id": bson.M{"$gt": cursor}}
	if filter.EventYear != "" {
		q[FieldEventYear] = filter.EventYear
	}
	if filter.WithoutEnrichment {
		q[FieldCustomerNames] = bson.M{"$exists": false}
	}
	return q
}

func decodeMongo(videoURL string, raw bson.Raw) (VideoRecord, error) {
	doc, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return VideoRecord{}, fmt.Errorf("ledger mongo: decode %s: %w", videoURL, err)
	}
	return decodeRecord(videoURL, doc)
}

// wholeNumbersToInt stores integral top-level numbers as int64 so relaxed
// extended JSON renders them without a fractional part.
func wholeNumbersToInt(doc map[string]any) {
	for k, v := range doc {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			doc[k] = int64(f)
		}
	}
}
