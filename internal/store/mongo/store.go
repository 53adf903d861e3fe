// Package mongo persists schedule entries. The collection holds records of
// both layouts, including legacy ones keyed by ObjectID.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hms/internal/schedule"
	"hms/internal/store"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionSchedules = "schedules"

func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

type Store struct {
	coll   *mongo.Collection
	logger zerolog.Logger
}

func NewStore(db *mongo.Database, logger zerolog.Logger) *Store {
	return &Store{
		coll:   db.Collection(CollectionSchedules),
		logger: logger.With().Str("component", "schedule_store").Logger(),
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "officeId", Value: 1}, {Key: "doctorId", Value: 1}},
	})
	return err
}

type document struct {
	ID                bson.RawValue `bson:"_id"`
	schedule.RawEntry `bson:",inline"`
}

type writeDocument struct {
	ID                interface{} `bson:"_id"`
	schedule.RawEntry `bson:",inline"`
}

// ListEntries returns the decodable entries of an office. Records that fit
// neither layout are skipped and reported as rejected.
func (s *Store) ListEntries(ctx context.Context, officeID string) ([]schedule.Entry, []schedule.Rejected, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"officeId": officeID})
	if err != nil {
		return nil, nil, err
	}
	defer cursor.Close(ctx)

	var raws []schedule.RawEntry
	var rejected []schedule.Rejected
	for cursor.Next(ctx) {
		raw, err := decodeDocument(cursor.Current)
		if err != nil {
			rejected = append(rejected, schedule.Rejected{ID: rawID(cursor.Current.Lookup("_id")), Err: err})
			continue
		}
		raws = append(raws, raw)
	}
	if err := cursor.Err(); err != nil {
		return nil, nil, err
	}

	entries, invalid := schedule.DecodeAll(raws)
	rejected = append(rejected, invalid...)
	for _, r := range rejected {
		s.logger.Warn().Err(r.Err).Str("office_id", officeID).Str("entry_id", r.ID).Msg("skipping malformed schedule entry")
	}
	return entries, rejected, nil
}

func (s *Store) GetEntry(ctx context.Context, officeID, entryID string) (schedule.Entry, error) {
	filter := idFilter(entryID)
	filter["officeId"] = officeID
	var raw bson.Raw
	if err := s.coll.FindOne(ctx, filter).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return schedule.Entry{}, store.ErrEntryNotFound
		}
		return schedule.Entry{}, err
	}
	entry, err := decodeDocument(raw)
	if err != nil {
		return schedule.Entry{}, err
	}
	return schedule.Decode(entry)
}

// SaveEntry upserts by id, replacing whichever layout was stored before.
// Legacy documents keep their ObjectID.
func (s *Store) SaveEntry(ctx context.Context, entry schedule.Entry) (schedule.Entry, error) {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	raw := schedule.Encode(entry)
	if oid, err := primitive.ObjectIDFromHex(entry.ID); err == nil {
		result, err := s.coll.ReplaceOne(ctx, bson.M{"_id": oid}, writeDocument{ID: oid, RawEntry: raw})
		if err != nil {
			return schedule.Entry{}, err
		}
		if result.MatchedCount > 0 {
			return entry, nil
		}
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": entry.ID}, writeDocument{ID: entry.ID, RawEntry: raw}, options.Replace().SetUpsert(true))
	if err != nil {
		return schedule.Entry{}, err
	}
	return entry, nil
}

func (s *Store) DeleteEntry(ctx context.Context, officeID, entryID string) error {
	filter := idFilter(entryID)
	filter["officeId"] = officeID
	result, err := s.coll.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return store.ErrEntryNotFound
	}
	return nil
}

func decodeDocument(raw bson.Raw) (schedule.RawEntry, error) {
	var doc document
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return schedule.RawEntry{}, fmt.Errorf("%w: %v", schedule.ErrMalformedEntry, err)
	}
	doc.RawEntry.ID = rawID(doc.ID)
	return doc.RawEntry, nil
}

func rawID(value bson.RawValue) string {
	if oid, ok := value.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if str, ok := value.StringValueOK(); ok {
		return str
	}
	return ""
}

func idFilter(entryID string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(entryID); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{entryID, oid}}}
	}
	return bson.M{"_id": entryID}
}
