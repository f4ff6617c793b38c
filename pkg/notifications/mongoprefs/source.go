// Package mongoprefs stores user notification preferences (one document
// per user and type) and contact addresses (one per user) in MongoDB.
package mongoprefs

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// DefaultCollection is used when New gets an empty collection name.
const DefaultCollection = "notification_preferences"

var (
	ErrInvalidPreference = errors.New("mongoprefs: preference needs a user id and a known type")
	ErrOperationFailed   = errors.New("mongoprefs: operation failed")
)

// Source implements notifications.PreferenceSource.
type Source struct {
	coll *mongo.Collection
}

var _ notifications.PreferenceSource = (*Source)(nil)

// New returns a source over collection of db.
func New(db *mongo.Database, collection string) *Source {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Source{coll: db.Collection(collection)}
}

// EnsureIndexes creates the unique (user_id, type) index.
func (s *Source) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "type", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Join(ErrOperationFailed, err)
	}
	return nil
}

func (s *Source) GetPreference(ctx context.Context, userID string, t notifications.Type) (notifications.Preference, error) {
	var p notifications.Preference
	err := s.coll.FindOne(ctx, filter(userID, t)).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notifications.Preference{}, notifications.ErrPreferenceNotFound
	}
	if err != nil {
		return notifications.Preference{}, errors.Join(ErrOperationFailed, err)
	}
	return p, nil
}

// SetPreference inserts or replaces the preference for p.UserID and p.Type.
func (s *Source) SetPreference(ctx context.Context, p notifications.Preference) error {
	if p.UserID == "" || !p.Type.Valid() {
		return ErrInvalidPreference
	}
	_, err := s.coll.ReplaceOne(ctx, filter(p.UserID, p.Type), p, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Join(ErrOperationFailed, err)
	}
	return nil
}

// DeletePreference removes the stored preference so the default applies
// again. Deleting a missing preference is not an error.
func (s *Source) DeletePreference(ctx context.Context, userID string, t notifications.Type) error {
	if _, err := s.coll.DeleteOne(ctx, filter(userID, t)); err != nil {
		return errors.Join(ErrOperationFailed, err)
	}
	return nil
}

func filter(userID string, t notifications.Type) bson.D {
	return bson.D{{Key: "user_id", Value: userID}, {Key: "type", Value: string(t)}}
}
