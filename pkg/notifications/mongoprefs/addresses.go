package mongoprefs

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const DefaultAddressCollection = "notification_addresses"

var ErrInvalidContact = errors.New("mongoprefs: contact needs a user id")

// Contact holds a user's destinations, one document per user.
type Contact struct {
	UserID      string `bson:"user_id" json:"user_id"`
	Email       string `bson:"email,omitempty" json:"email,omitempty"`
	Phone       string `bson:"phone,omitempty" json:"phone,omitempty"`
	DeviceToken string `bson:"device_token,omitempty" json:"device_token,omitempty"`
	WebhookURL  string `bson:"webhook_url,omitempty" json:"webhook_url,omitempty"`
}

// Destination returns the address for ch, empty when unset. In-app
// messages go to the user id.
func (c Contact) Destination(ch notifications.Channel) string {
	switch ch {
	case notifications.ChannelInApp:
		return c.UserID
	case notifications.ChannelEmail:
		return c.Email
	case notifications.ChannelSMS:
		return c.Phone
	case notifications.ChannelPush:
		return c.DeviceToken
	case notifications.ChannelWebhook:
		return c.WebhookURL
	default:
		return ""
	}
}

// Addresses implements notifications.AddressResolver.
type Addresses struct {
	coll *mongo.Collection
}

var _ notifications.AddressResolver = (*Addresses)(nil)

func NewAddresses(db *mongo.Database, collection string) *Addresses {
	if collection == "" {
		collection = DefaultAddressCollection
	}
	return &Addresses{coll: db.Collection(collection)}
}

// EnsureIndexes creates the unique user_id index.
func (a *Addresses) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Join(ErrOperationFailed, err)
	}
	return nil
}

func (a *Addresses) Address(ctx context.Context, userID string, ch notifications.Channel) (string, error) {
	if ch == notifications.ChannelInApp {
		return userID, nil
	}
	c, err := a.Contact(ctx, userID)
	if err != nil {
		return "", err
	}
	if dst := c.Destination(ch); dst != "" {
		return dst, nil
	}
	return "", notifications.ErrNoDestination
}

// Contact returns the stored contact, or ErrNoDestination when the user
// has none.
func (a *Addresses) Contact(ctx context.Context, userID string) (Contact, error) {
	var c Contact
	err := a.coll.FindOne(ctx, bson.D{{Key: "user_id", Value: userID}}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Contact{}, notifications.ErrNoDestination
	}
	if err != nil {
		return Contact{}, errors.Join(ErrOperationFailed, err)
	}
	return c, nil
}

// SetContact inserts or replaces the contact for c.UserID.
func (a *Addresses) SetContact(ctx context.Context, c Contact) error {
	if c.UserID == "" {
		return ErrInvalidContact
	}
	_, err := a.coll.ReplaceOne(ctx, bson.D{{Key: "user_id", Value: c.UserID}}, c, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Join(ErrOperationFailed, err)
	}
	return nil
}
