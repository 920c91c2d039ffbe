package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const refreshTokensCollection = "refresh_tokens"

type refreshTokenDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	TokenHash string             `bson:"tokenHash"`
	UserID    string             `bson:"userId"`
	ExpiresAt time.Time          `bson:"expiresAt"`
	IsRevoked bool               `bson:"isRevoked"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type MongoRefreshStore struct {
	coll *mongo.Collection
	cfg  SessionConfig
}

func NewMongoRefreshStore(db *mongo.Database, cfg SessionConfig) *MongoRefreshStore {
	return &MongoRefreshStore{coll: db.Collection(refreshTokensCollection), cfg: cfg.withDefaults()}
}

func (s *MongoRefreshStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tokenHash", Value: 1}}, Options: options.Index().SetUnique(true).SetName("token_hash_unique")},
		{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetName("user_id")},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetName("expires_at")},
	})
	if err != nil {
		return fmt.Errorf("create refresh token indexes: %w", err)
	}
	return nil
}

func (s *MongoRefreshStore) Create(ctx context.Context, userID string) (RefreshTokenRecord, error) {
	record, err := newRefreshRecord(s.cfg, userID)
	if err != nil {
		return RefreshTokenRecord{}, err
	}

	doc := refreshTokenDocument{
		ID:        primitive.NewObjectID(),
		TokenHash: tokenDigest(record.Token),
		UserID:    userID,
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("insert refresh token: %w", err)
	}

	return record, nil
}

func (s *MongoRefreshStore) FindByToken(ctx context.Context, token string) (*RefreshTokenRecord, error) {
	var doc refreshTokenDocument
	err := s.coll.FindOne(ctx, bson.M{"tokenHash": tokenDigest(token)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	return &RefreshTokenRecord{
		Token:     token,
		UserID:    doc.UserID,
		ExpiresAt: doc.ExpiresAt.UTC(),
		IsRevoked: doc.IsRevoked,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}

func (s *MongoRefreshStore) Revoke(ctx context.Context, token string) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"tokenHash": tokenDigest(token), "isRevoked": false},
		bson.M{"$set": bson.M{"isRevoked": true, "updatedAt": s.cfg.now()}},
	)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *MongoRefreshStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.coll.UpdateMany(ctx,
		bson.M{"userId": userID, "isRevoked": false},
		bson.M{"$set": bson.M{"isRevoked": true, "updatedAt": s.cfg.now()}},
	)
	if err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

func (s *MongoRefreshStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": s.cfg.now()}})
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return res.DeletedCount, nil
}
