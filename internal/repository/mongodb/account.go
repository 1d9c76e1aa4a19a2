package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

var _ repository.AccountRepository = (*DB)(nil)

func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	now := time.Now().UTC()
	account.ID = xid.New().String()
	account.CreatedAt = now
	account.UpdatedAt = now

	if _, err := db.accounts.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("email", account.Email)
		}
		return fmt.Errorf("mongodb: creating account %s: %w", account.Username, err)
	}
	return nil
}

func (db *DB) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	return db.findAccount(ctx, bson.M{"_id": id}, id)
}

func (db *DB) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return db.findAccount(ctx, bson.M{"username": username}, username)
}

func (db *DB) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return db.findAccount(ctx, bson.M{"email": email}, email)
}

func (db *DB) GetAccountByResetToken(ctx context.Context, token string) (*model.Account, error) {
	if token == "" {
		return nil, apperror.NotFound("account", "reset token")
	}
	return db.findAccount(ctx, bson.M{"reset_token": token}, "reset token")
}

func (db *DB) findAccount(ctx context.Context, filter bson.M, id string) (*model.Account, error) {
	var a model.Account
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	err := db.accounts.FindOne(ctx, filter, opts).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("account", id)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: getting account %s: %w", id, err)
	}
	return &a, nil
}

func (db *DB) UpdateUsername(ctx context.Context, id, username string) error {
	result, err := db.accounts.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"username": username, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("mongodb: renaming account %s: %w", id, err)
	}
	return requireMatch(result, "account", id)
}

func (db *DB) SetPassword(ctx context.Context, id, passwordHash string) error {
	result, err := db.accounts.UpdateByID(ctx, id, bson.M{
		"$set":   bson.M{"password_hash": passwordHash, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"reset_token": "", "reset_expires_at": ""},
	})
	if err != nil {
		return fmt.Errorf("mongodb: setting password for %s: %w", id, err)
	}
	return requireMatch(result, "account", id)
}

func (db *DB) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	result, err := db.accounts.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"reset_token":      token,
			"reset_expires_at": expiresAt.UTC(),
			"updated_at":       time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("mongodb: setting reset token for %s: %w", id, err)
	}
	return requireMatch(result, "account", id)
}

func (db *DB) DeleteAccount(ctx context.Context, id string) error {
	result, err := db.accounts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongodb: deleting account %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return apperror.NotFound("account", id)
	}
	return nil
}
