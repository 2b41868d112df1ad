package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"escaperoom/internal/model"
)

var (
	// ErrNotFound is returned by writes addressed to a missing room.
	ErrNotFound = errors.New("room document not found")
	// ErrDuplicateCode is returned when a room code is already taken.
	ErrDuplicateCode = errors.New("room code already exists")
)

type RoomRepo interface {
	Create(ctx context.Context, room *model.Room) error
	// GetByCode returns (nil, nil) when the room does not exist.
	GetByCode(ctx context.Context, code string) (*model.Room, error)
	Exists(ctx context.Context, code string) (bool, error)
	ListByStatus(ctx context.Context, statuses ...model.RoomStatus) ([]*model.Room, error)
	PutPlayer(ctx context.Context, code string, player *model.Player) error
	Update(ctx context.Context, code string, patch Patch) error
}

type roomRepo struct {
	collection *mongo.Collection
}

func NewRoomRepo(client *mongo.Client, database string) RoomRepo {
	db := client.Database(database)
	return &roomRepo{
		collection: db.Collection("rooms"),
	}
}

// EnsureIndexes creates the unique index on the room code.
func EnsureIndexes(ctx context.Context, client *mongo.Client, database string) error {
	_, err := client.Database(database).Collection("rooms").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create room indexes: %w", err)
	}
	return nil
}

func (r *roomRepo) Create(ctx context.Context, room *model.Room) error {
	if room.Players == nil {
		room.Players = map[string]*model.Player{}
	}
	_, err := r.collection.InsertOne(ctx, room)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateCode
	}
	return err
}

func (r *roomRepo) GetByCode(ctx context.Context, code string) (*model.Room, error) {
	var room model.Room
	err := r.collection.FindOne(ctx, bson.M{"code": code}).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // Room not found
		}
		return nil, err
	}
	if room.Players == nil {
		room.Players = map[string]*model.Player{}
	}
	return &room, nil
}

func (r *roomRepo) Exists(ctx context.Context, code string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"code": code}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *roomRepo) ListByStatus(ctx context.Context, statuses ...model.RoomStatus) ([]*model.Room, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"status": bson.M{"$in": statuses}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rooms []*model.Room
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepo) PutPlayer(ctx context.Context, code string, player *model.Player) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"code": code},
		bson.M{"$set": bson.M{"players." + player.ID: player}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *roomRepo) Update(ctx context.Context, code string, patch Patch) error {
	set, unset := patch.mongoUpdate()
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		return nil
	}

	res, err := r.collection.UpdateOne(ctx, bson.M{"code": code}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
