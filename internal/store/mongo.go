package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/chesscake-server/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection = "Users"
	gamesCollection = "Games"
)

var _ Store = (*Mongo)(nil)

// Mongo keeps ratings on the Users documents and match records in Games.
type Mongo struct {
	client *mongo.Client
	users  *mongo.Collection
	games  *mongo.Collection
	now    func() time.Time
}

func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("MONGO_URI is required")
	}
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
	return newMongo(client, database), nil
}

func newMongo(client *mongo.Client, database string) *Mongo {
	db := client.Database(database)
	return &Mongo{
		client: client,
		users:  db.Collection(usersCollection),
		games:  db.Collection(gamesCollection),
		now:    time.Now,
	}
}

// EnsureIndexes creates the lookup indexes. Safe to call on every start.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	if _, err := m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users index: %w", err)
	}
	_, err := m.games.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "player1.username", Value: 1}, {Key: "endedAt", Value: -1}}},
		{Keys: bson.D{{Key: "player2.username", Value: 1}, {Key: "endedAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("games index: %w", err)
	}
	return nil
}

func (m *Mongo) GetRatings(ctx context.Context, username string) (*domain.UserRatings, error) {
	var u domain.UserRatings
	err := m.users.FindOne(ctx, bson.M{"username": strings.TrimSpace(username)}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (m *Mongo) UpdateRatings(ctx context.Context, username string, upd domain.RatingUpdate) error {
	username = strings.TrimSpace(username)
	if username == "" || upd.Empty() {
		return nil
	}
	set := bson.M{"updatedAt": m.now()}
	onInsert := bson.M{}
	assign := func(field string, v *int, def int) {
		if v != nil {
			set[field] = *v
		} else {
			onInsert[field] = def
		}
	}
	assign("rbcELO", upd.Elo, domain.DefaultElo)
	assign("kriELO", upd.KriegElo, domain.DefaultElo)
	assign("rbcCurrentRank", upd.CurrentRank, domain.DefaultRank)

	update := bson.M{"$set": set}
	if len(onInsert) > 0 {
		update["$setOnInsert"] = onInsert
	}
	_, err := m.users.UpdateOne(ctx, bson.M{"username": username}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("update ratings: %w", err)
	}
	return nil
}

func (m *Mongo) SaveMatch(ctx context.Context, rec *domain.MatchRecord) error {
	if rec == nil {
		return fmt.Errorf("nil match record")
	}
	_, err := m.games.InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateMatch
	}
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (m *Mongo) RecentMatches(ctx context.Context, username string, limit int) ([]*domain.MatchRecord, error) {
	username = strings.TrimSpace(username)
	filter := bson.M{"$or": bson.A{
		bson.M{"player1.username": username},
		bson.M{"player2.username": username},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "endedAt", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit, DefaultLeaderboardSize)))
	cursor, err := m.games.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find matches: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.MatchRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode matches: %w", err)
	}
	return out, nil
}

func (m *Mongo) ListRatings(ctx context.Context) ([]domain.UserRatings, error) {
	cursor, err := m.users.Find(ctx, bson.M{"username": bson.M{"$ne": domain.ComputerUsername}})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)
	var out []domain.UserRatings
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return out, nil
}

func (m *Mongo) TopRatings(ctx context.Context, track domain.Track, limit int) ([]domain.LeaderboardEntry, error) {
	field, err := documentField(track)
	if err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: field, Value: -1}, {Key: "username", Value: 1}}).
		SetLimit(int64(normalizeLimit(limit, DefaultLeaderboardSize)))
	cursor, err := m.users.Find(ctx, bson.M{"username": bson.M{"$ne": domain.ComputerUsername}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find leaderboard: %w", err)
	}
	defer cursor.Close(ctx)

	var users []domain.UserRatings
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}
	out := make([]domain.LeaderboardEntry, len(users))
	for i, u := range users {
		out[i] = domain.LeaderboardEntry{Username: u.Username, Value: u.Value(track), Place: i + 1}
	}
	return out, nil
}

func (m *Mongo) Place(ctx context.Context, track domain.Track, username string) (domain.LeaderboardEntry, bool, error) {
	field, err := documentField(track)
	if err != nil {
		return domain.LeaderboardEntry{}, false, err
	}
	u, err := m.GetRatings(ctx, username)
	if err != nil || u == nil || u.Username == domain.ComputerUsername {
		return domain.LeaderboardEntry{}, false, err
	}
	value := u.Value(track)
	ahead, err := m.users.CountDocuments(ctx, bson.M{
		"username": bson.M{"$ne": domain.ComputerUsername},
		"$or": bson.A{
			bson.M{field: bson.M{"$gt": value}},
			bson.M{field: value, "username": bson.M{"$lt": u.Username}},
		},
	})
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("count ahead: %w", err)
	}
	return domain.LeaderboardEntry{Username: u.Username, Value: value, Place: int(ahead) + 1}, true, nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
