package store

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/omerhodo/hollypolly2/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo implements Store on top of a MongoDB database. Sub-resources are
// flattened into three collections; user and option documents get a
// composite _id of "<roomID>:<docID>" so change-stream delete events can
// still be routed to the right room.
type Mongo struct {
	client  *mongo.Client
	rooms   *mongo.Collection
	users   *mongo.Collection
	options *mongo.Collection

	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}

	watchCancel context.CancelFunc
}

func NewMongo(ctx context.Context, uri, dbName string) (*Mongo, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}
	dbase := client.Database(dbName)

	m := &Mongo{
		client:  client,
		rooms:   dbase.Collection("rooms"),
		users:   dbase.Collection("roomusers"),
		options: dbase.Collection("options"),
		subs:    make(map[string]map[chan Event]struct{}),
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	m.watchCancel = cancel
	go m.watch(watchCtx, m.rooms, EventRoom)
	go m.watch(watchCtx, m.users, EventUsers)
	go m.watch(watchCtx, m.options, EventOptions)

	return m, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	m.watchCancel()
	return m.client.Disconnect(ctx)
}

func userKey(roomID, userID string) string     { return roomID + ":" + userID }
func optionKey(roomID, optionID string) string { return roomID + ":" + optionID }

type userDoc struct {
	Key         string `bson:"_id"`
	models.User `bson:",inline"`
}

type optionDoc struct {
	Key           string `bson:"_id"`
	models.Option `bson:",inline"`
}

// --- Rooms -------------------------------------------------

func (m *Mongo) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	err := m.rooms.FindOne(ctx, bson.M{"_id": roomID}).Decode(&room)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (m *Mongo) CreateRoom(ctx context.Context, room *models.Room) error {
	_, err := m.rooms.InsertOne(ctx, room)
	return err
}

func (m *Mongo) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := m.rooms.DeleteOne(ctx, bson.M{"_id": roomID})
	return err
}

func (m *Mongo) SetRoomTitle(ctx context.Context, roomID, title string, at time.Time) error {
	// Upsert so a title can land before the room document does.
	_, err := m.rooms.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{"$set": bson.M{"title": title, "last_activity": at}},
		options.Update().SetUpsert(true))
	return err
}

func (m *Mongo) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	_, err := m.rooms.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{"$set": bson.M{"last_activity": at}},
		options.Update().SetUpsert(true))
	return err
}

func (m *Mongo) SetRoomResult(ctx context.Context, roomID string, result *models.ResultData, at time.Time) error {
	res, err := m.rooms.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{"$set": bson.M{"result": result, "last_activity": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) SetRoomTeams(ctx context.Context, roomID string, teams []models.TeamData, createdCount int, at time.Time) error {
	res, err := m.rooms.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{"$set": bson.M{
			"teams":               teams,
			"teams_created_count": createdCount,
			"last_activity":       at,
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) ClearRoomTransient(ctx context.Context, roomID string, at time.Time) error {
	res, err := m.rooms.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{
			"$set":   bson.M{"result": nil, "last_activity": at},
			"$unset": bson.M{"teams": "", "teams_created_count": ""},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Users -------------------------------------------------

func (m *Mongo) GetUser(ctx context.Context, roomID, userID string) (*models.User, error) {
	var doc userDoc
	err := m.users.FindOne(ctx, bson.M{"_id": userKey(roomID, userID)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc.User, nil
}

func (m *Mongo) PutUser(ctx context.Context, user *models.User) error {
	doc := userDoc{Key: userKey(user.RoomID, user.ID), User: *user}
	_, err := m.users.ReplaceOne(ctx,
		bson.M{"_id": doc.Key}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) DeleteUser(ctx context.Context, roomID, userID string) error {
	_, err := m.users.DeleteOne(ctx, bson.M{"_id": userKey(roomID, userID)})
	return err
}

func (m *Mongo) ListUsers(ctx context.Context, roomID string) ([]models.User, error) {
	cursor, err := m.users.Find(ctx, bson.M{"room_id": roomID},
		options.Find().SetSort(bson.M{"joined_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.User)
	}
	return users, nil
}

func (m *Mongo) SetUserName(ctx context.Context, roomID, userID, name string) error {
	return m.updateUser(ctx, roomID, userID, bson.M{"name": name})
}

func (m *Mongo) SetUserLastSeen(ctx context.Context, roomID, userID string, at time.Time) error {
	return m.updateUser(ctx, roomID, userID, bson.M{"last_seen": at})
}

func (m *Mongo) SetUserAdmin(ctx context.Context, roomID, userID string, admin bool) error {
	return m.updateUser(ctx, roomID, userID, bson.M{"is_admin": admin})
}

func (m *Mongo) updateUser(ctx context.Context, roomID, userID string, set bson.M) error {
	res, err := m.users.UpdateOne(ctx,
		bson.M{"_id": userKey(roomID, userID)}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) PromoteSoleAdmin(ctx context.Context, roomID, userID string) error {
	session, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := m.users.UpdateMany(sc,
			bson.M{"room_id": roomID, "is_admin": true},
			bson.M{"$set": bson.M{"is_admin": false}}); err != nil {
			return nil, err
		}
		res, err := m.users.UpdateOne(sc,
			bson.M{"_id": userKey(roomID, userID)},
			bson.M{"$set": bson.M{"is_admin": true}})
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, ErrNotFound
		}
		return nil, nil
	})
	return err
}

// --- Options -----------------------------------------------

func (m *Mongo) PutOption(ctx context.Context, opt *models.Option) error {
	doc := optionDoc{Key: optionKey(opt.RoomID, opt.ID), Option: *opt}
	_, err := m.options.ReplaceOne(ctx,
		bson.M{"_id": doc.Key}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) DeleteOption(ctx context.Context, roomID, optionID string) error {
	_, err := m.options.DeleteOne(ctx, bson.M{"_id": optionKey(roomID, optionID)})
	return err
}

func (m *Mongo) DeleteAllOptions(ctx context.Context, roomID string) error {
	_, err := m.options.DeleteMany(ctx, bson.M{"room_id": roomID})
	return err
}

func (m *Mongo) ListOptions(ctx context.Context, roomID string) ([]models.Option, error) {
	cursor, err := m.options.Find(ctx, bson.M{"room_id": roomID},
		options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []optionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	opts := make([]models.Option, 0, len(docs))
	for _, d := range docs {
		opts = append(opts, d.Option)
	}
	return opts, nil
}

// --- Subscriptions -----------------------------------------

func (m *Mongo) Subscribe(roomID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	m.mu.Lock()
	if m.subs[roomID] == nil {
		m.subs[roomID] = make(map[chan Event]struct{})
	}
	m.subs[roomID][ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			if set := m.subs[roomID]; set != nil {
				delete(set, ch)
				if len(set) == 0 {
					delete(m.subs, roomID)
				}
			}
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (m *Mongo) notify(roomID, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs[roomID] {
		select {
		case ch <- Event{RoomID: roomID, Kind: kind}:
		default:
			// Subscriber is behind; it re-reads the full state on the
			// next event anyway, so dropping here just coalesces.
		}
	}
}

// watch tails a collection change stream and routes events to room
// subscribers. The stream is re-opened after errors; a dropped window
// is fine because listeners always re-read current state.
func (m *Mongo) watch(ctx context.Context, coll *mongo.Collection, kind string) {
	for {
		stream, err := coll.Watch(ctx, mongo.Pipeline{})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("change stream open failed for %s: %v", coll.Name(), err)
			select {
			case <-time.After(2 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		for stream.Next(ctx) {
			var change struct {
				DocumentKey struct {
					ID string `bson:"_id"`
				} `bson:"documentKey"`
			}
			if err := stream.Decode(&change); err != nil {
				log.Println("change stream decode:", err)
				continue
			}
			roomID := change.DocumentKey.ID
			if kind != EventRoom {
				// Composite key "<roomID>:<docID>".
				if i := strings.IndexByte(roomID, ':'); i >= 0 {
					roomID = roomID[:i]
				}
			}
			m.notify(roomID, kind)
		}
		stream.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		log.Printf("change stream for %s ended: %v", coll.Name(), stream.Err())
	}
}
