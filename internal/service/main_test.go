package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"trashtalk/internal/database"
	"trashtalk/internal/models"
	"trashtalk/internal/notifications"
	"trashtalk/internal/policy"
	"trashtalk/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	db            *gorm.DB
	registry      *notifications.Registry
	userRepo      repository.UserRepository
	followRepo    repository.FollowRepository
	notifRepo     repository.NotificationRepository
	streamRepo    repository.StreamRepository
	follows       *FollowService
	notifications *NotificationService
	dispatcher    *Dispatcher
	streams       *StreamManager
	reactions     *ReactionService
}

// newTestEnv wires every service over a private in-memory database and a
// registry whose clients have no socket behind them.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	env := &testEnv{
		db:         db,
		registry:   notifications.NewRegistry(notifications.Config{}, nil),
		userRepo:   repository.NewUserRepository(db),
		followRepo: repository.NewFollowRepository(db),
		notifRepo:  repository.NewNotificationRepository(db),
		streamRepo: repository.NewStreamRepository(db),
	}
	t.Cleanup(func() { _ = env.registry.Shutdown(context.Background()) })

	engine := policy.NewEngine(env.userRepo, env.followRepo)
	env.notifications = NewNotificationService(env.notifRepo, 3)
	env.dispatcher = NewDispatcher(env.notifications, env.followRepo, env.userRepo, env.registry)
	env.follows = NewFollowService(env.followRepo, env.userRepo, engine)
	env.streams = NewStreamManager(env.streamRepo, env.followRepo, env.userRepo, engine, env.registry, env.dispatcher)
	env.reactions = NewReactionService(repository.NewReactionRepository(db), repository.NewOwnershipRepository(db), engine, env.dispatcher)

	env.follows.Subscribe(env.dispatcher)
	env.follows.Subscribe(env.streams)
	env.registry.OnClose(env.streams.HandleClose)
	return env
}

func (e *testEnv) user(t *testing.T, id uint, vis models.Visibility) *models.User {
	t.Helper()
	u := &models.User{
		ID:         id,
		Username:   fmt.Sprintf("%s_%d", gofakeit.Username(), id),
		Visibility: vis,
	}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *testEnv) admin(t *testing.T, id uint) *models.User {
	t.Helper()
	u := e.user(t, id, models.VisibilityPublic)
	require.NoError(t, e.db.Model(u).Update("is_admin", true).Error)
	u.IsAdmin = true
	return u
}

func (e *testEnv) acceptedEdge(t *testing.T, followerID, followingID uint) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.Follow{
		FollowerID:  followerID,
		FollowingID: followingID,
		Status:      models.FollowStatusAccepted,
	}).Error)
}

func (e *testEnv) post(t *testing.T, id, ownerID uint) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.Post{ID: id, UserID: ownerID}).Error)
}

func (e *testEnv) challenge(t *testing.T, id, ownerID uint) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.Challenge{ID: id, UserID: ownerID}).Error)
}

func (e *testEnv) connect(t *testing.T, userID uint) *notifications.Client {
	t.Helper()
	c, err := e.registry.Connect(nil)
	require.NoError(t, err)
	require.NoError(t, e.registry.Authenticate(c, userID))
	return c
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// drain returns every frame queued for c so far.
func drain(t *testing.T, c *notifications.Client) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return out
			}
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func ofType(frames []frame, eventType string) []frame {
	var out []frame
	for _, f := range frames {
		if f.Type == eventType {
			out = append(out, f)
		}
	}
	return out
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Payload, &v))
	return v
}
