package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"trashtalk/internal/config"
	"trashtalk/internal/database"
	"trashtalk/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

type testServer struct {
	srv *Server
	app *fiber.App
	db  *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		JWTSecret:                   testSecret,
		Port:                        "0",
		Env:                         "test",
		WSHandshakeTimeoutSeconds:   1,
		WSMaxConnsPerUser:           2,
		WSMaxTotalConns:             50,
		WSSignalRatePerSecond:       20,
		WSSignalBurst:               40,
		NotificationPublishAttempts: 1,
	}
	srv, err := NewServer(cfg, db, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return &testServer{srv: srv, app: srv.App(), db: db}
}

func (ts *testServer) user(t *testing.T, id uint, vis models.Visibility) *models.User {
	t.Helper()
	u := &models.User{
		ID:         id,
		Username:   fmt.Sprintf("%s_%d", gofakeit.Username(), id),
		Visibility: vis,
	}
	require.NoError(t, ts.db.Create(u).Error)
	return u
}

func (ts *testServer) admin(t *testing.T, id uint) *models.User {
	t.Helper()
	u := ts.user(t, id, models.VisibilityPublic)
	require.NoError(t, ts.db.Model(u).Update("is_admin", true).Error)
	return u
}

func token(t *testing.T, userID uint) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

// do performs an authenticated request as userID (0 sends no credential) and
// decodes a JSON body into out when out is non-nil.
func (ts *testServer) do(t *testing.T, userID uint, method, path string, body interface{}, out interface{}) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}

	resp, err := ts.app.Test(req, 5000)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}
