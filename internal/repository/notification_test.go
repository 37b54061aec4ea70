package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"trashtalk/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRepository_PublishAndMarkRead(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	author := uint(9)
	n := &models.Notification{AuthorID: &author, Kind: models.NotificationKindPost, Message: "hello"}
	require.NoError(t, repo.CreateWithReaders(ctx, n, []uint{1, 2, 3}))
	require.NotZero(t, n.ID)

	count, err := repo.CountReaders(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	at := time.Now().UTC().Truncate(time.Second)
	reader, changed, err := repo.MarkRead(ctx, n.ID, 2, at)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, reader.IsRead)
	require.NotNil(t, reader.ReadAt)

	again, changed, err := repo.MarkRead(ctx, n.ID, 2, at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, again.IsRead)
	require.NotNil(t, again.ReadAt)
	assert.True(t, again.ReadAt.Equal(at), "read_at must not move on a repeated mark")

	_, _, err = repo.MarkRead(ctx, n.ID, 42, at)
	assert.True(t, models.IsCode(err, models.CodeForbidden))

	_, _, err = repo.MarkRead(ctx, 9999, 2, at)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestNotificationRepository_BroadcastMaterializesReaderLazily(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	n := &models.Notification{Kind: models.NotificationKindBroadcast, Message: "maintenance", IsBroadcast: true}
	require.NoError(t, repo.CreateWithReaders(ctx, n, nil))

	count, err := repo.CountReaders(ctx, n.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, changed, err := repo.MarkRead(ctx, n.ID, 5, time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	_, changed, err = repo.MarkRead(ctx, n.ID, 5, time.Now())
	require.NoError(t, err)
	assert.False(t, changed)

	count, err = repo.CountReaders(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNotificationRepository_ListForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	mine := &models.Notification{Kind: models.NotificationKindLike, Message: "liked"}
	require.NoError(t, repo.CreateWithReaders(ctx, mine, []uint{1}))
	other := &models.Notification{Kind: models.NotificationKindLike, Message: "not yours"}
	require.NoError(t, repo.CreateWithReaders(ctx, other, []uint{2}))
	global := &models.Notification{Kind: models.NotificationKindBroadcast, Message: "all", IsBroadcast: true}
	require.NoError(t, repo.CreateWithReaders(ctx, global, nil))

	_, _, err := repo.MarkRead(ctx, mine.ID, 1, time.Now())
	require.NoError(t, err)

	items, err := repo.ListForUser(ctx, 1, 20, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byID := map[uint]models.InboxItem{}
	for _, it := range items {
		byID[it.ID] = it
	}
	assert.True(t, byID[mine.ID].IsRead)
	assert.False(t, byID[global.ID].IsRead)
	assert.True(t, byID[global.ID].IsBroadcast)
	_, leaked := byID[other.ID]
	assert.False(t, leaked)

	page, err := repo.ListForUser(ctx, 1, 1, 1)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestNotificationRepository_AuthorOnlyMutations(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	author := uint(7)
	n := &models.Notification{AuthorID: &author, Kind: models.NotificationKindPost, Message: "v1"}
	require.NoError(t, repo.CreateWithReaders(ctx, n, []uint{1, 2}))

	_, err := repo.UpdateMessage(ctx, n.ID, 1, "hijack")
	assert.True(t, models.IsCode(err, models.CodeForbidden))

	updated, err := repo.UpdateMessage(ctx, n.ID, author, "v2")
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Message)

	assert.True(t, models.IsCode(repo.Delete(ctx, n.ID, 1), models.CodeForbidden))
	require.NoError(t, repo.Delete(ctx, n.ID, author))

	_, err = repo.GetByID(ctx, n.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	count, err := repo.CountReaders(ctx, n.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNotificationRepository_ReaderInsertFailureRollsBack(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "notifications"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "notification_readers"`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	n := &models.Notification{Kind: models.NotificationKindPost, Message: "x"}
	err := repo.CreateWithReaders(context.Background(), n, []uint{1, 2, 3})

	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeInternal))
	assert.Zero(t, n.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
