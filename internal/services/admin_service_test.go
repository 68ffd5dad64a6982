package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/storage"
	v1 "github.com/ernyzasxash/clientt/pkg/contracts/api/v1"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
	"github.com/ernyzasxash/clientt/pkg/contracts/events"
)

func newAdminFixture(t *testing.T, now *time.Time) (*AdminService, *storage.FileStore, *recordingFeed) {
	t.Helper()
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "data"), storage.FileStoreOptions{
		Logger: discardLogger(),
	})
	require.NoError(t, err)

	feed := &recordingFeed{}
	svc, err := NewAdminService(AdminOptions{
		Keys:         store,
		Bans:         store,
		Activity:     store,
		Feed:         feed,
		Logger:       discardLogger(),
		Now:          func() time.Time { return *now },
		ActiveWindow: 5 * time.Second,
	})
	require.NoError(t, err)
	return svc, store, feed
}

func TestAdminKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, _, feed := newAdminFixture(t, &now)

	result, err := svc.AddKey(ctx, "NEW-KEY-00001")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultAdded, result)

	result, err = svc.AddKey(ctx, "NEW-KEY-00001")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultExists, result)

	keys, err := svc.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"NEW-KEY-00001"}, keys)

	result, err = svc.RemoveKey(ctx, "NEW-KEY-00001")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultRemoved, result)

	result, err = svc.RemoveKey(ctx, "NEW-KEY-00001")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultNotFound, result)

	keys, err = svc.ListKeys(ctx)
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)

	ev := feed.last()
	assert.Equal(t, events.MessageTypeKeyChanged, ev.Type)
	assert.Equal(t, events.AdminChange{Action: "remove", Target: "NEW-****0001", Result: domain.ResultNotFound}, ev.Data)

	_, err = svc.AddKey(ctx, "")
	assert.True(t, errors.Is(err, apperrors.ErrEmptyKey))
}

func TestAdminBans(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, _, feed := newAdminFixture(t, &now)

	result, err := svc.Ban(ctx, v1.BanRequest{Type: domain.BanASN, Value: " AS64500 ", Reason: "abuse"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultAdded, result)

	result, err = svc.Ban(ctx, v1.BanRequest{Type: domain.BanASN, Value: "AS64500"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultExists, result)

	bans, err := svc.Bans(ctx)
	require.NoError(t, err)
	require.Len(t, bans, 1)
	assert.Equal(t, "AS64500", bans[0].Value)
	assert.Equal(t, "abuse", bans[0].Reason)
	assert.True(t, bans[0].CreatedAt.Equal(now))

	_, err = svc.Ban(ctx, v1.BanRequest{Type: "planet", Value: "mars"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidBanType))

	_, err = svc.Ban(ctx, v1.BanRequest{Type: domain.BanIP, Value: "  "})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	result, err = svc.Unban(ctx, domain.BanASN, "AS64500")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultRemoved, result)

	result, err = svc.Unban(ctx, domain.BanASN, "AS64500")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultNotFound, result)

	assert.Equal(t, events.MessageTypeBanChanged, feed.last().Type)
}

func TestAdminBanTargetMasksKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	svc, _, feed := newAdminFixture(t, &now)

	_, err := svc.Ban(ctx, v1.BanRequest{Type: domain.BanKey, Value: "SECRET-KEY-9999"})
	require.NoError(t, err)

	change, ok := feed.last().Data.(events.AdminChange)
	require.True(t, ok)
	assert.Equal(t, "key:SECR****9999", change.Target)
}

func TestAdminConnectionsDeriveActive(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, store, _ := newAdminFixture(t, &now)

	require.NoError(t, store.RecordConnection(ctx, domain.Connection{Key: "AAAA-1", LastSeen: now.Add(-2 * time.Second)}))
	require.NoError(t, store.RecordConnection(ctx, domain.Connection{Key: "BBBB-2", LastSeen: now.Add(-time.Minute)}))

	views, err := svc.Connections(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, "AAAA-1", views[0].Key)
	assert.True(t, views[0].Active)
	assert.Equal(t, "2025-06-01T09:59:58Z", views[0].LastSeenReadable)
	assert.False(t, views[1].Active)

	now = now.Add(10 * time.Second)
	views, err = svc.Connections(ctx)
	require.NoError(t, err)
	assert.False(t, views[0].Active, "activity expires without new heartbeats")
}

func TestAdminActivityViews(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, store, _ := newAdminFixture(t, &now)

	failed, err := svc.FailedLogins(ctx)
	require.NoError(t, err)
	assert.NotNil(t, failed)
	assert.Empty(t, failed)

	require.NoError(t, store.RecordFailedLogin(ctx, domain.FailedLogin{Time: now, Key: "X", Reason: "wrong key"}))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendAttempt(ctx, domain.Attempt{Time: now, Key: "X", Result: domain.ResultWrong}))
	}

	failed, err = svc.FailedLogins(ctx)
	require.NoError(t, err)
	assert.Len(t, failed, 1)

	attempts, err := svc.Attempts(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
}
