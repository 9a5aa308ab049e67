package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func notificationFixture() (*fakeStore, *fakeMailer, NotificationService, *time.Time) {
	store := newFakeStore(repoTier("plus", 1500, 100))
	store.owners = []repository.Owner{
		superuser("owner@example.com", testNow.Add(-24*time.Hour)),
		{Email: "staff@example.com", CreatedAt: testNow},
	}
	mailer := &fakeMailer{}
	now := testNow
	svc := NewNotificationService(store, mailer, discardLogger(), WithClock(func() time.Time { return now }))
	return store, mailer, svc, &now
}

func TestNotificationService_SendWelcome(t *testing.T) {
	ctx := context.Background()
	store, mailer, svc, _ := notificationFixture()

	sent, err := svc.SendWelcome(ctx, store.siteID())
	require.NoError(t, err)
	assert.True(t, sent)

	require.Len(t, mailer.sent, 1)
	n := mailer.sent[0]
	assert.Equal(t, "welcome", n.Template)
	require.Len(t, n.Recipients, 1, "only superusers are site owners")
	assert.Equal(t, "owner@example.com", n.Recipients[0].Email)
	assert.Equal(t, "Cat Videos", n.Info.Site.Name)

	assert.True(t, store.info.WelcomeEmailSent.Valid)
	assert.Equal(t, testNow, store.info.WelcomeEmailSent.Time)

	for i := 0; i < 3; i++ {
		sent, err = svc.SendWelcome(ctx, store.siteID())
		require.NoError(t, err)
		assert.False(t, sent)
	}
	assert.Len(t, mailer.sent, 1)
}

func TestNotificationService_NoOwnersStillRecordsSend(t *testing.T) {
	store, mailer, svc, _ := notificationFixture()
	store.owners = nil

	sent, err := svc.SendWelcome(context.Background(), store.siteID())
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, mailer.sent, 1)
	assert.NotNil(t, mailer.sent[0].Recipients, "an empty owner list must not fall back to site developers")
	assert.Empty(t, mailer.sent[0].Recipients)
}

func TestNotificationService_DeliveryFailureKeepsMarkers(t *testing.T) {
	store, mailer, svc, _ := notificationFixture()
	mailer.err = domain.DeliveryFailure(errors.New("connection refused"), "Mailer.Send", "owner@example.com")

	sent, err := svc.SendWelcome(context.Background(), store.siteID())
	assert.False(t, sent)
	assert.True(t, errors.Is(err, domain.ErrDelivery))
	assert.False(t, store.info.WelcomeEmailSent.Valid)
	assert.Empty(t, store.markerUpdates)
}

func TestNotificationService_MarkerFailure(t *testing.T) {
	store, _, svc, _ := notificationFixture()
	store.failMarkers = fmt.Errorf("connection reset")

	sent, err := svc.SendWelcome(context.Background(), store.siteID())
	assert.True(t, sent)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func TestNotificationService_SendVideoLimitWarning(t *testing.T) {
	ctx := context.Background()
	store, mailer, svc, now := notificationFixture()

	sent, err := svc.SendVideoLimitWarning(ctx, store.siteID(), 65)
	require.NoError(t, err)
	assert.False(t, sent, "below 66 percent")

	sent, err = svc.SendVideoLimitWarning(ctx, store.siteID(), 70)
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "video_limit", mailer.sent[0].Template)
	assert.InDelta(t, 0.70, mailer.sent[0].Extra["Ratio"], 1e-9)
	assert.Equal(t, sql.NullInt64{Int64: 70, Valid: true}, store.info.VideoCountWhenWarned)
	assert.Equal(t, testNow, store.info.VideoLimitWarningSent.Time)

	sent, err = svc.SendVideoLimitWarning(ctx, store.siteID(), 71)
	require.NoError(t, err)
	assert.False(t, sent, "cooldown")

	*now = testNow.Add(6 * 24 * time.Hour)
	sent, err = svc.SendVideoLimitWarning(ctx, store.siteID(), 71)
	require.NoError(t, err)
	assert.False(t, sent, "0.71 is below the next ratio of 0.85")

	sent, err = svc.SendVideoLimitWarning(ctx, store.siteID(), 90)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, int64(90), store.info.VideoCountWhenWarned.Int64)
	assert.Equal(t, *now, store.info.VideoLimitWarningSent.Time)
	assert.Len(t, mailer.sent, 2)
}

func TestNotificationService_SendVideoLimitWarning_Unlimited(t *testing.T) {
	store, mailer, svc, _ := notificationFixture()
	store.tiers[0].VideoLimit = sql.NullInt64{}

	sent, err := svc.SendVideoLimitWarning(context.Background(), store.siteID(), 1_000_000)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, mailer.sent)
}

func TestNotificationService_SendFreeTrialEnding(t *testing.T) {
	ctx := context.Background()
	store, mailer, svc, now := notificationFixture()

	sent, err := svc.SendFreeTrialEnding(ctx, store.siteID())
	require.NoError(t, err)
	assert.False(t, sent, "no trial")

	store.info.FreeTrialStartedAt = sql.NullTime{Time: testNow.Add(-20 * 24 * time.Hour), Valid: true}
	sent, err = svc.SendFreeTrialEnding(ctx, store.siteID())
	require.NoError(t, err)
	assert.False(t, sent, "trial ends in ten days")

	*now = testNow.Add(7 * 24 * time.Hour)
	sent, err = svc.SendFreeTrialEnding(ctx, store.siteID())
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "free_trial", mailer.sent[0].Template)
	assert.Equal(t, testNow.Add(10*24*time.Hour), mailer.sent[0].Extra["TrialEnd"])
	assert.Equal(t, *now, store.info.FreeTrialEndingSent.Time)

	*now = testNow.Add(8 * 24 * time.Hour)
	sent, err = svc.SendFreeTrialEnding(ctx, store.siteID())
	require.NoError(t, err)
	assert.False(t, sent, "fires at most once")
}
