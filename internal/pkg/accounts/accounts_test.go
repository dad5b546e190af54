package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/models"
	"github.com/ManuelReschke/Ghiblit/app/repository"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/cache"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/credits"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/testutil"
)

func newService(t *testing.T, profiles *cache.ProfileCache) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewSQLiteDB(t, &models.User{}, &models.UserProfile{}, &models.ProviderAccount{}, &models.GeneratedImage{})
	repos := repository.NewRepositories(db)
	return NewService(repos.User, repos.Image, profiles, 1), db
}

func google(id, email string) Identity {
	return Identity{Provider: "google", ProviderUserID: id, Email: email, FirstName: "San", NickName: ""}
}

func TestFirstLoginCreatesUserWithSignupCredit(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	user, created, err := svc.Login(ctx, google("g-1", "San@Forest.example"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "san", user.Username)
	assert.Equal(t, "san@forest.example", user.Email)
	assert.Contains(t, user.AvatarURL, "https://www.gravatar.com/avatar/")

	view, err := svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.CreditBalance)
	assert.False(t, view.IntroOfferRedeemed)

	again, created, err := svc.Login(ctx, google("g-1", "san@forest.example"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
}

func TestLoginLinksExistingEmailAndDedupesUsername(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	first, _, err := svc.Login(ctx, google("g-1", "san@forest.example"))
	require.NoError(t, err)

	linked, created, err := svc.Login(ctx, Identity{Provider: "google", ProviderUserID: "g-2", Email: "san@forest.example"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, linked.ID)

	other, created, err := svc.Login(ctx, google("g-3", "san@mountain.example"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.Username, other.Username)
	assert.Contains(t, other.Username, "san-")
}

func TestLoginRejectsDisabledAndMissingEmail(t *testing.T) {
	svc, db := newService(t, nil)
	ctx := context.Background()

	_, _, err := svc.Login(ctx, google("g-9", ""))
	assert.ErrorIs(t, err, ErrMissingEmail)

	user, _, err := svc.Login(ctx, google("g-1", "ashitaka@example.com"))
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("status", models.STATUS_DISABLED).Error)

	_, _, err = svc.Login(ctx, google("g-1", "ashitaka@example.com"))
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestProfileReadThroughCacheIsInvalidatedByLedger(t *testing.T) {
	rdb := testutil.NewTestRedis(t)
	profiles := cache.NewProfileCache(rdb)
	svc, db := newService(t, profiles)
	ctx := context.Background()

	user, _, err := svc.Login(ctx, google("g-1", "moro@example.com"))
	require.NoError(t, err)

	view, err := svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.CreditBalance)

	ledger := credits.NewLedger(db, profiles)
	_, err = ledger.Debit(ctx, user.ID)
	require.NoError(t, err)

	view, err = svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, view.CreditBalance)
}

func TestProfileUnknownUser(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Profile(context.Background(), 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
