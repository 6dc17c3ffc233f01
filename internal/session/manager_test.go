package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/db/repositories"
	"fit-analyse/dashboard/internal/feed"
	"fit-analyse/dashboard/internal/jobs"
	"fit-analyse/dashboard/internal/models/dtos"
	gormModels "fit-analyse/dashboard/internal/models/gorm"
	"fit-analyse/dashboard/internal/providers"
	"fit-analyse/dashboard/internal/providers/providertest"
	"fit-analyse/dashboard/internal/upload"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var newest = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *repositories.ActivityRepo {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&gormModels.Activity{}, &gormModels.SyncRun{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return repositories.NewActivityRepo(db)
}

type tokenRecorder struct {
	mu     sync.Mutex
	tokens []string
}

func (r *tokenRecorder) SetToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

type fixture struct {
	source   *providertest.FakeSource
	store    *repositories.ActivityRepo
	feed     *feed.Feed
	job      *jobs.FullSyncJob
	uploader *upload.BatchUploader
	tokens   *tokenRecorder
	manager  *Manager
	expired  []error
}

func setupFixture(t *testing.T, collection []gormModels.Activity) *fixture {
	fx := &fixture{
		source: providertest.NewFakeSource(collection...),
		store:  setupTestStore(t),
		tokens: &tokenRecorder{},
	}
	fx.job = jobs.NewFullSyncJob(fx.source, fx.store, nil, nil, 50)
	fx.feed = feed.New(fx.source, fx.store, feed.Options{PageLimit: 10, Sync: fx.job})
	fx.uploader = upload.NewBatchUploader(fx.source, nil)
	fx.manager = NewManager(context.Background(), fx.tokens, fx.job, fx.feed, fx.uploader, func(err error) {
		fx.expired = append(fx.expired, err)
	})
	t.Cleanup(fx.manager.Close)
	return fx
}

func TestUserFromToken(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"sub", jwt.MapClaims{"sub": "user-1", "email": "a@b.c"}, "user-1"},
		{"user_id", jwt.MapClaims{"user_id": float64(42)}, "42"},
		{"email", jwt.MapClaims{"email": "a@b.c"}, "a@b.c"},
		{"none", jwt.MapClaims{"scope": "read"}, ""},
	}
	for _, tt := range tests {
		if got := UserFromToken(signedToken(t, tt.claims)); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.name, tt.want, got)
		}
	}

	if got := UserFromToken("opaque-token"); got != "" {
		t.Errorf("Expected empty user for opaque token, got %q", got)
	}
}

func TestManager_StartRunsSyncFeedAndHashes(t *testing.T) {
	collection := providertest.Activities("rec", constants.ActivityTypeRecorded, 60, newest)
	fx := setupFixture(t, collection)
	fx.source.SetHashes("h1", "h2")

	token := signedToken(t, jwt.MapClaims{"sub": "rider-7"})
	s, err := fx.manager.Start("Bearer " + token)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.ID == "" || s.UserID != "rider-7" {
		t.Errorf("Unexpected session %+v", s)
	}

	if err := fx.manager.Wait(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	count, _ := fx.store.Count(context.Background())
	if count != 60 {
		t.Errorf("Expected 60 synced activities, got %d", count)
	}
	if got := len(fx.feed.Snapshot().Activities); got != 10 {
		t.Errorf("Expected first feed page of 10, got %d", got)
	}
	if fx.uploader.Hashes().Len() != 2 {
		t.Errorf("Expected 2 known hashes, got %d", fx.uploader.Hashes().Len())
	}
	if len(fx.tokens.tokens) != 1 || fx.tokens.tokens[0] != token {
		t.Errorf("Expected bearer prefix stripped and token set, got %v", fx.tokens.tokens)
	}
	if fx.manager.SyncInProgress() {
		t.Error("Expected sync finished")
	}
}

func TestManager_StartRequiresToken(t *testing.T) {
	fx := setupFixture(t, nil)

	if _, err := fx.manager.Start("  "); !errors.Is(err, ErrNoToken) {
		t.Errorf("Expected ErrNoToken, got %v", err)
	}
	if err := fx.manager.Wait(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
	if fx.manager.Current() != nil {
		t.Error("Expected no current session")
	}
}

func TestManager_SyncFailureIsReported(t *testing.T) {
	fx := setupFixture(t, nil)
	fx.source.ListFunc = func(ctx context.Context, params dtos.ListParams) ([]gormModels.Activity, error) {
		return nil, &providers.ProviderError{Code: constants.ErrCodeNetworkError, Message: "offline"}
	}

	if _, err := fx.manager.Start("opaque"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := fx.manager.Wait(); err == nil {
		t.Error("Expected sync error from Wait")
	}

	snap := fx.feed.Snapshot()
	if snap.Source != feed.SourceLocal || snap.State() != feed.StateEmpty {
		t.Errorf("Expected empty fallback page, got source=%s state=%s", snap.Source, snap.State())
	}
}

func TestManager_NewSessionResetsHashes(t *testing.T) {
	fx := setupFixture(t, nil)
	fx.source.SetHashes("h1")

	if _, err := fx.manager.Start("first"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	fx.manager.Wait()
	first := fx.manager.Current()

	fx.source.SetHashes()
	if _, err := fx.manager.Start("second"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	fx.manager.Wait()

	if fx.uploader.Hashes().Len() != 0 {
		t.Errorf("Expected hashes of the new session only, got %d", fx.uploader.Hashes().Len())
	}
	if fx.manager.Current().ID == first.ID {
		t.Error("Expected a new session id")
	}
}

func TestManager_HandleUnauthorized(t *testing.T) {
	fx := setupFixture(t, nil)
	if _, err := fx.manager.Start("token"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	fx.manager.Wait()

	fx.manager.HandleUnauthorized("token", &providers.ProviderError{Code: constants.ErrCodeAuthenticationFailed, Message: "expired"})

	if !fx.manager.Current().Expired {
		t.Error("Expected session marked expired")
	}
	if len(fx.expired) != 1 || !providers.IsUnauthorized(fx.expired[0]) {
		t.Errorf("Expected hook called with the 401, got %v", fx.expired)
	}
}

func TestManager_HandleUnauthorized_IgnoresReplacedToken(t *testing.T) {
	fx := setupFixture(t, nil)
	fx.manager.Start("old-token")
	fx.manager.Wait()
	if _, err := fx.manager.Start("Bearer new-token"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	fx.manager.Wait()

	late := &providers.ProviderError{Code: constants.ErrCodeAuthenticationFailed, Message: "expired"}
	fx.manager.HandleUnauthorized("old-token", late)
	if fx.manager.Current().Expired || len(fx.expired) != 0 {
		t.Fatalf("Expected a 401 for the replaced token to be ignored, expired=%v hooks=%d", fx.manager.Current().Expired, len(fx.expired))
	}

	fx.manager.HandleUnauthorized("new-token", late)
	if !fx.manager.Current().Expired || len(fx.expired) != 1 {
		t.Errorf("Expected the current token's 401 to expire the session")
	}
}
