package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fit-analyse/dashboard/internal/common"
	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/db/repositories"
	"fit-analyse/dashboard/internal/feed"
	"fit-analyse/dashboard/internal/metrics"
	"fit-analyse/dashboard/internal/models/dtos"
	gormModels "fit-analyse/dashboard/internal/models/gorm"
	"fit-analyse/dashboard/internal/providers"
	"fit-analyse/dashboard/internal/providers/providertest"

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

	if err := db.AutoMigrate(&gormModels.Activity{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return repositories.NewActivityRepo(db)
}

type fixture struct {
	source *providertest.FakeSource
	store  *repositories.ActivityRepo
	feed   *feed.Feed
	cache  *common.CacheService
	svc    *ActivityService
}

func setupFixture(t *testing.T) *fixture {
	collection := providertest.Activities("rec", constants.ActivityTypeRecorded, 5, newest)
	source := providertest.NewFakeSource(collection...)
	store := setupTestStore(t)
	if err := store.UpsertMany(context.Background(), collection); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}
	f := feed.New(source, store, feed.Options{PageLimit: 10})
	if _, err := f.ChangeFilter(context.Background(), feed.Filter{Tab: constants.ActivityTypeRecorded}); err != nil {
		t.Fatalf("Failed to load feed: %v", err)
	}
	cache := common.NewCacheService(time.Minute, time.Minute)

	return &fixture{
		source: source,
		store:  store,
		feed:   f,
		cache:  cache,
		svc:    NewActivityService(source, store, f, cache, metrics.NewMetricsRegistry(), time.Minute),
	}
}

func TestActivityService_GetActivity_Caches(t *testing.T) {
	fx := setupFixture(t)
	var calls atomic.Int32
	fx.source.DetailFunc = func(ctx context.Context, id string) (*dtos.ActivityDetailResponse, error) {
		calls.Add(1)
		return &dtos.ActivityDetailResponse{ActivityBase: &gormModels.Activity{ActivityID: id, Name: "Detail"}}, nil
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		detail, err := fx.svc.GetActivity(ctx, "rec-001")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if detail.ActivityBase.Name != "Detail" {
			t.Errorf("Unexpected detail %+v", detail.ActivityBase)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 remote call, got %d", calls.Load())
	}
}

func TestActivityService_GetActivity_CoalescesConcurrentFetches(t *testing.T) {
	fx := setupFixture(t)
	var calls atomic.Int32
	release := make(chan struct{})
	fx.source.DetailFunc = func(ctx context.Context, id string) (*dtos.ActivityDetailResponse, error) {
		calls.Add(1)
		<-release
		return &dtos.ActivityDetailResponse{ActivityBase: &gormModels.Activity{ActivityID: id}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := fx.svc.GetActivity(context.Background(), "rec-002"); err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("Expected concurrent fetches to share 1 call, got %d", calls.Load())
	}
}

func TestActivityService_GetActivity_FirstCallerCancelDoesNotFailWaiters(t *testing.T) {
	fx := setupFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fx.source.DetailFunc = func(ctx context.Context, id string) (*dtos.ActivityDetailResponse, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &dtos.ActivityDetailResponse{ActivityBase: &gormModels.Activity{ActivityID: id}}, nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	go fx.svc.GetActivity(firstCtx, "rec-004")
	<-started

	waiterErr := make(chan error, 1)
	go func() {
		_, err := fx.svc.GetActivity(context.Background(), "rec-004")
		waiterErr <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancelFirst()
	close(release)

	if err := <-waiterErr; err != nil {
		t.Errorf("Expected waiter to get the detail, got %v", err)
	}
}

func TestActivityService_GetActivity_NotFound(t *testing.T) {
	fx := setupFixture(t)

	_, err := fx.svc.GetActivity(context.Background(), "missing")
	if !providers.IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := fx.svc.GetActivity(context.Background(), " "); err == nil {
		t.Error("Expected error for empty id")
	}
}

func TestActivityService_GetPowerCurve_FailureIsEmpty(t *testing.T) {
	fx := setupFixture(t)
	fx.source.CurveFunc = func(ctx context.Context, id string) ([]dtos.PowerCurvePoint, error) {
		return nil, errors.New("boom")
	}

	curve := fx.svc.GetPowerCurve(context.Background(), "rec-001")
	if curve == nil || len(curve) != 0 {
		t.Errorf("Expected empty curve, got %v", curve)
	}
}

func TestActivityService_UpdateActivity_PropagatesEverywhere(t *testing.T) {
	fx := setupFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.GetActivity(ctx, "rec-001"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	name := "Evening spin"
	updated, err := fx.svc.UpdateActivity(ctx, "rec-001", &name, nil, []string{"indoor"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if updated.Name != name {
		t.Errorf("Expected %s, got %s", name, updated.Name)
	}

	local, _ := fx.store.FindByID(ctx, "rec-001")
	if local == nil || local.Name != name || len(local.Tags) != 1 || local.Tags[0] != "indoor" {
		t.Errorf("Expected local copy to follow the edit, got %+v", local)
	}
	if !local.Date.Equal(newest.Add(-24 * time.Hour)) {
		t.Errorf("Expected date unchanged, got %v", local.Date)
	}

	for _, a := range fx.feed.Snapshot().Activities {
		if a.ActivityID == "rec-001" && a.Name != name {
			t.Errorf("Expected feed entry renamed, got %s", a.Name)
		}
	}

	if _, found := fx.cache.Get(ctx, detailKey("rec-001")); found {
		t.Error("Expected detail cache to be invalidated")
	}
}

func TestActivityService_UpdateActivity_PartialResponseKeepsSentFields(t *testing.T) {
	fx := setupFixture(t)
	ctx := context.Background()
	seeded := []string{"commute"}
	if _, err := fx.store.UpdateFields(ctx, "rec-001", nil, nil, seeded); err != nil {
		t.Fatalf("Failed to seed tags: %v", err)
	}
	fx.feed.ApplyEdit("rec-001", nil, nil, seeded)

	// The service answers with the base fields only: no tags, no type, no payloads
	movedTo := time.Date(2024, 5, 20, 6, 0, 0, 0, time.UTC)
	fx.source.UpdateFunc = func(ctx context.Context, id string, update dtos.ActivityUpdateRequest) (*gormModels.Activity, error) {
		return &gormModels.Activity{ActivityID: id, Name: "Server name", Date: movedTo}, nil
	}

	name := "Sent name"
	sentDate := time.Date(2024, 5, 21, 6, 0, 0, 0, time.UTC)
	updated, err := fx.svc.UpdateActivity(ctx, "rec-001", &name, &sentDate, []string{"commute", "hills"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if updated.Name != "Server name" || !updated.Date.Equal(movedTo) || len(updated.Tags) != 2 {
		t.Errorf("Expected merged result, got %+v", updated)
	}

	local, _ := fx.store.FindByID(ctx, "rec-001")
	if local.Name != "Server name" || !local.Date.Equal(movedTo) {
		t.Errorf("Expected response values in the local copy, got %+v", local)
	}
	if len(local.Tags) != 2 || local.Tags[0] != "commute" || local.Tags[1] != "hills" {
		t.Errorf("Expected sent tags kept locally, got %v", local.Tags)
	}
	if local.ActivityType != string(constants.ActivityTypeRecorded) {
		t.Errorf("Expected type kept locally, got %q", local.ActivityType)
	}

	var entry *gormModels.Activity
	snap := fx.feed.Snapshot()
	for i := range snap.Activities {
		if snap.Activities[i].ActivityID == "rec-001" {
			entry = &snap.Activities[i]
		}
	}
	if entry == nil {
		t.Fatal("Expected feed entry to remain")
	}
	if entry.ActivityType != string(constants.ActivityTypeRecorded) || len(entry.Tags) != 2 || entry.Name != "Server name" {
		t.Errorf("Expected feed entry merged, got %+v", entry)
	}

	hits := feed.FallbackPage(ctx, fx.store, dtos.ListParams{Limit: 10, SearchQuery: "hills"})
	if len(hits) != 1 || hits[0].ActivityID != "rec-001" {
		t.Errorf("Expected tag search to find the edited activity, got %d hits", len(hits))
	}
}

func TestActivityService_UpdateActivity_EmptyResponseUsesSentValues(t *testing.T) {
	fx := setupFixture(t)
	ctx := context.Background()
	fx.source.UpdateFunc = func(ctx context.Context, id string, update dtos.ActivityUpdateRequest) (*gormModels.Activity, error) {
		return nil, nil
	}

	name := "Only sent"
	if _, err := fx.svc.UpdateActivity(ctx, "rec-002", &name, nil, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	local, _ := fx.store.FindByID(ctx, "rec-002")
	if local.Name != name || !local.Date.Equal(newest.Add(-48*time.Hour)) {
		t.Errorf("Expected only the name to change, got %+v", local)
	}
}

func TestActivityService_UpdateActivity_RemoteFailureChangesNothing(t *testing.T) {
	fx := setupFixture(t)
	fx.source.UpdateFunc = func(ctx context.Context, id string, update dtos.ActivityUpdateRequest) (*gormModels.Activity, error) {
		return nil, &providers.ProviderError{Code: constants.ErrCodeRemoteError, Message: "down"}
	}
	ctx := context.Background()

	name := "Nope"
	if _, err := fx.svc.UpdateActivity(ctx, "rec-001", &name, nil, nil); err == nil {
		t.Fatal("Expected error")
	}
	local, _ := fx.store.FindByID(ctx, "rec-001")
	if local.Name == name {
		t.Error("Expected local copy untouched")
	}
}

func TestActivityService_UpdateActivity_EmptyName(t *testing.T) {
	fx := setupFixture(t)
	blank := "  "

	if _, err := fx.svc.UpdateActivity(context.Background(), "rec-001", &blank, nil, nil); err == nil {
		t.Error("Expected error for blank name")
	}
}

func TestActivityService_DeleteActivity(t *testing.T) {
	fx := setupFixture(t)
	ctx := context.Background()

	if err := fx.svc.DeleteActivity(ctx, "rec-003"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if local, _ := fx.store.FindByID(ctx, "rec-003"); local != nil {
		t.Error("Expected local copy removed")
	}
	for _, a := range fx.feed.Snapshot().Activities {
		if a.ActivityID == "rec-003" {
			t.Error("Expected feed entry removed")
		}
	}

	if err := fx.svc.DeleteActivity(ctx, "rec-003"); !providers.IsNotFound(err) {
		t.Errorf("Expected not found on second delete, got %v", err)
	}
}

func TestParseEditDate(t *testing.T) {
	raw := "2024-05-04T07:30"
	got, err := ParseEditDate(&raw)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !got.Equal(time.Date(2024, 5, 4, 7, 30, 0, 0, time.UTC)) {
		t.Errorf("Unexpected date %v", got)
	}

	if got, err := ParseEditDate(nil); got != nil || err != nil {
		t.Errorf("Expected nil, nil for absent date")
	}

	bad := "yesterday"
	if _, err := ParseEditDate(&bad); err == nil {
		t.Error("Expected error for bad date")
	}
}
