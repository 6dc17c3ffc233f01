package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fit-analyse/dashboard/internal/constants"
	"fit-analyse/dashboard/internal/models/dtos"
)

func newTestSource(url string) *HTTPActivitySource {
	return &HTTPActivitySource{
		BaseURL: url,
		Client:  &http.Client{},
		token:   "test-token",
	}
}

func TestHTTPActivitySource_ListActivities_QueryParams(t *testing.T) {
	cursorDate := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET request, got %s", r.Method)
		}
		if r.URL.Path != "/activities" {
			t.Errorf("Expected path /activities, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Expected bearer token, got %q", got)
		}

		q := r.URL.Query()
		if q.Get("limit") != "10" {
			t.Errorf("Expected limit=10, got %s", q.Get("limit"))
		}
		if q.Get("activity_type") != "route" {
			t.Errorf("Expected activity_type=route, got %s", q.Get("activity_type"))
		}
		if q.Get("search_query") != "alps" {
			t.Errorf("Expected search_query=alps, got %s", q.Get("search_query"))
		}
		if q.Get("cursor_id") != "a-9" {
			t.Errorf("Expected cursor_id=a-9, got %s", q.Get("cursor_id"))
		}
		parsed, err := time.Parse(time.RFC3339Nano, q.Get("cursor_date"))
		if err != nil || !parsed.Equal(cursorDate) {
			t.Errorf("Expected cursor_date %v, got %s", cursorDate, q.Get("cursor_date"))
		}

		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `[
			{"activity_id":"a-8","name":"Alps loop","activity_type":"route","date":"2024-02-28T09:00:00","last_modified":"2024-02-28T12:00:00","tags":["alps"]},
			{"activity_id":"a-7","name":"Alps climb","activity_type":"route","date":"2024-02-27T09:00:00+00:00","last_modified":"2024-02-27T12:00:00","tags":[]}
		]`)
	}))
	defer server.Close()

	provider := newTestSource(server.URL)
	page, err := provider.ListActivities(context.Background(), dtos.ListParams{
		Limit:        10,
		ActivityType: "route",
		SearchQuery:  "alps",
		Cursor:       dtos.Cursor{Date: cursorDate, ActivityID: "a-9"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("Expected 2 activities, got %d", len(page))
	}
	want := time.Date(2024, 2, 28, 9, 0, 0, 0, time.UTC)
	if !page[0].Date.Equal(want) {
		t.Errorf("Expected naive date parsed as UTC %v, got %v", want, page[0].Date)
	}
}

func TestHTTPActivitySource_ListActivities_OmitsEmptyFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		for _, key := range []string{"activity_type", "search_query", "cursor_date", "cursor_id"} {
			if q.Has(key) {
				t.Errorf("Expected %s to be omitted, got %q", key, q.Get(key))
			}
		}
		io.WriteString(w, `[]`)
	}))
	defer server.Close()

	page, err := newTestSource(server.URL).ListActivities(context.Background(), dtos.ListParams{Limit: 50})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(page) != 0 {
		t.Errorf("Expected empty page, got %d", len(page))
	}
}

func TestHTTPActivitySource_ListActivities_InvalidLimit(t *testing.T) {
	provider := newTestSource("http://unused")

	_, err := provider.ListActivities(context.Background(), dtos.ListParams{Limit: 0})
	if err == nil {
		t.Fatal("Expected error for zero limit")
	}
}

func TestHTTPActivitySource_Unauthorized_CallsHook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"expired"}`)
	}))
	defer server.Close()

	provider := newTestSource(server.URL)
	calls := 0
	provider.OnUnauthorized = func(token string, err error) {
		calls++
		if token != "test-token" {
			t.Errorf("Expected hook to receive the sent token, got %q", token)
		}
		if !IsUnauthorized(err) {
			t.Errorf("Expected hook to receive an unauthorized error, got %v", err)
		}
	}

	_, err := provider.FetchKnownHashes(context.Background())
	if err == nil {
		t.Fatal("Expected error for 401")
	}
	if !IsUnauthorized(err) {
		t.Errorf("Expected IsUnauthorized, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected hook to be called once, got %d", calls)
	}
}

func TestHTTPActivitySource_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusNotFound, constants.ErrCodeActivityNotFound},
		{http.StatusForbidden, constants.ErrCodeForbidden},
		{http.StatusTooManyRequests, constants.ErrCodeRateLimited},
		{http.StatusBadRequest, constants.ErrCodeInvalidDataFormat},
		{http.StatusInternalServerError, constants.ErrCodeRemoteError},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		err := newTestSource(server.URL).DeleteActivity(context.Background(), "a-1")
		server.Close()

		var provErr *ProviderError
		if !errors.As(err, &provErr) {
			t.Fatalf("status %d: expected ProviderError, got %v", tt.status, err)
		}
		if provErr.Code != tt.code {
			t.Errorf("status %d: expected code %s, got %s", tt.status, tt.code, provErr.Code)
		}
		if provErr.StatusCode != tt.status {
			t.Errorf("status %d: expected StatusCode %d, got %d", tt.status, tt.status, provErr.StatusCode)
		}
	}
}

func TestHTTPActivitySource_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestSource(url).FetchKnownHashes(context.Background())

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if provErr.Code != constants.ErrCodeNetworkError {
		t.Errorf("Expected NETWORK_ERROR, got %s", provErr.Code)
	}
}

func TestHTTPActivitySource_UploadActivity_Multipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload_activity" {
			t.Errorf("Expected POST /upload_activity, got %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected multipart field \"file\": %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "ride.fit" {
			t.Errorf("Expected filename ride.fit, got %s", header.Filename)
		}
		body, _ := io.ReadAll(file)
		if string(body) != "FITDATA" {
			t.Errorf("Expected file content FITDATA, got %q", body)
		}
		io.WriteString(w, `{"activity_id":"new-1","name":"ride","activity_type":"recorded","date":"2024-01-01T08:00:00","last_modified":"2024-01-01T08:00:00","val_hash":"abc"}`)
	}))
	defer server.Close()

	created, err := newTestSource(server.URL).UploadActivity(context.Background(), "ride.fit", strings.NewReader("FITDATA"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if created.ActivityID != "new-1" || created.ValHash != "abc" {
		t.Errorf("Unexpected created activity: %+v", created)
	}
}

func TestHTTPActivitySource_UpdateActivity_SendsPatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/activity/a-1" {
			t.Errorf("Expected PATCH /activity/a-1, got %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"name":"Renamed"`) {
			t.Errorf("Expected name in body, got %s", body)
		}
		if strings.Contains(string(body), "tags") {
			t.Errorf("Expected unset tags to be omitted, got %s", body)
		}
		io.WriteString(w, `{"activity_id":"a-1","name":"Renamed","activity_type":"recorded","date":"2024-01-01T08:00:00","last_modified":"2024-01-02T08:00:00"}`)
	}))
	defer server.Close()

	name := "Renamed"
	updated, err := newTestSource(server.URL).UpdateActivity(context.Background(), "a-1", dtos.ActivityUpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if updated.Name != "Renamed" {
		t.Errorf("Expected name Renamed, got %s", updated.Name)
	}
}

func TestHTTPActivitySource_EmptyID(t *testing.T) {
	provider := newTestSource("http://unused")

	if err := provider.DeleteActivity(context.Background(), ""); err == nil {
		t.Error("Expected error for empty activity ID")
	}
	if _, err := provider.UpdateActivity(context.Background(), "", dtos.ActivityUpdateRequest{}); err == nil {
		t.Error("Expected error for empty activity ID")
	}
}

func TestHTTPActivitySource_SetToken(t *testing.T) {
	var seen string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
		io.WriteString(w, `[]`)
	}))
	defer server.Close()

	provider := newTestSource(server.URL)
	provider.SetToken("rotated")
	if _, err := provider.FetchKnownHashes(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if seen != "Bearer rotated" {
		t.Errorf("Expected rotated token, got %q", seen)
	}
}

func TestHTTPActivitySource_ListActivities_EchoesServiceDateInCursor(t *testing.T) {
	var cursorDates []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursorDates = append(cursorDates, r.URL.Query().Get("cursor_date"))
		w.WriteHeader(http.StatusOK)
		if len(cursorDates) == 1 {
			io.WriteString(w, `[{"activity_id":"a-2","activity_type":"recorded","date":"2024-02-27T09:00:00.123456","tags":[]}]`)
			return
		}
		io.WriteString(w, `[]`)
	}))
	defer server.Close()

	provider := newTestSource(server.URL)
	page, err := provider.ListActivities(context.Background(), dtos.ListParams{Limit: 1})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := provider.ListActivities(context.Background(), dtos.ListParams{Limit: 1, Cursor: dtos.CursorAfter(page)}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(cursorDates) != 2 || cursorDates[0] != "" {
		t.Fatalf("Unexpected requests %v", cursorDates)
	}
	if cursorDates[1] != "2024-02-27T09:00:00.123456" {
		t.Errorf("Expected the service's own date string, got %s", cursorDates[1])
	}
}
