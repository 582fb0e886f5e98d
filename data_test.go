package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/parkdesk/auth-go/internal/backendtest"
	"github.com/parkdesk/auth-go/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggedInClient(t *testing.T) (testClient, *backendtest.Server) {
	t.Helper()
	backend := backendtest.New(testUser, testPassword)
	t.Cleanup(backend.Close)
	c := newTestClient(t, backend.URL())
	require.NoError(t, c.Login(context.Background(), testUser, testPassword))
	return c, backend
}

func TestDashboardData(t *testing.T) {
	c, backend := loggedInClient(t)

	stats, err := c.DashboardData(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 118, stats.AvailableSpaces)
	assert.InDelta(t, 312.5, stats.TodayRevenue, 0.001)
	require.Len(t, stats.HardwareStatus, 1)
	assert.Equal(t, "exit-1", stats.HardwareStatus[0].DeviceID)
	assert.Equal(t, 1, backend.Calls("GET "+DashboardEndpoint))
}

func TestActivities(t *testing.T) {
	c, _ := loggedInClient(t)

	page, err := c.Activities(context.Background(), 3, 10)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, Pagination{Total: 1, Pages: 1, CurrentPage: 3, PerPage: 10}, page.Pagination)
	require.Len(t, page.Activities, 1)
	assert.Equal(t, "exit", page.Activities[0].Action)

	page, err = c.Activities(context.Background(), 0, -1)
	require.NoError(t, err)
	assert.Equal(t, DefaultActivitiesPage, page.Pagination.CurrentPage)
	assert.Equal(t, DefaultActivitiesPerPage, page.Pagination.PerPage)
}

func TestActivitiesQueryEncoding(t *testing.T) {
	var mux sync.Mutex
	var queries []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ActivitiesEndpoint, r.URL.Path)
		mux.Lock()
		queries = append(queries, r.URL.Query())
		mux.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"activities":[],"pagination":{}}}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	require.NoError(t, c.store.Set(context.Background(), token.AccessTokenKey, "A"))

	_, err := c.Activities(context.Background(), 2, 25)
	require.NoError(t, err)
	_, err = c.Activities(context.Background(), 0, 0)
	require.NoError(t, err)

	mux.Lock()
	defer mux.Unlock()
	want := []url.Values{
		{"page": {"2"}, "per_page": {"25"}},
		{"page": {"1"}, "per_page": {"5"}},
	}
	if diff := cmp.Diff(want, queries); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
}

func TestActiveSessions(t *testing.T) {
	c, _ := loggedInClient(t)

	sessions, err := c.ActiveSessions(context.Background())
	require.NoError(t, err)
	want := []ActiveSession{
		{PlateNumber: "ZH 12345", EntryTime: "2024-03-01T08:15:00Z", ParkingSpaceID: 101},
		{PlateNumber: "BE 987", EntryTime: "2024-03-01T09:40:00Z", ParkingSpaceID: 201},
	}
	if diff := cmp.Diff(want, sessions); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
}

func TestDailyReports(t *testing.T) {
	c, _ := loggedInClient(t)

	report, err := c.DailyReports(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "2024-03-01", report.Date)
	assert.Equal(t, 1, report.TotalVehicles)
	require.Len(t, report.Transactions, 1)
	assert.Equal(t, "T-1001", report.Transactions[0].TicketID)
}

func TestUserProfile(t *testing.T) {
	c, backend := loggedInClient(t)

	backend.ExpireAll()
	profile, err := c.UserProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Profile{FullName: "Garage Attendant", Email: "attendant@parkdesk.example", Role: "attendant"}, profile)
	assert.Equal(t, 1, backend.Calls(refreshRoute))
}

func TestDataAccessorsReturnNilOnFailure(t *testing.T) {
	backend := backendtest.New(testUser, testPassword)
	defer backend.Close()
	c := newTestClient(t, backend.URL())

	stats, err := c.DashboardData(context.Background())
	require.ErrorIs(t, err, ErrAuthExpired)
	assert.Nil(t, stats)

	sessions, err := c.ActiveSessions(context.Background())
	require.Error(t, err)
	assert.Nil(t, sessions)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"Internal server error","code":500}`))
	}))
	defer srv.Close()
	c = newTestClient(t, srv.URL)
	require.NoError(t, c.store.Set(context.Background(), token.AccessTokenKey, "A"))

	report, err := c.DailyReports(context.Background())
	assert.True(t, IsAPIStatus(err, http.StatusInternalServerError))
	assert.Nil(t, report)
}
