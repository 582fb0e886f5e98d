package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

const (
	DashboardEndpoint      = "/api/dashboard/stats/overview"
	ActivitiesEndpoint     = "/api/activities"
	ActiveSessionsEndpoint = "/api/parking-sessions/active"
	DailyReportsEndpoint   = "/api/reports/daily"
	ProfileEndpoint        = "/api/auth/profile"

	DefaultActivitiesPage    = 1
	DefaultActivitiesPerPage = 5
)

// envelope is the {"status": ..., "data": ...} wrapper the backend puts
// around every resource.
type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
}

type HardwareStatus struct {
	DeviceType string `json:"device_type"`
	DeviceID   string `json:"device_id"`
	Status     string `json:"status"`
	LastPing   string `json:"last_ping"`
}

type DashboardStats struct {
	ActiveSessions  int              `json:"active_sessions"`
	TotalVehicles   int              `json:"total_vehicles"`
	AvailableSpaces int              `json:"available_spaces"`
	TodayRevenue    float64          `json:"today_revenue"`
	HardwareStatus  []HardwareStatus `json:"hardware_status"`
}

type Activity struct {
	ID        int    `json:"id"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	CreatedAt string `json:"created_at"`
	Status    string `json:"status"`
}

type Pagination struct {
	Total       int `json:"total"`
	Pages       int `json:"pages"`
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
}

type ActivityPage struct {
	Activities []Activity `json:"activities"`
	Pagination Pagination `json:"pagination"`
}

// ActiveSession is a vehicle currently parked in the garage.
type ActiveSession struct {
	PlateNumber    string `json:"plateNumber"`
	EntryTime      string `json:"entryTime"`
	ParkingSpaceID int    `json:"parkingSpaceId"`
}

type Transaction struct {
	TicketID    string  `json:"ticketId"`
	Amount      float64 `json:"amount"`
	Method      string  `json:"method"`
	ProcessedAt string  `json:"processedAt"`
}

type DailyReport struct {
	Date          string        `json:"date"`
	TotalVehicles int           `json:"totalVehicles"`
	TotalRevenue  float64       `json:"totalRevenue"`
	Transactions  []Transaction `json:"transactions"`
}

type Profile struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// fetchData GETs endpoint and unwraps the data envelope. On any failure the
// result is nil; the error is logged and returned for callers that care.
func fetchData[T any](ctx context.Context, c *Client, endpoint string) (*T, error) {
	env, err := RequestJSON[envelope[*T]](ctx, c, endpoint, RequestOptions{Method: http.MethodGet})
	if err != nil {
		slog.Error("AUTH CLIENT", "message", "fetching data failed", "endpoint", endpoint, "error", err)
		return nil, err
	}
	return env.Data, nil
}

// DashboardData returns the garage overview shown on the dashboard.
func (c *Client) DashboardData(ctx context.Context) (*DashboardStats, error) {
	return fetchData[DashboardStats](ctx, c, DashboardEndpoint)
}

// Activities returns one page of the activity log, newest first. Pages
// start at 1; a page or perPage below 1 falls back to the defaults.
func (c *Client) Activities(ctx context.Context, page, perPage int) (*ActivityPage, error) {
	if page < 1 {
		page = DefaultActivitiesPage
	}
	if perPage < 1 {
		perPage = DefaultActivitiesPerPage
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	return fetchData[ActivityPage](ctx, c, ActivitiesEndpoint+"?"+q.Encode())
}

func (c *Client) ActiveSessions(ctx context.Context) ([]ActiveSession, error) {
	sessions, err := fetchData[[]ActiveSession](ctx, c, ActiveSessionsEndpoint)
	if err != nil || sessions == nil {
		return nil, err
	}
	return *sessions, nil
}

// DailyReports returns today's transactions and revenue.
func (c *Client) DailyReports(ctx context.Context) (*DailyReport, error) {
	return fetchData[DailyReport](ctx, c, DailyReportsEndpoint)
}

// UserProfile returns the logged in attendant's profile.
func (c *Client) UserProfile(ctx context.Context) (*Profile, error) {
	return fetchData[Profile](ctx, c, ProfileEndpoint)
}
