// Package backendtest runs an in-process stand-in for the garage REST backend
// so the client can be tested against real HTTP.
package backendtest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("backendtest-signing-key")

// Session is a parking session as listed by GET /api/sessions.
type Session struct {
	ID      string `json:"id"`
	Plate   string `json:"plate"`
	Level   int    `json:"level"`
	Started string `json:"started"`
}

type Server struct {
	Username string
	Password string

	rotateRefresh bool
	refreshDelay  time.Duration
	routes        []route

	mux         sync.Mutex
	failRefresh bool
	access      map[string]bool
	refresh     map[string]bool
	calls       map[string]int
	sessions    []Session

	server *httptest.Server
}

type route struct {
	method  string
	path    string
	handler echo.HandlerFunc
	auth    bool
}

type Option func(*Server)

// WithRotateRefresh makes the refresh endpoint issue a new refresh token.
func WithRotateRefresh() Option {
	return func(s *Server) {
		s.rotateRefresh = true
	}
}

// WithRefreshDelay holds every refresh response, widening the window in
// which concurrent callers pile up.
func WithRefreshDelay(d time.Duration) Option {
	return func(s *Server) {
		s.refreshDelay = d
	}
}

// WithRoute registers an extra route, e.g. a scripted resource for a test.
// When auth is set the route sits behind RequireAuth.
func WithRoute(method, path string, h echo.HandlerFunc, auth bool) Option {
	return func(s *Server) {
		s.routes = append(s.routes, route{method: method, path: path, handler: h, auth: auth})
	}
}

// New starts a backend accepting username/password.
func New(username, password string, options ...Option) *Server {
	s := &Server{
		Username: username,
		Password: password,
		access:   map[string]bool{},
		refresh:  map[string]bool{},
		calls:    map[string]int{},
		sessions: []Session{
			{ID: "s-1", Plate: "ZH 12345", Level: 1, Started: "2024-03-01T08:15:00Z"},
			{ID: "s-2", Plate: "BE 987", Level: 2, Started: "2024-03-01T09:40:00Z"},
		},
	}
	for _, opt := range options {
		opt(s)
	}
	s.start()
	return s
}

func (s *Server) start() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.countCalls)
	e.POST("/api/auth/login", s.loginEndpoint)
	e.POST("/api/auth/refresh", s.refreshEndpoint)
	e.GET("/api/auth/verify", s.verifyEndpoint, s.RequireAuth)
	e.GET("/api/health", s.healthEndpoint)
	e.GET("/api/sessions", s.sessionsEndpoint, s.RequireAuth)
	e.GET("/api/dashboard/stats/overview", s.dashboardEndpoint, s.RequireAuth)
	e.GET("/api/activities", s.activitiesEndpoint, s.RequireAuth)
	e.GET("/api/parking-sessions/active", s.activeSessionsEndpoint, s.RequireAuth)
	e.GET("/api/reports/daily", s.dailyReportEndpoint, s.RequireAuth)
	e.GET("/api/auth/profile", s.profileEndpoint, s.RequireAuth)
	for _, r := range s.routes {
		if r.auth {
			e.Add(r.method, r.path, r.handler, s.RequireAuth)
		} else {
			e.Add(r.method, r.path, r.handler)
		}
	}
	s.server = httptest.NewServer(e.Server.Handler)
}

func (s *Server) Close() {
	s.server.Close()
}

func (s *Server) URL() string {
	if s.server == nil {
		panic("Server has not been started")
	}
	return s.server.URL
}

// Calls returns how often "METHOD /path" was requested.
func (s *Server) Calls(route string) int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.calls[route]
}

// FailRefresh makes every refresh call answer 401.
func (s *Server) FailRefresh(fail bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.failRefresh = fail
}

// IssuePair mints a valid access/refresh pair without going through login.
func (s *Server) IssuePair() (string, string, error) {
	access, err := s.newAccessToken()
	if err != nil {
		return "", "", err
	}
	refresh := uuid.NewString()
	s.mux.Lock()
	s.refresh[refresh] = true
	s.mux.Unlock()
	return access, refresh, nil
}

// Expire invalidates an access token so the next use gets a 401.
func (s *Server) Expire(accessToken string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.access, accessToken)
}

// ExpireAll invalidates every issued access token.
func (s *Server) ExpireAll() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.access = map[string]bool{}
}

// RequireAuth answers 401 unless the request carries a live bearer token.
func (s *Server) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, found := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
		if !found || !s.valid(raw) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Token expired"})
		}
		return next(c)
	}
}

func (s *Server) valid(raw string) bool {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return testSigningKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return false
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.access[raw]
}

func (s *Server) newAccessToken() (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   s.Username,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := t.SignedString(testSigningKey)
	if err != nil {
		return "", err
	}
	s.mux.Lock()
	s.access[signed] = true
	s.mux.Unlock()
	return signed, nil
}

func (s *Server) countCalls(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mux.Lock()
		s.calls[c.Request().Method+" "+c.Path()]++
		s.mux.Unlock()
		return next(c)
	}
}

func (s *Server) loginEndpoint(c echo.Context) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Malformed request"})
	}
	if body.Username != s.Username || body.Password != s.Password {
		return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Invalid username or password"})
	}
	access, refresh, err := s.IssuePair()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"token": access, "refresh_token": refresh})
}

func (s *Server) refreshEndpoint(c echo.Context) error {
	if s.refreshDelay > 0 {
		time.Sleep(s.refreshDelay)
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Malformed request"})
	}
	s.mux.Lock()
	known := s.refresh[body.RefreshToken]
	fail := s.failRefresh
	s.mux.Unlock()
	if fail || !known {
		return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Invalid refresh token"})
	}

	access, err := s.newAccessToken()
	if err != nil {
		return err
	}
	res := map[string]string{"token": access}
	if s.rotateRefresh {
		rotated := uuid.NewString()
		s.mux.Lock()
		delete(s.refresh, body.RefreshToken)
		s.refresh[rotated] = true
		s.mux.Unlock()
		res["refresh_token"] = rotated
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) verifyEndpoint(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"valid": true})
}

func (s *Server) healthEndpoint(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) sessionsEndpoint(c echo.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	return c.JSON(http.StatusOK, s.sessions)
}

// data wraps v the way the backend wraps every resource.
func data(c echo.Context, v any) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "success", "data": v})
}

func (s *Server) dashboardEndpoint(c echo.Context) error {
	s.mux.Lock()
	active := len(s.sessions)
	s.mux.Unlock()
	return data(c, map[string]any{
		"active_sessions":  active,
		"total_vehicles":   42,
		"available_spaces": 118,
		"today_revenue":    312.5,
		"hardware_status": []map[string]string{
			{"device_type": "gate", "device_id": "exit-1", "status": "online", "last_ping": "2024-03-01T10:00:00Z"},
		},
	})
}

// activitiesEndpoint echoes the requested page so callers can check the
// query they sent. Missing parameters default like the real backend does.
func (s *Server) activitiesEndpoint(c echo.Context) error {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil {
		page = 1
	}
	perPage, err := strconv.Atoi(c.QueryParam("per_page"))
	if err != nil {
		perPage = 20
	}
	return data(c, map[string]any{
		"activities": []map[string]any{
			{"id": 7, "action": "exit", "details": "ZH 12345 left through exit-1", "created_at": "2024-03-01T10:02:00Z", "status": "success"},
		},
		"pagination": map[string]int{"total": 1, "pages": 1, "current_page": page, "per_page": perPage},
	})
}

func (s *Server) activeSessionsEndpoint(c echo.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	out := make([]map[string]any, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, map[string]any{
			"plateNumber":    session.Plate,
			"entryTime":      session.Started,
			"parkingSpaceId": session.Level*100 + 1,
		})
	}
	return data(c, out)
}

func (s *Server) dailyReportEndpoint(c echo.Context) error {
	return data(c, map[string]any{
		"date":          "2024-03-01",
		"totalVehicles": 1,
		"totalRevenue":  12.5,
		"transactions": []map[string]any{
			{"ticketId": "T-1001", "amount": 12.5, "method": "card", "processedAt": "2024-03-01T10:02:00Z"},
		},
	})
}

func (s *Server) profileEndpoint(c echo.Context) error {
	return data(c, map[string]string{
		"fullName": "Garage Attendant",
		"email":    s.Username + "@parkdesk.example",
		"role":     "attendant",
	})
}
