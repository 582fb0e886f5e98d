package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refreshServer(t *testing.T, status int, body string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "R", in["refresh_token"])
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeneratorHTTP(t *testing.T) {
	srv := refreshServer(t, http.StatusOK, `{"token":"T2","refresh_token":"R2"}`)

	pair, err := NewGeneratorHTTP(srv.Client(), srv.URL).Generate(context.Background(), "R")
	require.NoError(t, err)
	assert.Equal(t, Pair{Access: "T2", Refresh: "R2"}, pair)
}

func TestGeneratorHTTPWithoutRotation(t *testing.T) {
	srv := refreshServer(t, http.StatusOK, `{"token":"T2"}`)

	pair, err := NewGeneratorHTTP(nil, srv.URL).Generate(context.Background(), "R")
	require.NoError(t, err)
	assert.Equal(t, Pair{Access: "T2"}, pair)
}

func TestExchangeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "rejected",
			status: http.StatusUnauthorized,
			body:   `{"message":"Invalid refresh token"}`,
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
				assert.Contains(t, statusErr.Body, "Invalid refresh token")
			},
		},
		{
			name:   "missing token",
			status: http.StatusOK,
			body:   `{"refresh_token":"R2"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrMissingToken)
			},
		},
		{
			name:   "malformed",
			status: http.StatusOK,
			body:   `<html>`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "malformed response")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := refreshServer(t, tt.status, tt.body)
			_, err := Exchange(context.Background(), srv.Client(), srv.URL, map[string]string{"refresh_token": "R"})
			tt.check(t, err)
		})
	}
}
