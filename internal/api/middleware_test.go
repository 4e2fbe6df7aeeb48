package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-chatroom/internal/config"
	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/testutil"
	"github.com/npezzotti/go-chatroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_errorHandler(t *testing.T) {
	tcases := []struct {
		name     string
		handler  http.HandlerFunc
		code     int
		body     string
		logged   string
		closeHdr bool
	}{
		{
			name: "passes through",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			},
			code: http.StatusOK,
			body: "ok",
		},
		{
			name:     "recovers an error panic",
			handler:  func(http.ResponseWriter, *http.Request) { panic(errors.New("test panic")) },
			code:     http.StatusInternalServerError,
			logged:   "panic serving GET /api/rooms: test panic",
			closeHdr: true,
		},
		{
			name:     "recovers a non-error panic",
			handler:  func(http.ResponseWriter, *http.Request) { panic(42) },
			code:     http.StatusInternalServerError,
			logged:   "panic serving GET /api/rooms: 42",
			closeHdr: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			logger, buf := testutil.CaptureLogger()
			app := &GoChatApp{log: logger}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
			app.errorHandler(tc.handler).ServeHTTP(rr, req)

			assert.Equal(t, tc.code, rr.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rr.Body.String())
			}
			if tc.closeHdr {
				assert.Equal(t, "close", rr.Header().Get("Connection"))
				apiErr := decodeApiError(t, rr)
				assert.Equal(t, *NewInternalServerError(nil), apiErr)
			}
			if tc.logged != "" {
				assert.Contains(t, buf.String(), tc.logged)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func Test_errorHandler_AbortPropagates(t *testing.T) {
	logger, buf := testutil.CaptureLogger()
	app := &GoChatApp{log: logger}
	handler := app.errorHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/ws", nil))
	})
	assert.Empty(t, buf.String())
}

func Test_authMiddleware(t *testing.T) {
	logger, buf := testutil.CaptureLogger()
	app := NewGoChatApp(http.NewServeMux(), logger, nil, &database.MockGoChatRepository{}, nil, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})

	u := types.User{Id: 7, Username: "test", EmailAddress: "test@example.com"}
	valid, err := app.createJwtForSession(u, defaultJwtExpiration)
	require.NoError(t, err)
	expired, err := app.createJwtForSession(u, -time.Minute)
	require.NoError(t, err)

	tcases := []struct {
		name   string
		cookie string
		header string
		code   int
		logged string
	}{
		{name: "valid cookie", cookie: valid, code: http.StatusOK},
		{name: "valid bearer header", header: "Bearer " + valid, code: http.StatusOK},
		{name: "cookie wins over header", cookie: valid, header: "Bearer invalid", code: http.StatusOK},
		{name: "missing token", code: http.StatusUnauthorized},
		{name: "non-bearer header", header: "Basic dGVzdDp0ZXN0", code: http.StatusUnauthorized},
		{name: "invalid cookie", cookie: "invalid-token", code: http.StatusUnauthorized, logged: "rejecting token for GET /api/account"},
		{name: "expired bearer", header: "Bearer " + expired, code: http.StatusUnauthorized, logged: "rejecting token"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var gotId int
			next := func(w http.ResponseWriter, r *http.Request) {
				gotId, _ = UserId(r.Context())
				w.WriteHeader(http.StatusOK)
			}

			req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
			if tc.cookie != "" {
				req.AddCookie(createJwtCookie(tc.cookie, defaultJwtExpiration))
			}
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			rr := httptest.NewRecorder()
			app.authMiddleware(next)(rr, req)

			assert.Equal(t, tc.code, rr.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, u.Id, gotId)
				assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
			} else {
				assert.Zero(t, gotId, "expected next not to be called")
				assert.Equal(t, *NewUnauthorizedError(), decodeApiError(t, rr))
			}
			if tc.logged != "" {
				assert.Contains(t, buf.String(), tc.logged)
			}
		})
	}
}
