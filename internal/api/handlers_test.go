package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatroom/internal/ai"
	"github.com/npezzotti/go-chatroom/internal/config"
	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/server"
	"github.com/npezzotti/go-chatroom/internal/session"
	"github.com/npezzotti/go-chatroom/internal/stats"
	"github.com/npezzotti/go-chatroom/internal/testutil"
	"github.com/npezzotti/go-chatroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// findCookie is a helper function to find a cookie by name in the response recorder.
// It returns the cookie if found, or nil if not found.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func decodeApiError(t *testing.T, rr *httptest.ResponseRecorder) ApiError {
	t.Helper()
	var apiErr ApiError
	err := json.NewDecoder(rr.Body).Decode(&apiErr)
	assert.NoError(t, err, "failed to decode error response")
	return apiErr
}

func newTestApp(t *testing.T, db database.GoChatRepository) *GoChatApp {
	return NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, db, nil, &config.Config{
		SigningKey: []byte("test-signing-key"),
	})
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockGoChatRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	expectedUser := database.User{
		Id:           1,
		Username:     "newuser",
		EmailAddress: "newuser@example.com",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	tcases := []struct {
		name        string
		body        any
		mockUser    database.User
		mockErr     error
		profileErr  error
		expectedErr *ApiError
	}{
		{
			name: "successfully creates a new account",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			mockUser: expectedUser,
		},
		{
			name: "profile failure does not fail registration",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			mockUser:   expectedUser,
			profileErr: errors.New("db error"),
		},
		{
			name:        "failed with invalid json body",
			body:        "invalid json",
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with missing username",
			body: RegisterRequest{
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with missing password",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
			},
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with duplicate email",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			mockErr:     database.ErrUserExists,
			expectedErr: NewConflictError(),
		},
		{
			name: "fails with db error",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			mockErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockGoChatRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockUser != (database.User{}) || tc.mockErr != nil {
				regReq := tc.body.(RegisterRequest)
				mockRepo.On("CreateAccount", mock.Anything, mock.MatchedBy(func(req database.CreateAccountParams) bool {
					return req.Username == regReq.Username &&
						req.EmailAddress == regReq.Email &&
						verifyPassword(req.PasswordHash, regReq.Password)
				})).Return(tc.mockUser, tc.mockErr).Once()
			}
			if tc.mockUser != (database.User{}) {
				mockRepo.On("CreateProfileIfAbsent", mock.Anything, tc.mockUser.Id).
					Return(database.Profile{AccountId: tc.mockUser.Id}, tc.profileErr).Once()
			}

			app := newTestApp(t, mockRepo)

			var req *http.Request
			switch v := tc.body.(type) {
			case string:
				req = httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(v))
			case RegisterRequest:
				body, err := json.Marshal(v)
				assert.NoError(t, err, "failed to marshal request body")
				req = httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBuffer(body))
			default:
				t.Fatalf("unsupported request body type: %T", v)
			}

			rr := httptest.NewRecorder()
			app.createAccount(rr, req)

			if tc.expectedErr == nil {
				assert.Equal(t, http.StatusCreated, rr.Code)

				var user types.User
				err := json.NewDecoder(rr.Body).Decode(&user)
				assert.NoError(t, err, "failed to decode response")
				assert.Equal(t, expectedUser.Id, user.Id)
				assert.Equal(t, expectedUser.Username, user.Username)
				assert.Equal(t, expectedUser.EmailAddress, user.EmailAddress)
				assert.Equal(t, database.ProfileColor(expectedUser.Id), user.Color)
			} else {
				apiErr := decodeApiError(t, rr)
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code, "expected status code to match")
				assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError response")
			}
		})
	}
}

func TestAccountHandler(t *testing.T) {
	user := database.User{
		Id:        1,
		Username:  "test",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	tcases := []struct {
		name        string
		userId      int
		mockUser    database.User
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name:     "successfully retrieves account information",
			userId:   1,
			mockUser: user,
		},
		{
			name:        "fails with unauthorized access",
			userId:      0,
			expectedErr: NewUnauthorizedError(),
		},
		{
			name:        "fails with unknown account",
			userId:      1,
			mockErr:     sql.ErrNoRows,
			expectedErr: NewNotFoundError(),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockGoChatRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockUser != (database.User{}) || tc.mockErr != nil {
				mockRepo.On("GetAccountById", mock.Anything, 1).Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			req := httptest.NewRequest(http.MethodGet, "/api/account", nil)

			if tc.userId > 0 {
				// Set user ID in context to simulate an authenticated user
				req = req.WithContext(WithUserId(req.Context(), tc.userId))
			}

			rr := httptest.NewRecorder()
			app.account(rr, req)

			if tc.expectedErr != nil {
				apiErr := decodeApiError(t, rr)
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code, "expected status code to match")
				assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError response")
				return
			}

			assert.Equal(t, http.StatusOK, rr.Code)
			var got types.User
			err := json.NewDecoder(rr.Body).Decode(&got)
			assert.NoError(t, err, "failed to decode response")
			assert.Equal(t, tc.mockUser.Id, got.Id)
			assert.Equal(t, tc.mockUser.Username, got.Username)
		})
	}
}

func Test_updateAccount(t *testing.T) {
	tcases := []struct {
		name        string
		userId      int
		body        string
		mockProfile database.Profile
		mockErr     error
		callsRepo   bool
		wantName    string
		wantHash    bool
		expectedErr *ApiError
	}{
		{
			name:        "updates the display name",
			userId:      1,
			body:        `{"display_name":"  Alice B.  "}`,
			mockProfile: database.Profile{AccountId: 1, DisplayName: "Alice B.", Color: "#3B82F6"},
			callsRepo:   true,
			wantName:    "Alice B.",
		},
		{
			name:        "updates the password",
			userId:      1,
			body:        `{"password":"s3cret"}`,
			mockProfile: database.Profile{AccountId: 1, DisplayName: "alice", Color: "#3B82F6"},
			callsRepo:   true,
			wantHash:    true,
		},
		{
			name:        "fails with unauthorized access",
			body:        `{"display_name":"Alice"}`,
			expectedErr: NewUnauthorizedError(),
		},
		{
			name:        "fails with invalid json body",
			userId:      1,
			body:        `not json`,
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "fails with nothing to change",
			userId:      1,
			body:        `{"display_name":"   "}`,
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "fails with a display name that is too long",
			userId:      1,
			body:        `{"display_name":"` + strings.Repeat("a", maxDisplayNameLength+1) + `"}`,
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "fails with unknown account",
			userId:      1,
			body:        `{"display_name":"Alice"}`,
			mockErr:     database.ErrUserNotFound,
			callsRepo:   true,
			wantName:    "Alice",
			expectedErr: NewNotFoundError(),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockGoChatRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.callsRepo {
				mockRepo.On("UpdateAccount", mock.Anything, mock.MatchedBy(func(p database.UpdateAccountParams) bool {
					if tc.wantHash && !verifyPassword(p.PasswordHash, "s3cret") {
						return false
					}
					return p.AccountId == tc.userId && p.DisplayName == tc.wantName
				})).Return(tc.mockProfile, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			req := httptest.NewRequest(http.MethodPut, "/api/account", strings.NewReader(tc.body))
			if tc.userId > 0 {
				req = req.WithContext(WithUserId(req.Context(), tc.userId))
			}

			rr := httptest.NewRecorder()
			app.updateAccount(rr, req)

			if tc.expectedErr != nil {
				apiErr := decodeApiError(t, rr)
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code, "expected status code to match")
				assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError response")
				return
			}

			assert.Equal(t, http.StatusOK, rr.Code)
			var got types.Profile
			err := json.NewDecoder(rr.Body).Decode(&got)
			assert.NoError(t, err, "failed to decode response")
			assert.Equal(t, tc.mockProfile.AccountId, got.Id)
			assert.Equal(t, tc.mockProfile.DisplayName, got.DisplayName)
			assert.Equal(t, tc.mockProfile.Color, got.Color)
		})
	}
}

func Test_session(t *testing.T) {
	user := database.User{Id: 3, Username: "carol", EmailAddress: "carol@example.com"}
	profile := database.Profile{AccountId: 3, DisplayName: "carol", Color: "#22C55E"}

	tcases := []struct {
		name        string
		userId      int
		accountErr  error
		profileErr  error
		expectedErr *ApiError
	}{
		{name: "returns user and profile", userId: 3},
		{name: "unauthorized", userId: 0, expectedErr: NewUnauthorizedError()},
		{name: "account not found", userId: 3, accountErr: sql.ErrNoRows, expectedErr: NewNotFoundError()},
		{name: "profile error", userId: 3, profileErr: errors.New("db error"), expectedErr: NewInternalServerError(nil)},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockGoChatRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.userId > 0 {
				mockRepo.On("GetAccountById", mock.Anything, tc.userId).Return(user, tc.accountErr).Once()
				if tc.accountErr == nil {
					mockRepo.On("CreateProfileIfAbsent", mock.Anything, tc.userId).Return(profile, tc.profileErr).Once()
				}
			}

			app := newTestApp(t, mockRepo)
			req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
			if tc.userId > 0 {
				req = req.WithContext(WithUserId(req.Context(), tc.userId))
			}

			rr := httptest.NewRecorder()
			app.session(rr, req)

			if tc.expectedErr != nil {
				apiErr := decodeApiError(t, rr)
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code)
				assert.Equal(t, *tc.expectedErr, apiErr)
				return
			}

			assert.Equal(t, http.StatusOK, rr.Code)
			var resp SessionResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, user.Id, resp.Id)
			assert.Equal(t, user.Username, resp.Username)
			assert.Equal(t, types.Profile{Id: 3, DisplayName: "carol", Color: "#22C55E"}, resp.Profile)
		})
	}
}

func Test_login(t *testing.T) {
	hash, err := hashPassword("password")
	require.NoError(t, err)
	user := database.User{Id: 1, Username: "test", EmailAddress: "test@example.com", PasswordHash: hash}

	tcases := []struct {
		name        string
		body        string
		mockUser    database.User
		mockErr     error
		lookup      bool
		expectedErr *ApiError
	}{
		{
			name:     "successful login",
			body:     `{"email":"test@example.com","password":"password"}`,
			mockUser: user,
			lookup:   true,
		},
		{
			name:        "invalid json",
			body:        `{`,
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "missing password",
			body:        `{"email":"test@example.com"}`,
			expectedErr: NewBadRequestError(),
		},
		{
			name:        "unknown email",
			body:        `{"email":"nobody@example.com","password":"password"}`,
			mockErr:     sql.ErrNoRows,
			lookup:      true,
			expectedErr: NewNotFoundError(),
		},
		{
			name:        "wrong password",
			body:        `{"email":"test@example.com","password":"nope"}`,
			mockUser:    user,
			lookup:      true,
			expectedErr: NewUnauthorizedError(),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockGoChatRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.lookup {
				mockRepo.On("GetAccountByEmail", mock.Anything, mock.AnythingOfType("string")).Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tc.body)))

			if tc.expectedErr != nil {
				apiErr := decodeApiError(t, rr)
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code)
				assert.Equal(t, *tc.expectedErr, apiErr)
				assert.Nil(t, findCookie(rr, tokenCookieKey), "expected no token cookie")
				return
			}

			assert.Equal(t, http.StatusOK, rr.Code)
			cookie := findCookie(rr, tokenCookieKey)
			require.NotNil(t, cookie, "expected token cookie to be set")
			userId, err := app.extractUserIdFromToken(cookie.Value)
			assert.NoError(t, err)
			assert.Equal(t, user.Id, userId)
		})
	}
}

func Test_logout(t *testing.T) {
	app := newTestApp(t, &database.MockGoChatRepository{})
	rr := httptest.NewRecorder()
	app.logout(rr, httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookie := findCookie(rr, tokenCookieKey)
	require.NotNil(t, cookie, "expected token cookie to be overwritten")
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.Expires.Before(time.Now()), "expected cookie to be expired")
}

func Test_listRooms(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Minute)

	tcases := []struct {
		name        string
		userId      int
		rooms       []database.Room
		listErr     error
		expected    []types.RoomSummary
		expectedErr *ApiError
	}{
		{
			name:   "lists rooms with counts",
			userId: 1,
			rooms:  []database.Room{{Id: "r1", Name: "Planning", CreatedAt: now}},
			expected: []types.RoomSummary{
				{Id: "r1", Name: "Planning", ParticipantCount: 2, OnlineCount: 1},
			},
		},
		{
			name:     "no rooms",
			userId:   1,
			rooms:    []database.Room{},
			expected: []types.RoomSummary{},
		},
		{
			name:        "unauthorized",
			expectedErr: NewUnauthorizedError(),
		},
		{
			name:        "store error",
			userId:      1,
			listErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockGoChatRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.userId > 0 {
				mockRepo.On("ListRoomsForAccount", mock.Anything, tc.userId).Return(tc.rooms, tc.listErr).Once()
			}
			for _, r := range tc.rooms {
				mockRepo.On("GetParticipantsWithPresence", mock.Anything, r.Id).Return([]database.Participant{
					{AccountId: 1, DisplayName: "alice", LastSeen: &recent},
					{AccountId: 2, DisplayName: "bob"},
				}, nil).Once()
			}

			app := newTestApp(t, mockRepo)
			req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
			if tc.userId > 0 {
				req = req.WithContext(WithUserId(req.Context(), tc.userId))
			}

			rr := httptest.NewRecorder()
			app.listRooms(rr, req)

			if tc.expectedErr != nil {
				apiErr := decodeApiError(t, rr)
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code)
				assert.Equal(t, *tc.expectedErr, apiErr)
				return
			}

			assert.Equal(t, http.StatusOK, rr.Code)
			var got []types.RoomSummary
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
			require.Len(t, got, len(tc.expected))
			for i := range got {
				assert.Equal(t, tc.expected[i].Id, got[i].Id)
				assert.Equal(t, tc.expected[i].Name, got[i].Name)
				assert.Equal(t, tc.expected[i].ParticipantCount, got[i].ParticipantCount)
				assert.Equal(t, tc.expected[i].OnlineCount, got[i].OnlineCount)
			}
		})
	}
}

type stubResponder struct{}

func (stubResponder) Generate(context.Context, []ai.Turn, string) string { return "ok" }
func (stubResponder) Probe(context.Context) bool                        { return true }

func Test_serveWs(t *testing.T) {
	t.Run("successful websocket upgrade and client registration", func(t *testing.T) {
		logger := testutil.TestLogger(t)
		broker := database.NewBroker(logger)
		repo := database.NewMemoryRepository(broker, logger)
		u, err := repo.CreateAccount(context.Background(), database.CreateAccountParams{
			Username:     "testuser",
			EmailAddress: "testuser@example.com",
		})
		require.NoError(t, err)

		registered := make(chan struct{})
		su := &stats.MockStatsUpdater{}
		su.On("Incr", stats.NumActiveSessions).Run(func(mock.Arguments) { close(registered) }).Once()
		su.On("Decr", mock.Anything).Maybe()

		cs, err := server.NewChatServer(logger, repo, broker, stubResponder{}, su, session.DefaultOptions())
		require.NoError(t, err)
		go cs.Run()
		defer cs.Shutdown(context.Background())

		app := NewGoChatApp(http.NewServeMux(), logger, cs, repo, nil, &config.Config{})

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			app.serveWs(w, r.WithContext(WithUserId(r.Context(), u.Id)))
		}))
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		defer func() {
			if conn != nil {
				conn.Close()
			}
		}()
		assert.NoError(t, err)
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

		select {
		case <-registered:
		case <-time.After(time.Second):
			t.Error("expected client to be registered")
		}
	})

	t.Run("rejects disallowed origin", func(t *testing.T) {
		mockRepo := &database.MockGoChatRepository{}
		mockRepo.On("GetAccountById", mock.Anything, 1).Return(database.User{Id: 1, Username: "test"}, nil).Once()
		defer mockRepo.AssertExpectations(t)

		app := NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, mockRepo, nil, &config.Config{
			AllowedOrigins: []string{"http://allowed.example"},
		})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			app.serveWs(w, r.WithContext(WithUserId(r.Context(), 1)))
		}))
		defer srv.Close()

		header := http.Header{}
		header.Set("Origin", "http://evil.example")
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if conn != nil {
			conn.Close()
		}
		assert.Error(t, err)
		if assert.NotNil(t, resp) {
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		}
	})

	errorTestCases := []struct {
		name        string
		userId      int
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name:        "unauthorized user",
			userId:      0,
			expectedErr: NewUnauthorizedError(),
		},
		{
			name:        "user not found",
			userId:      1,
			mockErr:     sql.ErrNoRows,
			expectedErr: NewNotFoundError(),
		},
		{
			name:        "db error",
			userId:      1,
			mockErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(nil),
		},
	}

	for _, tc := range errorTestCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockGoChatRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.mockErr != nil {
				mockRepo.On("GetAccountById", mock.Anything, tc.userId).Return(database.User{}, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
			if tc.userId > 0 {
				req = req.WithContext(WithUserId(req.Context(), tc.userId))
			}

			rr := httptest.NewRecorder()
			app.serveWs(rr, req)

			apiErr := decodeApiError(t, rr)
			assert.Equal(t, apiErr.StatusCode, rr.Code)
			assert.Equal(t, *tc.expectedErr, apiErr, "expected ApiError to match")
		})
	}
}
