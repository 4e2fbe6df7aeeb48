package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// recovered converts a value passed to panic into an error.
func recovered(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("%v", v)
}

// errorHandler answers a panicking handler with a 500 ApiError and closes
// the connection, as the handler may have stopped mid-response.
func (s *GoChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			err := recovered(v)
			if errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}

			s.log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, err)
			errResp := NewInternalServerError(err)
			w.Header().Set("Connection", "close")
			s.writeJson(w, errResp.StatusCode, errResp)
		}()

		next.ServeHTTP(w, r)
	})
}

// sessionToken returns the JWT sent with r. The session cookie wins over
// an Authorization bearer header.
func sessionToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(tokenCookieKey); err == nil && c.Value != "" {
		return c.Value, true
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func (s *GoChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := sessionToken(r)
		if !ok {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		userId, err := s.extractUserIdFromToken(token)
		if err != nil {
			s.log.Printf("rejecting token for %s %s: %v", r.Method, r.URL.Path, err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next(w, r.WithContext(WithUserId(r.Context(), userId)))
	}
}
