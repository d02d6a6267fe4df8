package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	id "carebook/pkg/domain"
	"carebook/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

type AuthMiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *AuthMiddlewareSuite) serve(v JWTValidator, header string, next http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	RequireAuth(v, s.logger)(next).ServeHTTP(rec, req)
	return rec
}

func (s *AuthMiddlewareSuite) TestRequireAuth() {
	s.Run("missing header is unauthorized", func() {
		rec := s.serve(stubValidator{}, "", http.NotFoundHandler())
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("invalid token is unauthorized", func() {
		rec := s.serve(stubValidator{err: errors.New("bad sig")}, "Bearer abc", http.NotFoundHandler())
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("malformed subject is unauthorized", func() {
		rec := s.serve(stubValidator{claims: &JWTClaims{UserID: "a b"}}, "Bearer abc", http.NotFoundHandler())
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("valid token sets identity and roles", func() {
		var gotUser id.UserID
		var reviewer bool
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUser = requestcontext.UserID(r.Context())
			reviewer = requestcontext.HasRole(r.Context(), requestcontext.RoleReviewer)
		})
		claims := &JWTClaims{UserID: "patient-1", Roles: []string{requestcontext.RoleReviewer}}
		rec := s.serve(stubValidator{claims: claims}, "Bearer abc", next)
		s.Equal(http.StatusOK, rec.Code)
		s.Equal(id.UserID("patient-1"), gotUser)
		s.True(reviewer)
	})
}

func (s *AuthMiddlewareSuite) TestRequireRole() {
	h := RequireRole(requestcontext.RoleReviewer, s.logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	s.Run("caller without role is forbidden", func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("reviewer passes", func() {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(requestcontext.WithRoles(req.Context(), []string{requestcontext.RoleReviewer}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		s.Equal(http.StatusNoContent, rec.Code)
	})
}
