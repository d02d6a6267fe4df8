package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"carebook/internal/booking/service"
	"carebook/internal/booking/store"
	"carebook/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(service.New(store.NewInMemory()), logger)
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) claim(userID, timeOfDay string) *http.Response {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/booking/claim", map[string]any{
		"resourceId": "dr-1",
		"date":       "2025-03-01",
		"timeOfDay":  timeOfDay,
		"kind":       "video",
	})
	return testutil.DoRequest(s.router, testutil.WithAuth(req, userID)).Result()
}

func (s *HandlerSuite) action(path, userID, bookingID string) int {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"bookingId": bookingID})
	return testutil.DoRequest(s.router, testutil.WithAuth(req, userID)).Code
}

func (s *HandlerSuite) TestClaim() {
	s.Run("requires authentication", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/booking/claim", map[string]any{
			"resourceId": "dr-1", "date": "2025-03-01", "timeOfDay": "09:00", "kind": "video",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("first claim wins", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/booking/claim", map[string]any{
			"resourceId": "dr-1", "date": "2025-03-01", "timeOfDay": "09:00", "kind": "video",
		})
		rr := testutil.DoRequest(s.router, testutil.WithAuth(req, "patient-1"))
		s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
		resp := testutil.UnmarshalResponse[ClaimResponse](s.T(), rr)
		s.Equal("dr-1_20250301_0900", resp.BookingID)
	})

	s.Run("second claim on the same slot conflicts", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/booking/claim", map[string]any{
			"resourceId": "DR-1", "date": "2025/03/01", "timeOfDay": "9:00 am", "kind": "Video",
		})
		rr := testutil.DoRequest(s.router, testutil.WithAuth(req, "patient-2"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
		s.Equal("slot_taken", testutil.UnmarshalErrorResponse(s.T(), rr)["error_description"])
	})

	s.Run("malformed time", func() {
		resp := s.claim("patient-1", "quarter past nine")
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("missing fields", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/booking/claim", map[string]any{"resourceId": "dr-1"})
		rr := testutil.DoRequest(s.router, testutil.WithAuth(req, "patient-1"))
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *HandlerSuite) TestLifecycle() {
	s.Require().Equal(http.StatusCreated, s.claim("patient-1", "09:00").StatusCode)
	const bookingID = "dr-1_20250301_0900"

	s.Equal(http.StatusForbidden, s.action("/booking/cancel", "patient-2", bookingID))
	s.Equal(http.StatusNotFound, s.action("/booking/cancel", "patient-1", "dr-1_20250301_1000"))
	s.Equal(http.StatusForbidden, s.action("/booking/confirm", "patient-1", bookingID))
	s.Equal(http.StatusOK, s.action("/booking/confirm", "dr-1", bookingID))
	s.Equal(http.StatusOK, s.action("/booking/cancel", "patient-1", bookingID))
	s.Equal(http.StatusUnprocessableEntity, s.action("/booking/complete", "dr-1", bookingID))

	s.Equal(http.StatusCreated, s.claim("patient-2", "09:00").StatusCode, "cancelled slot can be reclaimed")
}

func (s *HandlerSuite) TestReadAndList() {
	s.Require().Equal(http.StatusCreated, s.claim("patient-1", "09:00").StatusCode)
	s.Require().Equal(http.StatusCreated, s.claim("patient-1", "10:00").StatusCode)

	s.Run("owner reads booking", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/booking/dr-1_20250301_0900")
		rr := testutil.DoRequest(s.router, testutil.WithAuth(req, "patient-1"))
		s.Require().Equal(http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[BookingResponse](s.T(), rr)
		s.Equal("pending", resp.Status)
		s.Equal("09:00", resp.TimeOfDay)
		s.Equal("video", resp.Kind)
	})

	s.Run("stranger is forbidden", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/booking/dr-1_20250301_0900")
		rr := testutil.DoRequest(s.router, testutil.WithAuth(req, "patient-2"))
		s.Equal(http.StatusForbidden, rr.Code)
	})

	s.Run("invalid id", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/booking/not;valid")
		rr := testutil.DoRequest(s.router, testutil.WithAuth(req, "patient-1"))
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("caller's bookings", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/booking")
		rr := testutil.DoRequest(s.router, testutil.WithAuth(req, "patient-1"))
		s.Require().Equal(http.StatusOK, rr.Code)
		s.Len(testutil.UnmarshalResponse[BookingListResponse](s.T(), rr).Bookings, 2)
	})

	s.Run("resource calendar", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/booking?as=resource")
		rr := testutil.DoRequest(s.router, testutil.WithAuth(req, "dr-1"))
		s.Require().Equal(http.StatusOK, rr.Code)
		s.Len(testutil.UnmarshalResponse[BookingListResponse](s.T(), rr).Bookings, 2)
	})

	s.Run("empty list is an empty array", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/booking")
		rr := testutil.DoRequest(s.router, testutil.WithAuth(req, "patient-3"))
		s.Require().Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"bookings":[]}`, rr.Body.String())
	})

	s.Run("unknown view", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/booking?as=admin")
		rr := testutil.DoRequest(s.router, testutil.WithAuth(req, "patient-1"))
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}
