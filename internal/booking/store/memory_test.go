package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"carebook/internal/booking/models"
	"carebook/internal/booking/store"
	dErrors "carebook/pkg/domain-errors"
	"carebook/pkg/platform/sentinel"
)

type MemoryBookingStoreSuite struct {
	contractSuite
	memory *store.InMemory
}

func TestMemoryBookingStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryBookingStoreSuite))
}

func (s *MemoryBookingStoreSuite) SetupTest() {
	s.memory = store.NewInMemory()
	s.store = s.memory
	s.ctx = context.Background()
	s.now = time.Date(2025, 2, 20, 8, 0, 0, 0, time.UTC)
}

func (s *MemoryBookingStoreSuite) TestCancelledContext() {
	key := s.slot("dr-1", "2025-03-01", "09:00")
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.memory.Transact(ctx, key.ID, s.claim(key, "patient-1"))
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.ErrorIs(err, context.Canceled)

	_, err = s.memory.Get(s.ctx, key.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryBookingStoreSuite) TestDeadlineDuringDecision() {
	key := s.slot("dr-1", "2025-03-01", "09:00")
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Millisecond)
	defer cancel()

	_, err := s.memory.Transact(ctx, key.ID, func(current *models.Booking) (*models.Booking, error) {
		<-ctx.Done()
		return models.NewBooking(key, "patient-1", models.KindVideo, s.now)
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))

	_, err = s.memory.Get(s.ctx, key.ID)
	s.ErrorIs(err, sentinel.ErrNotFound, "nothing is written once the deadline passed")
}

func (s *MemoryBookingStoreSuite) TestReturnedBookingIsACopy() {
	key := s.slot("dr-1", "2025-03-01", "09:00")
	b, err := s.memory.Transact(s.ctx, key.ID, s.claim(key, "patient-1"))
	s.Require().NoError(err)

	b.Status = models.StatusCompleted
	found, err := s.memory.Get(s.ctx, key.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, found.Status)
}
