package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"carebook/internal/booking/models"
	"carebook/internal/booking/store"
	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
	"carebook/pkg/platform/sentinel"
)

type bookingStore interface {
	Get(ctx context.Context, key id.BookingID) (*models.Booking, error)
	Transact(ctx context.Context, key id.BookingID, fn store.TransactFunc) (*models.Booking, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Booking, error)
	ListByResource(ctx context.Context, resourceID id.ResourceID) ([]*models.Booking, error)
}

var errSlotTaken = dErrors.New(dErrors.CodeConflict, "slot_taken")

// contractSuite holds the behaviour every booking store shares. Backend
// suites embed it and assign store in SetupTest.
type contractSuite struct {
	suite.Suite
	store bookingStore
	ctx   context.Context
	now   time.Time
}

func (s *contractSuite) slot(resource, date, timeOfDay string) models.SlotKey {
	key, err := models.DeriveSlotKey(resource, date, timeOfDay)
	s.Require().NoError(err)
	return key
}

// claim is the allocator's decision in miniature.
func (s *contractSuite) claim(key models.SlotKey, userID id.UserID) func(*models.Booking) (*models.Booking, error) {
	return func(current *models.Booking) (*models.Booking, error) {
		if current.Occupies() {
			return nil, errSlotTaken
		}
		return models.NewBooking(key, userID, models.KindVideo, s.now)
	}
}

func (s *contractSuite) TestClaimThenGet() {
	key := s.slot("dr-1", "2025-03-01", "09:00")

	b, err := s.store.Transact(s.ctx, key.ID, s.claim(key, "patient-1"))
	s.Require().NoError(err)
	s.Equal(id.BookingID("dr-1_20250301_0900"), b.ID)

	found, err := s.store.Get(s.ctx, key.ID)
	s.Require().NoError(err)
	s.Equal(id.UserID("patient-1"), found.UserID)
	s.Equal(models.StatusPending, found.Status)
	s.True(s.now.Equal(found.CreatedAt))

	_, err = s.store.Transact(s.ctx, key.ID, s.claim(key, "patient-2"))
	s.ErrorIs(err, errSlotTaken)
}

func (s *contractSuite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "dr-1_20250301_1000")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestDecisionErrorWritesNothing() {
	key := s.slot("dr-1", "2025-03-01", "11:00")
	boom := errors.New("boom")

	_, err := s.store.Transact(s.ctx, key.ID, func(*models.Booking) (*models.Booking, error) {
		return nil, boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.Get(s.ctx, key.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestNoChangeLeavesSlot() {
	key := s.slot("dr-1", "2025-03-01", "12:00")
	b, err := s.store.Transact(s.ctx, key.ID, func(*models.Booking) (*models.Booking, error) {
		return nil, nil
	})
	s.Require().NoError(err)
	s.Nil(b)

	_, err = s.store.Get(s.ctx, key.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestReclaimAfterCancel() {
	key := s.slot("dr-1", "2025-03-01", "13:00")
	_, err := s.store.Transact(s.ctx, key.ID, s.claim(key, "patient-1"))
	s.Require().NoError(err)

	_, err = s.store.Transact(s.ctx, key.ID, func(current *models.Booking) (*models.Booking, error) {
		current.MoveTo(models.StatusCancelled, s.now)
		return current, nil
	})
	s.Require().NoError(err)

	b, err := s.store.Transact(s.ctx, key.ID, s.claim(key, "patient-2"))
	s.Require().NoError(err)
	s.Equal(id.UserID("patient-2"), b.UserID)

	mine, err := s.store.ListByUser(s.ctx, "patient-1")
	s.Require().NoError(err)
	s.Empty(mine, "the slot now belongs to patient-2")

	theirs, err := s.store.ListByUser(s.ctx, "patient-2")
	s.Require().NoError(err)
	s.Len(theirs, 1)
}

func (s *contractSuite) TestListsNewestFirst() {
	for i, hhmm := range []string{"09:00", "10:00", "11:00"} {
		key := s.slot("dr-2", "2025-03-02", hhmm)
		createdAt := s.now.Add(time.Duration(i) * time.Minute)
		_, err := s.store.Transact(s.ctx, key.ID, func(*models.Booking) (*models.Booking, error) {
			return models.NewBooking(key, "patient-9", models.KindPhone, createdAt)
		})
		s.Require().NoError(err)
	}

	byUser, err := s.store.ListByUser(s.ctx, "patient-9")
	s.Require().NoError(err)
	s.Require().Len(byUser, 3)
	s.Equal("11:00", byUser[0].TimeOfDay)
	s.Equal("09:00", byUser[2].TimeOfDay)

	byResource, err := s.store.ListByResource(s.ctx, "dr-2")
	s.Require().NoError(err)
	s.Len(byResource, 3)

	none, err := s.store.ListByResource(s.ctx, "dr-404")
	s.Require().NoError(err)
	s.NotNil(none)
	s.Empty(none)
}

func (s *contractSuite) TestConcurrentClaimsHaveOneWinner() {
	key := s.slot("dr-1", "2025-03-01", "09:00")
	const claimers = 50

	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		taken atomic.Int32
		start = make(chan struct{})
	)
	for i := range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			userID := id.UserID(fmt.Sprintf("patient-%d", i))
			_, err := s.store.Transact(s.ctx, key.ID, s.claim(key, userID))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, errSlotTaken):
				taken.Add(1)
			default:
				s.Failf("unexpected error", "%v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(claimers-1), taken.Load())
}
