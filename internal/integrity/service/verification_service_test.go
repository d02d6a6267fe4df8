package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"carebook/internal/integrity/ledger"
	"carebook/internal/integrity/ledger/memory"
	ledgermocks "carebook/internal/integrity/ledger/mocks"
	"carebook/internal/integrity/metrics"
	"carebook/internal/integrity/models"
	"carebook/internal/integrity/service"
	"carebook/internal/integrity/service/mocks"
	"carebook/internal/integrity/store"
	id "carebook/pkg/domain"
	"carebook/pkg/platform/sentinel"
	"carebook/pkg/requestcontext"
	"carebook/pkg/testutil"
)

type VerificationServiceSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	store    *store.InMemory
	ledger   *memory.Ledger
	metrics  *metrics.Metrics
	records  *service.RecordService
	verifier *service.VerificationService
}

func TestVerificationServiceSuite(t *testing.T) {
	suite.Run(t, new(VerificationServiceSuite))
}

func (s *VerificationServiceSuite) SetupTest() {
	s.now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewInMemory()
	s.ledger = memory.New(signer, memory.WithClock(func() time.Time { return s.now }))
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.records = service.NewRecordService(s.store, s.ledger)
	s.verifier = service.NewVerificationService(s.store, s.ledger, service.WithMetrics(s.metrics))
}

func (s *VerificationServiceSuite) approved(recordID id.RecordID, fields models.Fields) *models.ProofReceipt {
	_, err := s.records.Submit(s.ctx, service.SubmitRequest{
		RecordID: recordID, Kind: models.KindCredential, CallerID: "dr-1", Fields: fields,
	})
	s.Require().NoError(err)
	receipt, err := s.records.Approve(s.ctx, recordID, "rev-1")
	s.Require().NoError(err)
	return receipt
}

func (s *VerificationServiceSuite) TestOutcomes() {
	s.Run("unknown record", func() {
		result, err := s.verifier.Verify(s.ctx, "missing")
		s.Require().NoError(err)
		s.Equal(models.VerificationNotFound, result.Status)
	})

	s.Run("draft has no proof", func() {
		_, err := s.records.Submit(s.ctx, service.SubmitRequest{
			RecordID: "lic-draft", Kind: models.KindCredential, CallerID: "dr-1",
			Fields: models.Fields{"name": "A", "license": "L1"},
		})
		s.Require().NoError(err)

		result, err := s.verifier.Verify(s.ctx, "lic-draft")
		s.Require().NoError(err)
		s.Equal(models.VerificationNoProof, result.Status)
		s.True(result.Fingerprint.IsZero())
	})

	s.Run("approved and untouched is verified", func() {
		receipt := s.approved("lic-1", models.Fields{"name": "A", "license": "L1"})

		result, err := s.verifier.Verify(s.ctx, "lic-1")
		s.Require().NoError(err)
		s.Equal(models.VerificationVerified, result.Status)
		s.Equal(receipt.Fingerprint, result.Fingerprint)
		s.Equal(receipt.PublishedAt, result.PublishedAt)
	})

	s.Run("out-of-band edit is tampered", func() {
		r, err := s.store.Get(s.ctx, "lic-1")
		s.Require().NoError(err)
		r.Fields["name"] = "B"
		s.store.Put(s.ctx, r)

		result, err := s.verifier.Verify(s.ctx, "lic-1")
		s.Require().NoError(err)
		s.Equal(models.VerificationTampered, result.Status)
		s.False(result.Recomputed.IsZero())
		s.NotEqual(result.Fingerprint, result.Recomputed)
		s.Equal(1.0, promtest.ToFloat64(s.metrics.TamperDetectedTotal))
	})

	s.Run("published record whose fields no longer encode is tampered", func() {
		r, err := s.store.Get(s.ctx, "lic-1")
		s.Require().NoError(err)
		delete(r.Fields, "license")
		s.store.Put(s.ctx, r)

		result, err := s.verifier.Verify(s.ctx, "lic-1")
		s.Require().NoError(err)
		s.Equal(models.VerificationTampered, result.Status)
		s.True(result.Recomputed.IsZero())
		s.NotEmpty(result.Reason)
	})

	s.Run("unpublished record whose fields no longer encode has no proof", func() {
		r, err := s.store.Get(s.ctx, "lic-draft")
		s.Require().NoError(err)
		delete(r.Fields, "license")
		s.store.Put(s.ctx, r)

		result, err := s.verifier.Verify(s.ctx, "lic-draft")
		s.Require().NoError(err)
		s.Equal(models.VerificationNoProof, result.Status)
	})
}

// An approved credential is edited, detected, and reverted.
func (s *VerificationServiceSuite) TestEditThenRevert() {
	t := s.T()
	var published *models.ProofReceipt

	testutil.Given(t, "an approved credential", func(t *testing.T) {
		published = s.approved("lic-42", models.Fields{"name": "A", "license": "L1"})
	})

	testutil.When(t, "the owner changes the license", func(t *testing.T) {
		_, err := s.records.Edit(s.ctx, "lic-42", "dr-1", models.Fields{"name": "A", "license": "L2"})
		require.NoError(t, err)
	})

	testutil.Then(t, "verification reports tampering with both fingerprints", func(t *testing.T) {
		result, err := s.verifier.Verify(s.ctx, "lic-42")
		require.NoError(t, err)
		assert.Equal(t, models.VerificationTampered, result.Status)
		assert.Equal(t, published.Fingerprint, result.Fingerprint)
		assert.NotEqual(t, published.Fingerprint, result.Recomputed)
	})

	testutil.When(t, "the license is reverted", func(t *testing.T) {
		_, err := s.records.Edit(s.ctx, "lic-42", "dr-1", models.Fields{"license": "L1", "name": "A"})
		require.NoError(t, err)
	})

	testutil.Then(t, "verification succeeds again", func(t *testing.T) {
		result, err := s.verifier.Verify(s.ctx, "lic-42")
		require.NoError(t, err)
		assert.Equal(t, models.VerificationVerified, result.Status)
		assert.Equal(t, published.PublishedAt, result.PublishedAt)
	})
}

func (s *VerificationServiceSuite) TestLedgerFailureIsNeverAVerdict() {
	s.approved("lic-1", models.Fields{"name": "A", "license": "L1"})

	ctrl := gomock.NewController(s.T())
	client := ledgermocks.NewMockClient(ctrl)
	verifier := service.NewVerificationService(s.store, client, service.WithMetrics(s.metrics))

	for _, category := range []ledger.Category{ledger.CategoryUnavailable, ledger.CategoryTimeout, ledger.CategoryBadData} {
		s.Run(string(category), func() {
			client.EXPECT().Fetch(gomock.Any(), id.RecordID("lic-1")).
				Return(nil, ledger.NewError(category, "lic-1", "fetch failed", errors.New("boom")))

			result, err := verifier.Verify(s.ctx, "lic-1")
			s.Require().NoError(err)
			s.Equal(models.VerificationUnavailable, result.Status)
			s.False(result.Status.IsFinal())
			s.True(result.Fingerprint.IsZero())
		})
	}
}

func (s *VerificationServiceSuite) TestStoreFailureIsUnavailable() {
	ctrl := gomock.NewController(s.T())
	records := mocks.NewMockRecordStore(ctrl)
	client := ledgermocks.NewMockClient(ctrl)
	verifier := service.NewVerificationService(records, client)

	records.EXPECT().Get(gomock.Any(), id.RecordID("lic-1")).Return(nil, sentinel.ErrUnavailable)

	result, err := verifier.Verify(s.ctx, "lic-1")
	s.Require().NoError(err)
	s.Equal(models.VerificationUnavailable, result.Status)
}

func (s *VerificationServiceSuite) TestCallerContextEnding() {
	s.approved("lic-1", models.Fields{"name": "A", "license": "L1"})

	s.Run("cancellation is an error", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()

		result, err := s.verifier.Verify(ctx, "lic-1")
		s.ErrorIs(err, context.Canceled)
		s.Nil(result)
	})

	s.Run("deadline during a slow ledger call is unavailable", func() {
		ctrl := gomock.NewController(s.T())
		client := ledgermocks.NewMockClient(ctrl)
		client.EXPECT().Fetch(gomock.Any(), id.RecordID("lic-1")).DoAndReturn(
			func(ctx context.Context, _ id.RecordID) (*models.Proof, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})
		verifier := service.NewVerificationService(s.store,
			ledger.NewGuarded(client, ledger.WithCallTimeout(time.Minute)))

		ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
		defer cancel()

		result, err := verifier.Verify(ctx, "lic-1")
		s.Require().NoError(err)
		s.Equal(models.VerificationUnavailable, result.Status)
		s.False(result.Status.IsFinal())
	})

	s.Run("deadline already past is unavailable", func() {
		ctx, cancel := context.WithDeadline(s.ctx, time.Now().Add(-time.Second))
		defer cancel()

		result, err := s.verifier.Verify(ctx, "lic-1")
		s.Require().NoError(err)
		s.Equal(models.VerificationUnavailable, result.Status)
	})
}

// Invalid UTF-8 is refused on the way in, and bytes written behind the
// service's back are never read as the published value.
func (s *VerificationServiceSuite) TestInvalidUTF8CannotMaskAnEdit() {
	_, err := s.records.Submit(s.ctx, service.SubmitRequest{
		RecordID: "lic-bad", Kind: models.KindCredential, CallerID: "dr-1",
		Fields: models.Fields{"name": "A", "license": "L1\xff"},
	})
	s.Require().Error(err)

	s.approved("lic-1", models.Fields{"name": "A", "license": "L1\ufffd"})

	for name, license := range map[string]string{"0xff byte": "L1\xff", "0xfe byte": "L1\xfe"} {
		s.Run(name, func() {
			r, err := s.store.Get(s.ctx, "lic-1")
			s.Require().NoError(err)
			r.Fields["license"] = license
			s.store.Put(s.ctx, r)

			result, err := s.verifier.Verify(s.ctx, "lic-1")
			s.Require().NoError(err)
			s.Equal(models.VerificationTampered, result.Status)
			s.Contains(result.Reason, "valid UTF-8")
		})
	}
}

func (s *VerificationServiceSuite) TestRepeatedAndConcurrentVerification() {
	receipt := s.approved("lic-1", models.Fields{"name": "A", "license": "L1", "university": "UNAM"})

	var wg sync.WaitGroup
	results := make([]*models.VerificationResult, 20)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.verifier.Verify(s.ctx, "lic-1")
			if err == nil {
				results[i] = r
			}
		}()
	}
	wg.Wait()

	for _, r := range results {
		s.Require().NotNil(r)
		s.Equal(models.VerificationVerified, r.Status)
		s.Equal(receipt.Fingerprint, r.Fingerprint)
	}

	stored, err := s.store.Get(s.ctx, "lic-1")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, stored.Status)
}

func (s *VerificationServiceSuite) TestVerifyMany() {
	s.approved("lic-1", models.Fields{"name": "A", "license": "L1"})
	s.approved("lic-2", models.Fields{"name": "B", "license": "L2"})

	results, err := s.verifier.VerifyMany(s.ctx, []id.RecordID{"lic-2", "missing", "lic-1"})
	s.Require().NoError(err)
	s.Require().Len(results, 3)
	s.Equal(id.RecordID("lic-2"), results[0].RecordID)
	s.Equal(models.VerificationVerified, results[0].Status)
	s.Equal(models.VerificationNotFound, results[1].Status)
	s.Equal(models.VerificationVerified, results[2].Status)
}
