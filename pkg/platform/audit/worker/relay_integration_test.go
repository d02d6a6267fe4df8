//go:build integration

package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"carebook/internal/platform/kafka"
	"carebook/pkg/platform/audit"
	"carebook/pkg/platform/audit/publishers/compliance"
	auditpostgres "carebook/pkg/platform/audit/store/postgres"
	"carebook/pkg/platform/audit/worker"
	txcontext "carebook/pkg/platform/tx"
	"carebook/pkg/testutil/containers"
)

const relayTopic = "carebook.audit.relay-test"

type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redpanda *containers.RedpandaContainer
	producer *kafka.Producer
	store    *auditpostgres.Store
	ctx      context.Context
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.redpanda = containers.GetManager().GetRedpanda(s.T())

	producer, err := kafka.NewProducer([]string{s.redpanda.Broker}, relayTopic)
	s.Require().NoError(err)
	s.Require().NoError(producer.EnsureTopic(s.ctx, 1, 1))
	s.producer = producer
	s.store = auditpostgres.New(s.postgres.DB)
}

func (s *RelaySuite) TearDownSuite() {
	s.producer.Close()
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "audit_outbox"))
}

func (s *RelaySuite) emit(ctx context.Context, action audit.AuditEvent, subject string) {
	err := compliance.New(s.store).Emit(ctx, audit.ComplianceEvent{
		UserID:  "dr-1",
		Subject: subject,
		Action:  action,
	})
	s.Require().NoError(err)
}

func (s *RelaySuite) TestRelaysCommittedEventsOnce() {
	s.emit(s.ctx, audit.EventRecordSubmitted, "lic-1")
	s.emit(s.ctx, audit.EventRecordApproved, "lic-1")
	s.emit(s.ctx, audit.EventRecordPublished, "lic-1")

	relay := worker.NewRelay(s.store, s.producer)
	n, err := relay.RelayOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = relay.RelayOnce(s.ctx)
	s.Require().NoError(err)
	s.Zero(n, "relayed entries are marked processed")

	records := s.consume(3)
	s.Equal("dr-1", string(records[0].Key))
	var payload map[string]string
	s.Require().NoError(json.Unmarshal(records[2].Value, &payload))
	s.Equal("record_published", payload["action"])
	s.Equal("lic-1", payload["subject"])
}

func (s *RelaySuite) TestRolledBackEventsAreNeverRelayed() {
	tx, err := s.postgres.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	s.emit(txcontext.WithTx(s.ctx, tx), audit.EventRecordRejected, "lic-2")
	s.Require().NoError(tx.Rollback())

	n, err := worker.NewRelay(s.store, s.producer).RelayOnce(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RelaySuite) consume(want int) []*kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(relayTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	var records []*kgo.Record
	for len(records) < want {
		fetches := client.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out waiting for relayed records")
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}
	return records
}
