//go:build integration

package producer_test

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"tripkey/internal/notification"
	"tripkey/internal/platform/kafka/producer"
	id "tripkey/pkg/domain"
)

// Runs against the broker in KAFKA_BROKERS, which must auto-create topics.
type ProducerIntegrationSuite struct {
	suite.Suite
	brokers  string
	producer *producer.Producer
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_BROKERS not set")
	}
	suite.Run(t, &ProducerIntegrationSuite{brokers: brokers})
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	prod, err := producer.New(producer.Config{
		Brokers:         s.brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		s.Require().NoError(s.producer.Close(context.Background()))
	}
}

func (s *ProducerIntegrationSuite) consumeOne(topic string, match func(*kgo.Record) bool) *kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(s.brokers, ",")...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for ctx.Err() == nil {
		fetches := client.PollFetches(ctx)
		var found *kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			if found == nil && match(r) {
				found = r
			}
		})
		if found != nil {
			return found
		}
	}
	return nil
}

func (s *ProducerIntegrationSuite) TestProduceDeliversMessage() {
	topic := "tripkey-test-produce-" + time.Now().Format("20060102150405")

	err := s.producer.Produce(context.Background(), &producer.Message{
		Topic: topic,
		Key:   []byte("test-key"),
		Value: []byte("test-value"),
	})
	s.Require().NoError(err)

	record := s.consumeOne(topic, func(r *kgo.Record) bool { return string(r.Key) == "test-key" })
	s.Require().NotNil(record, "message should be consumable")
	s.Equal("test-value", string(record.Value))
}

func (s *ProducerIntegrationSuite) TestMembershipEventIsKeyedByTrip() {
	topic := "tripkey-test-events-" + time.Now().Format("20060102150405")
	tripID := id.NewTripID()
	ev := notification.NewEvent(notification.TypeMemberJoined, tripID, id.NewMemberID(), "Alice", time.Now().UTC())

	err := notification.NewKafkaPublisher(s.producer, topic).Publish(context.Background(), ev)
	s.Require().NoError(err)

	record := s.consumeOne(topic, func(r *kgo.Record) bool { return string(r.Key) == tripID.String() })
	s.Require().NotNil(record)

	headers := make(map[string]string)
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal("member.joined", headers["event_type"])
	s.Equal(ev.ID, headers["event_id"])

	var got notification.Event
	s.Require().NoError(json.Unmarshal(record.Value, &got))
	s.Equal("Alice", got.DisplayName)
	s.Equal(tripID, got.TripID)
}

func (s *ProducerIntegrationSuite) TestHealth() {
	s.NoError(s.producer.Health(context.Background()))
}
