//go:build integration

package pushservice_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/hearthkeep/go-push-service/pkg/push"
	"github.com/hearthkeep/go-push-service/pushservice"
	"github.com/hearthkeep/go-push-service/pushservice/config"
)

// countingStore records reads so the test can assert the dispatcher was never
// reached for a poison message.
type countingStore struct {
	mu        sync.Mutex
	findCalls int
}

func (s *countingStore) Upsert(context.Context, push.Subscription) error { return nil }
func (s *countingStore) DeleteByRecipient(context.Context, string, string) error {
	return nil
}
func (s *countingStore) FindByRecipients(ctx context.Context, recipientIDs []string) ([]push.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	return nil, nil
}
func (s *countingStore) ExistsFor(context.Context, string) (bool, error)         { return false, nil }
func (s *countingStore) ExistsForEndpoint(context.Context, string) (bool, error) { return false, nil }

func (s *countingStore) getFindCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findCalls
}

func TestPushService_PoisonPill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	t.Cleanup(cancel)

	// Loggers: slog for the service, zerolog for the consumer lib
	logger := zerolog.New(zerolog.NewTestWriter(t))
	slogLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	projectID := "test-project-dlq"

	// 1. Setup Pub/Sub Emulator
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = psClient.Close() })

	// 2. Arrange: Create main topic, DLQ topic, and subscriptions
	runID := uuid.NewString()
	mainTopicID := "push-main-" + runID
	dlqTopicID := "push-dlq-" + runID
	mainSubID := mainTopicID + "-sub"
	dlqSubID := dlqTopicID + "-sub"

	createPubsubResources(t, ctx, psClient, projectID, dlqTopicID, dlqSubID)
	dlqTopicName := fmt.Sprintf("projects/%s/topics/%s", projectID, dlqTopicID)

	mainTopicName := fmt.Sprintf("projects/%s/topics/%s", projectID, mainTopicID)
	_, err = psClient.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: mainTopicName})
	require.NoError(t, err)

	mainSubName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, mainSubID)
	mainSub := &pubsubpb.Subscription{
		Name:  mainSubName,
		Topic: mainTopicName,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlqTopicName,
			MaxDeliveryAttempts: 5,
		},
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	}
	_, err = psClient.SubscriptionAdminClient.CreateSubscription(ctx, mainSub)
	require.NoError(t, err)

	// 3. Arrange: Create service with dependencies
	store := &countingStore{}

	consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(mainSubID)
	consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
	require.NoError(t, err)

	cfg := &config.Config{
		ProjectID:          projectID,
		ListenAddr:         ":0",
		SubscriptionID:     mainSubID,
		NumPipelineWorkers: 2,
		Vapid: config.VapidConfig{
			PublicKey:  "unused",
			PrivateKey: "unused",
		},
	}

	noopAuth := func(h http.Handler) http.Handler { return h }

	svc, err := pushservice.New(cfg, consumer, store, noopAuth, slogLogger)
	require.NoError(t, err)

	// 4. Act: Start the service and publish a poison pill message
	serviceCtx, serviceCancel := context.WithCancel(ctx)
	defer serviceCancel()
	go func() {
		if err := svc.Start(serviceCtx); err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("service.Start() returned an error: %v", err)
		}
	}()
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	// Malformed JSON fails in the transformer before any dispatch work runs.
	poisonPayload := []byte(`{"this is not valid json"`)
	result := psClient.Publisher(mainTopicID).Publish(ctx, &pubsub.Message{Data: poisonPayload})
	_, err = result.Get(ctx)
	require.NoError(t, err)
	t.Log("Published poison pill message.")

	// 5. Assert: Verify the message arrives on the DLQ subscription
	dlqSub := psClient.Subscriber(dlqSubID)
	var wg sync.WaitGroup
	wg.Add(1)
	var receivedMsg *pubsub.Message

	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
		err = dlqSub.Receive(cctx, func(ctx context.Context, msg *pubsub.Message) {
			msg.Ack()
			receivedMsg = msg
			cancel()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("DLQ Receive returned an unexpected error: %v", err)
		}
	}()

	wg.Wait()
	require.NotNil(t, receivedMsg, "Did not receive message on the DLQ subscription")
	assert.Equal(t, poisonPayload, receivedMsg.Data)
	t.Log("Poison pill message correctly received on DLQ.")

	// 6. Negative Assertion: the dispatcher never read the store
	assert.Equal(t, 0, store.getFindCalls(), "Store should not be read for a poison pill message")
}
