// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package gcp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mia-platform/dynq/internal/dynq"
	"github.com/mia-platform/dynq/internal/invalidation/fake"
)

const (
	bucketMessage = `{
		"asset": {
			"name": "//storage.googleapis.com/my-bucket",
			"assetType": "storage.googleapis.com/Bucket",
			"updateTime": "2024-01-01T00:00:00Z"
		},
		"priorAssetState": "PRESENT",
		"window": {"startTime": "2024-01-01T00:00:00Z"}
	}`
	deletedInstanceMessage = `{
		"priorAsset": {
			"name": "//compute.googleapis.com/projects/p/zones/z/instances/vm",
			"assetType": "compute.googleapis.com/Instance"
		},
		"deleted": true
	}`
)

func TestNewFeed(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PUBSUB_PROJECT", "test-project")
	t.Setenv("GOOGLE_CLOUD_PUBSUB_SUBSCRIPTION", "test-subscription")

	feed, err := NewFeed()
	require.NoError(t, err)
	assert.Equal(t, config{ProjectID: "test-project", SubscriptionID: "test-subscription"}, feed.config)
}

func TestStartWithoutConfig(t *testing.T) {
	t.Parallel()

	feed := &Feed{}
	err := feed.Start(t.Context(), fake.NewInvalidator(t))
	assert.ErrorIs(t, err, ErrGCPFeed)
	assert.ErrorIs(t, err, ErrMissingEnvVariable)
	assert.ErrorContains(t, err, "GOOGLE_CLOUD_PUBSUB_PROJECT, GOOGLE_CLOUD_PUBSUB_SUBSCRIPTION")
}

func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		data         string
		expectedType string
		expectErr    bool
	}{
		"current asset": {
			data:         bucketMessage,
			expectedType: "storage.googleapis.com/Bucket",
		},
		"deleted asset falls back to prior asset": {
			data:         deletedInstanceMessage,
			expectedType: "compute.googleapis.com/Instance",
		},
		"missing type": {
			data:      `{"asset": {"name": "something"}}`,
			expectErr: true,
		},
		"not json": {
			data:      `not json`,
			expectErr: true,
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assetType, err := decodeMessage([]byte(test.data))
			if test.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expectedType, assetType)
		})
	}
}

func TestStartInvalidatesMatchingQueries(t *testing.T) {
	t.Parallel()

	cfg := config{
		ProjectID:      "test-project",
		SubscriptionID: "dynq-invalidation",
	}
	topicName := fmt.Sprintf("projects/%s/topics/%s", cfg.ProjectID, "asset-feed")
	subscriptionName := fmt.Sprintf("projects/%s/subscriptions/%s", cfg.ProjectID, cfg.SubscriptionID)

	srv, client := newFakePubSubClient(t, cfg.ProjectID, topicName, subscriptionName)
	feed := &Feed{config: cfg}
	feed.client.Store(client)

	target := fake.NewInvalidator(t, "Storage.googleapis.com/Bucket", "compute.googleapis.com/Instance", "sqladmin.googleapis.com/Instance")

	ctx, cancel := context.WithCancel(t.Context())
	errChan := make(chan error, 1)
	go func() {
		errChan <- feed.Start(ctx, target)
	}()

	srv.Publish(topicName, []byte(`{"broken"`), nil)
	srv.Publish(topicName, []byte(bucketMessage), nil)
	srv.Publish(topicName, []byte(deletedInstanceMessage), nil)

	received := make([][]dynq.Descriptor, 0, 2)
	timeout := time.After(5 * time.Second)
	for len(received) < 2 {
		select {
		case descriptors := <-target.Invalidated():
			received = append(received, descriptors)
		case <-timeout:
			require.FailNow(t, "timeout waiting for invalidations")
		}
	}

	assert.ElementsMatch(t, [][]dynq.Descriptor{
		{"Storage.googleapis.com/Bucket"},
		{"compute.googleapis.com/Instance"},
	}, received)

	cancel()
	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "feed did not stop after cancellation")
	}

	require.NoError(t, feed.Close(t.Context(), time.Second))
}

func newFakePubSubClient(t *testing.T, projectID, topicName, subscriptionName string) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { srv.Close() })

	client, err := pubsub.NewClient(t.Context(), projectID,
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		option.WithTelemetryDisabled(),
	)
	require.NoError(t, err)

	_, err = client.TopicAdminClient.CreateTopic(t.Context(), &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	_, err = client.SubscriptionAdminClient.CreateSubscription(t.Context(), &pubsubpb.Subscription{
		Name:               subscriptionName,
		Topic:              topicName,
		AckDeadlineSeconds: int32(15),
	})
	require.NoError(t, err)

	return srv, client
}
