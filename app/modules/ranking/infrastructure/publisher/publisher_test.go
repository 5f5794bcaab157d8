package rankingpublisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
)

func TestEventPublisher_Publish(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	messages, err := pubSub.Subscribe(ctx, rankingservice.TopicUserTierChanged)
	require.NoError(t, err)

	publisher := NewEventPublisher(pubSub, 0)
	event := rankingservice.UserTierChangedEvent{WeekID: 1, UserID: 101, FromTierID: 3, ToTierID: 4, Reason: "PROMOTION"}

	require.NoError(t, publisher.Publish(ctx, rankingservice.TopicUserTierChanged, "run-1", event))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, "run-1", middleware.MessageCorrelationID(msg))
		assert.Equal(t, rankingservice.TopicUserTierChanged, msg.Metadata.Get(MetadataEventType))

		var got rankingservice.UserTierChangedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, event, got)
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("broker down") }
func (failingPublisher) Close() error                              { return nil }

func TestEventPublisher_Errors(t *testing.T) {
	t.Run("broker error is returned", func(t *testing.T) {
		publisher := NewEventPublisher(failingPublisher{}, 0)
		err := publisher.Publish(context.Background(), rankingservice.TopicWeekLocked, "run-1", rankingservice.WeekEvent{WeekID: 1})
		require.ErrorContains(t, err, "broker down")
	})

	t.Run("unmarshalable payload", func(t *testing.T) {
		publisher := NewEventPublisher(failingPublisher{}, 0)
		err := publisher.Publish(context.Background(), rankingservice.TopicWeekLocked, "run-1", make(chan int))
		require.ErrorContains(t, err, "marshal")
	})

	t.Run("cancelled context waits no longer", func(t *testing.T) {
		publisher := NewEventPublisher(failingPublisher{}, 1)
		ctx, cancel := context.WithCancel(context.Background())
		// first token is available immediately; the second must wait a second
		require.Error(t, publisher.Publish(ctx, rankingservice.TopicWeekLocked, "run-1", rankingservice.WeekEvent{}))
		cancel()
		err := publisher.Publish(ctx, rankingservice.TopicWeekLocked, "run-1", rankingservice.WeekEvent{})
		require.ErrorIs(t, err, context.Canceled)
	})
}
