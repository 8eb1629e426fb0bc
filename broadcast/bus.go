package broadcast

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EventsTopic carries every event in publish order; the event type travels as metadata.
const EventsTopic = "soundbeats.events"

// Metadata keys set on bus messages.
const (
	MetaEventType  = "event_type"
	MetaInstanceID = "instance_id"
	MetaUsers      = "users"
)

// Bus is the in-process event bus. When a NATS URL is configured every
// event is also forwarded to NATS under its event type subject.
type Bus struct {
	pubsub  *gochannel.GoChannel
	forward message.Publisher
	log     *zap.SugaredLogger
}

func NewBus(natsURL string, log *zap.SugaredLogger) (*Bus, error) {
	wlog := NewWatermillLogger(log)
	b := &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, wlog),
		log: log,
	}
	if natsURL == "" {
		return b, nil
	}
	pub, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:         natsURL,
		Marshaler:   &wmnats.NATSMarshaler{},
		NatsOptions: []nc.Option{nc.Name("soundbeats"), nc.RetryOnFailedConnect(true)},
		JetStream:   wmnats.JetStreamConfig{Disabled: true},
	}, wlog)
	if err != nil {
		_ = b.pubsub.Close()
		return nil, errors.Wrap(err, "connect nats publisher")
	}
	b.forward = pub
	return b, nil
}

// Publish marshals payload and emits it on EventsTopic. Envelope payloads
// carry their instance id and target users as metadata.
func (b *Bus) Publish(topic string, payload interface{}) error {
	instanceID := ""
	var users []string
	switch p := payload.(type) {
	case Envelope:
		instanceID, users, payload = p.InstanceID, p.Users, p.Data
	case Targeted:
		users, payload = p.Users, p.Data
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "marshal %s payload", topic)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetaEventType, topic)
	msg.Metadata.Set(MetaInstanceID, instanceID)
	if len(users) > 0 {
		encoded, err := json.Marshal(users)
		if err != nil {
			return errors.Wrap(err, "marshal target users")
		}
		msg.Metadata.Set(MetaUsers, string(encoded))
	}

	if err := b.pubsub.Publish(EventsTopic, msg); err != nil {
		return errors.Wrap(err, "publish event")
	}
	if b.forward != nil {
		if err := b.forward.Publish(topic, msg.Copy()); err != nil {
			b.log.Warnw("forward event to nats failed", "topic", topic, "error", err)
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, EventsTopic)
}

func (b *Bus) Close() error {
	if b.forward != nil {
		if err := b.forward.Close(); err != nil {
			b.log.Warnw("close nats publisher", "error", err)
		}
	}
	return b.pubsub.Close()
}

// Relay delivers bus events to sessions until ctx is done.
func Relay(ctx context.Context, bus *Bus, to Broadcaster) error {
	messages, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		for msg := range messages {
			topic := msg.Metadata.Get(MetaEventType)
			instanceID := msg.Metadata.Get(MetaInstanceID)
			if err := deliver(to, topic, instanceID, msg); err != nil {
				bus.log.Warnw("relay event failed", "topic", topic, "error", err)
			}
			msg.Ack()
		}
	}()
	return nil
}

func deliver(to Broadcaster, topic, instanceID string, msg *message.Message) error {
	encoded := msg.Metadata.Get(MetaUsers)
	if encoded == "" {
		return to.BroadcastToAll(topic, instanceID, msg.Payload)
	}
	var users []string
	if err := json.Unmarshal([]byte(encoded), &users); err != nil {
		return errors.Wrap(err, "decode target users")
	}
	return to.BroadcastToUsers(users, topic, instanceID, msg.Payload)
}
