package events

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/JimRearick/camp-snackbar-pos-sub001/domain"
)

// Relay bridges the local hub to a Redis pub/sub channel so several
// server instances and standalone prep displays share one event plane.
// Outbound events are origin-stamped; the subscribe side skips events
// this instance published itself.
type Relay struct {
	hub     *Hub
	rc      *redis.Client
	channel string
	origin  string
	logger  *log.Logger
	out     chan domain.Event
}

func NewRelay(hub *Hub, rc *redis.Client, channel string, logger *log.Logger) *Relay {
	return &Relay{
		hub:     hub,
		rc:      rc,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
		out:     make(chan domain.Event, 256),
	}
}

// Publish delivers to the local hub first, then queues the event for the
// wire. The wire hop is best effort and never blocks the caller.
func (r *Relay) Publish(ev domain.Event) {
	ev.Origin = r.origin
	r.hub.Publish(ev)
	select {
	case r.out <- ev:
	default:
		r.logger.Warnf("relay outbound queue full, dropped event, type=%s", ev.Type)
	}
}

// Run pumps queued events to the channel and injects remote events into
// the local hub until ctx is cancelled, reconnecting if the subscription
// drops.
func (r *Relay) Run(ctx context.Context) {
	go r.pump(ctx)

	for {
		sub := r.rc.Subscribe(ctx, r.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev domain.Event
				if err := sonic.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.WithError(err).Error("unable to parse relayed event")
					continue
				}
				if ev.Origin == r.origin {
					continue
				}
				r.hub.Publish(ev)
			}
		}
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("relay pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func (r *Relay) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.out:
			data, err := sonic.Marshal(ev)
			if err != nil {
				r.logger.WithError(err).Error("unable to encode relayed event")
				continue
			}
			if err := r.rc.Publish(ctx, r.channel, data).Err(); err != nil {
				r.logger.WithError(err).Error("unable to publish relayed event")
			}
		}
	}
}
