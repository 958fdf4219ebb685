package bus

import (
	"github.com/rickgao/clubhub/internal/connection"
)

// Source is the part of the Connection Manager the bridge attaches to.
type Source interface {
	Subscribe(fn connection.Observer) (unsubscribe func())
}

// StatusChange is published on TopicStatus.
type StatusChange struct {
	Status connection.Status
}

// Bridge republishes src notifications on b through Forward. The returned
// function detaches the bridge.
func Bridge(src Source, b MessageBus) (detach func()) {
	return src.Subscribe(Forward(b))
}

// Forward returns an observer publishing on b: status changes as
// StatusChange on TopicStatus, messages as connection.Message on TopicMessage
// and on the topic for their kind. Pass it to connection.WithObserver to see
// every notification from the first connection attempt on.
func Forward(b MessageBus) connection.Observer {
	return func(ev connection.Event) {
		switch ev.Type {
		case connection.EventStatus:
			b.Publish(TopicStatus, StatusChange{Status: ev.Status})
		case connection.EventMessage:
			b.Publish(TopicMessage, ev.Message)
			if kind := ev.Message.Kind(); kind != "" {
				b.Publish(KindTopic(kind), ev.Message)
			}
		}
	}
}
