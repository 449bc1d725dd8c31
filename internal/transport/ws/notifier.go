package ws

import (
	"encoding/json"

	"voice3d-server/internal/domain/eventbus"
	"voice3d-server/internal/platform/metrics"
	"voice3d-server/internal/utils"
)

// Message is the frame pushed to observers.
type Message struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Subscriber is the subscription side of the event bus.
type Subscriber interface {
	Subscribe(topic string, fn interface{}) error
	Unsubscribe(topic string, handler interface{}) error
}

// Notifier forwards modelReady events to every connected observer.
// Delivery is best effort and never reports back to the publisher.
type Notifier struct {
	hub     *Hub
	metrics *metrics.Metrics
	logger  *utils.Logger
	handler func(eventbus.ModelReadyEvent)
}

func NewNotifier(hub *Hub, m *metrics.Metrics, logger *utils.Logger) *Notifier {
	n := &Notifier{hub: hub, metrics: m, logger: logger}
	n.handler = n.handleModelReady
	return n
}

// Attach subscribes to the bus.
func (n *Notifier) Attach(bus Subscriber) error {
	return bus.Subscribe(eventbus.EventModelReady, n.handler)
}

// Detach undoes Attach.
func (n *Notifier) Detach(bus Subscriber) error {
	return bus.Unsubscribe(eventbus.EventModelReady, n.handler)
}

func (n *Notifier) handleModelReady(evt eventbus.ModelReadyEvent) {
	n.Notify(eventbus.EventModelReady, evt.URL)
}

// Notify broadcasts one message and returns how many observers got it.
func (n *Notifier) Notify(kind, url string) int {
	data, err := json.Marshal(Message{Type: kind, URL: url})
	if err != nil {
		n.logger.ErrorTag("Notify", "encode %s: %v", kind, err)
		return 0
	}
	delivered, skipped := n.hub.Broadcast(data)
	n.metrics.RecordNotification(kind, delivered, skipped)
	n.logger.InfoTag("Notify", "%s %s: %d delivered, %d skipped", kind, url, delivered, skipped)
	return delivered
}
