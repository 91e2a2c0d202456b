package notify

import (
	"log"
	"time"

	"github.com/tendant/simple-commerce-assembly/internal/metrics"
	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// DefaultSendTimeout bounds how long a broadcast waits on one slow
// subscriber before moving on
const DefaultSendTimeout = 100 * time.Millisecond

// Notifier fans out assembled products to the live subscribers of an
// owner. Delivery is best-effort: a slow or dead subscriber is skipped
// and never blocks siblings or the assembly pipeline.
type Notifier struct {
	registry *Registry
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// NewNotifier creates a notifier over the given registry
func NewNotifier(registry *Registry, m *metrics.Metrics) *Notifier {
	return &Notifier{
		registry: registry,
		metrics:  m,
		timeout:  DefaultSendTimeout,
	}
}

// Broadcast attempts delivery to every current subscriber of ownerID
// independently
func (n *Notifier) Broadcast(ownerID string, product *assembly.AssembledProduct) {
	subs := n.registry.Subscribers(ownerID)
	if len(subs) == 0 {
		return
	}

	delivered := 0
	for _, sub := range subs {
		if n.registry.send(sub, product, n.timeout) {
			delivered++
			n.metrics.NotificationsSent.Inc()
		} else {
			log.Printf("Notification dropped: subscriber=%s owner=%s product=%s/%s", sub.ID(), ownerID, product.OwnerID, product.ContentID)
			n.metrics.NotificationsDropped.Inc()
		}
	}
	log.Printf("Broadcast new_product for %s/%s to %d/%d subscribers", product.OwnerID, product.ContentID, delivered, len(subs))
}
