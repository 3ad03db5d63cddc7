// Package ingress dispatches broker messages through an ordered chain of
// typed handlers, each owning a single recognized topic suffix. Matching
// is linear, not nested: a short ordered list is clearer than generic
// wrapping, and performs identically for the handler counts here.
package ingress

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/metrics"
)

// Handler owns one recognized topic suffix.
type Handler interface {
	// Name identifies this handler for metrics labeling.
	Name() string
	// Match reports whether this handler owns topic.
	Match(topic string) bool
	// Handle processes a matched (topic, payload). Called only when Match
	// returned true for the same topic.
	Handle(ctx context.Context, topic string, payload []byte) error
}

// Router walks its handlers in order for every received message.
type Router struct {
	handlers []Handler
	log      zerolog.Logger
}

func NewRouter(log zerolog.Logger, handlers ...Handler) *Router {
	return &Router{handlers: handlers, log: log}
}

// Dispatch processes one (topic, payload) delivery. A payload is processed
// at most once: the first matching handler in the chain handles it and
// dispatch returns. Decode failures are logged, not propagated — a single
// bad message must never stall the broker read loop.
func (r *Router) Dispatch(ctx context.Context, topic string, payload []byte) {
	for _, h := range r.handlers {
		if !h.Match(topic) {
			continue
		}
		metrics.MQTTMessagesTotal.WithLabelValues(h.Name()).Inc()
		if err := h.Handle(ctx, topic, payload); err != nil {
			r.log.Warn().Err(err).Str("topic", topic).Msg("handler failed, message dropped")
		}
		return
	}
	r.log.Warn().Str("topic", topic).Msg("no handler matched topic")
}

// houseCodeFromTopic extracts the first path segment of topic, the
// convention the broker uses to carry the originating house's code.
func houseCodeFromTopic(topic string) string {
	if i := strings.IndexByte(topic, '/'); i >= 0 {
		return topic[:i]
	}
	return topic
}

// hasSuffix matches topic by its recognized suffix, tolerating the
// broker's tenant/share prefix segments.
func hasSuffix(topic, suffix string) bool {
	return topic == suffix || strings.HasSuffix(topic, "/"+suffix)
}
