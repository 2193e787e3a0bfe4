// Package outbox implements the transactional outbox for loan lifecycle
// events.
//
// The Writer records events in the outbox_events table inside the same
// database transaction that mutates the loan, so a committed state change and
// its event are inseparable. The Poller then drains unsent entries in the
// background and publishes them to Kafka, marking each entry sent only after
// the broker acknowledged it. Delivery is therefore at-least-once: a crash
// between acknowledgement and mark leads to a redelivery, never to a loss.
package outbox
