// Package pipeline generates thumbnails for stored images.
//
// Each image moves through the stages ingested, generating, ordered and
// notified, or ingested, failed and removed when it cannot be decoded. The
// tiers of one image are resized concurrently. An image without a display
// order receives the next order of its folder in the same transaction that
// stores its thumbnails, so clients never see a thumbnail without an order.
//
// Jobs enter through Submit into a bounded queue served by a fixed number
// of workers. Submit never blocks; a full queue returns ErrQueueFull.
// Every job runs in its own error scope: failures are logged, counted,
// passed to OnFailure and broadcast, and the remaining jobs continue.
package pipeline
