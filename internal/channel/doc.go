// Package channel implements the three named channels workers and the
// producer talk through, on top of the SQLite broker in package store.
//
// ModelSlot is the model distribution channel: a single-value broadcast
// slot with a TTL. Publishing replaces the parked model; peeking returns a
// copy and never removes it, so every worker sees the same model until it
// expires or is replaced.
//
// Queue is a competing-consumers queue used for scenarios and results.
// Consume delivers one message at a time per consumer (prefetch 1) and
// every delivery ends with exactly one of Ack, Requeue or Drop.
//
// Both take a Clock so tests can drive expiry with a fake clock.
package channel
