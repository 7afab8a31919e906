// Package store provides SQLite-backed durable storage for the Monte Carlo
// broker.
//
// The store holds three kinds of state:
//   - Messages: FIFO queues with leases, delivery counts and optional expiry
//   - Dead letters: messages settled with a drop, kept with their reason
//   - Slots: named single-value broadcast cells with a version and a TTL
//
// plus per-model scenario sequence numbers for producer restarts.
//
// # Delivery
//
// Claim leases the oldest ready message of a queue to one owner. Ack deletes
// it, Release clears the lease so it is redelivered in its original
// position, and DeadLetter moves it to dead_letters. An owner whose lease
// has expired or been reclaimed gets ErrLeaseLost from every settlement.
// Leases expire after the duration given to Claim, which gives
// at-least-once delivery across consumer crashes.
//
// # Time
//
// All times are supplied by the caller and stored as unix milliseconds, so
// tests drive expiry with a fake clock.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - _txlock=immediate: Transactions take the write lock on BEGIN
//
// Several processes may open the same file; SQLite serializes writers.
package store
