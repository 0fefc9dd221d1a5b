// Package queue defines the broker contract between submission and the
// worker pool.
//
// Delivery is at-least-once. A dequeued message is hidden for the
// visibility timeout and reappears with a fresh token unless it is acked
// first. Messages only carry a job ID: the job store is authoritative and a
// worker re-reads the job before acting, so duplicates and stale messages
// are harmless.
//
// # Backends
//
//   - queue/memory: in-process broker for tests and single-binary runs
//   - queue/redis: Redis sorted-set broker using go-redis/v9 and Lua
//     scripts; it also implements dedup.Index
package queue
