// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between components and makes the
// durations discoverable.
package timeouts

import "time"

// GenerationCall caps a single call to the generation backend. Timeouts for
// generation belong to the backend adapter, not to the queue.
const GenerationCall = 90 * time.Second

// QueueRecovery is the default liveness fallback for an idle queue worker.
const QueueRecovery = 5 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers and workers wait for in-flight work
// during graceful shutdown.
const Shutdown = 10 * time.Second

// WebsocketWrite caps a single notification frame write to a subscriber.
const WebsocketWrite = 5 * time.Second
