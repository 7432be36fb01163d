// Package relay forwards verified reading batches to consumers.
//
// A Sink publishes one batch at a time. MQTT publishes each batch to a
// per-device topic on a broker; Hub streams batches to WebSocket clients.
// Fanout combines sinks. Batches are encoded as JSON or CBOR.
package relay
