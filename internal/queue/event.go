// Package queue defines message payloads exchanged over the message broker.
package queue

// HitsQueueName is the durable queue that receives one message per counted
// page view.
const HitsQueueName = "hits.recorded"

// HitRecordedEvent is published after a page view has been counted.  It
// carries the value the increment produced so consumers never need to query
// the counter table.
type HitRecordedEvent struct {
	Count      int64  `json:"count"`
	FirstVisit bool   `json:"first_visit"`
	RemoteIP   string `json:"remote_ip,omitempty"`
	RecordedAt string `json:"recorded_at"`
}
