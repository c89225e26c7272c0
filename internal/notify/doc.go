// Package notify delivers committed ChangeEvents to a broadcast topic.
//
// Publish never blocks the caller: events go onto an unbounded FIFO and a
// single dispatcher goroutine (Run) hands them to the Topic in enqueue
// order. Delivery is best effort. A topic failure is logged and the event
// is dropped; nothing is retried or persisted.
//
// Two topics are provided. Hub fans out in-process to buffered subscriber
// channels. RedisTopic publishes canonical JSON to a Redis pub/sub channel
// for cross-process subscribers.
package notify
