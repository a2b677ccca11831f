// Package workerpool provides a fixed-size pool of goroutines executing
// CPU-bound jobs off the calling path.
//
// Submitted jobs queue FIFO and resolve through a Task future, so many
// callers can await a single execution. A job panic is converted into a
// job error delivered through its Task; the worker survives. Shutdown
// drains the queue within a grace period, then cancels the pool context
// so cooperative jobs (such as external ffmpeg invocations) terminate.
package workerpool
