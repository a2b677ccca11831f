// Package thumbnail implements the thumbnail cache and generation
// pipeline: a bounded in-memory LRU cache with source-file staleness
// checks, a generator that degrades to synthesized placeholders on any
// failure, and a manager that deduplicates concurrent generation work
// through a worker pool.
//
// Payloads are base64 data URLs so they can cross process and transport
// boundaries without further encoding.
package thumbnail
