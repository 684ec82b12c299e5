// Package broadcast implements the live push engine for totems.
//
// A Registry owns every open Session. Each Session holds at most one unwritten content
// frame and one pending ping for its own writer goroutine, so enqueueing never blocks on
// a slow client: a newer content frame replaces an unwritten one, and only a failed or
// timed-out write evicts that session. The Hub recomputes the valid slide
// set from the store on every Publish and fans one content frame out to all sessions;
// the Heartbeat sends content-free ping frames on a fixed interval.
package broadcast
