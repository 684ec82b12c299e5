// Package redis connects instances behind a load balancer.
//
// A slide mutation on one instance reaches totems connected to every other instance
// through a pub/sub channel. The same client backs the reaper lock, so only one instance
// deletes expired slides per interval. Every command passes through a circuit breaker.
package redis
