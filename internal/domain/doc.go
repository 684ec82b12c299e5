// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (slide.go, user.go, errors.go, pubsub.go) hold shared types and the
// contracts that adapters implement. No implementation code - just contracts.
package domain
