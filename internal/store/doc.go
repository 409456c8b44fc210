// Package store keeps the most recent badge events in memory and fans them
// out to live subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: Bounded in-memory log of events with pub/sub
//   - [Event]: Storage representation of one delivered badge event
//
// The store is designed for concurrent access with proper synchronization.
// Subscribers receive events via channels with non-blocking sends (slow
// subscribers will miss events rather than block the poll loop).
//
// The badgesink command feeds the store from its handler and serves it over
// HTTP; library users do not need this package.
package store
