package store

import "time"

// Event is one delivered badge event as kept by the store.
//
// Event is decoupled from the sink's public types so the JSON served by the
// HTTP API can evolve independently.
type Event struct {
	// Seq is assigned by the store on Add, starting at 1.
	Seq uint64 `json:"seq"`

	RiderID     string    `json:"rider_id"`
	At          time.Time `json:"at"`
	Longitude   float64   `json:"longitude"`
	Latitude    float64   `json:"latitude"`
	StopName    string    `json:"stop_name,omitempty"`
	VehicleName string    `json:"vehicle_name,omitempty"`
	RideName    string    `json:"ride_name,omitempty"`

	// ReceivedAt is when the sink delivered the event.
	ReceivedAt time.Time `json:"received_at"`
}

// Store defines the interface for recording and subscribing to badge events.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Add records an event, assigns its sequence number and notifies all
	// subscribers. The stored copy is returned.
	Add(ev Event) Event

	// Recent returns up to limit of the newest events, oldest first.
	// A limit of zero or less returns every retained event.
	// The returned slice is a snapshot; modifications do not affect the store.
	Recent(limit int) []Event

	// Subscribe returns a channel that receives every event added after the
	// call. The channel has a buffer; slow consumers may miss events.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Event

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Event)
}
