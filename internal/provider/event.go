package provider

import "iter"

// EventKind identifies what a streamed Event carries.
type EventKind int

const (
	// EventCompletion carries a fragment of completion text.
	EventCompletion EventKind = iota
	// EventError carries an upstream error message and ends the stream.
	EventError
)

// Event is a single item of a message stream.
type Event struct {
	Kind EventKind
	// Text is the completion fragment or the error message, depending on Kind.
	Text string
}

// Completion returns a completion fragment event.
func Completion(text string) Event {
	return Event{Kind: EventCompletion, Text: text}
}

// Failure returns an error event.
func Failure(message string) Event {
	return Event{Kind: EventError, Text: message}
}

// Events returns a stream that yields the given events in order.
func Events(events ...Event) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for _, e := range events {
			if !yield(e) {
				return
			}
		}
	}
}
