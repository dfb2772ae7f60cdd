package model

import (
	"encoding/json"
	"fmt"
)

// EventType identifies which booking lifecycle transition triggered the
// webhook call.
type EventType string

const (
	EventNewBooking       EventType = "new_booking"
	EventConfirmedBooking EventType = "confirmed_booking"
)

// BookingRecord is the booking row's field set at the time of the
// triggering event. Field names follow the upstream table columns.
type BookingRecord struct {
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	RoomName        string   `json:"room_name"`
	RoomCapacity    int      `json:"room_capacity"`
	StartTime       FlexTime `json:"start_time"`
	EndTime         FlexTime `json:"end_time"`
	CreatedByName   string   `json:"created_by_name,omitempty"`
	CreatedByEmail  string   `json:"created_by_email"`
	ApprovedByEmail string   `json:"approved_by_email,omitempty"`
	ApprovedAt      FlexTime `json:"approved_at,omitempty"`
}

// BookingEvent is the decoded webhook payload: the lifecycle transition
// plus the row it applies to.
type BookingEvent struct {
	Type   EventType     `json:"type"`
	Record BookingRecord `json:"record"`
}

// ParseError reports a request body that could not be interpreted as a
// booking event.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse booking event: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse booking event: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseBookingEvent decodes a webhook request body. It fails when the
// body is not valid JSON or when the type or record member is absent;
// unknown event type values are NOT an error here, the templating layer
// decides what to do with them.
func ParseBookingEvent(data []byte) (*BookingEvent, error) {
	var raw struct {
		Type   *EventType     `json:"type"`
		Record *BookingRecord `json:"record"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Reason: "invalid JSON", Err: err}
	}
	if raw.Type == nil || *raw.Type == "" {
		return nil, &ParseError{Reason: "missing event type"}
	}
	if raw.Record == nil {
		return nil, &ParseError{Reason: "missing record"}
	}
	return &BookingEvent{Type: *raw.Type, Record: *raw.Record}, nil
}
