package events

import (
	"encoding/json"
	"sync"
	"time"

	"zapis/internal/models"
)

const (
	EventAppointmentCreated     = "appointment.created"
	EventAppointmentConfirmed   = "appointment.confirmed"
	EventAppointmentCompleted   = "appointment.completed"
	EventAppointmentCancelled   = "appointment.cancelled"
	EventAppointmentNoShow      = "appointment.no_show"
	EventAppointmentTransitions = "appointment.transitioned"
)

// AllAppointmentEvents lists every type published by the booking service.
var AllAppointmentEvents = []string{
	EventAppointmentCreated,
	EventAppointmentConfirmed,
	EventAppointmentCompleted,
	EventAppointmentCancelled,
	EventAppointmentNoShow,
	EventAppointmentTransitions,
}

// EventForStatus maps a target status to the event published after the transition.
func EventForStatus(status models.AppointmentStatus) string {
	switch status {
	case models.StatusConfirmed:
		return EventAppointmentConfirmed
	case models.StatusCompleted:
		return EventAppointmentCompleted
	case models.StatusCancelledByClient, models.StatusCancelledByShop:
		return EventAppointmentCancelled
	case models.StatusNoShow:
		return EventAppointmentNoShow
	default:
		return EventAppointmentTransitions
	}
}

// AppointmentEventPayload is the appointment snapshot delivered to subscribers.
type AppointmentEventPayload struct {
	AppointmentID  string                   `json:"appointment_id"`
	ShopID         string                   `json:"shop_id"`
	StaffID        string                   `json:"staff_id"`
	ServiceID      string                   `json:"service_id"`
	ClientID       string                   `json:"client_id"`
	StartTime      time.Time                `json:"start_time"`
	EndTime        time.Time                `json:"end_time"`
	Status         models.AppointmentStatus `json:"status"`
	PreviousStatus models.AppointmentStatus `json:"previous_status,omitempty"`
	Version        int64                    `json:"version"`
}

func NewAppointmentPayload(appt *models.Appointment, previous models.AppointmentStatus) AppointmentEventPayload {
	return AppointmentEventPayload{
		AppointmentID:  appt.ID,
		ShopID:         appt.ShopID,
		StaffID:        appt.StaffID,
		ServiceID:      appt.ServiceID,
		ClientID:       appt.ClientID,
		StartTime:      appt.StartTime,
		EndTime:        appt.EndTime,
		Status:         appt.Status,
		PreviousStatus: previous,
		Version:        appt.Version,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         int64
	onError     func(event *Event, err error)
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError sets a callback for handler failures. Handlers keep running after one fails.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.Lock()
	b.seq++
	if event.ID == 0 {
		event.ID = b.seq
	}
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
