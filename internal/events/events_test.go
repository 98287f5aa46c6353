package events

import (
	"errors"
	"testing"
	"time"

	"zapis/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received []*Event
	bus.Subscribe(EventAppointmentCreated, func(event *Event) error {
		received = append(received, event)
		return nil
	})

	appt := &models.Appointment{
		ID:        "a1",
		ShopID:    "shop-1",
		StaffID:   "s1",
		StartTime: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC),
		Status:    models.StatusConfirmed,
		Version:   1,
	}
	require.NoError(t, bus.PublishJSON(EventAppointmentCreated, NewAppointmentPayload(appt, "")))
	require.NoError(t, bus.PublishJSON(EventAppointmentConfirmed, map[string]string{"ignored": "yes"}))

	require.Len(t, received, 1)
	assert.Equal(t, EventAppointmentCreated, received[0].Type)
	assert.NotZero(t, received[0].ID)
	assert.False(t, received[0].CreatedAt.IsZero())

	var payload AppointmentEventPayload
	require.NoError(t, received[0].Decode(&payload))
	assert.Equal(t, "a1", payload.AppointmentID)
	assert.Equal(t, models.StatusConfirmed, payload.Status)
	assert.Empty(t, payload.PreviousStatus)
}

func TestEventBus_HandlerErrors(t *testing.T) {
	bus := NewEventBus()

	var failures, calls int
	bus.OnError(func(event *Event, err error) { failures++ })
	bus.Subscribe("x", func(event *Event) error {
		calls++
		return errors.New("boom")
	})
	bus.Subscribe("x", func(event *Event) error {
		calls++
		return nil
	})

	require.NoError(t, bus.PublishJSON("x", 1))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, failures)
}

func TestEventBus_NilSafe(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON("x", 1))
}

func TestEventBus_MarshalError(t *testing.T) {
	bus := NewEventBus()
	assert.Error(t, bus.PublishJSON("x", make(chan int)))
}

func TestEventForStatus(t *testing.T) {
	assert.Equal(t, EventAppointmentConfirmed, EventForStatus(models.StatusConfirmed))
	assert.Equal(t, EventAppointmentCompleted, EventForStatus(models.StatusCompleted))
	assert.Equal(t, EventAppointmentCancelled, EventForStatus(models.StatusCancelledByClient))
	assert.Equal(t, EventAppointmentCancelled, EventForStatus(models.StatusCancelledByShop))
	assert.Equal(t, EventAppointmentNoShow, EventForStatus(models.StatusNoShow))
	assert.Equal(t, EventAppointmentTransitions, EventForStatus(models.StatusPending))
}
