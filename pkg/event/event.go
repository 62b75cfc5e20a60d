// pkg/event/event.go
package event

import (
	"sync"
)

// Type represents the type of event
type Type string

// Guidance event types
const (
	TrajectoryStarted   Type = "trajectory_started"
	TrajectoryReplaced  Type = "trajectory_replaced"
	TrajectoryCompleted Type = "trajectory_completed"
	RegimeSelected      Type = "regime_selected"
	AllocationFailed    Type = "allocation_failed"
	AllocationRecovered Type = "allocation_recovered"
	TickOverrun         Type = "tick_overrun"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

// Subscription identifies a registered handler
type Subscription struct {
	ID     uint64
	Type   Type
	Cancel func()
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus manages event subscriptions and dispatching
type Bus struct {
	handlers map[Type][]registration
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]registration),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type. Calling Cancel on
// the returned subscription removes it.
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, handler: handler})

	return &Subscription{
		ID:     id,
		Type:   eventType,
		Cancel: func() { b.unsubscribe(eventType, id) },
	}
}

func (b *Bus) unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[eventType]
	for i, r := range regs {
		if r.id == id {
			b.handlers[eventType] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribed handlers synchronously
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	regs := append([]registration(nil), b.handlers[event.GetType()]...)
	b.mu.RUnlock()

	for _, r := range regs {
		r.handler(event)
	}
}

// TrajectoryEvent reports the lifecycle of a trajectory
type TrajectoryEvent struct {
	BaseEvent
	TrajectoryID string
	GoalID       string
	Regime       string
	Duration     float64 // [s]
}

// NewTrajectoryEvent creates a new trajectory event
func NewTrajectoryEvent(eventType Type, source interface{}, trajectoryID, goalID, regime string, duration float64) *TrajectoryEvent {
	return &TrajectoryEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		TrajectoryID: trajectoryID,
		GoalID:       goalID,
		Regime:       regime,
		Duration:     duration,
	}
}

// AllocationEvent reports thrust allocation failures and recoveries
type AllocationEvent struct {
	BaseEvent
	TrajectoryID string
	Status       string
	Fallback     string
	Err          error
}

// NewAllocationEvent creates a new allocation event
func NewAllocationEvent(eventType Type, source interface{}, trajectoryID, status, fallback string, err error) *AllocationEvent {
	return &AllocationEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		TrajectoryID: trajectoryID,
		Status:       status,
		Fallback:     fallback,
		Err:          err,
	}
}

// TickEvent reports a control tick that exceeded its budget
type TickEvent struct {
	BaseEvent
	Elapsed float64 // [s]
	Budget  float64 // [s]
}

// NewTickEvent creates a new tick overrun event
func NewTickEvent(source interface{}, elapsed, budget float64) *TickEvent {
	return &TickEvent{
		BaseEvent: BaseEvent{
			EventType: TickOverrun,
			Source:    source,
		},
		Elapsed: elapsed,
		Budget:  budget,
	}
}
