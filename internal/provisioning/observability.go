package provisioning

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Logger is the minimal logging surface used by phases.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Observer defines the interface for structured observability during provisioning.
type Observer interface {
	Logger

	// Event emits a structured event
	Event(event Event)

	// Progress reports progress for a phase
	Progress(phase string, current, total int)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	Phase     string            // Phase name (e.g., "compute", "cluster")
	Message   string            // Human-readable message
	Resource  string            // Resource name/ID if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	// EventPhaseStarted indicates a provisioning phase has started.
	EventPhaseStarted EventType = "phase.started"
	// EventPhaseCompleted indicates a provisioning phase completed successfully.
	EventPhaseCompleted EventType = "phase.completed"
	// EventPhaseFailed indicates a provisioning phase failed.
	EventPhaseFailed EventType = "phase.failed"

	// EventVMCreating indicates a virtual machine is being cloned.
	EventVMCreating EventType = "vm.creating"
	// EventVMCreated indicates a virtual machine was cloned and started.
	EventVMCreated EventType = "vm.created"
	// EventVMFailed indicates a virtual machine operation failed.
	EventVMFailed EventType = "vm.failed"
	// EventVMDestroying indicates a virtual machine is being destroyed.
	EventVMDestroying EventType = "vm.destroying"
	// EventVMDestroyed indicates a virtual machine was destroyed.
	EventVMDestroyed EventType = "vm.destroyed"

	// EventProgress indicates progress in a long-running operation.
	EventProgress EventType = "progress"
)

// ConsoleObserver implements Observer using the standard log package.
type ConsoleObserver struct {
	contextFields map[string]string
}

// NewConsoleObserver creates a new console-based observer.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{
		contextFields: make(map[string]string),
	}
}

// Printf implements the Logger interface.
func (o *ConsoleObserver) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

// Event implements Observer interface.
func (o *ConsoleObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Merge context fields
	if event.Fields == nil {
		event.Fields = make(map[string]string)
	}
	for k, v := range o.contextFields {
		if _, exists := event.Fields[k]; !exists {
			event.Fields[k] = v
		}
	}

	log.Print(o.formatEvent(event))
}

// Progress implements Observer interface.
func (o *ConsoleObserver) Progress(phase string, current, total int) {
	if total == 0 {
		log.Printf("[%s] Progress: %d/%d", phase, current, total)
		return
	}
	percentage := (current * 100) / total
	log.Printf("[%s] Progress: %d/%d (%d%%)", phase, current, total, percentage)
}

// WithFields implements Observer interface.
func (o *ConsoleObserver) WithFields(fields map[string]string) Observer {
	newFields := make(map[string]string)
	for k, v := range o.contextFields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &ConsoleObserver{
		contextFields: newFields,
	}
}

// formatEvent formats an event for console output.
func (o *ConsoleObserver) formatEvent(event Event) string {
	var parts []string

	parts = append(parts, string(event.Type))

	if event.Phase != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Phase))
	}

	if event.Resource != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", event.Resource))
	}

	parts = append(parts, event.Message)

	if len(event.Fields) > 0 {
		var fieldParts []string
		for k, v := range event.Fields {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, v))
		}
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(fieldParts, ", ")))
	}

	return strings.Join(parts, " ")
}

// LogVMCreating logs a VM clone start event.
func LogVMCreating(observer Observer, phase, name string, vmid int) {
	observer.Event(Event{
		Type:     EventVMCreating,
		Phase:    phase,
		Resource: name,
		Message:  "cloning from template",
		Fields:   map[string]string{"vmid": fmt.Sprintf("%d", vmid)},
	})
}

// LogVMCreated logs a VM ready event.
func LogVMCreated(observer Observer, phase, name string, vmid int, ip string) {
	observer.Event(Event{
		Type:     EventVMCreated,
		Phase:    phase,
		Resource: name,
		Message:  "running",
		Fields:   map[string]string{"vmid": fmt.Sprintf("%d", vmid), "ip": ip},
	})
}

// LogVMDestroyed logs a VM teardown event.
func LogVMDestroyed(observer Observer, phase, name string, vmid int) {
	observer.Event(Event{
		Type:     EventVMDestroyed,
		Phase:    phase,
		Resource: name,
		Message:  "destroyed",
		Fields:   map[string]string{"vmid": fmt.Sprintf("%d", vmid)},
	})
}
