package eventbus

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/julianstephens/daylitd/internal/constants"
)

// Subscriptions maps an event kind to its ordered subscriber list. It is
// built once at startup and passed to the Bus.
type Subscriptions map[constants.EventType][]string

// DefaultSubscriptions wires the built-in pipeline: synced calendar events
// go to the guardian, detected conflicts to the orchestrator.
func DefaultSubscriptions() Subscriptions {
	return Subscriptions{
		constants.EventCalendarSynced:   {constants.SubscriberGuardian},
		constants.EventConflictDetected: {constants.SubscriberOrchestrator},
	}
}

// For returns the subscribers of eventType in declared order.
func (s Subscriptions) For(eventType constants.EventType) []string {
	return s[eventType]
}

// Validate rejects unknown event kinds, empty or reserved subscriber names
// and duplicates within one list.
func (s Subscriptions) Validate() error {
	for eventType, subscribers := range s {
		if !eventType.Valid() {
			return fmt.Errorf("unknown event type %q in subscriptions", eventType)
		}
		for i, name := range subscribers {
			if name == "" {
				return fmt.Errorf("empty subscriber name for %s", eventType)
			}
			if name == constants.ProcessedAllSentinel {
				return fmt.Errorf("subscriber name %q is reserved", name)
			}
			if slices.Contains(subscribers[:i], name) {
				return fmt.Errorf("subscriber %q listed twice for %s", name, eventType)
			}
		}
	}
	return nil
}

// Names returns every distinct subscriber, sorted.
func (s Subscriptions) Names() []string {
	var names []string
	for _, subscribers := range s {
		for _, name := range subscribers {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names
}

// subscriptionFile is the YAML layout:
//
//	subscriptions:
//	  calendar.event.synced: [guardian]
//	  schedule.conflict.detected: [orchestrator, notifier]
type subscriptionFile struct {
	Subscriptions map[string][]string `yaml:"subscriptions"`
}

// LoadSubscriptions reads and validates a YAML subscription table. Kinds
// absent from the file have no subscribers.
func LoadSubscriptions(path string) (Subscriptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscriptions file: %w", err)
	}
	return ParseSubscriptions(data)
}

// ParseSubscriptions decodes a YAML subscription table.
func ParseSubscriptions(data []byte) (Subscriptions, error) {
	var file subscriptionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse subscriptions: %w", err)
	}

	subs := Subscriptions{}
	for eventType, subscribers := range file.Subscriptions {
		subs[constants.EventType(eventType)] = subscribers
	}
	if err := subs.Validate(); err != nil {
		return nil, err
	}
	return subs, nil
}
