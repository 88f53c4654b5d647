package saga

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// State is the lifecycle state of a saga instance.
type State uint8

const (
	New State = iota
	InProgress
	Completed
)

func (s State) String() string {
	switch s {
	case New:
		return "new"
	case InProgress:
		return "in-progress"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ProcessedWindow is how many recently applied event IDs an instance keeps
// to recognise redelivered events.
const ProcessedWindow = 64

// Command is an instruction emitted by a saga for some aggregate.
type Command struct {
	ID            uuid.UUID
	Kind          string
	AggregateKind string
	AggregateID   string
	Payload       []byte
}

// Instance is the stored state of one saga.
type Instance struct {
	ID        ID
	Kind      string
	State     State
	Data      []byte
	Version   uint64
	Processed []uuid.UUID

	pending []Command
}

// NewInstance returns a fresh instance in the New state at version zero.
func NewInstance(kind string, id ID) *Instance {
	return &Instance{ID: id, Kind: kind, State: New}
}

// Enqueue appends commands to be published after the instance is persisted.
func (i *Instance) Enqueue(cmds ...Command) {
	i.pending = append(i.pending, cmds...)
}

// Pending returns the commands accumulated during the current invocation.
func (i *Instance) Pending() []Command {
	return slices.Clone(i.pending)
}

func (i *Instance) ClearPending() {
	i.pending = nil
}

func (i *Instance) HasProcessed(eventID uuid.UUID) bool {
	return slices.Contains(i.Processed, eventID)
}

func (i *Instance) markProcessed(eventID uuid.UUID) {
	i.Processed = append(i.Processed, eventID)
	if n := len(i.Processed); n > ProcessedWindow {
		i.Processed = slices.Clone(i.Processed[n-ProcessedWindow:])
	}
}

// stamp gives every pending command without an ID a stable one derived from
// the triggering event, so a republished command keeps its identity.
func (i *Instance) stamp(eventID uuid.UUID) {
	for n := range i.pending {
		if i.pending[n].ID != uuid.Nil {
			continue
		}
		i.pending[n].ID = uuid.NewSHA1(eventID, fmt.Appendf(nil, "%s/%s/%d", i.Kind, i.ID, n))
	}
}
