package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Impact string

const (
	ImpactLow    Impact = "Low"
	ImpactMedium Impact = "Medium"
	ImpactHigh   Impact = "High"
)

// ParseImpact normalizes the case of s. Unknown values return false.
func ParseImpact(s string) (Impact, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ImpactLow, true
	case "medium":
		return ImpactMedium, true
	case "high":
		return ImpactHigh, true
	}
	return "", false
}

// Rank orders impacts from least (0) to most disruptive. Unknown impacts rank last.
func (i Impact) Rank() int {
	switch i {
	case ImpactLow:
		return 0
	case ImpactMedium:
		return 1
	case ImpactHigh:
		return 2
	}
	return 3
}

type StrategyAction string

const (
	ActionMove    StrategyAction = "move"
	ActionShorten StrategyAction = "shorten"
	ActionDelete  StrategyAction = "delete"
	ActionSplit   StrategyAction = "split"
	ActionSwap    StrategyAction = "swap"
)

// Valid reports whether a is a known strategy action.
func (a StrategyAction) Valid() bool {
	switch a {
	case ActionMove, ActionShorten, ActionDelete, ActionSplit, ActionSwap:
		return true
	}
	return false
}

// Strategy is one candidate remediation for a detected conflict. Strategies
// are transient and never persisted.
type Strategy struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Impact      Impact         `json:"impact"`
	Action      StrategyAction `json:"action"`
	Operations  []Operation    `json:"-"`
}

type strategyJSON struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Impact      Impact          `json:"impact"`
	Action      StrategyAction  `json:"action"`
	Operations  []OperationWire `json:"operations"`
}

func (s Strategy) MarshalJSON() ([]byte, error) {
	wire := strategyJSON{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Impact:      s.Impact,
		Action:      s.Action,
		Operations:  make([]OperationWire, 0, len(s.Operations)),
	}
	for _, op := range s.Operations {
		wire.Operations = append(wire.Operations, WireOf(op))
	}
	return json.Marshal(wire)
}

func (s *Strategy) UnmarshalJSON(data []byte) error {
	var wire strategyJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	ops, err := DecodeOperations(wire.Operations)
	if err != nil {
		return err
	}
	*s = Strategy{
		ID:          wire.ID,
		Title:       wire.Title,
		Description: wire.Description,
		Impact:      wire.Impact,
		Action:      wire.Action,
		Operations:  ops,
	}
	return nil
}

type OperationType string

const (
	OperationMove   OperationType = "move"
	OperationResize OperationType = "resize"
	OperationDelete OperationType = "delete"
)

// Operation is a primitive schedule mutation. The set of implementations is
// closed: MoveOperation, ResizeOperation and DeleteOperation.
type Operation interface {
	Type() OperationType
	Target() string
	isOperation()
}

// MoveOperation shifts both ends of a block, preserving its duration.
type MoveOperation struct {
	TargetBlockID string
	ShiftMinutes  int
}

// ResizeOperation keeps the start of a block and sets its length.
type ResizeOperation struct {
	TargetBlockID   string
	DurationMinutes int
}

// DeleteOperation removes a block.
type DeleteOperation struct {
	TargetBlockID string
}

func (MoveOperation) Type() OperationType   { return OperationMove }
func (ResizeOperation) Type() OperationType { return OperationResize }
func (DeleteOperation) Type() OperationType { return OperationDelete }

func (o MoveOperation) Target() string   { return o.TargetBlockID }
func (o ResizeOperation) Target() string { return o.TargetBlockID }
func (o DeleteOperation) Target() string { return o.TargetBlockID }

func (MoveOperation) isOperation()   {}
func (ResizeOperation) isOperation() {}
func (DeleteOperation) isOperation() {}

// OperationParams is the union of every operation's parameters on the wire.
type OperationParams struct {
	ShiftMinutes    *int `json:"shiftMinutes,omitempty"`
	DurationMinutes *int `json:"durationMinutes,omitempty"`
}

// OperationWire is the JSON shape of an operation.
type OperationWire struct {
	Type          OperationType   `json:"type"`
	TargetBlockID string          `json:"targetBlockId"`
	Params        OperationParams `json:"params"`
}

// ToOperation converts the wire form into its typed operation.
func (w OperationWire) ToOperation() (Operation, error) {
	if w.TargetBlockID == "" {
		return nil, fmt.Errorf("operation %q is missing targetBlockId", w.Type)
	}
	switch OperationType(strings.ToLower(string(w.Type))) {
	case OperationMove:
		if w.Params.ShiftMinutes == nil {
			return nil, fmt.Errorf("move operation on %s is missing shiftMinutes", w.TargetBlockID)
		}
		return MoveOperation{TargetBlockID: w.TargetBlockID, ShiftMinutes: *w.Params.ShiftMinutes}, nil
	case OperationResize:
		if w.Params.DurationMinutes == nil {
			return nil, fmt.Errorf("resize operation on %s is missing durationMinutes", w.TargetBlockID)
		}
		return ResizeOperation{TargetBlockID: w.TargetBlockID, DurationMinutes: *w.Params.DurationMinutes}, nil
	case OperationDelete:
		return DeleteOperation{TargetBlockID: w.TargetBlockID}, nil
	}
	return nil, fmt.Errorf("unknown operation type %q", w.Type)
}

// WireOf converts a typed operation back into its wire form.
func WireOf(op Operation) OperationWire {
	wire := OperationWire{Type: op.Type(), TargetBlockID: op.Target()}
	switch o := op.(type) {
	case MoveOperation:
		shift := o.ShiftMinutes
		wire.Params.ShiftMinutes = &shift
	case ResizeOperation:
		duration := o.DurationMinutes
		wire.Params.DurationMinutes = &duration
	case DeleteOperation:
	}
	return wire
}

// DecodeOperations converts a list of wire operations. A nil list decodes to
// an empty, non-nil slice.
func DecodeOperations(wires []OperationWire) ([]Operation, error) {
	ops := make([]Operation, 0, len(wires))
	for i, w := range wires {
		op, err := w.ToOperation()
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}
