package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type BlockType string

const (
	BlockDeepWork   BlockType = "deep-work"
	BlockMeeting    BlockType = "meeting"
	BlockAdmin      BlockType = "admin"
	BlockBuffer     BlockType = "buffer"
	BlockMicroBreak BlockType = "micro-break"
	BlockErrand     BlockType = "errand"
	BlockTravel     BlockType = "travel"
	BlockPrep       BlockType = "prep"
	BlockDebrief    BlockType = "debrief"
)

// Valid reports whether t is one of the closed set of block types.
func (t BlockType) Valid() bool {
	switch t {
	case BlockDeepWork, BlockMeeting, BlockAdmin, BlockBuffer, BlockMicroBreak,
		BlockErrand, BlockTravel, BlockPrep, BlockDebrief:
		return true
	}
	return false
}

// IsLowPriority reports whether displacing a block of this type is a minor event.
func (t BlockType) IsLowPriority() bool {
	return t == BlockMicroBreak || t == BlockBuffer
}

// ScheduleBlock is a planned interval of a user's day.
type ScheduleBlock struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Title     string          `json:"title"`
	BlockType BlockType       `json:"blockType"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	TaskID    string          `json:"taskId,omitempty"`
	EventID   string          `json:"eventId,omitempty"`
	Pinned    bool            `json:"pinned"`
	Rationale string          `json:"rationale,omitempty"`
	Explain   json.RawMessage `json:"explain,omitempty"`
}

func (b *ScheduleBlock) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("block id cannot be empty")
	}
	if b.UserID == "" {
		return fmt.Errorf("block user id cannot be empty")
	}
	if !b.BlockType.Valid() {
		return fmt.Errorf("invalid block type %q", b.BlockType)
	}
	if !b.StartTime.Before(b.EndTime) {
		return fmt.Errorf("block start (%s) must be before end (%s)",
			b.StartTime.Format(time.RFC3339), b.EndTime.Format(time.RFC3339))
	}
	return nil
}

// DurationMinutes returns the length of the block in whole minutes.
func (b ScheduleBlock) DurationMinutes() int {
	return int(b.EndTime.Sub(b.StartTime).Minutes())
}
