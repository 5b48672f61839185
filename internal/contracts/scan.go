package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ScanMode selects how stale data is detected
type ScanMode string

const (
	// ScanModeIncremental refetches only symbols with missing or stale bars
	ScanModeIncremental ScanMode = "incremental"
	// ScanModeFull refetches every symbol in the universe
	ScanModeFull ScanMode = "full"
)

// ErrUnknownScanMode rejects a mode other than incremental or full
var ErrUnknownScanMode = errors.New("unknown scan mode")

// ParseScanMode validates a mode string; empty means incremental
func ParseScanMode(s string) (ScanMode, error) {
	switch ScanMode(s) {
	case "", ScanModeIncremental:
		return ScanModeIncremental, nil
	case ScanModeFull:
		return ScanModeFull, nil
	default:
		return "", fmt.Errorf("%q (want incremental or full): %w", s, ErrUnknownScanMode)
	}
}

// Scan run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ScanRequest is what a caller asks the scanner to do
type ScanRequest struct {
	Mode     ScanMode `json:"mode"`
	Universe string   `json:"universe"`
	Provider string   `json:"provider"`
}

// ScanRun records one scanner invocation.
// Identity and configuration fields are fixed at creation; only the lifecycle fields
// (Status, FinishedAt, ResultCount, Error) are written when the run ends.
type ScanRun struct {
	ID            string          `json:"id"`
	StartedAt     time.Time       `json:"started_at"`
	Universe      string          `json:"universe"`
	Provider      string          `json:"provider"`
	Mode          ScanMode        `json:"mode"`
	ConfigVersion string          `json:"config_version"`
	ConfigHash    string          `json:"config_hash"`
	ConfigJSON    json.RawMessage `json:"config,omitempty"`
	SymbolCount   int             `json:"symbol_count"`
	GateOpen      bool            `json:"gate_open"`
	GateReason    string          `json:"gate_reason"`

	Status      string     `json:"status"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ResultCount int        `json:"result_count"`
	Error       string     `json:"error,omitempty"`
}

// RunOutcome is the lifecycle update written when a run ends
type RunOutcome struct {
	Status      string
	FinishedAt  time.Time
	ResultCount int
	Error       string
}
