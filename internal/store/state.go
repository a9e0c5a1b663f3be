// Package store persists the state shared between autoduck and autoduckd.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateFilePath returns the path to the state file.
// Uses XDG_DATA_HOME or defaults to ~/.local/share/autoduck/state.json.
func StateFilePath() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "autoduck", "state.json"), nil
}

// Transition records the last phase change the daemon made.
type Transition struct {
	Phase     string `json:"phase"`             // "ducked" or "normal"
	Trigger   string `json:"trigger,omitempty"` // Priority identity that caused a duck
	Timestamp int64  `json:"timestamp"`
}

// SharedState contains state that is shared between autoduck and autoduckd.
type SharedState struct {
	EngineEnabled   bool   `json:"engine_enabled"`
	EngineChangedAt int64  `json:"engine_changed_at,omitempty"` // Unix timestamp
	EngineChangedBy string `json:"engine_changed_by,omitempty"` // "cli", "dbus", "autostart"

	LastTransition *Transition `json:"last_transition,omitempty"`

	SchemaVersion int `json:"schema_version"`
}

const (
	// CurrentSchemaVersion is the current version of the state schema.
	CurrentSchemaVersion = 1
)

// stateFileMutex protects concurrent access to the state file within a process.
var stateFileMutex sync.RWMutex

// DefaultSharedState returns a new SharedState with default values.
func DefaultSharedState() *SharedState {
	return &SharedState{
		EngineEnabled: true,
		SchemaVersion: CurrentSchemaVersion,
	}
}

// LoadSharedState loads the shared state from path.
// If the file doesn't exist or is corrupt, returns a default state.
func LoadSharedState(path string) (*SharedState, error) {
	stateFileMutex.RLock()
	defer stateFileMutex.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSharedState(), nil
		}
		return nil, err
	}

	var state SharedState
	if err := json.Unmarshal(data, &state); err != nil {
		return DefaultSharedState(), nil
	}
	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}
	return &state, nil
}

// SaveSharedState saves the shared state to path.
func SaveSharedState(path string, state *SharedState) error {
	stateFileMutex.Lock()
	defer stateFileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// SetEngine records an engine enable or disable.
func (s *SharedState) SetEngine(enabled bool, source string) {
	s.EngineEnabled = enabled
	s.EngineChangedAt = time.Now().Unix()
	s.EngineChangedBy = source
}

// RecordTransition records a phase change.
func (s *SharedState) RecordTransition(phase, trigger string, at time.Time) {
	s.LastTransition = &Transition{
		Phase:     phase,
		Trigger:   trigger,
		Timestamp: at.Unix(),
	}
}

// Update loads the state at path, applies fn and saves it back.
func Update(path string, fn func(*SharedState)) error {
	state, err := LoadSharedState(path)
	if err != nil {
		return err
	}
	fn(state)
	return SaveSharedState(path, state)
}
