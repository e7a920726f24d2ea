package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tradeforge/position-engine/internal/logger"
	"github.com/tradeforge/position-engine/internal/position"
	"github.com/tradeforge/position-engine/internal/risk"
)

const stateVersion = "1.0.0"

// maxStateAge guards against resuming from a stale snapshot after a long
// outage; positions may have moved far from the persisted picture
const maxStateAge = 7 * 24 * time.Hour

// tradeHistoryCap bounds the in-state trade history; the full history
// streams to the trades JSONL log
const tradeHistoryCap = 1000

// EngineState is the complete recoverable state of one engine instance
type EngineState struct {
	Version      string    `json:"version"`
	Instance     string    `json:"instance"`
	LastUpdated  time.Time `json:"last_updated"`
	SessionStart time.Time `json:"session_start"`

	Positions []position.Position `json:"positions"`

	ActivePreset     string    `json:"active_preset"`
	LastPresetSwitch time.Time `json:"last_preset_switch,omitempty"`

	Risk risk.Status `json:"risk"`

	TradeHistory []position.TradeRecord `json:"trade_history,omitempty"`

	CyclesCompleted int `json:"cycles_completed"`
}

// Persistence saves and restores engine state across restarts. Saves are
// atomic: a temp file is written and renamed over the live file, with the
// previous snapshot kept as a backup. Closed trades additionally stream to
// an append-only JSONL log.
type Persistence struct {
	log      *logger.Logger
	stateDir string
	instance string

	mu    sync.RWMutex
	state *EngineState

	tradeLogFile *os.File
}

// NewPersistence creates a persistence manager for one engine instance
func NewPersistence(log *logger.Logger, stateDir, instance string) *Persistence {
	return &Persistence{
		log:      log,
		stateDir: stateDir,
		instance: instance,
		state:    newEngineState(instance),
	}
}

func newEngineState(instance string) *EngineState {
	now := time.Now()
	return &EngineState{
		Version:      stateVersion,
		Instance:     instance,
		LastUpdated:  now,
		SessionStart: now,
		Positions:    []position.Position{},
	}
}

// Initialize creates the state directory and opens the trade log
func (p *Persistence) Initialize() error {
	if err := os.MkdirAll(p.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tradeLogPath := filepath.Join(p.stateDir, fmt.Sprintf("%s_trades.jsonl", p.instance))
	f, err := os.OpenFile(tradeLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open trade log: %w", err)
	}
	p.tradeLogFile = f

	p.log.Info("State persistence initialized: %s", p.stateDir)
	return nil
}

func (p *Persistence) stateFile() string {
	return filepath.Join(p.stateDir, fmt.Sprintf("%s_state.json", p.instance))
}

func (p *Persistence) backupFile() string {
	return filepath.Join(p.stateDir, fmt.Sprintf("%s_state_backup.json", p.instance))
}

// Load reads persisted state from disk. A missing file is not an error; a
// corrupt or stale file is discarded with a warning and a clean state is
// used instead.
func (p *Persistence) Load() (*EngineState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.stateFile())
	if os.IsNotExist(err) {
		p.log.Info("No existing state file found, starting with clean state")
		return p.state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state EngineState
	if err := json.Unmarshal(data, &state); err != nil {
		p.log.LogWarning("State Load", "State file corrupt, using clean state: %v", err)
		return p.state, nil
	}

	if err := p.validate(&state); err != nil {
		p.log.LogWarning("State Load", "Loaded state rejected: %v, using clean state", err)
		return p.state, nil
	}

	p.state = &state
	p.log.Info("State loaded: %d open positions, %d recorded trades",
		len(state.Positions), len(state.TradeHistory))
	return p.state, nil
}

// Save writes the given state to disk atomically, keeping the previous
// snapshot as a backup
func (p *Persistence) Save(state *EngineState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state.Version = stateVersion
	state.Instance = p.instance
	state.LastUpdated = time.Now()
	if len(state.TradeHistory) > tradeHistoryCap {
		state.TradeHistory = state.TradeHistory[len(state.TradeHistory)-tradeHistoryCap:]
	}
	p.state = state

	if _, err := os.Stat(p.stateFile()); err == nil {
		if err := copyFile(p.stateFile(), p.backupFile()); err != nil {
			p.log.LogWarning("State Backup", "Failed to create backup: %v", err)
		}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tempFile := p.stateFile() + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := os.Rename(tempFile, p.stateFile()); err != nil {
		return fmt.Errorf("failed to move state file: %w", err)
	}

	return nil
}

// AppendTrade streams a closed trade to the append-only JSONL log
func (p *Persistence) AppendTrade(record *position.TradeRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tradeLogFile == nil {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	p.tradeLogFile.WriteString(string(data) + "\n")
	p.tradeLogFile.Sync()
}

// State returns a copy of the last saved or loaded state
func (p *Persistence) State() EngineState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	copied := *p.state
	copied.Positions = append([]position.Position(nil), p.state.Positions...)
	copied.TradeHistory = append([]position.TradeRecord(nil), p.state.TradeHistory...)
	return copied
}

// Close flushes a final snapshot and releases file handles
func (p *Persistence) Close() error {
	p.mu.Lock()
	if p.tradeLogFile != nil {
		p.tradeLogFile.Close()
		p.tradeLogFile = nil
	}
	state := p.state
	p.mu.Unlock()

	return p.Save(state)
}

func (p *Persistence) validate(state *EngineState) error {
	if state.Instance != p.instance {
		return fmt.Errorf("instance mismatch: expected %s, got %s", p.instance, state.Instance)
	}
	if state.Version == "" {
		return fmt.Errorf("state version is empty")
	}
	if time.Since(state.LastUpdated) > maxStateAge {
		return fmt.Errorf("state is too old: %v", state.LastUpdated)
	}
	for _, pos := range state.Positions {
		if pos.Quantity < 0 {
			return fmt.Errorf("negative quantity for %s", pos.Symbol)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
