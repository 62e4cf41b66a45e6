// Package checkpoint records collection progress so an interrupted run
// can resume without refetching locations it already finished.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"weibogeo/pkg/collector"
	"weibogeo/pkg/logger"
)

// LocationProgress is the stored record of one finished location.
type LocationProgress struct {
	Location     string    `json:"location"`
	PagesFetched int       `json:"pages_fetched"`
	Posts        int       `json:"posts"`
	StopReason   string    `json:"stop_reason"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Checkpoint is the state of one collection run.
type Checkpoint struct {
	RunName   string                      `json:"run_name"`
	Locations map[string]LocationProgress `json:"locations"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
	Version   int                         `json:"version"`
}

// Manager handles checkpoint persistence for one named run. It
// implements the runner's Checkpointer interface.
type Manager struct {
	path       string
	checkpoint *Checkpoint
	log        logger.Logger
}

// NewManager creates a manager storing checkpoints under dataDir. The
// run name keys the checkpoint file, so concurrent runs with different
// names do not interfere.
func NewManager(dataDir, runName string, log logger.Logger) (*Manager, error) {
	checkpointsDir := filepath.Join(dataDir, "checkpoints")
	if err := os.MkdirAll(checkpointsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoints directory: %w", err)
	}

	m := &Manager{
		path: filepath.Join(checkpointsDir, fmt.Sprintf("%s.checkpoint.json", runName)),
		log:  log,
	}

	loaded, err := m.load()
	if err != nil {
		return nil, err
	}
	if loaded == nil {
		loaded = &Checkpoint{
			RunName:   runName,
			Locations: make(map[string]LocationProgress),
			CreatedAt: time.Now(),
			Version:   1,
		}
	}
	m.checkpoint = loaded
	return m, nil
}

// Completed reports whether the location finished in a previous run.
func (m *Manager) Completed(location string) bool {
	_, ok := m.checkpoint.Locations[location]
	return ok
}

// MarkCompleted records a finished location and saves the checkpoint.
func (m *Manager) MarkCompleted(result *collector.LocationResult) error {
	m.checkpoint.Locations[result.Location] = LocationProgress{
		Location:     result.Location,
		PagesFetched: result.PagesFetched,
		Posts:        len(result.Posts),
		StopReason:   string(result.StopReason),
		FinishedAt:   result.FinishedAt,
	}
	return m.save()
}

// Progress returns the stored progress for inspection.
func (m *Manager) Progress() map[string]LocationProgress {
	out := make(map[string]LocationProgress, len(m.checkpoint.Locations))
	for k, v := range m.checkpoint.Locations {
		out[k] = v
	}
	return out
}

// Clear removes the checkpoint file, forgetting all progress.
func (m *Manager) Clear() error {
	m.checkpoint.Locations = make(map[string]LocationProgress)
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing checkpoint: %w", err)
	}
	return nil
}

func (m *Manager) load() (*Checkpoint, error) {
	file, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening checkpoint: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("decoding checkpoint: %w", err)
	}
	if checkpoint.Locations == nil {
		checkpoint.Locations = make(map[string]LocationProgress)
	}

	m.log.InfoWithFields("checkpoint loaded", map[string]interface{}{
		"run":       checkpoint.RunName,
		"locations": len(checkpoint.Locations),
	})
	return &checkpoint, nil
}

// save writes the checkpoint atomically via a temp file and rename, so
// a crash mid-write never corrupts the durable copy.
func (m *Manager) save() error {
	m.checkpoint.UpdatedAt = time.Now()

	tempPath := m.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temporary checkpoint: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m.checkpoint); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("syncing checkpoint: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing checkpoint: %w", err)
	}

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	return nil
}
