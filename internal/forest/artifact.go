package forest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Save writes the forest as JSON to path, replacing any existing file.
func (f *Forest) Save(path string) error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("model not trained")
	}
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal forest: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model directory: %w", err)
		}
	}
	return os.WriteFile(path, payload, 0o600)
}

// Load reads a forest previously written by Save.
func Load(path string) (*Forest, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	var f Forest
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}
	return &f, nil
}
