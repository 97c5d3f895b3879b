package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	metadataFile    = "model_metadata.json"
	metadataPattern = "model_metadata_*.json"
	// ModelKind identifies the only model family the service understands.
	ModelKind = "random_forest_regressor"
)

// HoldoutMetrics summarises model quality on the held-out split.
type HoldoutMetrics struct {
	R2   float64 `json:"r2"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
}

// ModelMetadata contains information about a trained model. It is stored as
// a JSON sidecar next to the model artifact.
type ModelMetadata struct {
	Version      string          `json:"version"`
	Kind         string          `json:"kind"`
	TrainedAt    time.Time       `json:"trained_at"`
	Features     []string        `json:"features"`
	NumTrees     int             `json:"num_trees"`
	MaxDepth     int             `json:"max_depth"`
	Seed         int64           `json:"seed"`
	TrainingRows int             `json:"training_rows"`
	HoldoutRows  int             `json:"holdout_rows"`
	Holdout      *HoldoutMetrics `json:"holdout,omitempty"`

	// FeatureImportance is the holdout R² drop per shuffled feature.
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
}

// DefaultMetadata describes a model whose sidecar is missing.
func DefaultMetadata(e Ensemble) *ModelMetadata {
	md := &ModelMetadata{Version: "unknown", Kind: ModelKind}
	if e != nil {
		md.NumTrees = len(e.Members())
	}
	return md
}

// MetadataPath returns the sidecar location for a model artifact.
func MetadataPath(modelPath string) string {
	return filepath.Join(filepath.Dir(modelPath), metadataFile)
}

// SaveModelMetadata writes the sidecar for modelPath plus a versioned copy
// that keeps the history of previous trainings.
func SaveModelMetadata(modelPath string, md *ModelMetadata) error {
	payload, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	dir := filepath.Dir(modelPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}
	if err := os.WriteFile(MetadataPath(modelPath), payload, 0o600); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	stamp := md.TrainedAt.UTC().Format("20060102-150405")
	versioned := filepath.Join(dir, fmt.Sprintf("model_metadata_%s.json", stamp))
	if err := os.WriteFile(versioned, payload, 0o600); err != nil {
		return fmt.Errorf("write versioned metadata: %w", err)
	}
	return nil
}

// LoadModelMetadata reads the sidecar for modelPath. When the primary file is
// missing or unreadable the newest versioned copy is used instead.
func LoadModelMetadata(modelPath string) (*ModelMetadata, error) {
	dir := filepath.Dir(modelPath)

	if md, err := decodeMetadata(MetadataPath(modelPath)); err == nil {
		return md, nil
	}

	// Fallback: pick the newest metadata file by timestamp suffix
	matches, err := filepath.Glob(filepath.Join(dir, metadataPattern))
	if err != nil {
		return nil, fmt.Errorf("search metadata files: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no metadata files found in %s", dir)
	}
	sort.Strings(matches)
	return decodeMetadata(matches[len(matches)-1])
}

func decodeMetadata(path string) (*ModelMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var md ModelMetadata
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &md, nil
}
