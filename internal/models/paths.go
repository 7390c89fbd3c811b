package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Asset file names. Model files take the extension of the inference backend.
const (
	ClassifierStem   = "classifier_224"
	DetectorStem     = "detect"
	ClassifierLabels = "classifier_labelmap.txt"
	DetectorLabels   = "detect_labelmap.txt"
)

// Model type categories for the organized directory layout.
const (
	TypeClassifier = "classifier"
	TypeDetector   = "detector"
)

// Default models directory.
const DefaultModelsDir = "models"

// Environment variable for models directory override.
const EnvModelsDir = "ROADSIGN_MODELS_DIR"

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}

// ModelInfo describes one expected asset.
type ModelInfo struct {
	Name        string `json:"name"        yaml:"name"`
	Type        string `json:"type"        yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Filename    string `json:"filename"    yaml:"filename"`
	Path        string `json:"path"        yaml:"path"`
	Exists      bool   `json:"exists"      yaml:"exists"`
}

// GetModelsDir returns the models directory.
// Priority: 1. explicit modelsDir, 2. environment variable, 3. project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ModelFile returns the model file name for a stem and backend.
func ModelFile(stem, backend string) string {
	if backend == "tflite" {
		return stem + ".tflite"
	}
	return stem + ".onnx"
}

// ResolvePath prefers <dir>/<type>/<file> when it exists and otherwise
// falls back to the flat <dir>/<file> layout.
func ResolvePath(modelsDir, modelType, filename string) string {
	baseDir := GetModelsDir(modelsDir)
	if modelType != "" {
		organized := filepath.Join(baseDir, modelType, filename)
		if _, err := os.Stat(organized); err == nil {
			return organized
		}
	}
	return filepath.Join(baseDir, filename)
}

// ClassifierModelPath returns the classifier model path for a backend.
func ClassifierModelPath(modelsDir, backend string) string {
	return ResolvePath(modelsDir, TypeClassifier, ModelFile(ClassifierStem, backend))
}

// DetectorModelPath returns the detector model path for a backend.
func DetectorModelPath(modelsDir, backend string) string {
	return ResolvePath(modelsDir, TypeDetector, ModelFile(DetectorStem, backend))
}

// ClassifierLabelsPath returns the classifier label file path.
func ClassifierLabelsPath(modelsDir string) string {
	return ResolvePath(modelsDir, TypeClassifier, ClassifierLabels)
}

// DetectorLabelsPath returns the detector label file path.
func DetectorLabelsPath(modelsDir string) string {
	return ResolvePath(modelsDir, TypeDetector, DetectorLabels)
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}

// ListAvailableModels returns the expected assets for a backend and whether
// each one is present.
func ListAvailableModels(modelsDir, backend string) []ModelInfo {
	out := []ModelInfo{
		{
			Name:        "classifier",
			Type:        TypeClassifier,
			Description: "Speed limit classifier (224x224 input)",
			Filename:    ModelFile(ClassifierStem, backend),
			Path:        ClassifierModelPath(modelsDir, backend),
		},
		{
			Name:        "classifier-labels",
			Type:        TypeClassifier,
			Description: "Classifier label map",
			Filename:    ClassifierLabels,
			Path:        ClassifierLabelsPath(modelsDir),
		},
		{
			Name:        "detector",
			Type:        TypeDetector,
			Description: "Road sign SSD detector (300x300 input, 10 slots)",
			Filename:    ModelFile(DetectorStem, backend),
			Path:        DetectorModelPath(modelsDir, backend),
		},
		{
			Name:        "detector-labels",
			Type:        TypeDetector,
			Description: "Detector label map",
			Filename:    DetectorLabels,
			Path:        DetectorLabelsPath(modelsDir),
		},
	}
	for i := range out {
		out[i].Exists = ValidateModelExists(out[i].Path) == nil
	}
	return out
}
