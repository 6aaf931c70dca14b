package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const modelZooPrefix = "models:"

var (
	ErrModelNotFound = errors.New("model file does not exist")
	ErrNoModel       = errors.New("no model type given: set --model or provide a model file")
)

// ModelFile is a saved model description.
type ModelFile struct {
	Path         string         `yaml:"-"`
	Model        string         `yaml:"model"`
	ModelName    string         `yaml:"model_name"`
	SystemPrompt string         `yaml:"system_prompt"`
	MaxTokens    int            `yaml:"max_tokens"`
	Temperature  float64        `yaml:"temperature"`
	HistorySize  int            `yaml:"history_size"`
	Endpoint     string         `yaml:"endpoint"`
	Candidates   []string       `yaml:"candidates"`
	Opt          map[string]any `yaml:"opt"`
}

// ResolveModelFile expands the "models:" prefix under <datapath>/models.
// It returns "" when no model file was requested.
func ResolveModelFile(opts Options) string {
	path := strings.TrimSpace(opts.ModelFile)
	if path == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(path, modelZooPrefix); ok {
		return filepath.Join(opts.Datapath, "models", filepath.FromSlash(rest))
	}
	return path
}

// LoadModelFile reads a YAML model description. A directory is accepted when
// it holds a model.yaml file.
func LoadModelFile(path string) (ModelFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ModelFile{}, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return ModelFile{}, fmt.Errorf("stat model file: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, "model.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ModelFile{}, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return ModelFile{}, fmt.Errorf("read model file: %w", err)
	}

	var mf ModelFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return ModelFile{}, fmt.Errorf("parse model file %s: %w", path, err)
	}
	mf.Path = path
	mf.Model = strings.TrimSpace(mf.Model)
	mf.ModelName = strings.TrimSpace(mf.ModelName)
	mf.Endpoint = strings.TrimSpace(mf.Endpoint)
	if mf.HistorySize < 0 {
		mf.HistorySize = 0
	}
	return mf, nil
}

// ApplyOverrides returns opts with the model file's "opt" block applied on
// top. The merged options are validated like command-line ones.
func ApplyOverrides(opts Options, mf ModelFile) (Options, error) {
	if mf.Model != "" {
		opts.Model = mf.Model
	}
	if len(mf.Opt) == 0 {
		return Normalize(opts)
	}
	data, err := yaml.Marshal(mf.Opt)
	if err != nil {
		return opts, fmt.Errorf("encode model overrides: %w", err)
	}
	merged := opts
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return opts, fmt.Errorf("apply model overrides: %w", err)
	}
	merged, err = Normalize(merged)
	if err != nil {
		return merged, fmt.Errorf("model file %s: %w", mf.Path, err)
	}
	return merged, nil
}
