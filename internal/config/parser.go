package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/slink/bandwidth"
)

// LoadScenario loads a scenario configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// Returns the parsed ScenarioConfig or an error if parsing fails.
func LoadScenario(path string) (*ScenarioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	return ParseScenario(data, path)
}

// ParseScenario parses scenario data.
//
// The format is determined by the file extension in path, or defaults
// to YAML if the path is empty or has an unknown extension.
func ParseScenario(data []byte, path string) (*ScenarioConfig, error) {
	var config ScenarioConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON scenario: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML scenario: %w", err)
		}
	default:
		// Try YAML by default
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse scenario (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common
// formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults applies default values to a ScenarioConfig.
func ApplyDefaults(config *ScenarioConfig) {
	if config.Name == "" {
		config.Name = "scenario"
	}

	// Link defaults mirror the bandwidth package's own
	if config.Link.Rate == nil {
		unlimited := ByteSize(bandwidth.Unlimited)
		config.Link.Rate = &unlimited
	}
	if config.Link.Resolution == 0 {
		config.Link.Resolution = bandwidth.DefaultResolution
	}
	if config.Link.HighWater == 0 {
		config.Link.HighWater = bandwidth.DefaultHighWater
	}

	for _, stream := range config.Streams {
		if stream.Chunk == 0 {
			stream.Chunk = DefaultChunk
		}
	}
}
