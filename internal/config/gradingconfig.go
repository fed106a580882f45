// Package config provides configuration loading utilities for grading defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GradingDefaults holds fallback texts used when a grading request omits them.
type GradingDefaults struct {
	Title        string `yaml:"title"`
	SystemPrompt string `yaml:"system_prompt"`
}

// GradingYAML represents the structure of grading default YAML files.
type GradingYAML struct {
	Texts []string `yaml:"texts"`
}

// LoadGradingDefaults loads grading default texts from YAML files.
func LoadGradingDefaults() (*GradingDefaults, error) {
	defaults := &GradingDefaults{}

	title, err := loadTextFromYAML("configs/grading/default_title.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to load default title: %w", err)
	}
	defaults.Title = title

	systemPrompt, err := loadTextFromYAML("configs/grading/system_prompt.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to load system prompt: %w", err)
	}
	defaults.SystemPrompt = systemPrompt

	return defaults, nil
}

// loadTextFromYAML loads the text entries from a grading defaults YAML file.
func loadTextFromYAML(filePath string) (string, error) {
	// Get absolute path to ensure we're reading from the correct location
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	// Check if file exists
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file not found: %s", absPath)
	}

	// Read file content
	// #nosec G304 -- Configuration files are expected to be safe
	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var gradingYAML GradingYAML
	if err := yaml.Unmarshal(content, &gradingYAML); err != nil {
		return "", fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(gradingYAML.Texts) == 0 {
		return "", fmt.Errorf("no texts found in config file: %s", filePath)
	}

	// Join all texts with newlines and clean up
	text := strings.Join(gradingYAML.Texts, "\n")
	text = strings.TrimSpace(text)

	return text, nil
}

// GetDefaultTitle returns the default assignment title from config.
func GetDefaultTitle() string {
	defaults, err := LoadGradingDefaults()
	if err != nil {
		// Fallback to hardcoded value if config loading fails
		return "Grading Task"
	}
	return defaults.Title
}

// GetDefaultSystemPrompt returns the default grading system prompt from config.
func GetDefaultSystemPrompt() string {
	defaults, err := LoadGradingDefaults()
	if err != nil {
		// Fallback to hardcoded value if config loading fails
		return "You are a strict grader that returns JSON only."
	}
	return defaults.SystemPrompt
}
