package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manifest describes one audio clip dropped into the inbox. It sits next
// to the audio as <name>.json.
type Manifest struct {
	// File is the audio file name, relative to the inbox directory.
	File string `json:"file"`
	// MimeType selects the stored extension, e.g. "audio/ogg".
	MimeType string `json:"mimeType"`
	// LengthMs is the measured clip duration.
	LengthMs int64 `json:"lengthMs"`
	// DisplayName defaults to File without its extension.
	DisplayName string `json:"displayName,omitempty"`
}

// Validate checks if the Manifest has valid field values
func (m *Manifest) Validate() error {
	if m.File == "" {
		return fmt.Errorf("file is required")
	}
	if filepath.Base(m.File) != m.File || strings.HasPrefix(m.File, ".") {
		return fmt.Errorf("file must be a plain file name inside the inbox, got %q", m.File)
	}
	if strings.HasSuffix(m.File, ".json") {
		return fmt.Errorf("file cannot be a manifest: %s", m.File)
	}
	if m.LengthMs <= 0 {
		return fmt.Errorf("lengthMs must be positive (got %d)", m.LengthMs)
	}
	return nil
}

// ReadManifest reads and validates an inbox manifest
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", filepath.Base(path), err)
	}

	return &m, nil
}

// WriteManifest writes m into dir as <audio name>.json with validation.
// The manifest is written to a temporary name first so the watcher never
// sees a partial file.
func WriteManifest(dir string, m *Manifest) (string, error) {
	if err := m.Validate(); err != nil {
		return "", fmt.Errorf("invalid manifest: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	path := filepath.Join(dir, strings.TrimSuffix(m.File, filepath.Ext(m.File))+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}
