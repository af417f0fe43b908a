package kns

import (
	"fmt"
	"path/filepath"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
)

// ConvertToAbsolute converts a relative path to an absolute path using the
// given directory as base.  Absolute paths are returned unchanged.
func ConvertToAbsolute(path string, configDir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return path, fmt.Errorf("could not get absolute path of directory %q: %v", configDir, err)
	}
	return filepath.Join(absDir, path), nil
}
