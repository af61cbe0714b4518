package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/relohq/relo/internal/buildprobe"
)

// resolveArtifact validates and resolves the positional input argument to a
// concrete library path. When filePath is set it names the library
// directly, bypassing buildprobe entirely; otherwise input must be a
// project directory and the artifact is the one buildprobe expects that
// directory to produce for the given profile.
func resolveArtifact(input, filePath, profile string) (string, error) {
	if filePath != "" {
		info, err := os.Stat(filePath)
		if err != nil {
			return "", fmt.Errorf("--file %q: %w", filePath, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("--file %q is a directory, expected a library file", filePath)
		}
		return filePath, nil
	}

	if input == "" {
		return "", fmt.Errorf("an input project directory or --file is required")
	}

	info, err := os.Stat(input)
	if err != nil {
		return "", fmt.Errorf("input %q: %w", input, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("input %q is a file; pass it via --file instead", input)
	}
	return buildprobe.TargetLibPath(input, profile)
}

// stablePath derives the sibling "loaded" path a server copies the
// artifact to before each client load, insulating the running copy from a
// rebuild landing mid-read (spec: "a sibling file alongside the artifact
// with a stable name (extension change)").
func stablePath(artifactPath string) string {
	ext := filepath.Ext(artifactPath)
	base := strings.TrimSuffix(artifactPath, ext)
	return base + ".loaded" + ext
}
