// Package buildprobe locates the shared-library artifact produced by
// building a Go module directory with -buildmode=c-shared. It is
// deliberately shallow: it derives a module's library name and an
// expected output path, but never invokes the toolchain itself (building
// is the caller's job; the client only needs to know where to look).
package buildprobe

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
)

// moduleDirective matches the first "module <path>" line of a go.mod file.
var moduleDirective = regexp.MustCompile(`(?m)^\s*module\s+(\S+)\s*$`)

// GoModPath returns the path to dir's go.mod if dir is a Go module root.
func GoModPath(dir string) (string, bool) {
	path := filepath.Join(dir, "go.mod")
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, true
	}
	return "", false
}

// ModuleName reads the module path declared in dir's go.mod and returns its
// final path element, which -buildmode=c-shared conventionally uses as the
// library base name when no explicit -o is given.
func ModuleName(dir string) (string, error) {
	path, ok := GoModPath(dir)
	if !ok {
		return "", fmt.Errorf("buildprobe: %s is not a Go module (no go.mod)", dir)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("buildprobe: read %s: %w", path, err)
	}

	m := moduleDirective.FindSubmatch(content)
	if m == nil {
		return "", fmt.Errorf("buildprobe: no module directive found in %s", path)
	}

	modulePath := string(m[1])
	name := filepath.Base(modulePath)
	if name == "." || name == "/" {
		return "", fmt.Errorf("buildprobe: cannot derive library name from module path %q", modulePath)
	}
	return name, nil
}

// LibraryFilename returns the platform-conventional shared-library filename
// for the given base name, matching what `go build -buildmode=c-shared`
// produces.
func LibraryFilename(name string) string {
	switch runtime.GOOS {
	case "windows":
		return name + ".dll"
	case "darwin":
		return "lib" + name + ".dylib"
	default:
		return "lib" + name + ".so"
	}
}

// TargetLibPath resolves the expected shared-library artifact for a module
// directory and build profile. profile is a caller-chosen subdirectory
// name (e.g. "debug", "release") under which built artifacts are expected
// to live, mirroring a Cargo-style target/<profile>/ layout; relo does not
// prescribe how that directory gets populated, only where it looks.
func TargetLibPath(dir, profile string) (string, error) {
	name, err := ModuleName(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "target", profile, LibraryFilename(name)), nil
}
