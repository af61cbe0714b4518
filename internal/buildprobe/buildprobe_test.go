package buildprobe

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeGoMod(t *testing.T, dir, modulePath string) {
	t.Helper()
	content := "module " + modulePath + "\n\ngo 1.25.0\n"
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(content), 0o644); err != nil {
		t.Fatalf("write go.mod: %v", err)
	}
}

func TestGoModPath_Found(t *testing.T) {
	dir := t.TempDir()
	writeGoMod(t, dir, "example.com/widget")

	path, ok := GoModPath(dir)
	if !ok {
		t.Fatal("expected go.mod to be found")
	}
	if filepath.Base(path) != "go.mod" {
		t.Fatalf("unexpected path: %s", path)
	}
}

func TestGoModPath_NotFound(t *testing.T) {
	dir := t.TempDir()
	if _, ok := GoModPath(dir); ok {
		t.Fatal("expected no go.mod")
	}
}

func TestModuleName_SimplePath(t *testing.T) {
	dir := t.TempDir()
	writeGoMod(t, dir, "example.com/widget")

	name, err := ModuleName(dir)
	if err != nil {
		t.Fatalf("ModuleName: %v", err)
	}
	if name != "widget" {
		t.Fatalf("got %q, want %q", name, "widget")
	}
}

func TestModuleName_NestedPath(t *testing.T) {
	dir := t.TempDir()
	writeGoMod(t, dir, "github.com/acme/apps/gadget")

	name, err := ModuleName(dir)
	if err != nil {
		t.Fatalf("ModuleName: %v", err)
	}
	if name != "gadget" {
		t.Fatalf("got %q, want %q", name, "gadget")
	}
}

func TestModuleName_NoGoMod(t *testing.T) {
	dir := t.TempDir()
	if _, err := ModuleName(dir); err == nil {
		t.Fatal("expected error for missing go.mod")
	}
}

func TestLibraryFilename_MatchesCurrentPlatform(t *testing.T) {
	got := LibraryFilename("widget")
	switch runtime.GOOS {
	case "windows":
		if got != "widget.dll" {
			t.Fatalf("got %q", got)
		}
	case "darwin":
		if got != "libwidget.dylib" {
			t.Fatalf("got %q", got)
		}
	default:
		if got != "libwidget.so" {
			t.Fatalf("got %q", got)
		}
	}
}

func TestTargetLibPath(t *testing.T) {
	dir := t.TempDir()
	writeGoMod(t, dir, "example.com/widget")

	path, err := TargetLibPath(dir, "debug")
	if err != nil {
		t.Fatalf("TargetLibPath: %v", err)
	}
	want := filepath.Join(dir, "target", "debug", LibraryFilename("widget"))
	if path != want {
		t.Fatalf("got %q, want %q", path, want)
	}
}
