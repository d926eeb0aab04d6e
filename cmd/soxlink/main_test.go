package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunRejectsMissingPositionalArgument(t *testing.T) {
	if code := run([]string{"--native-arch", "x86_64"}); code != 2 {
		t.Errorf("expected exit code 2 for a missing input path, got %d", code)
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	if code := run([]string{"--not-a-flag", "prog.o"}); code != 2 {
		t.Errorf("expected exit code 2 for an unrecognised flag, got %d", code)
	}
}

func TestRunPrintsVersionAndExitsZero(t *testing.T) {
	if code := run([]string{"--version"}); code != 0 {
		t.Errorf("expected --version to exit 0, got %d", code)
	}
}

func TestRunRejectsMutuallyExclusiveLinkerModes(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "prog.o")
	if err := os.WriteFile(input, []byte{0x7f, 'E', 'L', 'F'}, 0644); err != nil {
		t.Fatalf("seeding input: %v", err)
	}
	code := run([]string{"--custom-linker", "--system-linker", input})
	if code != 2 {
		t.Errorf("expected exit code 2 for --custom-linker + --system-linker, got %d", code)
	}
}

func TestRunRejectsMissingInputFile(t *testing.T) {
	code := run([]string{filepath.Join(t.TempDir(), "does-not-exist.o")})
	if code != 1 {
		t.Errorf("expected exit code 1 for a missing input file, got %d", code)
	}
}

func TestRunNativeObjBypassesLinker(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "prog.o")
	output := filepath.Join(dir, "prog.copy.o")
	if err := os.WriteFile(input, []byte{0x7f, 'E', 'L', 'F'}, 0644); err != nil {
		t.Fatalf("seeding input: %v", err)
	}
	code := run([]string{"--native-obj", "--native-out", output, input})
	if code != 0 {
		t.Fatalf("expected --native-obj to exit 0, got %d", code)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("expected --native-obj to produce %s: %v", output, err)
	}
}
