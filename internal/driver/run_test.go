package driver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunNativeObjCopiesInputUnchanged(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "prog.o")
	output := filepath.Join(dir, "prog.copy.o")
	if err := os.WriteFile(input, []byte{0x7f, 'E', 'L', 'F'}, 0644); err != nil {
		t.Fatalf("seeding input: %v", err)
	}

	opts := Options{
		Input: input, NativeOut: output,
		NativeArch: "x86_64", NativeOS: "linux",
		NativeObj: true,
	}
	if err := Run(opts); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(got) != "\x7fELF" {
		t.Errorf("expected --native-obj to copy the input bytes untouched, got %q", got)
	}
}

func TestRunNativeObjNoopWhenOutputEqualsInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "prog.o")
	if err := os.WriteFile(input, []byte{1, 2, 3}, 0644); err != nil {
		t.Fatalf("seeding input: %v", err)
	}

	opts := Options{
		Input: input, NativeArch: "x86_64", NativeOS: "linux", NativeObj: true,
	}
	if err := Run(opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestFindRuntimeArchiveMissingIsNotFound(t *testing.T) {
	t.Setenv("SOX_RUNTIME_DIR", filepath.Join(t.TempDir(), "nowhere"))
	p := hostPlatform()
	if _, ok := FindRuntimeArchive(p); ok {
		t.Error("expected no runtime archive to be found under a nonexistent SOX_RUNTIME_DIR")
	}
}
