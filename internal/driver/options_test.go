package driver

import "testing"

func TestPlatformAcceptsAliases(t *testing.T) {
	opts := Options{NativeArch: "x64", NativeOS: "linux"}
	p, err := opts.Platform()
	if err != nil {
		t.Fatalf("Platform: %v", err)
	}
	if !p.Valid() {
		t.Errorf("expected x64/linux to resolve to a valid platform, got %v", p)
	}
}

func TestPlatformRejectsUnsupportedTarget(t *testing.T) {
	opts := Options{NativeArch: "x86_64", NativeOS: "macos"}
	if _, err := opts.Platform(); err == nil {
		t.Fatal("expected linux-only arch x86_64/macos to be rejected")
	}
}

func TestOutputPathDefaultsToInputWithoutExtension(t *testing.T) {
	opts := Options{Input: "/tmp/prog.o"}
	if got, want := opts.OutputPath(), "/tmp/prog"; got != want {
		t.Errorf("OutputPath() = %q, want %q", got, want)
	}
}

func TestOutputPathHonoursNativeOut(t *testing.T) {
	opts := Options{Input: "/tmp/prog.o", NativeOut: "/tmp/myapp"}
	if got, want := opts.OutputPath(), "/tmp/myapp"; got != want {
		t.Errorf("OutputPath() = %q, want %q", got, want)
	}
}
