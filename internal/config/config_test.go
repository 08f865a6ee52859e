package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadFromReaderSections(t *testing.T) {
	t.Parallel()

	input := `# global options
log.level debug
metrics.listen 127.0.0.1:9090

[bridge]
global-name Bridge
cleanup.disabled true

[remote]
Storage 127.0.0.1:7443
Search  10.0.0.2:7443

[views]
view-1 view-2 view-3
view-2
`
	cfg, err := LoadFromReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}

	if got, ok := cfg.GetGlobalOption("log.level"); !ok || got != "debug" {
		t.Fatalf("expected log.level=debug, got %q exists=%v", got, ok)
	}
	if got, ok := cfg.GetSectionOption(SectionBridge, "global-name"); !ok || got != "Bridge" {
		t.Fatalf("expected bridge global-name=Bridge, got %q exists=%v", got, ok)
	}

	wantRemotes := []Remote{
		{Module: "Storage", Address: "127.0.0.1:7443"},
		{Module: "Search", Address: "10.0.0.2:7443"},
	}
	if !reflect.DeepEqual(cfg.Remotes, wantRemotes) {
		t.Fatalf("unexpected remotes: %+v", cfg.Remotes)
	}

	wantViews := []View{
		{ID: "view-1", Children: []string{"view-2", "view-3"}},
		{ID: "view-2", Children: []string{}},
	}
	if len(cfg.Views) != len(wantViews) {
		t.Fatalf("expected %d views, got %+v", len(wantViews), cfg.Views)
	}
	for i, want := range wantViews {
		got := cfg.Views[i]
		if got.ID != want.ID || len(got.Children) != len(want.Children) {
			t.Fatalf("view %d: expected %+v, got %+v", i, want, got)
		}
		for j := range want.Children {
			if got.Children[j] != want.Children[j] {
				t.Fatalf("view %d child %d: expected %q, got %q", i, j, want.Children[j], got.Children[j])
			}
		}
	}

	if _, ok := cfg.Sections[SectionRemote]; ok {
		t.Fatalf("remote entries should not be stored as options")
	}
	if len(cfg.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", cfg.Warnings)
	}
}

func TestLoadFromReaderWarnings(t *testing.T) {
	t.Parallel()

	input := `colour auto
log.max-files many
[bridge]
nonsense 1
[mystery]
key value
`
	cfg, err := LoadFromReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}

	want := []string{
		`global option "log.max-files": expected int, got "many"`,
		`unknown global option: "colour" (value: "auto")`,
		`unknown option in [bridge]: "nonsense" (value: "1")`,
		`unknown section: [mystery]`,
	}
	if !reflect.DeepEqual(cfg.Warnings, want) {
		t.Fatalf("unexpected warnings:\n got: %q\nwant: %q", cfg.Warnings, want)
	}

	// unknown options are kept
	if got, ok := cfg.GetGlobalOption("colour"); !ok || got != "auto" {
		t.Fatalf("expected unknown option to be kept, got %q exists=%v", got, ok)
	}
}

func TestLoadFromReaderRemoteWithoutAddress(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader("[remote]\n\nStorage\n"))
	if err == nil {
		t.Fatal("expected error for remote without address")
	}
	if !strings.Contains(err.Error(), "line 3") || !strings.Contains(err.Error(), `"Storage"`) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFromReaderFlagOption(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader("[bridge]\ncleanup.disabled\n"))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}
	if got, ok := cfg.GetSectionOption(SectionBridge, "cleanup.disabled"); !ok || got != "" {
		t.Fatalf("expected empty value for bare key, got %q exists=%v", got, ok)
	}
}

func TestSectionOptionFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.SetGlobalOption("timeout", "10s")
	if got, ok := cfg.GetSectionOption(SectionRun, "timeout"); !ok || got != "10s" {
		t.Fatalf("expected fallback to global, got %q exists=%v", got, ok)
	}

	cfg.SetSectionOption(SectionRun, "timeout", "30s")
	if got, ok := cfg.GetSectionOption(SectionRun, "timeout"); !ok || got != "30s" {
		t.Fatalf("expected section option to shadow global, got %q exists=%v", got, ok)
	}

	if _, ok := cfg.GetSectionOption(SectionServe, "missing"); ok {
		t.Fatal("expected missing option to be absent")
	}
}

func TestLoadFromPathMissing(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "missing-config"))
	if err != nil {
		t.Fatalf("expected no error loading missing config, got %v", err)
	}
	if len(cfg.Global) != 0 || len(cfg.Sections) != 0 || len(cfg.Remotes) != 0 {
		t.Fatalf("expected empty config for missing file, got %+v", cfg)
	}
}

func TestLoadFromPathExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("log.level warn\n[serve]\nlisten :9000"), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("expected load success, got %v", err)
	}
	if got, ok := cfg.GetGlobalOption("log.level"); !ok || got != "warn" {
		t.Fatalf("expected log.level=warn, got %q exists=%v", got, ok)
	}
	if got, ok := cfg.GetSectionOption(SectionServe, "listen"); !ok || got != ":9000" {
		t.Fatalf("expected serve listen=:9000, got %q exists=%v", got, ok)
	}
}

func TestLoadFromPathRejectsSymlink(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	if err := os.WriteFile(target, []byte("log.level debug\n"), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	link := filepath.Join(dir, "config")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := LoadFromPath(link); err == nil || !strings.Contains(err.Error(), "symlink") {
		t.Fatalf("expected symlink error, got %v", err)
	}
}
