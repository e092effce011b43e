package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func newTestReloader(t *testing.T) (*Reloader, string, time.Time) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeYAML(t, path, "provider: openai\nmodel: gpt-4o\n", base)
	initial, err := LoadFileConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	return NewReloader(path, initial, nil), path, base
}

func TestReloader_PicksUpChanges(t *testing.T) {
	r, path, base := newTestReloader(t)
	var got *FileConfig
	r.OnReload = func(cfg *FileConfig) { got = cfg }

	if r.check() {
		t.Fatal("unchanged file reloaded")
	}

	writeYAML(t, path, "provider: openai\nmodel: gpt-5\nmax_tokens: 512\n", base.Add(time.Minute))
	if !r.check() {
		t.Fatal("changed file not reloaded")
	}
	if got == nil || got.Model != "gpt-5" || got.MaxTokens != 512 {
		t.Errorf("OnReload got %+v", got)
	}
	if r.Current().Model != "gpt-5" {
		t.Errorf("Current().Model = %q", r.Current().Model)
	}
}

func TestReloader_KeepsLastGoodConfig(t *testing.T) {
	r, path, base := newTestReloader(t)
	called := false
	r.OnReload = func(*FileConfig) { called = true }

	writeYAML(t, path, "provider: openai\n", base.Add(time.Minute))
	if r.check() {
		t.Fatal("invalid config applied")
	}
	if called || r.Current().Model != "gpt-4o" {
		t.Errorf("current = %+v, callback = %v", r.Current(), called)
	}
}

func TestReloader_ReloadOnce(t *testing.T) {
	r, path, base := newTestReloader(t)
	writeYAML(t, path, "provider: openai\nmodel: o3\n", base)
	if err := r.ReloadOnce(); err != nil {
		t.Fatal(err)
	}
	if r.Current().Model != "o3" {
		t.Errorf("model = %q", r.Current().Model)
	}
}

func TestReloader_StartStop(t *testing.T) {
	r, path, base := newTestReloader(t)
	r.interval = 10 * time.Millisecond
	reloaded := make(chan string, 1)
	r.OnReload = func(cfg *FileConfig) {
		select {
		case reloaded <- cfg.Model:
		default:
		}
	}
	r.Start()
	defer r.Stop()

	writeYAML(t, path, "provider: openai\nmodel: gpt-5-mini\n", base.Add(time.Minute))
	select {
	case m := <-reloaded:
		if m != "gpt-5-mini" {
			t.Errorf("model = %q", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not reload")
	}
}
