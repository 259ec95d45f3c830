package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  workers: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Config, 4)
	go func() {
		_ = Watch(ctx, path, func(c *Config) { got <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte("agent:\n  workers: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.Agent.Workers != 7 {
			t.Errorf("workers after reload = %d, want 7", c.Agent.Workers)
		}
	case <-ctx.Done():
		t.Fatal("onChange not called after write")
	}
}

func TestWatch_InvalidReloadSkipsCallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  workers: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	called := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		_ = Watch(ctx, path, func(*Config) { called <- struct{}{} })
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte("agent:\n  workers: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	<-done
	select {
	case <-called:
		t.Fatal("onChange must not be called for an invalid config")
	default:
	}
}
