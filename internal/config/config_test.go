package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"htnlearn/internal/config"
)

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	cfg := config.Load(filepath.Join(t.TempDir(), "does-not-exist.json"), 9090)
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected fallback config to use the requested port, got %d", cfg.Server.Port)
	}
	if cfg.RedisAddr == "" {
		t.Fatalf("expected a default redis address")
	}
}

func TestApplyEnvOverridesReadsRedisAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	cfg := config.Default(8080)
	config.ApplyEnvOverrides(cfg)
	if cfg.RedisAddr != "redis.internal:6380" {
		t.Fatalf("expected REDIS_ADDR override to apply, got %s", cfg.RedisAddr)
	}
}

func TestLoadLearnProfileParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "learn.yaml")
	yaml := "soundness_check: true\nnd_checkers: true\nhard_squelch: 3\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	opts, err := config.LoadLearnProfile(path)
	if err != nil {
		t.Fatalf("LoadLearnProfile: %v", err)
	}
	if !opts.SoundnessCheck || !opts.NDCheckers {
		t.Fatalf("expected soundness_check and nd_checkers to be true, got %+v", opts)
	}
	if opts.HardSquelch != 3 {
		t.Fatalf("expected hard_squelch 3, got %d", opts.HardSquelch)
	}
}
