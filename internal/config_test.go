package internal

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.App.HTTP.Address() != ":8080" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
	if cfg.Auth.AuthEnabled() {
		t.Error("auth should be disabled by default")
	}
}

func TestHTTPConfigValidate(t *testing.T) {
	cases := []struct {
		port int
		ok   bool
	}{
		{8080, true},
		{1, true},
		{65535, true},
		{0, false},
		{-1, false},
		{70000, false},
	}
	for _, c := range cases {
		cfg := HTTPConfig{Port: c.port}
		err := cfg.Validate()
		if c.ok && err != nil {
			t.Errorf("port %d: unexpected error %v", c.port, err)
		}
		if !c.ok && err == nil {
			t.Errorf("port %d: expected error", c.port)
		}
	}
}

func TestProjectConfigRequiresPath(t *testing.T) {
	cfg := ProjectConfig{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty project path")
	}
}

func TestCacheConfigValidate(t *testing.T) {
	valid := CacheConfig{
		BatchWindow:  200 * time.Millisecond,
		ReloadWindow: 100 * time.Millisecond,
		RenameWindow: 750 * time.Millisecond,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	tooShort := valid
	tooShort.BatchWindow = time.Millisecond
	if err := tooShort.Validate(); err == nil {
		t.Error("expected error for sub-10ms batch window")
	}

	missing := valid
	missing.RenameWindow = 0
	if err := missing.Validate(); err == nil {
		t.Error("expected error for zero rename window")
	}
}

func TestAuthConfigValidate(t *testing.T) {
	cfg := AuthConfig{Mode: AuthModeToken, Token: "secret"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should report enabled")
	}

	cfg = AuthConfig{Mode: AuthModeToken}
	if err := cfg.Validate(); err == nil {
		t.Error("token mode without token should fail")
	}

	cfg = AuthConfig{Mode: "basic"}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown mode should fail")
	}

	// Empty mode normalises to disabled.
	cfg = AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if cfg.Mode != AuthModeDisabled || cfg.AuthEnabled() {
		t.Errorf("mode = %q, enabled = %v", cfg.Mode, cfg.AuthEnabled())
	}
}
