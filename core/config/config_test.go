package config

import "testing"

func validConfig() *Config {
	return &Config{
		VK: VKConfig{Token: "vk1.a.secret", GroupID: 123},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.VK.APIVersion != "5.131" {
		t.Fatalf("api_version = %q, expected 5.131", cfg.VK.APIVersion)
	}
	if cfg.VK.WaitSeconds != 25 {
		t.Fatalf("wait_seconds = %d, expected 25", cfg.VK.WaitSeconds)
	}
	if cfg.VK.BackoffSeconds != 5 {
		t.Fatalf("backoff_seconds = %d, expected 5", cfg.VK.BackoffSeconds)
	}
	if cfg.VK.SendRate != 20 {
		t.Fatalf("send_rate = %d, expected 20", cfg.VK.SendRate)
	}
	if cfg.Dispatch.Workers != 4 || cfg.Dispatch.QueueSize != 256 {
		t.Fatalf("dispatch defaults = %+v", cfg.Dispatch)
	}
}

func TestNormalizeRequiresToken(t *testing.T) {
	cfg := validConfig()
	cfg.VK.Token = "  "
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestNormalizeRequiresGroupID(t *testing.T) {
	cfg := validConfig()
	cfg.VK.GroupID = 0
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for missing group id")
	}
}

func TestNormalizeNotifierNeedsChatID(t *testing.T) {
	cfg := validConfig()
	cfg.Notify.TelegramToken = "123:abc"
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error when notifier token is set without chat id")
	}
	cfg.Notify.ChatID = 42
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
}
