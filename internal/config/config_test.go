package config

import (
	"strings"
	"testing"
	"time"
)

func TestNewAppliesCarrierDefaults(t *testing.T) {
	t.Setenv("DB_WRITER_DSN", "file::memory:")
	t.Setenv("CARRIER_API_URL", "http://carrier.test/")

	cfg, err := New()
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if cfg.Carrier.CreateTimeout != 65*time.Second {
		t.Fatalf("expected 65s create timeout, got %s", cfg.Carrier.CreateTimeout)
	}
	if cfg.Carrier.RequestTimeout != 30*time.Second {
		t.Fatalf("expected 30s request timeout, got %s", cfg.Carrier.RequestTimeout)
	}
	if cfg.Carrier.MaxRetries != 2 {
		t.Fatalf("expected 2 retries, got %d", cfg.Carrier.MaxRetries)
	}
	if cfg.Carrier.APIURL != "http://carrier.test" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Carrier.APIURL)
	}
	if cfg.Database.ReaderDSN != cfg.Database.WriterDSN {
		t.Fatalf("expected reader DSN to fall back to writer")
	}
}

func TestNewRejectsCreateTimeoutShorterThanRequestTimeout(t *testing.T) {
	t.Setenv("CARRIER_CREATE_TIMEOUT", "5s")
	t.Setenv("CARRIER_REQUEST_TIMEOUT", "10s")

	_, err := New()
	if err == nil || !strings.Contains(err.Error(), "CARRIER_CREATE_TIMEOUT") {
		t.Fatalf("expected create timeout validation error, got %v", err)
	}
}

func TestNewDisablesMessagingDriver(t *testing.T) {
	t.Setenv("MESSAGING_ENABLED", "false")
	t.Setenv("MESSAGING_DRIVER", "kafka")

	cfg, err := New()
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if cfg.Messaging.Driver != "noop" {
		t.Fatalf("expected noop driver, got %q", cfg.Messaging.Driver)
	}
}

func TestNewRejectsUnknownMessagingDriver(t *testing.T) {
	t.Setenv("MESSAGING_DRIVER", "carrier-pigeon")

	if _, err := New(); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
