package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.Location.String() != "America/Bogota" {
		t.Fatalf("Location = %s, want America/Bogota", cfg.Location)
	}
	if cfg.SlotStep != 30*time.Minute || cfg.LockTimeout != 5*time.Second || cfg.PendingTTL != 15*time.Minute {
		t.Fatalf("unexpected booking defaults: step=%s lock=%s ttl=%s", cfg.SlotStep, cfg.LockTimeout, cfg.PendingTTL)
	}
	if cfg.NotifyTimeout != 5*time.Second || cfg.NotifyQueue != 1024 {
		t.Fatalf("notify timeout=%s queue=%d", cfg.NotifyTimeout, cfg.NotifyQueue)
	}
	if cfg.RedisMaxLen != 10000 || cfg.KafkaBrokers != "" || cfg.OTelEnabled {
		t.Fatalf("unexpected integration defaults: %+v", cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SALONBOOK_GRPC_ADDR", "127.0.0.1:9090")
	t.Setenv("SALONBOOK_BOOKING_PENDING_TTL", "0s")
	t.Setenv("SALONBOOK_BOOKING_SLOT_STEP", "15m")
	t.Setenv("SALONBOOK_BUSINESS_TIMEZONE", "UTC")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GRPCHost != "127.0.0.1" || cfg.GRPCPort != 9090 {
		t.Fatalf("grpc = %s:%d", cfg.GRPCHost, cfg.GRPCPort)
	}
	if cfg.PendingTTL != 0 || cfg.SlotStep != 15*time.Minute {
		t.Fatalf("ttl=%s step=%s", cfg.PendingTTL, cfg.SlotStep)
	}
	if cfg.Location != time.UTC {
		t.Fatalf("Location = %s", cfg.Location)
	}
	if cfg.KafkaBrokers != "k1:9092,k2:9092" {
		t.Fatalf("KafkaBrokers = %q", cfg.KafkaBrokers)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"SALONBOOK_BOOKING_LOCK_TIMEOUT": "soon",
		"SALONBOOK_BOOKING_SLOT_STEP":    "0s",
		"SALONBOOK_BUSINESS_TIMEZONE":    "Mars/Olympus",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := load(viper.New()); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
