package config

import (
	"os"
	"testing"
)

func clearLinkEnv() {
	_ = os.Unsetenv("LINK_DB_DRIVER")
	_ = os.Unsetenv("LINK_POSTGRES_DSN")
	_ = os.Unsetenv("LINK_EMBED_MODEL")
	_ = os.Unsetenv("LINK_OUTREACH_BATCH_SIZE")
	_ = os.Unsetenv("LINK_OUTREACH_HARD_CAP")
}

func TestConfigLoad_Defaults(t *testing.T) {
	clearLinkEnv()
	_ = os.Setenv("LINK_DB_DRIVER", "sqlite")
	defer clearLinkEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.EmbedModel != "mxbai-embed-large" || cfg.SearchAlphaKeyword != 0.25 || cfg.SearchAlphaVector != 0.75 {
		t.Fatalf("unexpected default search config: %+v", cfg)
	}
	if cfg.OutreachBatchSize != 5 || cfg.OutreachHardCap != 25 || cfg.OutreachMaxExpansions != 2 {
		t.Fatalf("unexpected default outreach bounds: %+v", cfg)
	}
	if cfg.FactTTLEventUnknownDays != 30 || cfg.FactTTLProfileDays != 180 {
		t.Fatalf("unexpected default fact TTLs: %+v", cfg)
	}
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	clearLinkEnv()
	_ = os.Setenv("LINK_DB_DRIVER", "sqlite")
	_ = os.Setenv("LINK_EMBED_MODEL", "test-model")
	_ = os.Setenv("LINK_OUTREACH_BATCH_SIZE", "3")
	defer clearLinkEnv()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.EmbedModel != "test-model" {
		t.Fatalf("embed model env override failed, got %s", cfg.EmbedModel)
	}
	if cfg.OutreachBatchSize != 3 {
		t.Fatalf("batch size env override failed, got %d", cfg.OutreachBatchSize)
	}
}

func TestConfigLoad_PostgresRequiresDSN(t *testing.T) {
	clearLinkEnv()
	_ = os.Setenv("LINK_DB_DRIVER", "postgres")
	defer clearLinkEnv()

	if _, err := New(); err == nil {
		t.Fatal("expected error for postgres driver without DSN")
	}
}

func TestConfigLoad_BadDriver(t *testing.T) {
	clearLinkEnv()
	_ = os.Setenv("LINK_DB_DRIVER", "mystery")
	defer clearLinkEnv()

	if _, err := New(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
