package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newViper(t *testing.T, overrides map[string]any) *viper.Viper {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterServeFlags(fs)
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		t.Fatalf("BindPFlags: %v", err)
	}
	v.Set("jwt-secret", testSecret)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg, err := FromViper(newViper(t, nil))
	if err != nil {
		t.Fatalf("FromViper: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Addr)
	}
	if cfg.DB.Driver != DriverSQLite || cfg.DB.DSN != "examvault.db" {
		t.Errorf("unexpected db config: %+v", cfg.DB)
	}
	if cfg.Artifact.Backend != ArtifactMemory || cfg.Artifact.MaxRetries != 3 {
		t.Errorf("unexpected artifact config: %+v", cfg.Artifact)
	}
	if cfg.Notify.BatchSize != 50 || cfg.Notify.Backend != NotifyLog {
		t.Errorf("unexpected notify config: %+v", cfg.Notify)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("expected 24h token ttl, got %v", cfg.Auth.TokenTTL)
	}
}

func TestFromViperEnvironment(t *testing.T) {
	t.Setenv("EXAMVAULT_NOTIFY_BATCH_SIZE", "10")
	v := newViper(t, nil)
	v.SetEnvPrefix("EXAMVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper: %v", err)
	}
	if cfg.Notify.BatchSize != 10 {
		t.Errorf("expected batch size from env, got %d", cfg.Notify.BatchSize)
	}
}

func TestFromViperValidation(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		wantErr   string
	}{
		{"bad driver", map[string]any{"db-driver": "oracle"}, "db-driver"},
		{"empty dsn", map[string]any{"db": ""}, "db is required"},
		{"bad lang", map[string]any{"lang": "fr"}, "lang"},
		{"bad public url", map[string]any{"public-url": "not a url"}, "public-url"},
		{"bad artifact backend", map[string]any{"artifact-backend": "ftp"}, "artifact-backend"},
		{"gateway without jwt", map[string]any{"artifact-backend": "gateway"}, "pin-jwt"},
		{"minio without keys", map[string]any{"artifact-backend": "minio"}, "minio"},
		{"bad notify backend", map[string]any{"notify-backend": "sms"}, "notify-backend"},
		{"zero batch", map[string]any{"notify-batch-size": 0}, "notify-batch-size"},
		{"zero concurrency", map[string]any{"notify-concurrency": 0}, "notify-concurrency"},
		{"short secret", map[string]any{"jwt-secret": "short"}, "jwt-secret"},
		{"negative rate limit", map[string]any{"rate-limit-rps": -1}, "rate-limit-rps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromViper(newViper(t, tt.overrides))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFromViperBackends(t *testing.T) {
	cfg, err := FromViper(newViper(t, map[string]any{
		"artifact-backend": "minio",
		"minio-access-key": "ak",
		"minio-secret-key": "sk",
		"notify-backend":   "amqp",
		"db-driver":        "mongo",
		"db":               "mongodb://localhost:27017",
	}))
	if err != nil {
		t.Fatalf("FromViper: %v", err)
	}
	if cfg.Artifact.Minio.Bucket != "examvault" || cfg.Notify.Exchange != "examvault.notifications" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.DB.MongoDatabase != "examvault" {
		t.Errorf("expected default mongo database, got %q", cfg.DB.MongoDatabase)
	}
}
