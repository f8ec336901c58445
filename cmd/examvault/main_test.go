package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/examvault/internal/config"
	"github.com/pavelanni/examvault/internal/model"
	"github.com/pavelanni/examvault/internal/notify"
)

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	repo, err := openRepository(ctx, config.DBConfig{Driver: config.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("openRepository: %v", err)
	}
	defer repo.Close()

	if err := seedAdmin(ctx, repo, "admin@localhost", ""); err == nil {
		t.Fatal("expected error without a password")
	}
	if err := seedAdmin(ctx, repo, "admin@localhost", "s3cret-pass"); err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}
	u, err := repo.GetUserByEmail(ctx, "admin@localhost")
	if err != nil || u == nil {
		t.Fatalf("expected seeded admin, got %v %v", u, err)
	}
	if u.Role != model.UserRoleAdmin {
		t.Errorf("expected admin role, got %s", u.Role)
	}

	// Seeding is skipped once any user exists.
	if err := seedAdmin(ctx, repo, "other@localhost", ""); err != nil {
		t.Errorf("expected no-op on populated store, got %v", err)
	}
}

func TestUseraddAndExport(t *testing.T) {
	t.Setenv("EXAMVAULT_PASSWORD", "long-enough-password")
	db := filepath.Join(t.TempDir(), "test.db")

	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"useradd", "--db", db, "--email", "Inst@Example.com", "--role", "institute", "--log-level", "error"})
	if err := root.Execute(); err != nil {
		t.Fatalf("useradd: %v", err)
	}
	if !strings.Contains(out.String(), "created institute user inst@example.com") {
		t.Errorf("unexpected output: %q", out.String())
	}

	root = rootCmd()
	root.SetArgs([]string{"useradd", "--db", db, "--email", "inst@example.com", "--log-level", "error"})
	if err := root.Execute(); err == nil {
		t.Error("expected duplicate user error")
	}

	root = rootCmd()
	root.SetArgs([]string{"useradd", "--db", db, "--email", "x@example.com", "--role", "wizard", "--log-level", "error"})
	if err := root.Execute(); err == nil {
		t.Error("expected invalid role error")
	}

	out.Reset()
	root = rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"export", "--db", db, "--exam-id", "missing", "--log-level", "error"})
	if err := root.Execute(); err == nil {
		t.Error("expected error exporting an unknown exam")
	}
}

func TestKeygen(t *testing.T) {
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"keygen"})
	if err := root.Execute(); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	first := strings.TrimSpace(out.String())
	if len(first) < 32 {
		t.Errorf("expected a key of at least 32 characters, got %q", first)
	}

	out.Reset()
	root = rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"keygen"})
	if err := root.Execute(); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if strings.TrimSpace(out.String()) == first {
		t.Error("expected distinct keys")
	}
}

func TestOpenSender(t *testing.T) {
	s, closeFn, err := openSender(config.NotifyConfig{Backend: config.NotifyLog})
	if err != nil {
		t.Fatalf("openSender: %v", err)
	}
	defer closeFn()
	if err := s.Send(context.Background(), notify.Message{Kind: notify.KindExamApproved, To: "inst@example.com", Subject: "s", Body: "b"}); err != nil {
		t.Errorf("expected log sender to succeed, got %v", err)
	}
}

func TestOpenArtifactStoreMemory(t *testing.T) {
	adapter, closeFn, err := openArtifactStore(context.Background(), config.ArtifactConfig{
		Backend: config.ArtifactMemory,
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("openArtifactStore: %v", err)
	}
	defer closeFn()
	if adapter == nil {
		t.Fatal("expected adapter")
	}
}
