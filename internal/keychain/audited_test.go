package keychain

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"benchdeck/internal/audit"
)

func setupAuditedStore(t *testing.T) (*AuditedStore, string) {
	t.Helper()
	auditPath := filepath.Join(t.TempDir(), "audit.log")

	auditLog, err := audit.NewLogger(auditPath)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })

	store := NewAuditedStore(NewMemoryStore(), auditLog, "cli")
	return store, auditPath
}

func readAuditEntries(t *testing.T, path string) []audit.Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	entries := make([]audit.Entry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var e audit.Entry
		json.Unmarshal([]byte(line), &e)
		entries = append(entries, e)
	}
	return entries
}

func TestAuditedStoreSetLogsWrite(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	store.Set("openai-api-key", "value")

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Action != audit.ActionCredentialWrite {
		t.Errorf("expected credential_write, got %v", entries[0].Action)
	}
	if entries[0].Key != "openai-api-key" {
		t.Errorf("expected openai-api-key, got %q", entries[0].Key)
	}
	if entries[0].Actor != "cli" {
		t.Errorf("expected cli, got %q", entries[0].Actor)
	}
}

func TestAuditedStoreGetLogsRead(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	store.Set("openai-api-key", "val")
	store.Get("openai-api-key")

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Action != audit.ActionCredentialRead {
		t.Errorf("expected credential_read, got %v", entries[1].Action)
	}
}

func TestAuditedStoreDeleteLogsDelete(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	store.Set("hf-token", "val")
	store.Delete("hf-token")

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Action != audit.ActionCredentialDelete {
		t.Errorf("expected credential_delete, got %v", entries[1].Action)
	}
}

func TestAuditedStoreGetForWorker(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	store.Set("openai-api-key", "sk-1")
	store.Set("anthropic-api-key", "sk-2")

	result, err := store.GetForWorker([]string{"openai-api-key", "anthropic-api-key", "missing"})
	if err != nil {
		t.Fatalf("GetForWorker: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 values, got %d", len(result))
	}

	entries := readAuditEntries(t, auditPath)
	var workerReads int
	for _, e := range entries {
		if e.Trigger == "worker_start" {
			workerReads++
			if e.Actor != "daemon" {
				t.Errorf("expected daemon actor, got %q", e.Actor)
			}
		}
	}
	if workerReads != 2 {
		t.Errorf("expected 2 worker_start reads, got %d", workerReads)
	}
}

func TestAuditedStoreGetMissingNotLogged(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	if _, err := store.Get("never-set"); err == nil {
		t.Fatal("expected error")
	}

	data, _ := os.ReadFile(auditPath)
	if len(strings.TrimSpace(string(data))) != 0 {
		t.Errorf("failed read must not be logged as a read, got %q", data)
	}
}
