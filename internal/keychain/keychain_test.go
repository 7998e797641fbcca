package keychain

import (
	"testing"
)

// Unit tests use MemoryStore — no macOS Keychain interaction needed.

func testStore() Store {
	return NewMemoryStore()
}

func TestSetAndGet(t *testing.T) {
	s := testStore()

	if err := s.Set("openai-api-key", "sk-test-123"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, err := s.Get("openai-api-key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "sk-test-123" {
		t.Errorf("expected 'sk-test-123', got %q", val)
	}
}

func TestGetNotFound(t *testing.T) {
	s := testStore()

	_, err := s.Get("nonexistent-key")
	if err == nil {
		t.Error("expected error for missing key")
	}
}

func TestSetOverwrites(t *testing.T) {
	s := testStore()

	s.Set("openai-api-key", "first")
	s.Set("openai-api-key", "second")

	val, err := s.Get("openai-api-key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "second" {
		t.Errorf("expected 'second', got %q", val)
	}
}

func TestDelete(t *testing.T) {
	s := testStore()

	s.Set("anthropic-api-key", "to-delete")

	if err := s.Delete("anthropic-api-key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, err := s.Get("anthropic-api-key")
	if err == nil {
		t.Error("expected error after delete")
	}
}

func TestDeleteNonexistent(t *testing.T) {
	s := testStore()

	if err := s.Delete("never-existed"); err != nil {
		t.Errorf("Delete nonexistent: %v", err)
	}
}

func TestList(t *testing.T) {
	s := testStore()

	s.Set("openai-api-key", "val")
	s.Set("anthropic-api-key", "val")
	s.Set("hf-token", "val")

	listed, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if len(listed) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(listed))
	}

	found := make(map[string]bool)
	for _, k := range listed {
		found[k] = true
	}
	for _, k := range []string{"openai-api-key", "anthropic-api-key", "hf-token"} {
		if !found[k] {
			t.Errorf("expected %q in list, not found", k)
		}
	}
}

func TestGetMultiple(t *testing.T) {
	s := testStore()

	s.Set("openai-api-key", "val-a")
	s.Set("anthropic-api-key", "val-b")

	result, err := s.GetMultiple([]string{"openai-api-key", "anthropic-api-key", "missing-key"})
	if err != nil {
		t.Fatalf("GetMultiple: %v", err)
	}

	if result["openai-api-key"] != "val-a" {
		t.Errorf("expected val-a, got %q", result["openai-api-key"])
	}
	if result["anthropic-api-key"] != "val-b" {
		t.Errorf("expected val-b, got %q", result["anthropic-api-key"])
	}
	if _, ok := result["missing-key"]; ok {
		t.Error("expected missing key to be absent")
	}
}
