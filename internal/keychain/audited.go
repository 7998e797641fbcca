package keychain

import (
	"fmt"

	"benchdeck/internal/audit"
)

// AuditedStore wraps a Store and records every credential access to the
// audit log. Logging is best-effort; a failure to log never blocks the
// underlying operation.
type AuditedStore struct {
	inner Store
	audit *audit.Logger
	actor string // "cli" or "daemon"
}

// NewAuditedStore wraps an existing store with audit logging.
func NewAuditedStore(inner Store, auditLog *audit.Logger, actor string) *AuditedStore {
	return &AuditedStore{
		inner: inner,
		audit: auditLog,
		actor: actor,
	}
}

func (s *AuditedStore) Set(key, value string) error {
	if err := s.inner.Set(key, value); err != nil {
		return fmt.Errorf("audited store set: %w", err)
	}
	s.audit.Log(audit.Entry{
		Action: audit.ActionCredentialWrite,
		Key:    key,
		Actor:  s.actor,
	})
	return nil
}

func (s *AuditedStore) Get(key string) (string, error) {
	val, err := s.inner.Get(key)
	if err != nil {
		return "", fmt.Errorf("audited store get: %w", err)
	}
	s.audit.Log(audit.Entry{
		Action: audit.ActionCredentialRead,
		Key:    key,
		Actor:  s.actor,
	})
	return val, nil
}

func (s *AuditedStore) List() ([]string, error) {
	return s.inner.List()
}

func (s *AuditedStore) Delete(key string) error {
	if err := s.inner.Delete(key); err != nil {
		return fmt.Errorf("audited store delete: %w", err)
	}
	s.audit.Log(audit.Entry{
		Action: audit.ActionCredentialDelete,
		Key:    key,
		Actor:  s.actor,
	})
	return nil
}

func (s *AuditedStore) GetMultiple(keys []string) (map[string]string, error) {
	result, err := s.inner.GetMultiple(keys)
	if err != nil {
		return nil, fmt.Errorf("audited store get multiple: %w", err)
	}
	for key := range result {
		s.audit.Log(audit.Entry{
			Action: audit.ActionCredentialRead,
			Key:    key,
			Actor:  s.actor,
		})
	}
	return result, nil
}

// GetForWorker retrieves credentials for a worker spawn and logs each read
// with the worker_start trigger, so routine startup reads are
// distinguishable from manual ones.
func (s *AuditedStore) GetForWorker(keys []string) (map[string]string, error) {
	result, err := s.inner.GetMultiple(keys)
	if err != nil {
		return nil, fmt.Errorf("audited store get for worker: %w", err)
	}
	for key := range result {
		s.audit.Log(audit.Entry{
			Action:  audit.ActionCredentialRead,
			Key:     key,
			Actor:   "daemon",
			Trigger: "worker_start",
		})
	}
	return result, nil
}
