// Package keychain provides credential storage backed by macOS Keychain.
//
// Provider API keys are stored as generic passwords with:
//   - Service: "com.benchdeck" (all benchdeck credentials share this service)
//   - Account: the credential key (e.g. "openai-api-key")
//   - Label: "benchdeck: <key>" (for Keychain Access.app visibility)
//
// Credentials are scoped with kSecAttrAccessibleWhenUnlockedThisDeviceOnly:
// never synced to iCloud, never available when the machine is locked.
package keychain

import "errors"

// ErrNotFound is returned when a credential does not exist in the store.
var ErrNotFound = errors.New("credential not found")

// Store is the interface for credential storage operations.
type Store interface {
	Set(key, value string) error
	Get(key string) (string, error)
	List() ([]string, error)
	Delete(key string) error
	GetMultiple(keys []string) (map[string]string, error)
}
