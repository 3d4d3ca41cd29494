// Package verification issues and tracks the one-time pairing codes that
// bind an anonymous connection to a player identity confirmed through the
// host's trusted command channel.
package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// codeAlphabet excludes visually confusable characters (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the fixed length of a pairing code.
const CodeLength = 6

// Resolution is the verified identity recorded against a code.
type Resolution struct {
	Identity uuid.UUID
	Name     string
}

// Registry owns the lifetime of verification tickets. All mutating
// operations share one mutex: code generation must check-then-insert
// atomically so no two unconsumed tickets ever share a code.
type Registry struct {
	mu        sync.Mutex
	keyToCode map[string]string
	codeToKey map[string]string
	resolved  map[string]Resolution
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		keyToCode: make(map[string]string),
		codeToKey: make(map[string]string),
		resolved:  make(map[string]Resolution),
	}
}

// IssueOrReuse returns the pairing code for a binding key, generating a
// fresh one only when none exists yet. Idempotent per key.
func (r *Registry) IssueOrReuse(bindingKey string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code, ok := r.keyToCode[bindingKey]; ok {
		return code, nil
	}

	for {
		code, err := generateCode()
		if err != nil {
			return "", fmt.Errorf("generating pairing code: %w", err)
		}
		if _, taken := r.codeToKey[code]; taken {
			continue
		}
		r.keyToCode[bindingKey] = code
		r.codeToKey[code] = bindingKey
		return code, nil
	}
}

// Resolve records a verified identity against a code without consuming it,
// so the owning connection can poll the status. Returns false for unknown
// codes. A later resolution overwrites a stale one.
func (r *Registry) Resolve(code string, identity uuid.UUID, name string) bool {
	code = strings.ToUpper(code)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codeToKey[code]; !ok {
		return false
	}
	r.resolved[code] = Resolution{Identity: identity, Name: name}
	return true
}

// PeekResolution returns the recorded resolution for a code, if any.
func (r *Registry) PeekResolution(code string) (Resolution, bool) {
	code = strings.ToUpper(code)

	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resolved[code]
	return res, ok
}

// IsResolved reports whether a code has been confirmed.
func (r *Registry) IsResolved(code string) bool {
	_, ok := r.PeekResolution(code)
	return ok
}

// IsKnown reports whether a code belongs to a live ticket.
func (r *Registry) IsKnown(code string) bool {
	code = strings.ToUpper(code)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.codeToKey[code]
	return ok
}

// Consume destroys a ticket and its resolution. Safe to call on unknown or
// already-consumed codes.
func (r *Registry) Consume(code string) {
	code = strings.ToUpper(code)

	r.mu.Lock()
	defer r.mu.Unlock()

	if key, ok := r.codeToKey[code]; ok {
		delete(r.keyToCode, key)
	}
	delete(r.codeToKey, code)
	delete(r.resolved, code)
}

// InvalidateKey deletes any unconsumed ticket for a binding key. Called when
// a connection closes without converting its code into a session.
func (r *Registry) InvalidateKey(bindingKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code, ok := r.keyToCode[bindingKey]; ok {
		delete(r.codeToKey, code)
		delete(r.resolved, code)
	}
	delete(r.keyToCode, bindingKey)
}

func generateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
