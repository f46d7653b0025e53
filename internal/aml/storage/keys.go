package storage

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// KeyProvider resolves an encryption context tag (as produced by the
// security package's DeriveProjectContext/DeriveAgentContext) to a
// 32-byte AEAD key. The spec leaves key management external to this
// core ("assumes AEAD with externally provided keys", spec §9); AML
// honors that by deriving a per-context subkey from one externally
// supplied master secret via HKDF, rather than managing a KMS itself.
type KeyProvider interface {
	Key(context string) ([32]byte, error)
}

// hkdfKeyProvider implements KeyProvider over a single master secret.
// Keys are cached per context since derivation runs on every read.
type hkdfKeyProvider struct {
	master []byte
	mu     sync.RWMutex
	cache  map[string][32]byte
}

// NewHKDFKeyProvider builds a KeyProvider from an externally supplied
// master secret (e.g. loaded from an env var or secrets manager by the
// embedding runtime — this package never generates or stores one).
func NewHKDFKeyProvider(master []byte) (KeyProvider, error) {
	if len(master) < 16 {
		return nil, fmt.Errorf("master secret must be at least 16 bytes")
	}
	return &hkdfKeyProvider{master: master, cache: make(map[string][32]byte)}, nil
}

func (p *hkdfKeyProvider) Key(context string) ([32]byte, error) {
	p.mu.RLock()
	if k, ok := p.cache[context]; ok {
		p.mu.RUnlock()
		return k, nil
	}
	p.mu.RUnlock()

	r := hkdf.New(sha256.New, p.master, []byte(context), []byte("aml-storage-v1"))
	var key [32]byte
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("derive storage key: %w", err)
	}

	p.mu.Lock()
	p.cache[context] = key
	p.mu.Unlock()
	return key, nil
}
