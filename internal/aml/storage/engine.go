// Package storage implements the filesystem-backed durable store
// described in spec §4.1: atomic writes via temp-file-then-rename,
// optional zstd compression, optional AEAD encryption-at-rest, and a
// per-key mutex so concurrent writers to the same key serialize while
// writers to different keys never block each other.
package storage

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/aml-core/agentmemory/internal/aml/types"
)

// Options configures one Engine instance.
type Options struct {
	Root        string
	Compression bool
	Encryption  bool
	MaxSizeGB   float64
	Keys        KeyProvider
}

// Engine is the concrete filesystem storage engine. One Engine serves
// every agent's partition under Root; isolation between agents is a
// directory-naming convention enforced by the caller (facade/security
// layers), not by separate Engine instances.
type Engine struct {
	opts Options

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex

	totalBytes int64 // maintained via atomic add/sub, seeded by du() at startup
}

// New creates a storage engine rooted at opts.Root, creating the root
// directory if it doesn't exist and seeding the size counter from
// whatever is already on disk.
func New(opts Options) (*Engine, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("storage: root path is required")
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	if opts.Encryption && opts.Keys == nil {
		return nil, fmt.Errorf("storage: encryption enabled but no KeyProvider supplied")
	}

	e := &Engine{
		opts:     opts,
		keyLocks: make(map[string]*sync.Mutex),
	}

	size, err := duDir(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("storage: measure existing tree: %w", err)
	}
	e.totalBytes = size

	return e, nil
}

func duDir(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return total, nil
}

func (e *Engine) lockFor(key string) *sync.Mutex {
	e.keyLocksMu.Lock()
	defer e.keyLocksMu.Unlock()
	m, ok := e.keyLocks[key]
	if !ok {
		m = &sync.Mutex{}
		e.keyLocks[key] = m
	}
	return m
}

func (e *Engine) pathFor(key string) string {
	return filepath.Join(e.opts.Root, filepath.FromSlash(key))
}

// Put writes key->plaintext atomically, compressing and encrypting it
// per the engine's options. encCtx is the deterministic encryption
// context string for this resource (ignored unless Encryption is on).
func (e *Engine) Put(key string, plaintext []byte, encCtx string) *types.Error {
	lock := e.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	path := e.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return types.NewError(types.ErrIOFailure, "create directory for %s: %v", key, err)
	}

	existingSize := int64(0)
	if info, err := os.Stat(path); err == nil {
		existingSize = info.Size()
	}

	h := header{}
	payload := plaintext

	if e.opts.Compression {
		compressed, err := compress(payload)
		if err != nil {
			return types.NewError(types.ErrIOFailure, "compress %s: %v", key, err)
		}
		payload = compressed
		h.Compressed = true
	}

	if e.opts.Encryption {
		key32, kerr := e.opts.Keys.Key(encCtx)
		if kerr != nil {
			return types.NewError(types.ErrIOFailure, "derive key for %s: %v", key, kerr)
		}
		nonce := make([]byte, chacha20poly1305.NonceSizeX)
		if _, err := rand.Read(nonce); err != nil {
			return types.NewError(types.ErrIOFailure, "generate nonce for %s: %v", key, err)
		}
		aead, err := chacha20poly1305.NewX(key32[:])
		if err != nil {
			return types.NewError(types.ErrInternal, "init aead for %s: %v", key, err)
		}
		payload = aead.Seal(nil, nonce, payload, nil)
		h.Encrypted = true
		h.Nonce = encodeNonce(nonce)
	}

	var buf bytes.Buffer
	if err := writeRecord(&buf, h, payload); err != nil {
		return types.NewError(types.ErrIOFailure, "encode record for %s: %v", key, err)
	}

	newTotal := atomic.LoadInt64(&e.totalBytes) - existingSize + int64(buf.Len())
	maxBytes := int64(e.opts.MaxSizeGB * 1e9)
	if e.opts.MaxSizeGB > 0 && newTotal > maxBytes {
		return types.NewError(types.ErrSizeExceeded, "writing %s would exceed maxSizeGb (%d > %d bytes)", key, newTotal, maxBytes)
	}

	if err := atomicWrite(path, buf.Bytes()); err != nil {
		return types.NewError(types.ErrIOFailure, "write %s: %v", key, err)
	}

	atomic.AddInt64(&e.totalBytes, int64(buf.Len())-existingSize)
	return nil
}

// atomicWrite writes data to a temp file in dir(path), fsyncs it, and
// renames it over path, so readers never observe a partial write.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}

// Get reads and decodes key, retrying once on a transient I/O error
// per spec §7's "IO and corruption errors retried at most once" policy.
func (e *Engine) Get(key string, encCtx string) ([]byte, *types.Error) {
	lock := e.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	path := e.pathFor(key)

	var raw []byte
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err = os.ReadFile(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewError(types.ErrNotFound, "key %s not found", key)
		}
		return nil, types.NewError(types.ErrIOFailure, "read %s: %v", key, err)
	}

	h, payload, perr := readRecord(raw)
	if perr != nil {
		return nil, types.NewError(types.ErrCorrupted, "%s: %v", key, perr)
	}

	if h.Encrypted {
		if !e.opts.Encryption {
			return nil, types.NewError(types.ErrDecryptFailure, "%s is encrypted but engine has encryption disabled", key)
		}
		key32, kerr := e.opts.Keys.Key(encCtx)
		if kerr != nil {
			return nil, types.NewError(types.ErrDecryptFailure, "derive key for %s: %v", key, kerr)
		}
		nonce, nerr := decodeNonce(h.Nonce)
		if nerr != nil {
			return nil, types.NewError(types.ErrCorrupted, "%s: bad nonce: %v", key, nerr)
		}
		aead, err := chacha20poly1305.NewX(key32[:])
		if err != nil {
			return nil, types.NewError(types.ErrInternal, "init aead for %s: %v", key, err)
		}
		plaintext, err := aead.Open(nil, nonce, payload, nil)
		if err != nil {
			return nil, types.NewError(types.ErrDecryptFailure, "%s: aead open failed: %v", key, err)
		}
		payload = plaintext
	}

	if h.Compressed {
		decompressed, err := decompress(payload)
		if err != nil {
			return nil, types.NewError(types.ErrCorrupted, "%s: decompress failed: %v", key, err)
		}
		payload = decompressed
	}

	return payload, nil
}

// Delete removes key. Deleting an absent key is not an error, so
// repeated deletes succeed; the facade returns this result unchanged.
func (e *Engine) Delete(key string) *types.Error {
	lock := e.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	path := e.pathFor(key)
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return nil
		}
		return types.NewError(types.ErrIOFailure, "stat %s: %v", key, statErr)
	}
	if err := os.Remove(path); err != nil {
		return types.NewError(types.ErrIOFailure, "delete %s: %v", key, err)
	}
	atomic.AddInt64(&e.totalBytes, -info.Size())
	return nil
}

// Exists reports whether key has a record on disk.
func (e *Engine) Exists(key string) bool {
	_, err := os.Stat(e.pathFor(key))
	return err == nil
}

// List returns every key under prefix, relative to Root, using forward
// slashes regardless of host path separator.
func (e *Engine) List(prefix string) ([]string, *types.Error) {
	root := e.pathFor(prefix)
	var keys []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(e.opts.Root, path)
		if relErr != nil {
			return relErr
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, types.NewError(types.ErrIOFailure, "list %s: %v", prefix, err)
	}
	return keys, nil
}

// EnsureAgentDirectory creates the per-agent partition tree.
func (e *Engine) EnsureAgentDirectory(agent string) *types.Error {
	for _, sub := range []string{"patterns", "solutions", "decisions"} {
		dir := filepath.Join(e.opts.Root, agent, sub)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return types.NewError(types.ErrIOFailure, "ensure directory %s: %v", dir, err)
		}
	}
	return nil
}

// SetGlobal/GetGlobal operate on the shared global/ partition.
func (e *Engine) SetGlobal(key string, value []byte, encCtx string) *types.Error {
	return e.Put(filepath.Join("global", key+".rec"), value, encCtx)
}

func (e *Engine) GetGlobal(key string, encCtx string) ([]byte, *types.Error) {
	return e.Get(filepath.Join("global", key+".rec"), encCtx)
}

// Size returns the engine's tracked total on-disk size in bytes.
func (e *Engine) Size() int64 {
	return atomic.LoadInt64(&e.totalBytes)
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

func encodeNonce(n []byte) string {
	return hex.EncodeToString(n)
}

func decodeNonce(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// checksum computes the SHA-256 hex digest of data, used by the backup
// manager for manifest file hashes and archive validation.
func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// Checksum exposes checksum for the backup package.
func Checksum(data []byte) string { return checksum(data) }

// ReadAll is a small helper re-exported for callers (e.g. backup) that
// need the raw on-disk bytes of a file without going through Get's
// decrypt/decompress pipeline — used when archiving files verbatim.
func ReadAll(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
