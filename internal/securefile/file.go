// Package securefile stores JSON documents encrypted at rest with atomic writes.
// Keys are derived with Argon2id and sealed with XChaCha20-Poly1305.
package securefile

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidPasswordOrCorrupt is returned when decryption fails.
	// Kept generic so a wrong password and a tampered file look the same.
	ErrInvalidPasswordOrCorrupt = errors.New("invalid password or corrupted file")

	ErrEmptyPassword = errors.New("password must not be empty")
)

// Envelope is the on-disk format: KDF settings plus the sealed payload.
type Envelope struct {
	Version int `json:"version"`

	ArgonTime    uint32 `json:"argon_time"`
	ArgonMemory  uint32 `json:"argon_memory_kib"`
	ArgonThreads uint8  `json:"argon_threads"`
	ArgonKeyLen  uint32 `json:"argon_key_len"`

	SaltB64  string `json:"salt_b64"`
	NonceB64 string `json:"nonce_b64"`
	CTB64    string `json:"ct_b64"`
}

// DefaultKDF suits an interactive unlock on a desktop machine.
var DefaultKDF = Envelope{
	Version:      1,
	ArgonTime:    2,
	ArgonMemory:  64 * 1024,
	ArgonThreads: 1,
	ArgonKeyLen:  32,
}

// FastKDF is for tests only.
var FastKDF = Envelope{
	Version:      1,
	ArgonTime:    1,
	ArgonMemory:  8,
	ArgonThreads: 1,
	ArgonKeyLen:  32,
}

type Options struct {
	KDF Envelope

	FilePerm      os.FileMode
	DirectoryPerm os.FileMode

	// AAD is bound to the ciphertext and must match on read.
	AAD []byte
}

func defaultOptions() Options {
	return Options{
		KDF:           DefaultKDF,
		FilePerm:      0o600,
		DirectoryPerm: 0o700,
	}
}

func mergeOptions(opt ...Options) Options {
	o := defaultOptions()
	if len(opt) == 0 {
		return o
	}
	in := opt[0]
	if in.KDF.Version != 0 {
		o.KDF = in.KDF
	}
	if in.FilePerm != 0 {
		o.FilePerm = in.FilePerm
	}
	if in.DirectoryPerm != 0 {
		o.DirectoryPerm = in.DirectoryPerm
	}
	if in.AAD != nil {
		o.AAD = in.AAD
	}
	return o
}

// WriteEncryptedJSON marshals v, encrypts it under password and replaces path atomically.
func WriteEncryptedJSON[T any](path string, v T, password []byte, opt ...Options) error {
	o := mergeOptions(opt...)
	if len(password) == 0 {
		return ErrEmptyPassword
	}
	if o.KDF.Version != 1 {
		return errors.Newf("unsupported kdf version: %d", o.KDF.Version)
	}

	if err := os.MkdirAll(filepath.Dir(path), o.DirectoryPerm); err != nil {
		return errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}

	plain, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal json")
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return errors.Wrap(err, "rand salt")
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "rand nonce")
	}

	aead, err := newAEAD(password, salt, o.KDF)
	if err != nil {
		return err
	}
	ct := aead.Seal(nil, nonce, plain, o.AAD)

	out := o.KDF
	out.SaltB64 = base64.StdEncoding.EncodeToString(salt)
	out.NonceB64 = base64.StdEncoding.EncodeToString(nonce)
	out.CTB64 = base64.StdEncoding.EncodeToString(ct)

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	return atomicWriteFile(path, b, o.FilePerm)
}

// ReadEncryptedJSON decrypts path and unmarshals the payload into T.
func ReadEncryptedJSON[T any](path string, password []byte, opt ...Options) (T, error) {
	var zero T
	o := mergeOptions(opt...)

	b, err := os.ReadFile(path)
	if err != nil {
		return zero, errors.Wrap(err, "read file")
	}

	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return zero, errors.Wrap(err, "unmarshal envelope")
	}
	if env.Version != 1 {
		return zero, errors.Newf("unsupported file version: %d", env.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(env.SaltB64)
	if err != nil {
		return zero, errors.Wrap(err, "decode salt")
	}
	nonce, err := base64.StdEncoding.DecodeString(env.NonceB64)
	if err != nil {
		return zero, errors.Wrap(err, "decode nonce")
	}
	ct, err := base64.StdEncoding.DecodeString(env.CTB64)
	if err != nil {
		return zero, errors.Wrap(err, "decode ciphertext")
	}

	aead, err := newAEAD(password, salt, env)
	if err != nil {
		return zero, err
	}
	if len(nonce) != aead.NonceSize() {
		return zero, ErrInvalidPasswordOrCorrupt
	}

	plain, err := aead.Open(nil, nonce, ct, o.AAD)
	if err != nil {
		return zero, ErrInvalidPasswordOrCorrupt
	}

	var out T
	if err := json.Unmarshal(plain, &out); err != nil {
		return zero, errors.Wrap(err, "unmarshal json")
	}
	return out, nil
}

// Exists reports whether path is a regular file.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// PathCandidates returns where to look for an application file, in priority
// order. GAMEVAULT_ENV selects a per-network subfolder.
func PathCandidates(app, filename string) ([]string, error) {
	if app == "" {
		return nil, errors.New("app must not be empty")
	}
	if filename == "" {
		return nil, errors.New("filename must not be empty")
	}
	envFolder, err := EnvFolder()
	if err != nil {
		return nil, err
	}

	var paths []string
	seen := map[string]bool{}
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}

	homeStyle := func(home string) string {
		return filepath.Join(home, ".config", app, envFolder, filename)
	}

	if realHome := os.Getenv("SNAP_REAL_HOME"); realHome != "" {
		add(homeStyle(realHome))
	}
	if home := os.Getenv("HOME"); home != "" {
		add(homeStyle(home))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		add(filepath.Join(dir, app, envFolder, filename))
	} else if len(paths) == 0 {
		return nil, errors.Wrap(err, "UserConfigDir")
	}
	return paths, nil
}

// EnvFolder maps GAMEVAULT_ENV to a subfolder name. Mainnet is the root.
func EnvFolder() (string, error) {
	raw := strings.TrimSpace(os.Getenv("GAMEVAULT_ENV"))
	switch strings.ToLower(raw) {
	case "", "mainnet", "prod", "production":
		return "", nil
	case "local", "localnet":
		return "local", nil
	case "dev", "devnet":
		return "devnet", nil
	case "test", "testnet":
		return "testnet", nil
	default:
		return "", errors.Newf("invalid GAMEVAULT_ENV %q (allowed: local, devnet, testnet, mainnet)", raw)
	}
}

func newAEAD(password, salt []byte, kdf Envelope) (cipher.AEAD, error) {
	if kdf.ArgonKeyLen != chacha20poly1305.KeySize {
		return nil, errors.Newf("unsupported key length %d", kdf.ArgonKeyLen)
	}
	key := argon2.IDKey(password, salt, kdf.ArgonTime, kdf.ArgonMemory, kdf.ArgonThreads, kdf.ArgonKeyLen)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "aead")
	}
	return aead, nil
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return errors.Wrap(err, "write tmp")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "rename")
	}
	return nil
}
