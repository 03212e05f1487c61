package signer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/quantumauth-io/gamevault-client/internal/codec"
	"github.com/quantumauth-io/gamevault-client/internal/constants"
	"github.com/quantumauth-io/gamevault-client/internal/securefile"
)

// ErrKeystoreExists protects an existing key from being overwritten.
var ErrKeystoreExists = errors.New("signer: keystore already exists")

type keystoreDoc struct {
	Schema    int    `json:"schema"`
	Scheme    string `json:"scheme"`
	Seed      string `json:"seed"`
	Address   string `json:"address"`
	CreatedAt int64  `json:"created_at"`
}

// Keystore is an encrypted file holding one account seed.
type Keystore struct {
	Path string

	// KDF overrides the default Argon2id settings. Zero value means default.
	KDF securefile.Envelope
}

func (k Keystore) options() securefile.Options {
	return securefile.Options{
		KDF:           k.KDF,
		FilePerm:      constants.FilePerm,
		DirectoryPerm: constants.DirectoryPerm,
		AAD:           []byte(constants.KeystoreAAD),
	}
}

func (k Keystore) Exists() bool { return securefile.Exists(k.Path) }

// Create generates a seed, writes it encrypted and returns the address.
func (k Keystore) Create(password []byte) (string, error) {
	if k.Exists() {
		return "", errors.Wrapf(ErrKeystoreExists, "%s", k.Path)
	}
	seed, err := GenerateSeed()
	if err != nil {
		return "", err
	}
	return k.Import(seed, password)
}

// Import stores an existing seed.
func (k Keystore) Import(seed, password []byte) (string, error) {
	addr, err := AddressFromSeed(seed)
	if err != nil {
		return "", err
	}

	doc := keystoreDoc{
		Schema:    constants.SchemaV1,
		Scheme:    schemeName,
		Seed:      hexutil.Encode(seed),
		Address:   addr,
		CreatedAt: time.Now().Unix(),
	}
	if err := securefile.WriteEncryptedJSON(k.Path, doc, password, k.options()); err != nil {
		return "", errors.Wrap(err, "write keystore")
	}
	return addr, nil
}

// Unlock decrypts the seed. The caller owns the returned slice and should
// zero it once a signer is built.
func (k Keystore) Unlock(password []byte) (seed []byte, address string, err error) {
	if !k.Exists() {
		return nil, "", errors.Wrapf(ErrNotReady, "no keystore at %s", k.Path)
	}

	doc, err := securefile.ReadEncryptedJSON[keystoreDoc](k.Path, password, k.options())
	if err != nil {
		return nil, "", err
	}
	if doc.Schema != constants.SchemaV1 || doc.Scheme != schemeName {
		return nil, "", errors.Newf("unsupported keystore schema %d/%s", doc.Schema, doc.Scheme)
	}

	seed, err = hexutil.Decode(doc.Seed)
	if err != nil {
		return nil, "", errors.Wrap(err, "decode keystore seed")
	}
	addr, err := AddressFromSeed(seed)
	if err != nil {
		return nil, "", err
	}
	if doc.Address != "" && !codec.SameAddress(doc.Address, addr) {
		return nil, "", errors.Newf("keystore address %s does not match its seed", doc.Address)
	}
	return seed, addr, nil
}
