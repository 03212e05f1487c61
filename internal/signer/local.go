package signer

import (
	"context"
	"crypto/rand"
	"strconv"
	"sync"
	"time"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"golang.org/x/crypto/sha3"

	"github.com/quantumauth-io/gamevault-client/internal/ledger"
)

const (
	schemeName = "Ed25519"

	// Single signer authentication scheme byte appended before hashing.
	ed25519AuthScheme = 0x00
)

var scheme sign.Scheme

func init() {
	scheme = schemes.ByName(schemeName)
	if scheme == nil {
		panic("signer: Ed25519 scheme not found in circl")
	}
}

// Node is the submission surface of the ledger node. *ledger.Client
// implements it.
type Node interface {
	Account(ctx context.Context, address string) (ledger.AccountInfo, error)
	EncodeSubmission(ctx context.Context, unsigned any) ([]byte, error)
	SubmitTransaction(ctx context.Context, signed any) (ledger.PendingTransaction, error)
}

type Options struct {
	MaxGasAmount     uint64
	GasUnitPrice     uint64
	ExpirationWindow time.Duration

	Confirm ConfirmFunc
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxGasAmount == 0 {
		o.MaxGasAmount = 200_000
	}
	if o.GasUnitPrice == 0 {
		o.GasUnitPrice = 100
	}
	if o.ExpirationWindow <= 0 {
		o.ExpirationWindow = 60 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// LocalSigner holds an ed25519 key in memory and submits through the node's
// encode_submission endpoint.
type LocalSigner struct {
	node Node
	opts Options

	sk       sign.PrivateKey
	pubBytes []byte
	address  string

	// mu serializes submissions so sequence numbers are not reused.
	mu      sync.Mutex
	lastSeq *uint64
}

var _ Signer = (*LocalSigner)(nil)

// GenerateSeed returns a fresh 32 byte ed25519 seed.
func GenerateSeed() ([]byte, error) {
	seed := make([]byte, scheme.SeedSize())
	if _, err := rand.Read(seed); err != nil {
		return nil, errors.Wrap(err, "rand seed")
	}
	return seed, nil
}

func NewLocalSigner(node Node, seed []byte, opts Options) (*LocalSigner, error) {
	if node == nil {
		return nil, errors.New("signer: node is nil")
	}
	if len(seed) != scheme.SeedSize() {
		return nil, errors.Newf("signer: seed must be %d bytes, got %d", scheme.SeedSize(), len(seed))
	}

	pk, sk := scheme.DeriveKey(seed)
	pub, err := pk.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "signer: marshal public key")
	}

	return &LocalSigner{
		node:     node,
		opts:     opts.withDefaults(),
		sk:       sk,
		pubBytes: pub,
		address:  AddressFromPublicKey(pub),
	}, nil
}

// AddressFromPublicKey derives the account address: sha3-256(pub || scheme).
func AddressFromPublicKey(pub []byte) string {
	h := sha3.New256()
	h.Write(pub)
	h.Write([]byte{ed25519AuthScheme})
	return hexutil.Encode(h.Sum(nil))
}

// AddressFromSeed derives the address for a seed without building a signer.
func AddressFromSeed(seed []byte) (string, error) {
	if len(seed) != scheme.SeedSize() {
		return "", errors.Newf("signer: seed must be %d bytes, got %d", scheme.SeedSize(), len(seed))
	}
	pk, _ := scheme.DeriveKey(seed)
	pub, err := pk.MarshalBinary()
	if err != nil {
		return "", errors.Wrap(err, "signer: marshal public key")
	}
	return AddressFromPublicKey(pub), nil
}

func (s *LocalSigner) Address() string { return s.address }

func (s *LocalSigner) PublicKeyHex() string { return hexutil.Encode(s.pubBytes) }

func (s *LocalSigner) SignAndSubmit(ctx context.Context, intent ledger.TransactionIntent) (ledger.PendingTransaction, error) {
	if s == nil || s.sk == nil {
		return ledger.PendingTransaction{}, ErrNotReady
	}

	if s.opts.Confirm != nil {
		ok, err := s.opts.Confirm(ctx, intent)
		if err != nil {
			return ledger.PendingTransaction{}, errors.Wrap(err, "signer: confirm")
		}
		if !ok {
			return ledger.PendingTransaction{}, ErrUserCancelled
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.node.Account(ctx, s.address)
	if err != nil {
		return ledger.PendingTransaction{}, errors.Wrapf(err, "signer: read account %s", s.address)
	}
	seq := acct.SequenceNumber
	if s.lastSeq != nil && seq <= *s.lastSeq {
		seq = *s.lastSeq + 1
	}

	unsigned := s.unsignedTransaction(intent, seq)
	msg, err := s.node.EncodeSubmission(ctx, unsigned)
	if err != nil {
		return ledger.PendingTransaction{}, errors.Wrap(err, "signer: encode submission")
	}

	sig := scheme.Sign(s.sk, msg, nil)

	signed := signedTransaction{
		unsignedTransaction: unsigned,
		Signature: transactionSignature{
			Type:      "ed25519_signature",
			PublicKey: hexutil.Encode(s.pubBytes),
			Signature: hexutil.Encode(sig),
		},
	}

	pending, err := s.node.SubmitTransaction(ctx, signed)
	if err != nil {
		return ledger.PendingTransaction{}, err
	}
	s.lastSeq = &seq

	log.Info("transaction submitted",
		"function", intent.EntryFunction(),
		"sender", s.address,
		"sequence_number", seq,
		"hash", pending.Hash,
	)
	return pending, nil
}

type entryFunctionPayload struct {
	Type          string   `json:"type"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

type unsignedTransaction struct {
	Sender                  string               `json:"sender"`
	SequenceNumber          string               `json:"sequence_number"`
	MaxGasAmount            string               `json:"max_gas_amount"`
	GasUnitPrice            string               `json:"gas_unit_price"`
	ExpirationTimestampSecs string               `json:"expiration_timestamp_secs"`
	Payload                 entryFunctionPayload `json:"payload"`
}

type transactionSignature struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

type signedTransaction struct {
	unsignedTransaction
	Signature transactionSignature `json:"signature"`
}

func (s *LocalSigner) unsignedTransaction(intent ledger.TransactionIntent, seq uint64) unsignedTransaction {
	typeArgs := intent.TypeArguments
	if typeArgs == nil {
		typeArgs = []string{}
	}
	args := intent.Arguments
	if args == nil {
		args = []any{}
	}

	expires := s.opts.Now().Add(s.opts.ExpirationWindow).Unix()
	return unsignedTransaction{
		Sender:                  s.address,
		SequenceNumber:          strconv.FormatUint(seq, 10),
		MaxGasAmount:            strconv.FormatUint(s.opts.MaxGasAmount, 10),
		GasUnitPrice:            strconv.FormatUint(s.opts.GasUnitPrice, 10),
		ExpirationTimestampSecs: strconv.FormatInt(expires, 10),
		Payload: entryFunctionPayload{
			Type:          "entry_function_payload",
			Function:      intent.Function,
			TypeArguments: typeArgs,
			Arguments:     args,
		},
	}
}

// Verify checks an ed25519 signature against a hex public key.
func Verify(pubHex string, msg []byte, sigHex string) bool {
	pub, err := hexutil.Decode(pubHex)
	if err != nil {
		return false
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return false
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return false
	}
	return scheme.Verify(pk, msg, sig, nil)
}
