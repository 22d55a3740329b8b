// Package sui signs and submits programmable transactions on the Sui network over JSON-RPC
package sui

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	apperrors "basket_swap/pkg/errors"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/blake2b"
)

const (
	// PrivateKeyPrefix is the bech32 human readable part of exported Sui private keys
	PrivateKeyPrefix = "suiprivkey"

	// ed25519Flag is the signature scheme flag for Ed25519
	ed25519Flag byte = 0x00
)

// transactionIntent prefixes transaction bytes before hashing: scope TransactionData, version
// V0, app Sui
var transactionIntent = []byte{0, 0, 0}

// Keypair is an Ed25519 Sui keypair
type Keypair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// GenerateKeypair creates a fresh random keypair
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Keypair{priv: priv, pub: pub}, nil
}

// KeypairFromSeed builds a keypair from a 32 byte seed
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", apperrors.ErrInvalidKey, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Keypair{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// ParsePrivateKey accepts a bech32 "suiprivkey1..." string, a 0x-prefixed hex seed or a base64
// seed (optionally carrying the scheme flag byte)
func ParsePrivateKey(s string) (*Keypair, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, PrivateKeyPrefix+"1"):
		hrp, data, err := bech32.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidKey, err)
		}
		if hrp != PrivateKeyPrefix {
			return nil, fmt.Errorf("%w: unexpected prefix %q", apperrors.ErrInvalidKey, hrp)
		}
		raw, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidKey, err)
		}
		return keypairFromFlagged(raw)
	case strings.HasPrefix(s, "0x"):
		raw, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidKey, err)
		}
		return KeypairFromSeed(raw)
	default:
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: unrecognised private key encoding", apperrors.ErrInvalidKey)
		}
		if len(raw) == ed25519.SeedSize+1 {
			return keypairFromFlagged(raw)
		}
		return KeypairFromSeed(raw)
	}
}

func keypairFromFlagged(raw []byte) (*Keypair, error) {
	if len(raw) != ed25519.SeedSize+1 {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", apperrors.ErrInvalidKey, ed25519.SeedSize+1, len(raw))
	}
	if raw[0] != ed25519Flag {
		return nil, fmt.Errorf("%w: unsupported signature scheme 0x%02x", apperrors.ErrInvalidKey, raw[0])
	}
	return KeypairFromSeed(raw[1:])
}

// ExportPrivateKey encodes the seed as a bech32 suiprivkey string
func (k *Keypair) ExportPrivateKey() (string, error) {
	raw := append([]byte{ed25519Flag}, k.priv.Seed()...)
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(PrivateKeyPrefix, data)
}

// PublicKey returns the raw public key
func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.pub
}

// Address is 0x + hex(blake2b256(flag || pubkey))
func (k *Keypair) Address() string {
	return AddressFromPublicKey(k.pub)
}

// AddressFromPublicKey derives the Sui address of an Ed25519 public key
func AddressFromPublicKey(pub ed25519.PublicKey) string {
	h := blake2b.Sum256(append([]byte{ed25519Flag}, pub...))
	return "0x" + hex.EncodeToString(h[:])
}

// TransactionDigest is the blake2b-256 hash signed for txBytes
func TransactionDigest(txBytes []byte) [32]byte {
	msg := make([]byte, 0, len(transactionIntent)+len(txBytes))
	msg = append(msg, transactionIntent...)
	msg = append(msg, txBytes...)
	return blake2b.Sum256(msg)
}

// SignTransaction returns the base64 serialized signature flag || sig || pubkey
func (k *Keypair) SignTransaction(txBytes []byte) (string, error) {
	if k.priv == nil {
		return "", fmt.Errorf("%w: key material wiped", apperrors.ErrInvalidKey)
	}
	digest := TransactionDigest(txBytes)
	sig := ed25519.Sign(k.priv, digest[:])

	serialized := make([]byte, 0, 1+ed25519.SignatureSize+ed25519.PublicKeySize)
	serialized = append(serialized, ed25519Flag)
	serialized = append(serialized, sig...)
	serialized = append(serialized, k.pub...)
	return base64.StdEncoding.EncodeToString(serialized), nil
}

// Wipe zeroes the private key
func (k *Keypair) Wipe() {
	for i := range k.priv {
		k.priv[i] = 0
	}
	k.priv = nil
}

// NormalizeAddress lowercases and left pads an address to 32 bytes
func NormalizeAddress(addr string) string {
	a := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(addr), "0x"))
	if len(a) < 64 {
		a = strings.Repeat("0", 64-len(a)) + a
	}
	return "0x" + a
}
