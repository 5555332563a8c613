// Package signature provides helper functions for handling the blockchain
// hashing and signature needs.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxSignatureSize is the largest signature a block or transaction may
// carry.
const MaxSignatureSize = 100

// ZeroHash represents a hash code of zeros.
var ZeroHash common.Hash

// stamp is mixed into every digest before signing. This makes it clear
// that a signature was produced for this chain and not replayed from
// another one.
var stamp = []byte("\x19DPoS Signed Message:\n32")

// =============================================================================

// Hash returns the Keccak256 hash of the concatenated data.
func Hash(data ...[]byte) common.Hash {
	return crypto.Keccak256Hash(data...)
}

// Sign uses the specified private key to sign the digest. The result is
// the 65 byte [R|S|V] signature.
func Sign(digest common.Hash, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	data := stamped(digest)

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, err
	}

	// Check the public key extracted from the data and signature.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return nil, err
	}

	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return nil, errors.New("invalid signature")
	}

	return sig, nil
}

// Verify checks the signature over the digest against the public key. The
// public key may be compressed or uncompressed.
func Verify(publicKey []byte, digest common.Hash, sig []byte) bool {
	if len(sig) < crypto.RecoveryIDOffset || len(sig) > MaxSignatureSize {
		return false
	}

	return crypto.VerifySignature(publicKey, stamped(digest), sig[:crypto.RecoveryIDOffset])
}

// PublicKeyBytes returns the compressed form of the public key.
func PublicKeyBytes(publicKey ecdsa.PublicKey) []byte {
	return crypto.CompressPubkey(&publicKey)
}

// ToAddress converts a compressed or uncompressed public key into the
// account address.
func ToAddress(publicKey []byte) (common.Address, error) {
	switch len(publicKey) {
	case 33:
		pk, err := crypto.DecompressPubkey(publicKey)
		if err != nil {
			return common.Address{}, fmt.Errorf("decompress public key: %w", err)
		}
		return crypto.PubkeyToAddress(*pk), nil

	case 65:
		pk, err := crypto.UnmarshalPubkey(publicKey)
		if err != nil {
			return common.Address{}, fmt.Errorf("unmarshal public key: %w", err)
		}
		return crypto.PubkeyToAddress(*pk), nil
	}

	return common.Address{}, fmt.Errorf("invalid public key length %d", len(publicKey))
}

// =============================================================================

// stamped returns a hash of 32 bytes that represents the digest with the
// chain stamp embedded.
func stamped(digest common.Hash) []byte {
	return crypto.Keccak256(stamp, digest.Bytes())
}
