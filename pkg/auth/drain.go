package auth

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

/*
Drain Authorization

A drain moves the holder's remaining balance to a destination chosen by the
administrator. Over HTTP the administrator proves control of its key by
signing the request; the server recovers the signer and compares it with the
configured administrator address.

Signed Payload:
  - keccak256("drain" || root || destination || uint256(amount) || uint64(sequence))
  - root: 32 bytes, destination: 20 bytes, amount: 32 bytes big-endian,
    sequence: 8 bytes big-endian
  - amount 0 requests the entire held balance

Replay Protection:
  - sequence is the number of drains already performed against root
  - once a drain succeeds the count moves on and the old signature no longer
    matches the expected payload
  - root binds the signature to one distribution

Signature Format:
  - 65 bytes [R || S || V], V either 0/1 or 27/28
*/

const (
	drainDomain = "drain"

	// SignatureLength is the length of an Ethereum-style recoverable signature
	SignatureLength = 65
)

// ErrInvalidSignature is returned when a signature is malformed or does not
// recover to the expected signer
var ErrInvalidSignature = errors.New("invalid signature")

// DrainMessage is the content an administrator signs
type DrainMessage struct {
	Root        [32]byte
	Destination common.Address
	// Amount nil or zero means the whole held balance
	Amount   *uint256.Int
	Sequence uint64
}

// Encode returns the packed payload
func (m *DrainMessage) Encode() []byte {
	data := make([]byte, 0, len(drainDomain)+32+common.AddressLength+32+8)
	data = append(data, drainDomain...)
	data = append(data, m.Root[:]...)
	data = append(data, m.Destination.Bytes()...)

	var amount [32]byte
	if m.Amount != nil {
		amount = m.Amount.Bytes32()
	}
	data = append(data, amount[:]...)

	return binary.BigEndian.AppendUint64(data, m.Sequence)
}

// Hash returns keccak256 of the packed payload
func (m *DrainMessage) Hash() [32]byte {
	return crypto.Keccak256Hash(m.Encode())
}

// Sign signs the message with key. V is returned in the 27/28 form.
func (m *DrainMessage) Sign(key *ecdsa.PrivateKey) ([]byte, error) {
	hash := m.Hash()
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign drain message: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// RecoverSigner returns the address that produced signature over m
func (m *DrainMessage) RecoverSigner(signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("expected %d bytes, got %d: %w", SignatureLength, len(signature), ErrInvalidSignature)
	}

	// Work on a copy. Ethereum signatures carry V as 27/28; recovery wants 0/1.
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("recovery id %d out of range: %w", signature[64], ErrInvalidSignature)
	}

	hash := m.Hash()
	pub, err := crypto.SigToPub(hash[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%v: %w", err, ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that signature over m was produced by expected
func (m *DrainMessage) Verify(signature []byte, expected common.Address) error {
	signer, err := m.RecoverSigner(signature)
	if err != nil {
		return err
	}
	if signer != expected {
		return fmt.Errorf("signed by %s, expected %s: %w", signer.Hex(), expected.Hex(), ErrInvalidSignature)
	}
	return nil
}
