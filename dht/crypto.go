package dht

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/nacl/box"

	"github.com/toktok/dhtcore/dht/dhtwire"
)

var (
	ErrDecryptFailed = errors.New("dht: decryption failed")
	ErrBadKeySize    = errors.New("dht: key has wrong size")
)

// generateKeyPair produces a fresh X25519 key pair, used for fake
// friend keys and by GenerateIdentity.
func generateKeyPair() (SecretKey, PublicKey, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return SecretKey{}, PublicKey{}, err
	}
	return SecretKey(*sec), PublicKey(*pub), nil
}

// GenerateIdentity produces a fresh long-term X25519 key pair for a
// new node, for embedders that have no persisted identity yet.
func GenerateIdentity() (SecretKey, PublicKey, error) {
	return generateKeyPair()
}

// deriveSharedKey computes the box-precomputed X25519 shared key used
// as the symmetric key for all DHT packets between a pair of peers.
// The shared-key cache (sharedkey.go) is the only caller in normal
// operation; this is the uncached primitive.
func deriveSharedKey(secret SecretKey, peerPub PublicKey) ([32]byte, error) {
	var shared [32]byte
	s := [32]byte(secret)
	p := [32]byte(peerPub)
	box.Precompute(&shared, &p, &s)
	return shared, nil
}

func newNonce() ([dhtwire.NonceSize]byte, error) {
	var n [dhtwire.NonceSize]byte
	_, err := rand.Read(n[:])
	return n, err
}

// sealWithSharedKey encrypts plaintext under a precomputed shared key,
// returning the nonce and ciphertext.
func sealWithSharedKey(sharedKey [32]byte, plaintext []byte) (nonce [dhtwire.NonceSize]byte, ciphertext []byte, err error) {
	nonce, err = newNonce()
	if err != nil {
		return nonce, nil, err
	}
	ciphertext = box.SealAfterPrecomputation(nil, plaintext, &nonce, &sharedKey)
	return nonce, ciphertext, nil
}

// openWithSharedKey decrypts ciphertext under a precomputed shared
// key. A decryption failure is reported as ErrDecryptFailed and the
// packet must be silently dropped.
func openWithSharedKey(sharedKey [32]byte, nonce [dhtwire.NonceSize]byte, ciphertext []byte) ([]byte, error) {
	plain, ok := box.OpenAfterPrecomputation(nil, ciphertext, &nonce, &sharedKey)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
