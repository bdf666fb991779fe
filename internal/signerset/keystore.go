// Package signerset implements the signer registry and the
// encrypted-key loader backing spec.md §6 "signers: env-based
// encrypted key" and §4.I's Signer stage.
package signerset

import (
	"bytes"
	"crypto/aes"
	"crypto/sha512"
	"errors"
)

const keyBlockSize = 16

var (
	errKeystoreNotInitialized = errors.New("signerset: keystore password not set")
	errKeystoreDataTooShort   = errors.New("signerset: encrypted data too short")
	errKeystoreBadChecksum    = errors.New("signerset: checksum mismatch, wrong password or corrupt data")
)

// Keystore decrypts private-key material encrypted with a
// password-derived AES-128 key, one block at a time (no IV: matching
// the at-rest format this loader must stay compatible with). The key
// is SHA-512(password)[:16]; a trailing 4-byte SHA-512 checksum of the
// plaintext guards against a wrong password or corrupted ciphertext.
type Keystore struct {
	pwd []byte
}

// NewKeystore builds a keystore from a raw passphrase, typically read
// from an environment variable at startup (spec.md §6).
func NewKeystore(pwd string) *Keystore {
	return &Keystore{pwd: []byte(pwd)}
}

// Decrypt reverses the at-rest encoding of a private key file: AES-128
// block-decrypt every 16-byte block, then verify the trailing 4-byte
// checksum against SHA-512 of the recovered plaintext.
func (k *Keystore) Decrypt(data []byte) ([]byte, error) {
	if len(k.pwd) == 0 {
		return nil, errKeystoreNotInitialized
	}

	hash := sha512.Sum512(k.pwd)
	block, err := aes.NewCipher(hash[:16])
	if err != nil {
		return nil, err
	}

	var out []byte
	var i int
	buf := make([]byte, keyBlockSize)
	for i+keyBlockSize <= len(data) {
		block.Decrypt(buf, data[i:i+keyBlockSize])
		out = append(out, buf...)
		i += keyBlockSize
	}

	if len(data) < i+4 {
		return nil, errKeystoreDataTooShort
	}
	sum := sha512.Sum512(out)
	if !bytes.Equal(data[i:i+4], sum[:4]) {
		return nil, errKeystoreBadChecksum
	}
	return out, nil
}
