package core

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/secretbox"
)

// EncryptMessage seals plaintext for recipientPubHex (an X25519
// key-agreement public key, as published in a profile:v1's
// encryption_pubkey) using a fresh ephemeral keypair: the shared secret
// from ECDH(ephemeral_priv, recipient_pub) keys a secretbox seal, so the
// recipient needs only their own long-lived private key plus the
// ephemeral public key carried in the message to open it.
func EncryptMessage(recipientPubHex string, plaintext []byte) (ciphertext, nonce, ephemeralPubHex string, err error) {
	recipientPub, decErr := hex.DecodeString(recipientPubHex)
	if decErr != nil || len(recipientPub) != 32 {
		return "", "", "", fmt.Errorf("%w: bad recipient encryption pubkey", ErrInvalidEvent)
	}

	var ephPriv, ephPub [32]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return "", "", "", err
	}
	ephPriv[0] &= 248
	ephPriv[31] &= 127
	ephPriv[31] |= 64
	curve25519.ScalarBaseMult(&ephPub, &ephPriv)

	var recipientArr, shared [32]byte
	copy(recipientArr[:], recipientPub)
	curve25519.ScalarMult(&shared, &ephPriv, &recipientArr)

	var nonceArr [24]byte
	if _, err := rand.Read(nonceArr[:]); err != nil {
		return "", "", "", err
	}

	sealed := secretbox.Seal(nil, plaintext, &nonceArr, &shared)
	return base64.StdEncoding.EncodeToString(sealed),
		base64.StdEncoding.EncodeToString(nonceArr[:]),
		hex.EncodeToString(ephPub[:]),
		nil
}

// DecryptMessage opens a message:v1 payload addressed to id using id's
// key-agreement private key and the payload's ephemeral public key.
func DecryptMessage(id *Identity, p *MessagePayload) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(p.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext encoding", ErrInvalidEvent)
	}
	nonceBytes, err := base64.StdEncoding.DecodeString(p.Nonce)
	if err != nil || len(nonceBytes) != 24 {
		return nil, fmt.Errorf("%w: bad nonce", ErrInvalidEvent)
	}
	shared, err := id.SharedSecret(p.EphemeralPubkey)
	if err != nil {
		return nil, err
	}
	var nonceArr [24]byte
	copy(nonceArr[:], nonceBytes)

	plaintext, ok := secretbox.Open(nil, sealed, &nonceArr, &shared)
	if !ok {
		return nil, fmt.Errorf("%w: decryption failed", ErrInvalidEvent)
	}
	return plaintext, nil
}
