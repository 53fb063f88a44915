package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/curve25519"
)

const (
	signingKeyFile = "identity.key"
	agreementKeyFile = "agreement.key"
)

// Identity holds a node's long-lived signing keypair and a separate
// key-agreement keypair. It is loaded once at startup and treated as
// read-only thereafter, per the shared-resource policy.
type Identity struct {
	signPub  ed25519.PublicKey
	signPriv ed25519.PrivateKey

	agreePriv [32]byte
	agreePub  [32]byte

	log *logrus.Entry
}

// LoadOrCreateIdentity loads the signing and key-agreement keys persisted
// under dir, generating and persisting fresh ones if absent. Grounded on
// wallet.go's ed25519 seed handling, narrowed from an HD multi-account
// wallet to the single keypair-per-node shape this component needs.
func LoadOrCreateIdentity(dir string, log *logrus.Logger) (*Identity, error) {
	entry := log.WithField("component", "identity")

	signPriv, err := loadOrGenerateSigningKey(filepath.Join(dir, signingKeyFile))
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	agreePriv, err := loadOrGenerateAgreementKey(filepath.Join(dir, agreementKeyFile))
	if err != nil {
		return nil, fmt.Errorf("load agreement key: %w", err)
	}

	id := &Identity{
		signPub:  signPriv.Public().(ed25519.PublicKey),
		signPriv: signPriv,
		log:      entry,
	}
	copy(id.agreePriv[:], agreePriv)
	curve25519.ScalarBaseMult(&id.agreePub, &id.agreePriv)

	entry.WithField("author_id", id.AuthorID()).Info("identity loaded")
	return id, nil
}

func loadOrGenerateSigningKey(path string) (ed25519.PrivateKey, error) {
	if b, err := os.ReadFile(path); err == nil {
		if len(b) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: bad signing key length", ErrCorrupt)
		}
		return ed25519.NewKeyFromSeed(b), nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, seed, 0o600); err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func loadOrGenerateAgreementKey(path string) ([]byte, error) {
	if b, err := os.ReadFile(path); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("%w: bad agreement key length", ErrCorrupt)
		}
		return b, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	priv := make([]byte, 32)
	if _, err := rand.Read(priv); err != nil {
		return nil, err
	}
	// Clamp per RFC 7748 so the scalar is a valid X25519 private key.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
	if err := os.WriteFile(path, priv, 0o600); err != nil {
		return nil, err
	}
	return priv, nil
}

// Sign produces a signature over arbitrary bytes under the signing key.
func (id *Identity) Sign(b []byte) []byte {
	return ed25519.Sign(id.signPriv, b)
}

// Verify checks sig over b under the given raw 32-byte ed25519 public key.
func Verify(pub ed25519.PublicKey, b, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, b, sig)
}

// AuthorID derives the stable author identifier: lowercase hex of the raw
// signing public key.
func (id *Identity) AuthorID() string {
	return hex.EncodeToString(id.signPub)
}

// AuthorIDFromPub derives the author id for an arbitrary public key, used
// when reconstructing the signer from an event's author field.
func AuthorIDFromPub(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// PubFromAuthorID reconstructs a public key from the hex author id. It
// returns an error wrapping ErrInvalidEvent (BadAuthor, per §4.3) if the
// hex is malformed or the wrong length.
func PubFromAuthorID(author string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(author)
	if err != nil {
		return nil, fmt.Errorf("%w: bad author encoding", ErrInvalidEvent)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: bad author length", ErrInvalidEvent)
	}
	return ed25519.PublicKey(b), nil
}

// EncryptionPubKeyHex returns the hex-encoded X25519 public key advertised
// in this node's profile payload for encrypted messaging.
func (id *Identity) EncryptionPubKeyHex() string {
	return hex.EncodeToString(id.agreePub[:])
}

// SharedSecret derives an X25519 shared secret with a peer's hex-encoded
// key-agreement public key, used to seal/open message:v1 payloads.
func (id *Identity) SharedSecret(peerPubHex string) ([32]byte, error) {
	var out [32]byte
	peerPub, err := hex.DecodeString(peerPubHex)
	if err != nil || len(peerPub) != 32 {
		return out, fmt.Errorf("%w: bad encryption pubkey", ErrInvalidEvent)
	}
	var peerArr [32]byte
	copy(peerArr[:], peerPub)
	curve25519.ScalarMult(&out, &id.agreePriv, &peerArr)
	return out, nil
}

// Mnemonic returns a BIP-39 recovery phrase for the signing seed, for
// operator backup. The key-agreement key is not covered by the phrase; it
// is regenerated fresh on restore, the same as any other node relocating
// to a new key-agreement identity.
func (id *Identity) Mnemonic() (string, error) {
	seed := id.signPriv.Seed()
	entropy := make([]byte, len(seed))
	copy(entropy, seed)
	return bip39.NewMnemonic(entropy, "")
}
