package wallet

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	kdfArgon2id = "argon2id"
	saltSize    = 32
)

// ErrWrongPassphrase is returned when a sealed seed fails to open.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted wallet")

// KDFParams are the Argon2id cost parameters used to seal a seed.
type KDFParams struct {
	Memory      uint32 `json:"memory"` // KiB
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultKDFParams returns the parameters used for new wallets.
func DefaultKDFParams() KDFParams {
	return KDFParams{Memory: 64 * 1024, Iterations: 3, Parallelism: 4}
}

// sealed is the on-disk form of an encrypted seed. The wallet name is
// bound as associated data so a sealed seed cannot be moved between files.
type sealed struct {
	KDF        string    `json:"kdf"`
	Params     KDFParams `json:"params"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
}

func (p KDFParams) key(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

func seal(seed, passphrase []byte, name string, params KDFParams) (*sealed, error) {
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("invalid kdf params %+v", params)
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := params.key(passphrase, salt)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return &sealed{
		KDF:        kdfArgon2id,
		Params:     params,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, seed, []byte(name)),
	}, nil
}

func (s *sealed) open(passphrase []byte, name string) ([]byte, error) {
	if s.KDF != kdfArgon2id {
		return nil, fmt.Errorf("unsupported kdf %q", s.KDF)
	}
	if len(s.Salt) != saltSize || len(s.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrWrongPassphrase
	}

	key := s.Params.key(passphrase, s.Salt)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	seed, err := aead.Open(nil, s.Nonce, s.Ciphertext, []byte(name))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return seed, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
