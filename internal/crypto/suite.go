// Package crypto implements the optional symmetric-encryption stage of the
// transfer pipeline: a small closed set of streaming cipher suites (spec
// §4.3) and a fixed pool of worker goroutines that apply them to fixed-size
// sub-blocks in place.
package crypto

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/des"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/hkdf"
)

// Suite names the cipher from the closed set spec §4.3 allows. The suite
// and key length must match between peers; neither is negotiated on the
// wire.
type Suite int

const (
	AES128CFB Suite = iota
	AES192CFB
	AES256CFB
	AES128CTR
	AES192CTR
	AES256CTR
	TripleDESCFB
	BlowfishCFB
)

// keySize is the raw key length each suite's block cipher requires.
func (s Suite) keySize() (int, error) {
	switch s {
	case AES128CFB, AES128CTR:
		return 16, nil
	case AES192CFB, AES192CTR:
		return 24, nil
	case AES256CFB, AES256CTR:
		return 32, nil
	case TripleDESCFB:
		return 24, nil
	case BlowfishCFB:
		return 16, nil
	default:
		return 0, fmt.Errorf("crypto: unknown suite %d", s)
	}
}

func (s Suite) String() string {
	switch s {
	case AES128CFB:
		return "aes-128-cfb"
	case AES192CFB:
		return "aes-192-cfb"
	case AES256CFB:
		return "aes-256-cfb"
	case AES128CTR:
		return "aes-128-ctr"
	case AES192CTR:
		return "aes-192-ctr"
	case AES256CTR:
		return "aes-256-ctr"
	case TripleDESCFB:
		return "3des-cfb"
	case BlowfishCFB:
		return "blowfish-cfb"
	default:
		return "unknown"
	}
}

// ParseSuite turns a CLI name into a Suite (the --cipher flag, §2.1 of
// SPEC_FULL.md).
func ParseSuite(name string) (Suite, error) {
	switch name {
	case "aes-128", "aes-128-cfb":
		return AES128CFB, nil
	case "aes-192", "aes-192-cfb":
		return AES192CFB, nil
	case "aes-256", "aes-256-cfb":
		return AES256CFB, nil
	case "aes-128-ctr":
		return AES128CTR, nil
	case "aes-192-ctr":
		return AES192CTR, nil
	case "aes-256-ctr":
		return AES256CTR, nil
	case "3des", "3des-cfb":
		return TripleDESCFB, nil
	case "blowfish", "blowfish-cfb":
		return BlowfishCFB, nil
	default:
		return 0, fmt.Errorf("crypto: unknown cipher suite %q", name)
	}
}

// DeriveKey expands the session key (16 bytes, spec §4.8) to the length the
// chosen suite's block cipher needs, via HKDF-SHA256. The session key
// itself is never used directly as 3DES/aes-192/aes-256 key material.
func DeriveKey(suite Suite, sessionKey []byte, info string) ([]byte, error) {
	size, err := suite.keySize()
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	kdf := hkdf.New(sha256.New, sessionKey, nil, []byte(info))
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	return out, nil
}

// direction selects encrypt or decrypt for suites whose stream construction
// differs by direction (CFB does; CTR does not).
type direction int

const (
	encrypt direction = iota
	decrypt
)

// newStream builds the gocipher.Stream for suite/key/dir with a zero IV, as
// spec §4.3 specifies ("each initialized once with direction, key, and a
// zero IV").
func newStream(suite Suite, key []byte, dir direction) (gocipher.Stream, error) {
	size, err := suite.keySize()
	if err != nil {
		return nil, err
	}
	if len(key) != size {
		return nil, fmt.Errorf("crypto: suite %s wants a %d-byte key, got %d", suite, size, len(key))
	}

	var block gocipher.Block
	switch suite {
	case AES128CFB, AES192CFB, AES256CFB, AES128CTR, AES192CTR, AES256CTR:
		block, err = aes.NewCipher(key)
	case TripleDESCFB:
		block, err = des.NewTripleDESCipher(key)
	case BlowfishCFB:
		block, err = blowfish.NewCipher(key)
	default:
		return nil, fmt.Errorf("crypto: unknown suite %d", suite)
	}
	if err != nil {
		return nil, err
	}

	iv := make([]byte, block.BlockSize())

	switch suite {
	case AES128CTR, AES192CTR, AES256CTR:
		return gocipher.NewCTR(block, iv), nil
	default: // every CFB suite
		if dir == encrypt {
			return gocipher.NewCFBEncrypter(block, iv), nil
		}
		return gocipher.NewCFBDecrypter(block, iv), nil
	}
}
