// Package crypto implements the key agreement and payload envelope used for
// answer encryption, plus the server-side box sealing workspace credentials.
package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var ErrMalformedKey = errors.New("malformed key material")

// Params are the Diffie-Hellman group parameters of an applet.
type Params struct {
	Prime *big.Int
	Base  *big.Int
}

// ParseParams decodes prime and base stored as JSON byte lists ("[1, 2, ...]").
func ParseParams(prime, base string) (Params, error) {
	p, err := ParseByteList(prime)
	if err != nil {
		return Params{}, fmt.Errorf("prime: %w", err)
	}
	b, err := ParseByteList(base)
	if err != nil {
		return Params{}, fmt.Errorf("base: %w", err)
	}
	params := Params{Prime: new(big.Int).SetBytes(p), Base: new(big.Int).SetBytes(b)}
	if params.Prime.Sign() <= 0 || params.Base.Sign() <= 0 {
		return Params{}, ErrMalformedKey
	}
	return params, nil
}

// ParseByteList decodes the JSON byte list representation of key material.
func ParseByteList(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrMalformedKey
	}
	var ints []int
	if err := json.Unmarshal([]byte(s), &ints); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if len(ints) == 0 {
		return nil, ErrMalformedKey
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: byte %d out of range", ErrMalformedKey, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// FormatByteList is the inverse of ParseByteList.
func FormatByteList(b []byte) string {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	out, _ := json.Marshal(ints)
	return string(out)
}

// PrivateKey derives the respondent private key from their credentials.
// Devices run the same derivation, so it must stay stable.
func PrivateKey(userID, email, password string) []byte {
	k1 := sha512.Sum512([]byte(password + email))
	k2 := sha512.Sum512([]byte(userID + email))
	out := make([]byte, 0, len(k1)+len(k2))
	out = append(out, k1[:]...)
	return append(out, k2[:]...)
}

// PublicKey computes base^private mod prime.
func PublicKey(private []byte, p Params) []byte {
	x := new(big.Int).SetBytes(private)
	return new(big.Int).Exp(p.Base, x, p.Prime).Bytes()
}

// SharedKey computes the AES key for a pair of DH parties.
func SharedKey(private, otherPublic []byte, p Params) ([]byte, error) {
	if len(otherPublic) == 0 {
		return nil, ErrMalformedKey
	}
	y := new(big.Int).SetBytes(otherPublic)
	if y.Sign() <= 0 || y.Cmp(p.Prime) >= 0 {
		return nil, ErrMalformedKey
	}
	x := new(big.Int).SetBytes(private)
	secret := new(big.Int).Exp(y, x, p.Prime)
	key := sha256.Sum256(secret.Bytes())
	return key[:], nil
}
