package crypto

import "math/big"

// modp1024 is the RFC 2409 second Oakley group.
const modp1024 = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381" +
	"FFFFFFFFFFFFFFFF"

// DefaultParams returns the group used when a client does not send its own.
func DefaultParams() Params {
	p, _ := new(big.Int).SetString(modp1024, 16)
	return Params{Prime: p, Base: big.NewInt(2)}
}

// Encode returns prime and base as JSON byte lists.
func (p Params) Encode() (prime, base string) {
	return FormatByteList(p.Prime.Bytes()), FormatByteList(p.Base.Bytes())
}
