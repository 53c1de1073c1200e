package account

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Namespace scopes every derived address to this program. Changing it
// invalidates all addresses, so it is versioned.
const Namespace = "predmarket:v1"

// Seed tags. Anyone holding the same namespace and seeds can recompute the
// address, which is what makes supplied accounts self-verifying.
const (
	SeedConfig   = "config"
	SeedMarket   = "market"
	SeedVault    = "vault"
	SeedPosition = "position"
	SeedFeeVault = "fee_vault"
)

// Address is a derived 32-byte account address.
type Address [32]byte

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// ParseAddress decodes a 64-char hex address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("parse address: %w", err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("parse address: want %d bytes, got %d", len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalJSON encodes the address as a hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes a hex string address.
func (a *Address) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("parse address: not a JSON string")
	}
	parsed, err := ParseAddress(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Derive computes the deterministic address for (tag, seeds) under Namespace.
// The bump byte is searched downward from 255; a candidate whose leading
// byte is zero is rejected, mirroring the off-curve search of the original
// runtime. The search cannot realistically exhaust all 256 bumps.
func Derive(tag string, seeds ...[]byte) (Address, uint8) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		h.Write([]byte(Namespace))
		h.Write([]byte(tag))
		for _, s := range seeds {
			h.Write(s)
		}
		h.Write([]byte{uint8(bump)})

		var addr Address
		copy(addr[:], h.Sum(nil))
		if addr[0] != 0 {
			return addr, uint8(bump)
		}
	}
	panic(fmt.Sprintf("no valid bump for tag %q", tag))
}

// ConfigAddress derives the singleton Config address.
func ConfigAddress() (Address, uint8) {
	return Derive(SeedConfig)
}

// MarketAddress derives the Market record address for a market id.
func MarketAddress(marketID uint64) (Address, uint8) {
	return Derive(SeedMarket, le8(marketID))
}

// VaultAddress derives the per-market escrow vault address.
func VaultAddress(marketID uint64) (Address, uint8) {
	return Derive(SeedVault, le8(marketID))
}

// PositionAddress derives a user's position address in a market.
func PositionAddress(user uuid.UUID, marketID uint64) (Address, uint8) {
	return Derive(SeedPosition, user[:], le8(marketID))
}

// FeeVaultAddress derives the protocol-wide fee vault address.
func FeeVaultAddress() (Address, uint8) {
	return Derive(SeedFeeVault)
}

func le8(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}
