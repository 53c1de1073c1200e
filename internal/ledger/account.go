package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeMarket
	AccountScopeSystem
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeWallet AccountSubType = iota

	// Market sub-types
	SubTypeVault

	// System sub-types
	SubTypeSystemFeeVault
)

// AccountKey is the in-memory key for balance tracking (18 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, LE market id for vaults
	SubType  AccountSubType
}

// NewUserWalletKey creates the key for a user's base-currency wallet.
// Wallets are boundary accounts: custody is external, so they may go
// negative here without breaking any invariant.
func NewUserWalletKey(userID uuid.UUID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  SubTypeWallet,
	}
}

// NewVaultKey creates the key for a market's escrow vault.
func NewVaultKey(marketID uint64) AccountKey {
	var entityID [16]byte
	binary.LittleEndian.PutUint64(entityID[:8], marketID)
	return AccountKey{
		Scope:    AccountScopeMarket,
		EntityID: entityID,
		SubType:  SubTypeVault,
	}
}

// FeeVaultKey is the singleton protocol fee vault.
func FeeVaultKey() AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: SubTypeSystemFeeVault,
	}
}

// MarketID extracts the market id from a vault key.
func (k AccountKey) MarketID() uint64 {
	return binary.LittleEndian.Uint64(k.EntityID[:8])
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s", uid.String(), k.subTypeName())
	case AccountScopeMarket:
		return fmt.Sprintf("market:%d:%s", k.MarketID(), k.subTypeName())
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s", k.subTypeName())
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWallet:
		return "wallet"
	case SubTypeVault:
		return "vault"
	case SubTypeSystemFeeVault:
		return "fee_vault"
	default:
		return "unknown"
	}
}
