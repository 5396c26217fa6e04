// Package wallet resolves the house wallet identity from configuration.
package wallet

import (
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Resolver holds the house wallet address, if one is configured. An empty
// resolver is valid: quoting then rejects with wallet_required instead of
// taking stakes it cannot counterparty.
type Resolver struct {
	walletID string
}

// NewResolver builds a Resolver from an explicit wallet ID or, failing that,
// an ECDSA private key whose address becomes the wallet ID. Both empty yields
// a resolver with no house wallet.
func NewResolver(walletID, privateKeyHex string) (*Resolver, error) {
	if walletID != "" {
		return &Resolver{walletID: walletID}, nil
	}
	if privateKeyHex == "" {
		return &Resolver{}, nil
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: parse private key: %w", err)
	}
	addr := ethcrypto.PubkeyToAddress(key.PublicKey)
	return &Resolver{walletID: addr.Hex()}, nil
}

// HouseWalletID returns the house wallet and whether one is configured.
func (r *Resolver) HouseWalletID() (string, bool) {
	return r.walletID, r.walletID != ""
}
