package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// Wallet holds the key of the account that signs the sponsored transfer
type Wallet struct {
	key  *ecdsa.PrivateKey
	path string
}

// NewFromPrivateKey creates a wallet from a private key hex string
func NewFromPrivateKey(privateKeyHex string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &Wallet{key: key}, nil
}

// NewFromMnemonic creates a wallet from a BIP39 mnemonic, deriving the
// account at m/44'/60'/0'/0/<index>
func NewFromMnemonic(mnemonic string, index uint32) (*Wallet, error) {
	hd, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}

	path := fmt.Sprintf("m/44'/60'/0'/0/%d", index)
	derivation, err := hdwallet.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation path %s: %w", path, err)
	}

	account, err := hd.Derive(derivation, false)
	if err != nil {
		return nil, fmt.Errorf("failed to derive account %d: %w", index, err)
	}

	key, err := hd.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d private key: %w", index, err)
	}

	return &Wallet{key: key, path: path}, nil
}

// Key returns the private key
func (w *Wallet) Key() *ecdsa.PrivateKey {
	return w.key
}

// Address returns the account address
func (w *Wallet) Address() common.Address {
	return crypto.PubkeyToAddress(w.key.PublicKey)
}

// DerivationPath returns the HD path, empty for raw private keys
func (w *Wallet) DerivationPath() string {
	return w.path
}

// SignHash signs a 32-byte digest. The recovery id is left in [0, 1].
func (w *Wallet) SignHash(hash []byte) ([]byte, error) {
	return crypto.Sign(hash, w.key)
}
