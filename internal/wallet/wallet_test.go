package wallet

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	testPrivateKey = "0x0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	testMnemonic   = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
)

func TestNewFromPrivateKey(t *testing.T) {
	tests := []struct {
		name       string
		privateKey string
		wantErr    bool
	}{
		{
			name:       "valid key with 0x prefix",
			privateKey: testPrivateKey,
			wantErr:    false,
		},
		{
			name:       "valid key without 0x prefix",
			privateKey: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
			wantErr:    false,
		},
		{
			name:       "invalid key",
			privateKey: "invalid",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewFromPrivateKey(tt.privateKey)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFromPrivateKey() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil {
				if w.Key() == nil {
					t.Error("Key() returned nil")
				}
				if w.DerivationPath() != "" {
					t.Errorf("DerivationPath() = %q, want empty", w.DerivationPath())
				}
			}
		})
	}
}

func TestNewFromMnemonic(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
		index    uint32
		wantAddr common.Address
		wantErr  bool
	}{
		{
			name:     "first account",
			mnemonic: testMnemonic,
			index:    0,
			wantAddr: common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94"),
		},
		{
			name:     "invalid mnemonic",
			mnemonic: "invalid mnemonic phrase",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewFromMnemonic(tt.mnemonic, tt.index)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFromMnemonic() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if w.Address() != tt.wantAddr {
				t.Errorf("Address() = %s, want %s", w.Address().Hex(), tt.wantAddr.Hex())
			}
			if w.DerivationPath() != "m/44'/60'/0'/0/0" {
				t.Errorf("DerivationPath() = %s", w.DerivationPath())
			}
		})
	}
}

func TestWallet_MnemonicIndexesDiffer(t *testing.T) {
	w0, err := NewFromMnemonic(testMnemonic, 0)
	if err != nil {
		t.Fatalf("NewFromMnemonic() failed: %v", err)
	}
	w1, err := NewFromMnemonic(testMnemonic, 1)
	if err != nil {
		t.Fatalf("NewFromMnemonic() failed: %v", err)
	}

	if w0.Address() == w1.Address() {
		t.Error("accounts at different indexes should not share an address")
	}
}

func TestWallet_Address(t *testing.T) {
	w, err := NewFromPrivateKey(testPrivateKey)
	if err != nil {
		t.Fatalf("NewFromPrivateKey() failed: %v", err)
	}

	addr := w.Address()
	if addr == (common.Address{}) {
		t.Error("Address() returned zero address")
	}

	expectedAddr := crypto.PubkeyToAddress(w.Key().PublicKey)
	if addr != expectedAddr {
		t.Errorf("Address() = %s, want %s", addr.Hex(), expectedAddr.Hex())
	}
}

func TestWallet_SignHash(t *testing.T) {
	w, err := NewFromPrivateKey(testPrivateKey)
	if err != nil {
		t.Fatalf("NewFromPrivateKey() failed: %v", err)
	}

	hash := crypto.Keccak256([]byte("test message"))
	sig, err := w.SignHash(hash)
	if err != nil {
		t.Fatalf("SignHash() failed: %v", err)
	}

	if len(sig) != 65 {
		t.Errorf("Signature length = %d, want 65", len(sig))
	}

	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		t.Fatalf("SigToPub() failed: %v", err)
	}

	recoveredAddr := crypto.PubkeyToAddress(*pubKey)
	if recoveredAddr != w.Address() {
		t.Errorf("Recovered address = %s, want %s", recoveredAddr.Hex(), w.Address().Hex())
	}
}
