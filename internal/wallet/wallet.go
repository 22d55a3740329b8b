// Package wallet provides the signer key material used for purchases
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"basket_swap/internal/chain/sui"
	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"
)

// FileMode is the only permission accepted for wallet files
const FileMode fs.FileMode = 0o600

// New generates a fresh keypair
func New() (*core.Wallet, error) {
	key, err := sui.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	defer key.Wipe()

	encoded, err := key.ExportPrivateKey()
	if err != nil {
		return nil, err
	}
	return &core.Wallet{Address: key.Address(), PrivateKey: encoded}, nil
}

// Import parses privateKey, derives its address and returns it in canonical encoding
func Import(privateKey string) (*core.Wallet, error) {
	key, err := sui.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	defer key.Wipe()

	encoded, err := key.ExportPrivateKey()
	if err != nil {
		return nil, err
	}
	return &core.Wallet{Address: key.Address(), PrivateKey: encoded}, nil
}

// FileSource reads the wallet from a JSON file on every call, so a wallet created while the
// service runs is picked up by the next purchase
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Path() string {
	return s.path
}

// CurrentWallet returns (nil, nil) when the file does not exist
func (s *FileSource) CurrentWallet(ctx context.Context) (*core.Wallet, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet file: %w", err)
	}

	var w core.Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: wallet file: %v", apperrors.ErrInvalidKey, err)
	}
	if w.PrivateKey == "" {
		return nil, nil
	}
	return &w, nil
}

// Save writes w with owner-only permissions, replacing any existing file
func (s *FileSource) Save(w *core.Wallet) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create wallet directory: %w", err)
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, FileMode); err != nil {
		return fmt.Errorf("failed to write wallet file: %w", err)
	}
	if err := os.Chmod(tmp, FileMode); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// CheckPermissions fails when the wallet file is readable by group or others. A missing file
// passes.
func CheckPermissions(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0o077 != 0 {
		return fmt.Errorf("wallet file %s has mode %04o, expected %04o", path, info.Mode().Perm(), FileMode)
	}
	return nil
}

// StaticSource serves a wallet given in configuration or the environment
type StaticSource struct {
	wallet *core.Wallet
}

// NewStaticSource returns a source with no wallet when privateKey is empty
func NewStaticSource(address, privateKey string) *StaticSource {
	if strings.TrimSpace(privateKey) == "" {
		return &StaticSource{}
	}
	return &StaticSource{wallet: &core.Wallet{Address: address, PrivateKey: privateKey}}
}

func (s *StaticSource) CurrentWallet(ctx context.Context) (*core.Wallet, error) {
	if s.wallet == nil {
		return nil, nil
	}
	w := *s.wallet
	return &w, nil
}
