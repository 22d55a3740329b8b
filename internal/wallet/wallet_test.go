package wallet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"basket_swap/internal/chain/sui"
	apperrors "basket_swap/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndImport(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	assert.Len(t, w.Address, 66)
	assert.Contains(t, w.PrivateKey, sui.PrivateKeyPrefix)

	imported, err := Import(w.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, w.Address, imported.Address)
	assert.Equal(t, w.PrivateKey, imported.PrivateKey)

	_, err = Import("garbage!")
	assert.ErrorIs(t, err, apperrors.ErrInvalidKey)
}

func TestWallet_StringRedactsKey(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	assert.NotContains(t, w.String(), w.PrivateKey)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "wallet.json")
	src := NewFileSource(path)

	w, err := src.CurrentWallet(context.Background())
	require.NoError(t, err)
	assert.Nil(t, w)

	created, err := New()
	require.NoError(t, err)
	require.NoError(t, src.Save(created))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, FileMode, info.Mode().Perm())
	assert.NoError(t, CheckPermissions(path))

	loaded, err := src.CurrentWallet(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, created.Address, loaded.Address)
}

func TestFileSource_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), FileMode))

	_, err := NewFileSource(path).CurrentWallet(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrInvalidKey)
}

func TestCheckPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	assert.NoError(t, CheckPermissions(path))

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	require.NoError(t, os.Chmod(path, 0o644))
	assert.Error(t, CheckPermissions(path))
}

func TestStaticSource(t *testing.T) {
	w, err := NewStaticSource("", "").CurrentWallet(context.Background())
	require.NoError(t, err)
	assert.Nil(t, w)

	w, err = NewStaticSource("0xabc", "suiprivkey1x").CurrentWallet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xabc", w.Address)
}
