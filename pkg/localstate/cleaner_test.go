package localstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mkdir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
}

func mkfile(t *testing.T, path string) {
	t.Helper()
	mkdir(t, filepath.Dir(path))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestCleanRemovesOnlyTargetedArtifacts(t *testing.T) {
	root := t.TempDir()

	devState := filepath.Join(root, "a", "terraform.tfstate.d", "dev")
	stgState := filepath.Join(root, "a", "terraform.tfstate.d", "stg")
	providerCache := filepath.Join(root, "b", ".terraform")
	lockFile := filepath.Join(root, "c", ".terraform.lock.hcl")

	mkfile(t, filepath.Join(devState, "terraform.tfstate"))
	mkfile(t, filepath.Join(stgState, "terraform.tfstate"))
	mkfile(t, filepath.Join(providerCache, "providers", "registry.terraform.io", "azurerm"))
	mkfile(t, lockFile)

	NewCleaner(root, zap.NewNop()).Clean("dev")

	assert.False(t, exists(devState), "dev workspace state must be removed")
	assert.True(t, exists(stgState), "stg workspace state must survive")
	assert.False(t, exists(providerCache), ".terraform must be removed")
	assert.False(t, exists(lockFile), ".terraform.lock.hcl must be removed")
}

func TestCleanIgnoresEnvironmentDirsOutsideStateDir(t *testing.T) {
	root := t.TempDir()

	plainDev := filepath.Join(root, "src", "dev")
	mkfile(t, filepath.Join(plainDev, "main.tf"))

	NewCleaner(root, zap.NewNop()).Clean("dev")

	assert.True(t, exists(plainDev), "a dev directory outside terraform.tfstate.d must survive")
}

func TestCleanFindsNestedStateDirs(t *testing.T) {
	root := t.TempDir()

	nested := filepath.Join(root, "infra", "fabric", "terraform.tfstate.d", "dev")
	mkfile(t, filepath.Join(nested, "terraform.tfstate"))

	NewCleaner(root, zap.NewNop()).Clean("dev")

	assert.False(t, exists(nested))
}

func TestCleanEmptyTreeIsNoop(t *testing.T) {
	root := t.TempDir()

	// Must not panic or error on a tree with nothing to sweep.
	NewCleaner(root, zap.NewNop()).Clean("dev")

	assert.True(t, exists(root))
}

func TestCleanMissingRootIsSwallowed(t *testing.T) {
	root := filepath.Join(t.TempDir(), "absent")

	// Best-effort: a missing root is logged, never fatal.
	NewCleaner(root, zap.NewNop()).Clean("dev")
}

func TestCleanIsIdempotent(t *testing.T) {
	root := t.TempDir()
	lockFile := filepath.Join(root, ".terraform.lock.hcl")
	mkfile(t, lockFile)

	cleaner := NewCleaner(root, zap.NewNop())
	cleaner.Clean("dev")
	cleaner.Clean("dev")

	assert.False(t, exists(lockFile))
}
