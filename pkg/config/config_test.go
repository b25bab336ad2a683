package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test constants to avoid literal duplication.
const (
	testTenantID       = "00000000-0000-0000-0000-000000000001"
	testSubscriptionID = "00000000-0000-0000-0000-000000000002"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT_NAME", "dev")
	t.Setenv("TENANT_ID", testTenantID)
	t.Setenv("SUBSCRIPTION_ID", testSubscriptionID)
	t.Setenv("RESOURCE_GROUP_NAME", "rg-dataplatform-dev")
	t.Setenv("BASE_NAME", "st-main")
}

func TestLoadValidConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_CLIENT_ID", "app-client")
	t.Setenv("GIT_ORGANIZATION_NAME", "contoso")
	t.Setenv("FABRIC_WORKSPACE_ADMIN_SG_NAME", "sg-fabric-admins")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.EnvironmentName)
	assert.Equal(t, testTenantID, cfg.TenantID)
	assert.Equal(t, testSubscriptionID, cfg.SubscriptionID)
	assert.Equal(t, "rg-dataplatform-dev", cfg.ResourceGroupName)
	assert.Equal(t, "st-main", cfg.BaseName)
	assert.Equal(t, "app-client", cfg.AppClientID)
	assert.Equal(t, "contoso", cfg.Git.OrganizationName)
	assert.Equal(t, "sg-fabric-admins", cfg.WorkspaceAdminGroupName)
}

func TestLoadMissingEnvironmentName(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENVIRONMENT_NAME", "")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingEnvironmentName)
}

func TestLoadInvalidTenantID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TENANT_ID", "not-a-guid")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTenantID)
}

func TestLoadInvalidSubscriptionID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SUBSCRIPTION_ID", "not-a-guid")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSubscriptionID)
}

func TestLoadReportsAllMissingFields(t *testing.T) {
	t.Setenv("ENVIRONMENT_NAME", "")
	t.Setenv("TENANT_ID", "")
	t.Setenv("SUBSCRIPTION_ID", "")
	t.Setenv("RESOURCE_GROUP_NAME", "")
	t.Setenv("BASE_NAME", "")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingEnvironmentName)
	assert.ErrorIs(t, err, ErrMissingTenantID)
	assert.ErrorIs(t, err, ErrMissingSubscriptionID)
	assert.ErrorIs(t, err, ErrMissingResourceGroup)
	assert.ErrorIs(t, err, ErrMissingBaseName)
}

func TestLoadYAMLOverlayEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "env.yaml")
	content := `
environmentName: stg
tenantId: 00000000-0000-0000-0000-00000000000a
subscriptionId: 00000000-0000-0000-0000-00000000000b
resourceGroupName: rg-from-file
baseName: st-file
existingCapacityName: cap-shared
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// Environment overrides only a subset; the rest comes from the file.
	t.Setenv("ENVIRONMENT_NAME", "dev")
	t.Setenv("TENANT_ID", testTenantID)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.EnvironmentName)
	assert.Equal(t, testTenantID, cfg.TenantID)
	assert.Equal(t, "rg-from-file", cfg.ResourceGroupName)
	assert.Equal(t, "st-file", cfg.BaseName)
	assert.Equal(t, "cap-shared", cfg.ExistingCapacityName)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadableConfigFile)
}

func TestLoadInvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environmentName: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfigFile)
}

func TestDeriveConnectionName(t *testing.T) {
	tests := []struct {
		baseName    string
		environment string
		want        string
	}{
		{"st-main_1", "dev", "conn-adls-stmain1dev"},
		{"stmain", "prod", "conn-adls-stmainprod"},
		{"st-MAIN", "stg", "conn-adls-stMAINstg"}, // case preserved
		{"--__", "dev", "conn-adls-dev"},
		{"", "dev", "conn-adls-dev"},
	}

	for _, tt := range tests {
		got := DeriveConnectionName(tt.baseName, tt.environment)
		assert.Equal(t, tt.want, got, "base=%q env=%q", tt.baseName, tt.environment)
	}
}

func TestCreateFabricCapacity(t *testing.T) {
	cfg := &Config{ExistingCapacityName: ""}
	assert.True(t, cfg.CreateFabricCapacity())

	cfg.ExistingCapacityName = "cap-shared"
	assert.False(t, cfg.CreateFabricCapacity())
}

func TestConnectionNameUsesConfigFields(t *testing.T) {
	cfg := &Config{BaseName: "st-main_1", EnvironmentName: "dev"}
	assert.Equal(t, "conn-adls-stmain1dev", cfg.ConnectionName())
}
