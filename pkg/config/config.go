// Package config provides environment configuration with validation.
//
// The teardown run is configured entirely from environment variables,
// optionally overlaid on a YAML file. All inputs are validated at the
// boundary (fail-fast) before any external system is touched.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ConnectionNamePrefix is the fixed prefix for ADLS connection names.
// The full name is prefix + sanitized base name + environment name, and
// must be recomputable from configuration alone so that teardown can
// locate the connection without any persisted identifier.
const ConnectionNamePrefix = "conn-adls-"

// Input validation patterns.
var (
	// ValidGUIDPattern matches Azure tenant and subscription IDs.
	ValidGUIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	// ValidEnvironmentPattern matches environment names (dev, stg, prod, ...).
	ValidEnvironmentPattern = regexp.MustCompile(`^[a-z][a-z0-9]{0,15}$`)
)

// Configuration errors.
var (
	ErrMissingEnvironmentName = errors.New("ENVIRONMENT_NAME is required")
	ErrInvalidEnvironmentName = errors.New("ENVIRONMENT_NAME must match pattern ^[a-z][a-z0-9]{0,15}$")
	ErrMissingTenantID        = errors.New("TENANT_ID is required")
	ErrInvalidTenantID        = errors.New("TENANT_ID must be a valid GUID")
	ErrMissingSubscriptionID  = errors.New("SUBSCRIPTION_ID is required")
	ErrInvalidSubscriptionID  = errors.New("SUBSCRIPTION_ID must be a valid GUID")
	ErrMissingResourceGroup   = errors.New("RESOURCE_GROUP_NAME is required")
	ErrMissingBaseName        = errors.New("BASE_NAME is required")
	ErrUnreadableConfigFile   = errors.New("config file is not readable")
	ErrInvalidConfigFile      = errors.New("config file is not valid YAML")
)

// wrapErrWithValue wraps an error with the offending value for context.
func wrapErrWithValue(err error, value string) error {
	return fmt.Errorf("%w: %s", err, value)
}

// validate is the singleton validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("guid", func(fl validator.FieldLevel) bool {
		return ValidGUIDPattern.MatchString(strings.ToLower(fl.Field().String()))
	})
}

// GitIntegration holds the git fields forwarded to the provisioning backend.
// Teardown never talks to git; the backend module requires these variables
// to be present even on destroy.
type GitIntegration struct {
	OrganizationName string `yaml:"organizationName"`
	ProjectName      string `yaml:"projectName"`
	RepositoryName   string `yaml:"repositoryName"`
	BranchName       string `yaml:"branchName"`
	DirectoryName    string `yaml:"directoryName"`
}

// Config holds the environment context for one teardown run.
// Immutable after Load; every field is sourced from the environment.
type Config struct {
	// EnvironmentName is the environment to tear down (dev, stg, prod).
	EnvironmentName string `yaml:"environmentName" validate:"required"`
	// TenantID is the Entra ID tenant.
	TenantID string `yaml:"tenantId" validate:"required,guid"`
	// SubscriptionID is the Azure subscription.
	SubscriptionID string `yaml:"subscriptionId" validate:"required,guid"`
	// ResourceGroupName is the resource group holding the environment.
	ResourceGroupName string `yaml:"resourceGroupName" validate:"required,max=90"`
	// BaseName is the naming seed shared by all environment resources.
	BaseName string `yaml:"baseName" validate:"required"`

	// AppClientID and AppClientSecret identify the workload service principal.
	AppClientID     string `yaml:"appClientId"`
	AppClientSecret string `yaml:"-"`

	// Git holds the git integration passthrough fields.
	Git GitIntegration `yaml:"git"`

	// WorkspaceAdminGroupName is the Entra group administering the workspace.
	WorkspaceAdminGroupName string `yaml:"workspaceAdminGroupName"`
	// ExistingCapacityName is the pre-provisioned Fabric capacity, if any.
	// Empty means the environment created its own capacity.
	ExistingCapacityName string `yaml:"existingCapacityName"`
	// CapacityAdmins is the comma-separated capacity admin list.
	CapacityAdmins string `yaml:"capacityAdmins"`
}

// Load builds a Config from the process environment, optionally overlaid
// on the YAML file at path (environment variables always win). Pass an
// empty path to load from the environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableConfigFile, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfigFile, err)
		}
	}

	overlayEnv(&cfg.EnvironmentName, "ENVIRONMENT_NAME")
	overlayEnv(&cfg.TenantID, "TENANT_ID")
	overlayEnv(&cfg.SubscriptionID, "SUBSCRIPTION_ID")
	overlayEnv(&cfg.ResourceGroupName, "RESOURCE_GROUP_NAME")
	overlayEnv(&cfg.BaseName, "BASE_NAME")
	overlayEnv(&cfg.AppClientID, "APP_CLIENT_ID")
	overlayEnv(&cfg.AppClientSecret, "APP_CLIENT_SECRET")
	overlayEnv(&cfg.Git.OrganizationName, "GIT_ORGANIZATION_NAME")
	overlayEnv(&cfg.Git.ProjectName, "GIT_PROJECT_NAME")
	overlayEnv(&cfg.Git.RepositoryName, "GIT_REPOSITORY_NAME")
	overlayEnv(&cfg.Git.BranchName, "GIT_BRANCH_NAME")
	overlayEnv(&cfg.Git.DirectoryName, "GIT_DIRECTORY_NAME")
	overlayEnv(&cfg.WorkspaceAdminGroupName, "FABRIC_WORKSPACE_ADMIN_SG_NAME")
	overlayEnv(&cfg.ExistingCapacityName, "EXISTING_FABRIC_CAPACITY_NAME")
	overlayEnv(&cfg.CapacityAdmins, "FABRIC_CAPACITY_ADMINS")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// overlayEnv replaces dst with the environment value when it is set.
func overlayEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.EnvironmentName == "" {
		errs = append(errs, ErrMissingEnvironmentName)
	} else if !ValidEnvironmentPattern.MatchString(c.EnvironmentName) {
		errs = append(errs, wrapErrWithValue(ErrInvalidEnvironmentName, c.EnvironmentName))
	}

	if c.TenantID == "" {
		errs = append(errs, ErrMissingTenantID)
	} else if !ValidGUIDPattern.MatchString(strings.ToLower(c.TenantID)) {
		errs = append(errs, wrapErrWithValue(ErrInvalidTenantID, c.TenantID))
	}

	if c.SubscriptionID == "" {
		errs = append(errs, ErrMissingSubscriptionID)
	} else if !ValidGUIDPattern.MatchString(strings.ToLower(c.SubscriptionID)) {
		errs = append(errs, wrapErrWithValue(ErrInvalidSubscriptionID, c.SubscriptionID))
	}

	if c.ResourceGroupName == "" {
		errs = append(errs, ErrMissingResourceGroup)
	}

	if c.BaseName == "" {
		errs = append(errs, ErrMissingBaseName)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	// Struct-tag validation covers length bounds and GUID format for
	// values loaded from the YAML overlay.
	return validate.Struct(c)
}

// CreateFabricCapacity reports whether the environment provisioned its own
// Fabric capacity. True exactly when no existing capacity name was supplied.
func (c *Config) CreateFabricCapacity() bool {
	return c.ExistingCapacityName == ""
}

// ConnectionName derives the display name of the environment's ADLS
// connection in the Fabric control plane.
func (c *Config) ConnectionName() string {
	return DeriveConnectionName(c.BaseName, c.EnvironmentName)
}

// DeriveConnectionName computes the deterministic connection display name
// from the naming seed and environment. Hyphens and underscores are
// stripped from the base name; nothing else is altered. The provisioning
// side uses the same convention, so the name alone is enough to find the
// connection on re-runs.
func DeriveConnectionName(baseName, environmentName string) string {
	sanitized := strings.NewReplacer("-", "", "_", "").Replace(baseName)
	return ConnectionNamePrefix + sanitized + environmentName
}
