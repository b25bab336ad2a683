// Package terraform wraps the Terraform CLI for environment destruction.
//
// The provisioning backend is plain Terraform with workspace-per-environment
// state. The adapter drives three steps, each a hard dependency on the
// previous: select-or-create the workspace, init, destroy with the full
// variable set. Any failure aborts the run.
package terraform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"go.uber.org/zap"

	"github.com/dataops-platform/envdown/pkg/config"
	"github.com/dataops-platform/envdown/pkg/identity"
)

// DefaultBinary is the Terraform executable name resolved via PATH.
const DefaultBinary = "terraform"

// Errors.
var (
	ErrWorkspaceSelectFailed = errors.New("terraform workspace select failed")
	ErrInitFailed            = errors.New("terraform init failed")
	ErrDestroyFailed         = errors.New("terraform destroy failed")
)

// Runner is the interface required to drive the provisioning backend.
type Runner interface {
	// SelectWorkspace switches to the named workspace, creating it when
	// absent. Selecting or creating an existing workspace must not error.
	SelectWorkspace(ctx context.Context, name string) error
	// Init initializes backend state connectivity.
	Init(ctx context.Context) error
	// Destroy destroys the environment with the given variables.
	Destroy(ctx context.Context, vars map[string]string) error
}

// CLIRunner drives the terraform binary via os/exec.
type CLIRunner struct {
	// Binary is the terraform executable. Defaults to DefaultBinary.
	Binary string
	// WorkingDir is the directory holding the root module.
	WorkingDir string
	// Env is extra environment appended to the inherited process env.
	Env []string

	logger *zap.Logger

	// runCmd executes a prepared command. Overridable in tests.
	runCmd func(*exec.Cmd) error
}

// NewCLIRunner creates a runner for the root module in workingDir.
// The identity mode selects the provider auth flags forwarded via the
// ARM_USE_CLI / ARM_USE_MSI environment.
func NewCLIRunner(workingDir string, mode identity.Mode, logger *zap.Logger) *CLIRunner {
	return &CLIRunner{
		Binary:     DefaultBinary,
		WorkingDir: workingDir,
		Env: []string{
			"TF_IN_AUTOMATION=1",
			fmt.Sprintf("ARM_USE_CLI=%t", mode.UseCLI()),
			fmt.Sprintf("ARM_USE_MSI=%t", mode.UseMSI()),
		},
		logger: logger,
		runCmd: func(cmd *exec.Cmd) error { return cmd.Run() },
	}
}

// SelectWorkspace selects the named workspace, creating it when absent.
func (r *CLIRunner) SelectWorkspace(ctx context.Context, name string) error {
	r.logger.Info("Selecting workspace", zap.String("workspace", name))
	if err := r.run(ctx, "workspace", "select", "-or-create=true", name); err != nil {
		return fmt.Errorf("%w: %v", ErrWorkspaceSelectFailed, err)
	}
	return nil
}

// Init initializes the backend.
func (r *CLIRunner) Init(ctx context.Context) error {
	r.logger.Info("Initializing backend")
	if err := r.run(ctx, "init", "-input=false"); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	return nil
}

// Destroy runs terraform destroy with the given variables.
// Variables are passed in sorted key order so invocations are reproducible.
func (r *CLIRunner) Destroy(ctx context.Context, vars map[string]string) error {
	args := []string{"destroy", "-input=false", "-auto-approve"}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-var", fmt.Sprintf("%s=%s", k, vars[k]))
	}

	r.logger.Info("Destroying environment", zap.Int("variables", len(vars)))
	if err := r.run(ctx, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrDestroyFailed, err)
	}
	return nil
}

// run executes the terraform binary with the given arguments, streaming
// output to the operator.
func (r *CLIRunner) run(ctx context.Context, args ...string) error {
	binary := r.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = r.WorkingDir
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return r.runCmd(cmd)
}

// DestroyVars builds the fixed variable set for the destroy invocation.
//
// The existing capacity name is always passed through as
// fabric_capacity_name, even when empty and create_fabric_capacity is
// true; the backend module owns the interpretation of that combination.
func DestroyVars(cfg *config.Config) map[string]string {
	return map[string]string{
		"environment_name":               cfg.EnvironmentName,
		"tenant_id":                      cfg.TenantID,
		"subscription_id":                cfg.SubscriptionID,
		"resource_group_name":            cfg.ResourceGroupName,
		"base_name":                      cfg.BaseName,
		"client_id":                      cfg.AppClientID,
		"client_secret":                  cfg.AppClientSecret,
		"git_organization_name":          cfg.Git.OrganizationName,
		"git_project_name":               cfg.Git.ProjectName,
		"git_repository_name":            cfg.Git.RepositoryName,
		"git_branch_name":                cfg.Git.BranchName,
		"git_directory_name":             cfg.Git.DirectoryName,
		"fabric_workspace_admin_sg_name": cfg.WorkspaceAdminGroupName,
		"create_fabric_capacity":         fmt.Sprintf("%t", cfg.CreateFabricCapacity()),
		"fabric_capacity_name":           cfg.ExistingCapacityName,
		"fabric_capacity_admins":         cfg.CapacityAdmins,
	}
}

// DestroyEnvironment sequences workspace selection, init and destroy.
// Each step is a hard dependency on the previous succeeding.
func DestroyEnvironment(ctx context.Context, runner Runner, cfg *config.Config) error {
	if err := runner.SelectWorkspace(ctx, cfg.EnvironmentName); err != nil {
		return err
	}
	if err := runner.Init(ctx); err != nil {
		return err
	}
	return runner.Destroy(ctx, DestroyVars(cfg))
}
