// Package teardown sequences the environment teardown pipeline.
//
// Fixed order, no parallelism, no rollback:
//  1. Resolve authentication mode (fatal on failure)
//  2. Terraform destroy via the provisioning backend (fatal)
//  3. Authenticate to the Fabric control plane (fatal)
//  4. Delete the environment's ADLS connection by derived name
//     (lookup failure fatal, delete failure advisory, absence is a skip)
//  5. Sweep local Terraform state (never fatal)
//
// Errors carry an explicit advisory flag; the orchestrator aborts on
// fatal errors and records advisories while continuing. The whole run is
// at-most-once and safe to re-run: workspace selection is
// select-or-create and the connection lookup is by recomputed name.
package teardown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"go.uber.org/zap"

	"github.com/dataops-platform/envdown/pkg/config"
	"github.com/dataops-platform/envdown/pkg/fabric"
	"github.com/dataops-platform/envdown/pkg/identity"
	"github.com/dataops-platform/envdown/pkg/localstate"
	"github.com/dataops-platform/envdown/pkg/terraform"
)

// Stage identifies a pipeline stage.
type Stage string

const (
	StageIdentity     Stage = "identity"
	StageInfra        Stage = "infrastructure"
	StageControlPlane Stage = "control-plane"
	StageConnection   Stage = "connection"
	StageLocalState   Stage = "local-state"
)

// StageError wraps a stage failure with its severity.
type StageError struct {
	Stage    Stage
	Err      error
	Advisory bool
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// fatal wraps an error as a run-aborting stage failure.
func fatal(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// advisory wraps an error as a recorded, non-aborting stage failure.
func advisory(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err, Advisory: true}
}

// IsAdvisory reports whether err is a non-aborting stage failure.
func IsAdvisory(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Advisory
}

// Result summarizes one teardown run.
type Result struct {
	// Mode is the resolved authentication mode.
	Mode identity.Mode
	// ConnectionName is the derived connection display name.
	ConnectionName string
	// ConnectionID is the matched connection id, empty when none found.
	ConnectionID string
	// ConnectionDeleted indicates the connection delete succeeded.
	ConnectionDeleted bool
	// Advisories are the non-fatal errors recorded during the run.
	Advisories []error
	// StartTime is when the run started.
	StartTime time.Time
	// EndTime is when the run completed.
	EndTime time.Time
}

// Duration returns the run duration.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// modeResolver resolves the run's authentication mode.
type modeResolver interface {
	Resolve(ctx context.Context) (identity.Mode, error)
}

// connectionStore is the control-plane surface the pipeline needs.
type connectionStore interface {
	FindConnectionIDByName(ctx context.Context, name string) (string, error)
	DeleteConnection(ctx context.Context, id string) error
}

// stateCleaner sweeps local Terraform state.
type stateCleaner interface {
	Clean(environmentName string)
}

// Options configures the orchestrator's filesystem inputs.
type Options struct {
	// InfraDir is the directory holding the Terraform root module.
	InfraDir string
	// StateRoot is the directory swept for local state artifacts.
	StateRoot string
}

// Orchestrator runs the teardown pipeline.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.Logger

	resolver       modeResolver
	newCredential  func(mode identity.Mode) (azcore.TokenCredential, error)
	newRunner      func(mode identity.Mode) terraform.Runner
	newConnections func(cred azcore.TokenCredential) connectionStore
	cleaner        stateCleaner
	probeResources func(ctx context.Context, cred azcore.TokenCredential)
}

// New creates an orchestrator wired to the real collaborators.
func New(cfg *config.Config, opts Options, logger *zap.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		resolver: identity.NewResolver(nil, logger),
		newCredential: func(mode identity.Mode) (azcore.TokenCredential, error) {
			return identity.NewCredential(mode, identity.CredentialOptions{
				TenantID:     cfg.TenantID,
				ClientID:     cfg.AppClientID,
				ClientSecret: cfg.AppClientSecret,
			})
		},
		newRunner: func(mode identity.Mode) terraform.Runner {
			return terraform.NewCLIRunner(opts.InfraDir, mode, logger)
		},
		newConnections: func(cred azcore.TokenCredential) connectionStore {
			return fabric.NewClient(cred, logger, nil)
		},
		cleaner: localstate.NewCleaner(opts.StateRoot, logger),
	}
	o.probeResources = o.probeResourceGroup
	return o
}

// Run executes the pipeline. A non-nil error is fatal: the run aborted
// and later stages did not execute. Advisory failures are collected in
// the result and do not produce an error.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		StartTime:      time.Now(),
		ConnectionName: o.cfg.ConnectionName(),
	}
	defer func() { result.EndTime = time.Now() }()

	o.logger.Info("Starting environment teardown",
		zap.String("environment", o.cfg.EnvironmentName),
		zap.String("resource_group", o.cfg.ResourceGroupName),
	)

	// Stage 1: identity.
	mode, err := o.resolver.Resolve(ctx)
	if err != nil {
		return result, fatal(StageIdentity, err)
	}
	result.Mode = mode

	cred, err := o.newCredential(mode)
	if err != nil {
		return result, fatal(StageIdentity, err)
	}

	// Log-only probes; neither can abort the run.
	if mode.UseMSI() {
		identity.DescribeManagedIdentity(ctx, cred, o.cfg.SubscriptionID, o.cfg.ResourceGroupName, o.logger)
	}
	o.probeResources(ctx, cred)

	// Stage 2: infrastructure destroy.
	if err := terraform.DestroyEnvironment(ctx, o.newRunner(mode), o.cfg); err != nil {
		return result, fatal(StageInfra, err)
	}

	// Stage 3 + 4: control-plane connection cleanup.
	connections := o.newConnections(cred)

	id, err := connections.FindConnectionIDByName(ctx, result.ConnectionName)
	if err != nil {
		if errors.Is(err, fabric.ErrAuthFailed) {
			return result, fatal(StageControlPlane, err)
		}
		return result, fatal(StageConnection, err)
	}
	result.ConnectionID = id

	switch {
	case id == "":
		o.logger.Warn("No connection found, skipping delete",
			zap.String("connection_name", result.ConnectionName),
		)
	default:
		if err := connections.DeleteConnection(ctx, id); err != nil {
			adv := advisory(StageConnection, err)
			result.Advisories = append(result.Advisories, adv)
			o.logger.Error("Connection delete failed",
				zap.String("connection_id", id),
				zap.Error(err),
			)
		} else {
			result.ConnectionDeleted = true
		}
	}

	// Stage 5: local state sweep. Best-effort by construction.
	o.cleaner.Clean(o.cfg.EnvironmentName)

	o.logger.Info("Environment teardown complete",
		zap.String("environment", o.cfg.EnvironmentName),
		zap.Int("advisories", len(result.Advisories)),
	)

	return result, nil
}

// probeResourceGroup checks whether the resource group still exists and
// warns when it is already gone. Destroy proceeds either way; on empty
// state it is a no-op, which keeps re-runs cheap.
func (o *Orchestrator) probeResourceGroup(ctx context.Context, cred azcore.TokenCredential) {
	client, err := armresources.NewResourceGroupsClient(o.cfg.SubscriptionID, cred, nil)
	if err != nil {
		o.logger.Debug("Resource group probe unavailable", zap.Error(err))
		return
	}

	resp, err := client.CheckExistence(ctx, o.cfg.ResourceGroupName, nil)
	if err != nil {
		o.logger.Debug("Resource group probe failed", zap.Error(err))
		return
	}

	if !resp.Success {
		o.logger.Warn("Resource group not found, destroy will be a no-op",
			zap.String("resource_group", o.cfg.ResourceGroupName),
		)
	}
}
