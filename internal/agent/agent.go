// Package agent wires the update machinery together: it keeps the managed
// services installed and swaps their executables when the distribution
// endpoint publishes a new package.
package agent

import (
	"context"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"updagent/internal/archive"
	"updagent/internal/audit"
	"updagent/internal/config"
	"updagent/internal/fetch"
	"updagent/internal/hashing"
	"updagent/internal/ledger"
	"updagent/internal/logging"
	"updagent/internal/metrics"
	"updagent/internal/replace"
	"updagent/internal/schedule"
	"updagent/internal/svc"
)

type Agent struct {
	Cfg    config.Config
	Layout config.Layout

	Ctl       svc.Controller
	Locator   fetch.Locator
	Fetcher   fetch.Fetcher
	Extractor archive.Extractor

	Packages *ledger.Ledger
	Exes     *ledger.Ledger
	Monitor  *hashing.PackageMonitor

	Replacer    *replace.Replacer
	Reinstaller *replace.Reinstaller

	Audit   *audit.Logger
	Metrics *metrics.Set
	Log     logging.Logger
}

// New builds an agent from cfg, creating the working directory tree.
func New(cfg config.Config) (*Agent, error) {
	logging.SetLevel(cfg.Logging.Level)
	layout, err := config.NewLayout(cfg)
	if err != nil {
		return nil, pkgerrors.WithMessage(err, "resolve layout")
	}
	if err := layout.EnsureLayout(); err != nil {
		return nil, pkgerrors.WithMessage(err, "create layout")
	}

	packages := ledger.New(layout.PackageLedgerPath())
	exes := ledger.New(layout.ExecLedgerPath())
	auditLog := audit.New(layout.AuditPath())
	ctl := svc.NewController()
	metricSet := metrics.NewSet()
	replacer := replace.NewReplacer(ctl, layout.BackupDir(), auditLog)
	replacer.OnRollback = metricSet.Rollback

	return &Agent{
		Cfg:         cfg,
		Layout:      layout,
		Ctl:         ctl,
		Locator:     fetch.NewHTTPLocator(cfg.BaseURL(), cfg.TenantID, cfg.SiteID, cfg.PackageName),
		Fetcher:     fetch.NewHTTPFetcher(),
		Extractor:   archive.NewZipExtractor(),
		Packages:    packages,
		Exes:        exes,
		Monitor:     hashing.NewPackageMonitor(packages, layout.PackagePath()),
		Replacer:    replacer,
		Reinstaller: replace.NewReinstaller(ctl, exes, auditLog),
		Audit:       auditLog,
		Metrics:     metricSet,
		Log:         logging.New("agent"),
	}, nil
}

// Run performs the initial install and then loops on the cron schedule until
// ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	sched, err := schedule.New(a.Cfg.Cron)
	if err != nil {
		return err
	}
	if _, err := a.PerformInitialInstall(ctx); err != nil {
		a.Log.WithError(err).Error("initial install incomplete")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Metrics.Serve(ctx, a.Cfg.Metrics.Listen)
	})
	g.Go(func() error {
		return sched.Run(ctx, func(passCtx context.Context) {
			// A stop request waits for the pass in flight instead of
			// aborting it mid-replacement.
			updated, err := a.PerformUpgrade(context.WithoutCancel(passCtx))
			if err != nil {
				a.Log.WithError(err).Error("upgrade pass finished with failures")
			}
			a.Log.WithField("updated", updated).Info("upgrade pass complete")
		})
	})
	return pkgerrors.WithMessage(g.Wait(), "agent run")
}

func (a *Agent) descriptor(s config.ServiceConfig) svc.Descriptor {
	d := svc.Descriptor{
		Name:        s.Name,
		Executable:  s.Executable,
		PackagedExe: s.PackagedExe,
	}
	if s.InstallArgs {
		d.Args = []string{"--companyid", a.Cfg.TenantID, "--region", a.Cfg.Region}
		if a.Cfg.SiteID != "" {
			d.Args = append(d.Args, "--siteid", a.Cfg.SiteID)
		}
	}
	return d
}

func (a *Agent) stagedPath(s config.ServiceConfig) string {
	return filepath.Join(a.Layout.PayloadDir(), s.PackagedExe)
}

func (a *Agent) allInstalled() bool {
	for _, s := range a.Cfg.Services {
		if !a.Ctl.IsInstalled(s.Name) {
			return false
		}
	}
	return true
}

// fetchPackage resolves the download location and pulls the archive. A
// download problem is reported, not fatal: the next pass retries.
func (a *Agent) fetchPackage(ctx context.Context) bool {
	url, err := a.Locator.Resolve(ctx)
	if err != nil {
		a.Log.WithError(err).Warn("cannot resolve package location")
		a.Metrics.FetchFailure()
		return false
	}
	if err := a.Fetcher.Fetch(ctx, url, a.Layout.PackagePath()); err != nil {
		a.Log.WithError(err).Warn("package download failed")
		a.Metrics.FetchFailure()
		return false
	}
	return true
}
