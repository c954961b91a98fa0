// Package main demonstrates wiring this module's own components
// together end to end: resolve config from the environment, open the
// cache store, build a transport and API client, log in, checkpoint a
// source environment, and deploy it to a target. It is not a CLI
// shell — there is no flag parsing or command registration here, just
// the straight-line composition an embedding tool would otherwise do
// for itself.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"cstools.thoughtspot.com/apiclient"
	"cstools.thoughtspot.com/cache"
	"cstools.thoughtspot.com/config"
	"cstools.thoughtspot.com/deploy"
	"cstools.thoughtspot.com/syncer"
	"cstools.thoughtspot.com/transport"
	"cstools.thoughtspot.com/version"
	"cstools.thoughtspot.com/workflows"
)

func main() {
	logger := logrus.NewEntry(logrus.StandardLogger())
	cfg := config.Load("CS_TOOLS")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("run failed")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logrus.Entry) error {
	env := config.NewEnvConfig("CS_TOOLS")
	baseURL := env.MustGetString("BASE_URL")
	username := env.MustGetString("USERNAME")
	password := env.MustGetString("PASSWORD")
	directory := env.GetString("CONTENT_DIR", "./content")

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	store, err := cache.Open(cfg.CacheDir + string(os.PathSeparator) + "cache.db")
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	httpClient := &http.Client{Timeout: cfg.DefaultTimeout}
	tr := transport.New(httpClient, store, transport.Config{MaxConcurrentRequests: int64(cfg.MaxConcurrentRequests)}, logger)
	client := apiclient.New(baseURL, tr, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DefaultTimeout)
	defer cancel()

	if err := client.LoginSessionCookie(ctx, username, password, false); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer client.Logout(context.Background())

	logger.WithField("module_version", version.GetModuleVersion()).Info("authenticated")

	filters := deploy.Filters{Types: []string{"liveboard", "answer"}, DeleteAware: true}
	mf, rows, err := deploy.Checkpoint(ctx, client, directory, "production", filters, logger)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	logger.WithField("exported", len(rows)).Info("checkpoint complete")

	_, deployRows, err := deploy.Deploy(ctx, client, directory, "production", "staging", deploy.DeployDelta, apiclient.ImportAllOrNone, logger)
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"source_guids": len(mf.Mapping),
		"deployed":     len(deployRows),
	}).Info("deploy complete")

	if query := env.GetString("AUDIT_QUERY", ""); query != "" {
		worksheet := env.MustGetString("AUDIT_WORKSHEET_GUID")
		if err := exportSearchAudit(ctx, client, query, worksheet, directory, logger); err != nil {
			return fmt.Errorf("export search audit: %w", err)
		}
	}

	return nil
}

// exportSearchAudit runs an ad-hoc search against worksheet and dumps
// the result to a CSV file under directory, the way an administrator
// would archive a one-off audit query using the file syncer interface.
func exportSearchAudit(ctx context.Context, client *apiclient.Client, query, worksheet, directory string, logger *logrus.Entry) error {
	_, rows, err := workflows.DataSearch(ctx, client, query, worksheet, logger)
	if err != nil {
		return err
	}

	records := make([]syncer.Row, len(rows))
	for i, r := range rows {
		records[i] = syncer.Row(r)
	}

	return syncer.NewCSVSyncer(directory).Dump(ctx, "search_audit", records)
}
