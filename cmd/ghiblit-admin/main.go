package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/billing"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/cache"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/config"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/database"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/env"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "ghiblit-admin",
		Short:   "Operator commands for the Ghiblit backend",
		Version: Version,
	}

	rootCmd.AddCommand(seedPackagesCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads the configuration and opens the database the way the server does.
func bootstrap() (*config.Config, *gorm.DB, error) {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	database.SetupDatabase()
	return cfg, database.GetDB(), nil
}

func billingService(cfg *config.Config, db *gorm.DB) *billing.Service {
	return billing.NewServiceFromDB(db, billing.NewDodoClient(cfg.Gateway), cache.NewProfileCache(cache.GetClient())).
		WithGatewayTimeout(cfg.Gateway.Timeout)
}
