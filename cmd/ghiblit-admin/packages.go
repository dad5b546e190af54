package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/billing"
)

func seedPackagesCmd() *cobra.Command {
	var (
		file    string
		replace bool
	)
	cmd := &cobra.Command{
		Use:   "seed-packages",
		Short: "Create or update pricing packages from a YAML file",
		Long: `Create or update pricing packages from a YAML file.

Packages are matched by name and region. Packages referenced by orders keep
their price and credits. With --replace, active packages missing from the file
are deactivated.

Example:
  ghiblit-admin seed-packages --file packages.yaml --replace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			pkgs, err := billing.LoadPackages(f)
			if err != nil {
				return err
			}

			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			res, err := billingService(cfg, db).SeedPackages(cmd.Context(), pkgs, replace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d, locked %d, deactivated %d\n",
				res.Created, res.Updated, res.Locked, res.Deactivated)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "packages.yaml", "YAML file with a top-level packages list")
	cmd.Flags().BoolVar(&replace, "replace", false, "deactivate active packages missing from the file")
	return cmd
}
