// Command healpointctl is the operator CLI for schema migrations, seeding and
// slot previews against the HealPoint database.
package main

import (
	"fmt"
	"os"

	"github.com/healpoint/healpoint/libs/config"
	"github.com/spf13/cobra"
)

func main() {
	_ = config.LoadDotEnv()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "healpointctl",
		Short:         "HealPoint operator tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("database-url", config.String("DATABASE_URL", ""), "PostgreSQL connection string (DATABASE_URL)")

	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(slotsCmd())
	return root
}

func databaseURL(cmd *cobra.Command) (string, error) {
	url, _ := cmd.Flags().GetString("database-url")
	if url == "" {
		return "", fmt.Errorf("database url is required (--database-url or DATABASE_URL)")
	}
	return url, nil
}
