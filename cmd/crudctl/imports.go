package main

import (
	"errors"

	"github.com/spf13/cobra"

	"crudkit/internal/domain/catalogs/product"
)

func newImportsCmd() *cobra.Command {
	var (
		entity string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "imports",
		Short: "List recent import runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if current.journal == nil {
				return errors.New("the import journal needs a database; set CRUDKIT_DATABASE_URL")
			}
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			runs, err := current.journal.Recent(current.context(cmd.Context()), entity, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, runs)
		},
	}

	cmd.Flags().StringVar(&entity, "entity", product.EntityName, `entity name; "" lists all`)
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	return cmd
}
