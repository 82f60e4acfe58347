package main

import (
	"errors"

	"github.com/spf13/cobra"

	"crudkit/internal/importer"
	"crudkit/internal/infrastructure/source"
)

func newImportCmd() *cobra.Command {
	var (
		opts      importer.Options
		delimiter string
	)

	cmd := &cobra.Command{
		Use:   "import SOURCE",
		Short: "Import products from a CSV file, file:// or s3:// URI",
		Long: `Import reads a header row and data rows and upserts one product per row.

Files ending in .gz or .zst are decompressed. Rows are numbered from 1 at the
first data row. Without --ignore-row-errors the first invalid row stops the run;
rows before it stay imported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := current.context(cmd.Context())
			opts.Source = args[0]

			delim := current.cfg.Import.Delimiter
			if cmd.Flags().Changed("delimiter") {
				d, err := importer.ParseDelimiter(delimiter)
				if err != nil {
					return err
				}
				delim = d
			}

			opener, err := source.NewOpener(current.cfg.S3)
			if err != nil {
				return err
			}
			rc, err := opener.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer rc.Close()

			rows, err := importer.NewCSVSource(rc, delim)
			if err != nil {
				return err
			}

			res, err := current.products.Importer.Import(ctx, rows, opts)
			if res != nil {
				if perr := printJSON(cmd, res); perr != nil {
					return errors.Join(err, perr)
				}
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.KeyField, "key-field", "k", "", "column matching existing products (e.g. sku)")
	f.BoolVar(&opts.UpdateIfFound, "update", false, "update products matched by --key-field instead of skipping them")
	f.BoolVar(&opts.IgnoreRowErrors, "ignore-row-errors", false, "record invalid rows and continue")
	f.BoolVar(&opts.DryRun, "dry-run", false, "validate every row without storing anything")
	f.StringVarP(&delimiter, "delimiter", "d", ",", `field delimiter; "tab" for tabs`)
	return cmd
}
