package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crudkit/internal/domain"
	"crudkit/internal/domain/filter"
	"crudkit/internal/infrastructure/http/v1/dto"
)

// filterFlags collect the filter of read, count and pages.
type filterFlags struct {
	raw     map[string]string
	where   []string
	orWhere []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringToStringVarP(&f.raw, "filter", "f", nil, "column=value; text matches as substring, numbers exactly, null as IS NULL")
	cmd.Flags().StringArrayVar(&f.where, "where", nil, "column:op[:value] joined with AND (ops: eq neq gt gte lt lte like notLike isNull isNotNull)")
	cmd.Flags().StringArrayVar(&f.orWhere, "or-where", nil, "column:op[:value] joined with OR")
}

// build returns the --filter criteria (AND, sorted by column) followed by every
// --where and then every --or-where criterion.
func (f *filterFlags) build() (filter.QueryFilter, error) {
	raw := make(map[string]any, len(f.raw))
	for k, v := range f.raw {
		raw[k] = v
	}
	qf := filter.Create(raw, filter.And, nil)

	for _, spec := range f.where {
		c, err := parseCriterion(spec, filter.And)
		if err != nil {
			return qf, err
		}
		qf = qf.With(c)
	}
	for _, spec := range f.orWhere {
		c, err := parseCriterion(spec, filter.Or)
		if err != nil {
			return qf, err
		}
		qf = qf.With(c)
	}
	return qf, nil
}

// parseCriterion parses "column:op:value". The value may contain ':'.
func parseCriterion(spec string, combiner filter.Combiner) (filter.Criterion, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return filter.Criterion{}, fmt.Errorf("criterion %q: want column:op[:value]", spec)
	}
	op := filter.CompareType(parts[1])
	if !op.Valid() {
		return filter.Criterion{}, fmt.Errorf("criterion %q: unknown operator %q", spec, parts[1])
	}

	var value any
	switch {
	case op.Unary():
	case len(parts) == 3:
		value = parts[2]
	default:
		return filter.Criterion{}, fmt.Errorf("criterion %q: operator %s needs a value", spec, op)
	}
	return filter.NewCriterion(parts[0], op, value, combiner), nil
}

func newReadCmd() *cobra.Command {
	var (
		ff      filterFlags
		page    = domain.DefaultPage()
		orderBy string
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Print one page of products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := current.context(cmd.Context())

			qf, err := ff.build()
			if err != nil {
				return err
			}
			if page.OrderBy, err = domain.ParseSort(orderBy); err != nil {
				return err
			}

			result, err := current.products.Service.Read(ctx, qf, page)
			if err != nil {
				return err
			}
			total, err := result.TotalCount(ctx)
			if err != nil {
				return err
			}

			items := make([]dto.ProductResponse, len(result.Items))
			for i, p := range result.Items {
				items[i] = dto.FromProduct(p)
			}
			return printJSON(cmd, dto.ListResponse{
				Items:      items,
				TotalCount: total,
				Limit:      result.Limit,
				Offset:     result.Offset,
			})
		},
	}

	ff.register(cmd)
	cmd.Flags().IntVar(&page.Offset, "offset", page.Offset, "rows to skip")
	cmd.Flags().IntVar(&page.Limit, "limit", page.Limit, "rows to return")
	cmd.Flags().StringVar(&orderBy, "order-by", "", `sort keys, e.g. "name,-price"`)
	return cmd
}

func newCountCmd() *cobra.Command {
	var ff filterFlags

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of matching products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			qf, err := ff.build()
			if err != nil {
				return err
			}
			n, err := current.products.Service.Count(current.context(cmd.Context()), qf)
			if err != nil {
				return err
			}
			return printJSON(cmd, dto.CountResponse{Count: n})
		},
	}

	ff.register(cmd)
	return cmd
}

func newPagesCmd() *cobra.Command {
	var (
		ff      filterFlags
		perPage int
	)

	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Print how many pages of --per-page products match",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			qf, err := ff.build()
			if err != nil {
				return err
			}
			n, err := current.products.Service.PageCount(current.context(cmd.Context()), qf, perPage)
			if err != nil {
				return err
			}
			return printJSON(cmd, dto.PagesResponse{Pages: n, PerPage: perPage})
		},
	}

	ff.register(cmd)
	cmd.Flags().IntVar(&perPage, "per-page", 10, "page size")
	return cmd
}
