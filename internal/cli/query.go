package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slmyyl/xpert-framework/internal/dao"
	"github.com/slmyyl/xpert-framework/internal/entity"
	"github.com/slmyyl/xpert-framework/internal/query"
	"github.com/slmyyl/xpert-framework/internal/restriction"
)

// QueryOptions holds the flags shared by the query commands.
type QueryOptions struct {
	*RootOptions
	Entity string
	Where  string
	Order  string
	First  int
	Max    int
	Attrs  string
}

func addQueryFlags(cmd *cobra.Command, opts *QueryOptions, paging bool) {
	cmd.Flags().StringVarP(&opts.Entity, "entity", "e", "", "entity name (required)")
	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "restriction expression, e.g. \"age >= 18 and name like 'A%'\"")
	_ = cmd.MarkFlagRequired("entity")
	if !paging {
		return
	}
	cmd.Flags().StringVar(&opts.Order, "order", "", "order terms, e.g. \"age desc, name\"")
	cmd.Flags().IntVar(&opts.First, "first", 0, "rows to skip")
	cmd.Flags().IntVar(&opts.Max, "max", -1, "maximum rows (-1 for no limit)")
	cmd.Flags().StringVar(&opts.Attrs, "attrs", "", "comma-separated attribute paths to project")
}

// builder turns the flags into a query builder.
func (o *QueryOptions) builder() (*query.Builder, error) {
	b := query.New()
	if o.Where != "" {
		rs, err := restriction.Parse(o.Where)
		if err != nil {
			return nil, err
		}
		b.Where(rs...)
	}
	if o.Order != "" {
		b.OrderBy(o.Order)
	}
	if o.First > 0 {
		b.First(o.First)
	}
	if o.Max >= 0 {
		b.Max(o.Max)
	}
	if o.Attrs != "" {
		b.Attributes(o.Attrs)
	}
	return b, nil
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities matching a filter",
		Long: `List rows of an entity, optionally filtered, ordered, paged and projected.

Example:
  xpert list -e Person --where "age = 30" --order "name"
  xpert list -e Person --attrs "name, address.city" --max 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session, f *OutputFormatter) error {
				return runList(ctx, s, f, opts)
			})
		},
	}
	addQueryFlags(cmd, opts, true)
	return cmd
}

func runList(ctx context.Context, s *session, f *OutputFormatter, opts *QueryOptions) error {
	d, err := s.dao(opts.Entity)
	if err != nil {
		return err
	}
	b, err := opts.builder()
	if err != nil {
		return err
	}

	if opts.Attrs != "" {
		tuples, err := d.ListAttributes(ctx, b)
		if err != nil {
			return err
		}
		f.VerboseLog("%d tuple(s)", len(tuples))
		return f.Lines(tupleLines(tuples), tuples)
	}

	records, err := d.List(ctx, b)
	if err != nil {
		return err
	}
	f.VerboseLog("%d %s row(s)", len(records), opts.Entity)
	return f.Lines(recordLines(d.Descriptor(), records), records)
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "count",
		Short:         "Count entities matching a filter",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session, f *OutputFormatter) error {
				d, err := s.dao(opts.Entity)
				if err != nil {
					return err
				}
				b, err := opts.builder()
				if err != nil {
					return err
				}
				n, err := d.Count(ctx, b)
				if err != nil {
					return err
				}
				return f.Success(n)
			})
		},
	}
	addQueryFlags(cmd, opts, false)
	return cmd
}

// NewUniqueCommand creates the unique command.
func NewUniqueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "unique",
		Short: "Fetch the single entity matching a filter",
		Long: `Fetch the single row matching a filter. No match prints nothing;
more than one match fails with E012.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session, f *OutputFormatter) error {
				d, err := s.dao(opts.Entity)
				if err != nil {
					return err
				}
				b, err := opts.builder()
				if err != nil {
					return err
				}
				rec, err := d.Unique(ctx, b)
				if err != nil {
					return err
				}
				if rec == nil {
					return f.Lines(nil, nil)
				}
				return f.Lines(recordLines(d.Descriptor(), []*entity.Record{rec}), rec)
			})
		},
	}
	addQueryFlags(cmd, opts, false)
	return cmd
}

func recordLines(desc *entity.Descriptor, records []*entity.Record) []string {
	attrs := desc.Attrs()
	lines := make([]string, len(records))
	for i, rec := range records {
		parts := make([]string, len(attrs))
		for j, attr := range attrs {
			parts[j] = fmt.Sprintf("%s=%s", attr, formatValue((*rec)[attr]))
		}
		lines[i] = strings.Join(parts, " ")
	}
	return lines
}

func tupleLines(tuples []dao.Tuple) []string {
	lines := make([]string, len(tuples))
	for i, t := range tuples {
		parts := make([]string, len(t))
		for j, v := range t {
			parts[j] = formatValue(v)
		}
		lines[i] = strings.Join(parts, "\t")
	}
	return lines
}
