package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slmyyl/xpert-framework/internal/dao"
	"github.com/slmyyl/xpert-framework/internal/entity"
)

// EntityOptions holds flags for the single-row commands.
type EntityOptions struct {
	*RootOptions
	Entity string
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EntityOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "find <id>",
		Short:         "Fetch one entity by identifier",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session, f *OutputFormatter) error {
				d, err := s.dao(opts.Entity)
				if err != nil {
					return err
				}
				id, err := parseID(d.Descriptor(), args[0])
				if err != nil {
					return err
				}
				rec, err := d.Find(ctx, id)
				if err != nil {
					return err
				}
				if rec == nil {
					return &dao.NotFoundError{Entity: opts.Entity, ID: id}
				}
				return f.Lines(recordLines(d.Descriptor(), []*entity.Record{rec}), rec)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Entity, "entity", "e", "", "entity name (required)")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EntityOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one entity by identifier",
		Long: `Delete one row by identifier. The delete and its audit entry are
written in one transaction.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session, f *OutputFormatter) error {
				d, err := s.dao(opts.Entity)
				if err != nil {
					return err
				}
				id, err := parseID(d.Descriptor(), args[0])
				if err != nil {
					return err
				}
				err = s.st.WithTx(ctx, nil, func(ctx context.Context) error {
					return d.Delete(ctx, id)
				})
				if err != nil {
					return err
				}
				if f.Format == "json" {
					return f.Success(map[string]any{"entity": opts.Entity, "id": id, "deleted": true})
				}
				return f.Success(fmt.Sprintf("deleted %s %v", opts.Entity, id))
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Entity, "entity", "e", "", "entity name (required)")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EntityOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "history [id]",
		Short:         "Show audit entries for an entity",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session, f *OutputFormatter) error {
				if s.recorder == nil {
					return commandErrorf(ErrCodeAuditOff, "auditing is disabled in the configuration")
				}
				if _, ok := s.reg.Lookup(opts.Entity); !ok {
					return commandErrorf(ErrCodeEntity, "unknown entity %q", opts.Entity)
				}
				var id string
				if len(args) == 1 {
					id = args[0]
				}
				entries, err := s.recorder.History(ctx, opts.Entity, id)
				if err != nil {
					return err
				}
				lines := make([]string, len(entries))
				for i, e := range entries {
					lines[i] = fmt.Sprintf("%s %-6s %s %s", e.RecordedAt.Format("2006-01-02T15:04:05Z07:00"), e.Operation, e.Entity, formatValue(e.EntityID))
				}
				return f.Lines(lines, entries)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Entity, "entity", "e", "", "entity name (required)")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}
