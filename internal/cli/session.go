package cli

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/slmyyl/xpert-framework/internal/audit"
	"github.com/slmyyl/xpert-framework/internal/config"
	"github.com/slmyyl/xpert-framework/internal/dao"
	"github.com/slmyyl/xpert-framework/internal/entity"
	"github.com/slmyyl/xpert-framework/internal/store"
)

// session is the state one command runs against: resolved configuration,
// an open store, the entity registry and, when auditing, the recorder.
type session struct {
	cfg      *config.Config
	st       *store.Store
	reg      *entity.Registry
	recorder *audit.SQLRecorder
	logger   *slog.Logger
}

// resolveConfig loads the config file (or defaults) and applies flag
// overrides.
func (o *RootOptions) resolveConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return nil, &commandError{code: ErrCodeConfig, err: err}
		}
		cfg = loaded
	}
	if o.Driver != "" {
		cfg.Driver = o.Driver
	}
	if o.Database != "" {
		cfg.DSN = o.Database
	}
	if o.Entities != "" {
		cfg.Entities = o.Entities
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, &commandError{code: ErrCodeConfig, err: err}
	}
	return cfg, nil
}

func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := opts.resolveConfig()
	if err != nil {
		return nil, err
	}

	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.Level(),
	})
	logger := slog.New(handler)

	logger.Debug("loading entities", "dir", cfg.Entities)
	descs, err := entity.LoadCUE(cfg.Entities)
	if err != nil {
		return nil, &commandError{code: ErrCodeEntities, err: err}
	}
	reg := entity.NewRegistry()
	if err := reg.Register(descs...); err != nil {
		return nil, &commandError{code: ErrCodeEntities, err: err}
	}
	if err := reg.Check(); err != nil {
		return nil, &commandError{code: ErrCodeEntities, err: err}
	}
	logger.Debug("entities loaded", "count", len(descs))

	logger.Debug("opening database", "driver", cfg.Driver)
	st, err := store.Open(ctx, store.Options{Driver: cfg.Driver, DSN: cfg.DSN})
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, st: st, reg: reg, logger: logger}
	if cfg.Audit || cfg.QueryAudit {
		if err := audit.EnsureSchema(ctx, st); err != nil {
			st.Close()
			return nil, err
		}
		s.recorder = audit.NewSQLRecorder(st)
	}
	return s, nil
}

func (s *session) Close() {
	if err := s.st.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// dao returns a record DAO for the named entity.
func (s *session) dao(name string) (*dao.DAO[entity.Record], error) {
	desc, ok := s.reg.Lookup(name)
	if !ok {
		return nil, commandErrorf(ErrCodeEntity, "unknown entity %q", name)
	}
	opts := []dao.Option{
		dao.WithLogger(s.logger),
		dao.WithAudit(s.cfg.Audit),
		dao.WithQueryAudit(s.cfg.QueryAudit),
	}
	if s.recorder != nil {
		opts = append(opts, dao.WithRecorder(s.recorder))
	}
	return dao.New[entity.Record](s.st, s.reg, entity.NewRecordMapper(desc), opts...)
}

// parseID converts a command-line identifier to the identifier's kind.
func parseID(desc *entity.Descriptor, raw string) (any, error) {
	if desc.ID.Kind != entity.KindInt {
		return raw, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, commandErrorf(ErrCodeIllegal, "%s identifier %q is not an integer", desc.Name, raw)
	}
	return n, nil
}

// withSession opens a session for cmd, runs fn and reports its error
// through the formatter.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session, f *OutputFormatter) error) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	if err := fn(ctx, s, formatter); err != nil {
		return formatter.Fail(err)
	}
	return nil
}
