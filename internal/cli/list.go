package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/optisync/internal/config"
	"github.com/roach88/optisync/internal/engine"
	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/mirrordb"
	"github.com/roach88/optisync/internal/remote/httpremote"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	queryFlags
	Remote   string
	Database string
}

// queryFlags are the list query flags shared by list and mirror.
type queryFlags struct {
	Active bool
	Search string
	Sort   string
	Limit  int
	Offset int
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.Active, "active", false, "only entities with this active flag")
	cmd.Flags().StringVar(&f.Search, "search", "", "caption substring")
	cmd.Flags().StringVar(&f.Sort, "sort", "", "sort key: order, -order, caption or created")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "page size (0 for no limit)")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "page offset")
}

// query builds the list query from the flags. --active only filters when
// it was given explicitly.
func (f *queryFlags) query(cmd *cobra.Command) entity.ListQuery {
	q := entity.ListQuery{
		Limit:  f.Limit,
		Offset: f.Offset,
		Search: f.Search,
		Sort:   f.Sort,
	}
	if cmd.Flags().Changed("active") {
		active := f.Active
		q.Active = &active
	}
	return q
}

// ListOutput is the JSON payload of the list command.
type ListOutput struct {
	Items    []entity.Entity `json:"items"`
	Meta     entity.ListMeta `json:"meta"`
	Mirrored *MirrorState    `json:"mirrored,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch a page of entities from the remote",
		Long: `Fetch a page of entities from the HTTP remote and merge it into the mirror.

When a database is configured the saved mirror is loaded first and the
merged result is written back, so later runs start from the last known
state even without the server.

Example:
  optisync list --remote https://api.example.com --limit 20
  optisync list --config optisync.yaml --active=false --sort=-order`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Remote, "remote", "", "base URL of the remote (overrides config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite mirror (overrides config)")
	opts.register(cmd)

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Remote != "" {
		cfg.RemoteURL = opts.Remote
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if cfg.RemoteURL == "" {
		return NewExitError(ExitCommandError, "no remote configured: use --remote, remote_url or "+config.EnvRemote)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	engineOpts := []engine.Option{
		engine.WithTTL(cfg.TTL),
		engine.WithLogger(logger),
	}

	var db *mirrordb.DB
	if cfg.Database != "" {
		db, err = mirrordb.Open(cfg.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		st, err := db.LoadStore(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load mirror", err)
		}
		formatter.VerboseLog("loaded %d entities from %s", st.Len(), cfg.Database)
		engineOpts = append(engineOpts, engine.WithStore(st))
	}

	eng := engine.New(newRemoteClient(cfg, logger), engineOpts...)
	defer eng.Close()

	res, err := eng.FetchList(ctx, opts.query(cmd))
	if err != nil {
		if formatter.IsJSON() {
			_ = formatter.Error(ErrCodeRemote, err.Error(), nil)
		}
		return WrapExitError(ExitFailure, "list failed", err)
	}

	out := ListOutput{Items: res.Items, Meta: res.Meta}
	if db != nil {
		state, err := mirrordb.NewPersister(db, eng.Store(), mirrordb.WithPersisterLogger(logger)).Flush(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to save mirror", err)
		}
		ms := mirrorState(state)
		out.Mirrored = &ms
	}

	if formatter.IsJSON() {
		return formatter.Success(out)
	}
	writeEntities(formatter.Writer, out.Items)
	fmt.Fprintf(formatter.Writer, "\n%d of %d (offset %d)\n", len(out.Items), out.Meta.Total, out.Meta.Offset)
	if out.Mirrored != nil {
		fmt.Fprintf(formatter.Writer, "mirror: %d entities saved\n", out.Mirrored.Count)
	}
	return nil
}

// newRemoteClient builds the HTTP remote. A configured secret adds
// self-issued bearer tokens.
func newRemoteClient(cfg config.Config, logger *slog.Logger) *httpremote.Client {
	client := httpremote.New(cfg.RemoteURL, nil)
	client.Logger = logger
	if cfg.TokenSecret != "" {
		client.Token = httpremote.NewJWTSource(cfg.TokenSecret, cfg.Subject, 0, nil).Token
	}
	return client
}

// writeEntities prints entities as an aligned table.
func writeEntities(w io.Writer, items []entity.Entity) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tID\tACTIVE\tCAPTION")
	for _, e := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Order, e.ID, strconv.FormatBool(e.Active), e.Caption)
	}
	_ = tw.Flush()
}
