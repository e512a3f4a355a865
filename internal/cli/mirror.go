package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/optisync/internal/entity"
	"github.com/roach88/optisync/internal/mirrordb"
)

// MirrorOptions holds flags for the mirror command.
type MirrorOptions struct {
	*RootOptions
	queryFlags
	Database string
}

// MirrorState is the JSON form of mirrordb.State.
type MirrorState struct {
	Version uint64     `json:"version"`
	SavedAt *time.Time `json:"saved_at,omitempty"`
	Count   int        `json:"count"`
}

// MirrorOutput is the JSON payload of the mirror command.
type MirrorOutput struct {
	State    MirrorState     `json:"state"`
	Entities []entity.Entity `json:"entities"`
	Meta     entity.ListMeta `json:"meta"`
}

func mirrorState(s mirrordb.State) MirrorState {
	ms := MirrorState{Version: s.Version, Count: s.Count}
	if !s.SavedAt.IsZero() {
		t := s.SavedAt
		ms.SavedAt = &t
	}
	return ms
}

// NewMirrorCommand creates the mirror command.
func NewMirrorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MirrorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Print the persisted mirror",
		Long: `Print the entities saved in the SQLite mirror without contacting the remote.

The query flags filter, sort and page the saved entities the same way the
remote does.

Example:
  optisync mirror --db ./optisync.db
  optisync mirror --config optisync.yaml --search milk --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite mirror (overrides config)")
	opts.register(cmd)

	return cmd
}

func runMirror(opts *MirrorOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	path := cfg.Database
	if opts.Database != "" {
		path = opts.Database
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no database configured: use --db or database")
	}
	// Opening creates the file; a missing mirror is an error here.
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	db, err := mirrordb.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	state, err := db.State(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read mirror state", err)
	}
	res, err := db.Query(ctx, opts.query(cmd))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read mirror", err)
	}
	formatter.VerboseLog("read %d of %d entities from %s", len(res.Items), res.Meta.Total, path)

	out := MirrorOutput{State: mirrorState(state), Entities: res.Items, Meta: res.Meta}
	if formatter.IsJSON() {
		return formatter.Success(out)
	}

	if out.State.SavedAt == nil {
		fmt.Fprintln(formatter.Writer, "Mirror is empty.")
		return nil
	}
	fmt.Fprintf(formatter.Writer, "version %d saved %s, %d entities\n\n",
		out.State.Version, out.State.SavedAt.Format(time.RFC3339), out.State.Count)
	writeEntities(formatter.Writer, out.Entities)
	if len(out.Entities) != out.Meta.Total {
		fmt.Fprintf(formatter.Writer, "\n%d of %d (offset %d)\n", len(out.Entities), out.Meta.Total, out.Meta.Offset)
	}
	return nil
}
