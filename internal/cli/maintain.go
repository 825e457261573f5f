package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DestroyResult reports a destroyed session.
type DestroyResult struct {
	ID string `json:"id"`
}

func (r DestroyResult) String() string {
	return fmt.Sprintf("Destroyed session %s", r.ID)
}

// PurgeResult reports how many expired rows were removed.
type PurgeResult struct {
	Purged int64 `json:"purged"`
}

func (r PurgeResult) String() string {
	return fmt.Sprintf("Purged %d expired sessions", r.Purged)
}

// IDResult carries a freshly generated id.
type IDResult struct {
	ID string `json:"id"`
}

func (r IDResult) String() string {
	return r.ID
}

// NewDestroyCommand creates the destroy command.
func NewDestroyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "destroy <id>",
		Short:         "Delete a session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			st, cfg, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			l, err := rootOpts.openSession(cmd, st, cfg)
			if err != nil {
				return err
			}
			defer l.Close()

			out := newFormatter(rootOpts, cmd)
			if !l.Destroy(cmd.Context(), id) {
				return out.Fail(CodeWriteFailed, fmt.Sprintf("destroy %s failed", id), nil)
			}
			return out.Success(DestroyResult{ID: id})
		},
	}
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Physically delete expired sessions",
		Long: `Physically delete expired session rows.

Expired rows are already invisible to reads; purge reclaims their space.
Run it periodically, e.g. from cron.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.Purge(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to purge", err)
			}
			return newFormatter(rootOpts, cmd).Success(PurgeResult{Purged: n})
		},
	}
}

// NewNewCommand creates the new command.
func NewNewCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "new",
		Short:         "Print a fresh random session id",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newFormatter(rootOpts, cmd).Success(IDResult{ID: rootOpts.IDs.Generate()})
		},
	}
}
