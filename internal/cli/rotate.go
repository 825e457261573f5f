package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RotateOptions holds flags for the rotate command.
type RotateOptions struct {
	*RootOptions
	DeleteOld bool
}

// RotateResult reports a completed id rotation.
type RotateResult struct {
	OldID     string `json:"old_id"`
	NewID     string `json:"new_id"`
	DeleteOld bool   `json:"delete_old"`
}

func (r RotateResult) String() string {
	if r.DeleteOld {
		return fmt.Sprintf("Moved session %s to %s", r.OldID, r.NewID)
	}
	return fmt.Sprintf("Copied session %s to %s", r.OldID, r.NewID)
}

// NewRotateCommand creates the rotate command.
func NewRotateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RotateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rotate <old-id> [new-id]",
		Short: "Move a session to a new id",
		Long: `Move or copy a session to a new id.

Without --delete-old the old row is kept and both ids hold identical data
and expiry. When new-id is omitted a random one is generated.

Exit codes:
  0 - Rotation done
  1 - Rotation refused (e.g. new id already taken)
  2 - Command error

Examples:
  sessionstore rotate 3f2a... --delete-old
  sessionstore rotate 3f2a... 9b1c...`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			newID := ""
			if len(args) == 2 {
				newID = args[1]
			}
			return runRotate(opts, cmd, args[0], newID)
		},
	}

	cmd.Flags().BoolVar(&opts.DeleteOld, "delete-old", false, "remove the old id after moving")

	return cmd
}

func runRotate(opts *RotateOptions, cmd *cobra.Command, oldID, newID string) error {
	if newID == "" {
		newID = opts.IDs.Generate()
	}

	st, cfg, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	l, err := opts.openSession(cmd, st, cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	out := newFormatter(opts.RootOptions, cmd)
	if !l.RotateID(cmd.Context(), oldID, newID, opts.DeleteOld) {
		return out.Fail(CodeWriteFailed, fmt.Sprintf("rotate %s to %s failed", oldID, newID), nil)
	}

	return out.Success(RotateResult{OldID: oldID, NewID: newID, DeleteOld: opts.DeleteOld})
}
