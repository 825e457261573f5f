package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sessionstore/internal/payload"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Raw bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print a live session payload",
		Long: `Print the payload stored for a session id.

Expired sessions are reported as missing even if the row has not been
purged yet. The payload is printed as canonical JSON; --raw prints the
stored bytes unchanged.

Exit codes:
  0 - Session found
  1 - No live session for the id
  2 - Command error

Examples:
  sessionstore get 3f2a... --db ./sessions.db
  sessionstore get 3f2a... --raw > session.bin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print stored bytes without decoding")

	return cmd
}

func runGet(opts *GetOptions, cmd *cobra.Command, id string) error {
	st, _, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	out := newFormatter(opts.RootOptions, cmd)

	rec, err := st.Get(cmd.Context(), id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}
	if rec == nil {
		return out.Fail(CodeNotFound, fmt.Sprintf("session %s not found", id), nil)
	}

	if opts.Raw {
		if _, err := cmd.OutOrStdout().Write(rec.Data); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		return nil
	}

	m, err := payload.JSONCodec{}.Decode(rec.Data)
	if err != nil {
		return out.Fail(CodeInvalidInput, "stored payload is not a JSON object", err.Error())
	}
	data, err := payload.JSONCodec{}.Encode(m)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode payload", err)
	}

	if opts.Format == "json" {
		return out.Success(json.RawMessage(data))
	}
	return out.Success(string(data))
}
