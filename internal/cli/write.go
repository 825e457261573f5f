package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sessionstore/internal/payload"
)

// WriteResult reports a completed put, set or unset.
type WriteResult struct {
	ID     string `json:"id"`
	Fields int    `json:"fields"`
}

func (r WriteResult) String() string {
	return fmt.Sprintf("Wrote session %s (%d top-level fields)", r.ID, r.Fields)
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <id> <json-object>",
		Short: "Replace a session payload",
		Long: `Replace the payload of a session with a JSON object.

The write goes through the session lifecycle: the current payload is read
under the write lock and the new one is merged against it, so fields a
concurrent writer adds are kept.

Examples:
  sessionstore put 3f2a... '{"user":{"id":42},"cart":[]}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := payload.JSONCodec{}.Decode([]byte(args[1]))
			if err != nil {
				return WrapExitError(ExitCommandError, "payload must be a JSON object", err)
			}
			return mutate(rootOpts, cmd, args[0], func(payload.Map) (payload.Map, error) {
				return next, nil
			})
		},
	}
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <id> <field> <json-value>",
		Short: "Set one field of a session payload",
		Long: `Set a single field of a session payload, leaving every other field alone.

Field paths are dotted; intermediate objects are created as needed.

Examples:
  sessionstore set 3f2a... user.name '"Ada"'
  sessionstore set 3f2a... cart '["apple", 2]'`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := splitField(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid field", err)
			}
			v, err := payload.FromJSON([]byte(args[2]))
			if err != nil {
				return WrapExitError(ExitCommandError, "value must be JSON", err)
			}
			return mutate(rootOpts, cmd, args[0], func(m payload.Map) (payload.Map, error) {
				setField(m, path, v)
				return m, nil
			})
		},
	}
}

// NewUnsetCommand creates the unset command.
func NewUnsetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <id> <field>",
		Short: "Remove one field from a session payload",
		Long: `Remove a single field from a session payload.

Examples:
  sessionstore unset 3f2a... user.name`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := splitField(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid field", err)
			}
			return mutate(rootOpts, cmd, args[0], func(m payload.Map) (payload.Map, error) {
				if !unsetField(m, path) {
					return nil, fmt.Errorf("field %s not set", args[1])
				}
				return m, nil
			})
		},
	}
}

// mutate runs one read-modify-write span for id.
func mutate(opts *RootOptions, cmd *cobra.Command, id string, fn func(payload.Map) (payload.Map, error)) error {
	ctx := cmd.Context()

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

	out := newFormatter(opts, cmd)

	data, err := l.Read(ctx, id, true)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	current, err := payload.JSONCodec{}.Decode(data)
	if err != nil {
		opts.logger().Warn("stored payload is not a JSON object, starting empty", "id", id, "error", err)
		current = payload.Map{}
	}

	next, err := fn(current)
	if err != nil {
		return out.Fail(CodeInvalidInput, err.Error(), nil)
	}

	encoded, err := payload.JSONCodec{}.Encode(next)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode payload", err)
	}

	if !l.Write(ctx, id, encoded) {
		return out.Fail(CodeWriteFailed, fmt.Sprintf("write to session %s failed", id), nil)
	}
	out.VerboseLog("wrote %d bytes to %s", len(encoded), id)

	return out.Success(WriteResult{ID: id, Fields: len(next)})
}
