package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// InitResult reports the database prepared by init.
type InitResult struct {
	Database string `json:"database"`
	Table    string `json:"table"`
	Blobs    string `json:"blobs"`
}

func (r InitResult) String() string {
	return fmt.Sprintf("Initialized %s (table %s, %s blobs)", r.Database, r.Table, r.Blobs)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the session database",
		Long: `Create the session table if it does not exist and apply pending migrations.

Safe to run repeatedly.

Examples:
  sessionstore init --db ./sessions.db
  sessionstore init -c sessionstore.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			return newFormatter(rootOpts, cmd).Success(InitResult{
				Database: cfg.Database.Path,
				Table:    st.Table(),
				Blobs:    st.Blobs().Name(),
			})
		},
	}
}
