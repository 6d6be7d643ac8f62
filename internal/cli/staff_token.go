package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/assetflow/handover-service/internal/auth"
	"github.com/assetflow/handover-service/internal/clock"
	"github.com/assetflow/handover-service/internal/domain"
)

// StaffTokenOptions holds flags for the staff-token command.
type StaffTokenOptions struct {
	*RootOptions
	SubjectID string
	Role      string
}

// NewStaffTokenCommand creates a command that mints staff bearer tokens.
// Staff identities live outside this service, so operators issue tokens here.
func NewStaffTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StaffTokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "staff-token",
		Short: "Issue a bearer token for a staff member",
		Example: `  handover staff-token --id tech-42 --role TECHNICIAN
  handover staff-token --id audit-7 --role AUDITOR`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			role := domain.StaffRole(opts.Role)
			if !role.Valid() {
				return fmt.Errorf("invalid role %q: must be ADMIN, TECHNICIAN or AUDITOR", opts.Role)
			}
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL(), clock.System())
			signed, meta, err := tokens.GenerateToken(opts.SubjectID, role)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, signed)
			fmt.Fprintf(out, "# expires %s\n", meta.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.SubjectID, "id", "", "staff member id (required)")
	cmd.Flags().StringVar(&opts.Role, "role", string(domain.StaffRoleTechnician), "staff role")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}
