package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkvault/internal/config"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/mw"
)

// NewTokenCommand mints an identity token signed with LINKVAULT_JWT_SECRET.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <identity>",
		Short: "Issue an identity token",
		Long:  "Issue an HS256 token whose subject is the given identity, for scripts and local clients.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 {
				return fmt.Errorf("invalid ttl %s: must be positive", ttl)
			}

			now := time.Now()
			expires := now.Add(ttl)
			tok, err := mw.IssueToken([]byte(config.LoadJWTSecret()), args[0], jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expires),
			})
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			out := cmd.OutOrStdout()
			if rootOpts.JSON {
				return json.NewEncoder(out).Encode(map[string]string{
					"token":      tok,
					"identity":   args[0],
					"expires_at": expires.UTC().Format(time.RFC3339),
				})
			}
			_, err = fmt.Fprintln(out, tok)
			return err
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
