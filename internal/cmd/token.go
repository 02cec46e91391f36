package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/flightontime/flightontime/internal/core"
	"github.com/flightontime/flightontime/internal/core/token"
	"github.com/flightontime/flightontime/internal/observability"
	"github.com/flightontime/flightontime/internal/output"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint bearer tokens signed with the configured secret",
}

// issuedToken is the structured form printed by `token issue`.
type issuedToken struct {
	Token     string    `json:"token" yaml:"token"`
	Subject   string    `json:"subject" yaml:"subject"`
	Role      string    `json:"role,omitempty" yaml:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a bearer token for a subject",
	Example: `  flightontime token issue --subject ops@example.com --role ADMIN
  flightontime token issue --subject svc-stats --ttl 15m --output-format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration", err)
		}
		if err := cfg.ValidateAuth(); err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid auth configuration", err)
		}

		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		ttl := tokenTTL
		if ttl == 0 {
			ttl = cfg.Auth.TokenTTL
		}

		codec, err := token.NewCodec(token.Config{Secret: []byte(cfg.Auth.Secret)})
		if err != nil {
			return err
		}

		issued, err := issueToken(codec, tokenSubject, tokenRole, ttl)
		if err != nil {
			return err
		}

		return writeIssuedToken(cmd, format, issued)
	},
}

// issueToken mints a token and reads its claims back so the printed expiry
// is exactly what validators will enforce.
func issueToken(codec *token.Codec, subject, role string, ttl time.Duration) (issuedToken, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return issuedToken{}, fmt.Errorf("--subject is required")
	}
	role = strings.ToUpper(strings.TrimSpace(role))

	raw, err := codec.Issue(core.Principal{Subject: subject, Role: role}, ttl)
	if err != nil {
		return issuedToken{}, err
	}
	p, ok := codec.Validate(raw).Principal()
	if !ok {
		return issuedToken{}, fmt.Errorf("issued token failed validation")
	}
	return issuedToken{
		Token:     raw,
		Subject:   p.Subject,
		Role:      p.Role,
		ExpiresAt: p.ExpiresAt.UTC(),
	}, nil
}

func writeIssuedToken(cmd *cobra.Command, format output.Format, issued issuedToken) error {
	w := cmd.OutOrStdout()
	switch format {
	case output.FormatJSON:
		payload, err := json.MarshalIndent(issued, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	case output.FormatYAML:
		rendered, err := output.MarshalYAML(issued)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, rendered)
		return err
	default:
		_, err := fmt.Fprintln(w, issued.Token)
		return err
	}
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject (user id or email)")
	tokenIssueCmd.Flags().StringVar(&tokenRole, "role", core.RoleUser, "Role claim (USER or ADMIN)")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default auth.token_ttl)")
	tokenIssueCmd.Flags().String("output-format", "table", "Output format: table (raw token)|json|yaml")

	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}
