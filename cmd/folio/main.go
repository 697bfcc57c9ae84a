package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/careerledger/internal/codec"
	"github.com/jmerrifield20/careerledger/internal/identity"
	"github.com/jmerrifield20/careerledger/internal/registry/model"
	"github.com/jmerrifield20/careerledger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	registryURL string
	cfgFile     string
	outFormat   string
	timeout     time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "careerledger portfolio CLI",
	Long: `folio is the command-line interface for a careerledger registry.

It publishes portfolios, lists and searches them, and records review
decisions. Credentials come from ~/.folio/config.yaml:

  registry_url: http://localhost:8080
  token: <session token from the wallet gateway>
  account: 0xA11CE...   # development registries only`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.folio")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("folio")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if registryURL == "" {
			registryURL = viper.GetString("registry_url")
		}
		if registryURL == "" {
			registryURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.folio/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&registryURL, "registry", "", "registry URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&outFormat, "format", "text", "output format: text or json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().String("account", "", "acting account for development registries (X-Account)")
	rootCmd.PersistentFlags().String("token", "", "session token")
	_ = viper.BindPFlag("account", rootCmd.PersistentFlags().Lookup("account"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.AddCommand(publishCmd, listCmd, getCmd, approveCmd, rejectCmd,
		statsCmd, orphansCmd, journalCmd, payloadCmd, tokenCmd, versionCmd)
}

// newClient builds an SDK client from flags and config.
func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithHTTPClient(&http.Client{Timeout: timeout + 5*time.Second})}
	if tok := viper.GetString("token"); tok != "" {
		opts = append(opts, client.WithBearerToken(tok))
	}
	if acct := viper.GetString("account"); acct != "" {
		opts = append(opts, client.WithAccount(acct))
	}
	return client.New(registryURL, opts...)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── publish ──────────────────────────────────────────────────────────────────

var (
	pubDescription string
	pubSkills      []string
	pubLevel       string
)

var publishCmd = &cobra.Command{
	Use:   "publish <title>",
	Short: "Publish a new portfolio owned by the acting account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		p, err := c.Publish(ctx, client.Draft{
			Title:           args[0],
			Description:     pubDescription,
			Skills:          pubSkills,
			ExperienceLevel: pubLevel,
		})
		var apiErr *client.APIError
		if errors.Is(err, client.ErrOrphaned) && errors.As(err, &apiErr) {
			return fmt.Errorf("portfolio %s was stored but not indexed; run 'folio orphans --reindex'", apiErr.ID)
		}
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}

		if outFormat == "json" {
			return printJSON(cmd.OutOrStdout(), p)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Portfolio published\n\n")
		printPortfolio(cmd.OutOrStdout(), p)
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&pubDescription, "description", "", "portfolio description")
	publishCmd.Flags().StringSliceVar(&pubSkills, "skill", nil, "skill (repeatable or comma-separated)")
	publishCmd.Flags().StringVar(&pubLevel, "level", "", "experience level: Beginner, Intermediate, Advanced or Expert")
}

// ── list ─────────────────────────────────────────────────────────────────────

var (
	listQuery  string
	listLimit  int
	listOffset int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List portfolios, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		page, err := c.List(ctx, client.ListOptions{Query: listQuery, Limit: listLimit, Offset: listOffset})
		if err != nil {
			return fmt.Errorf("list: %w", err)
		}
		if outFormat == "json" {
			return printJSON(cmd.OutOrStdout(), page)
		}
		return printTable(cmd.OutOrStdout(), page.Portfolios, page.Total)
	},
}

func init() {
	listCmd.Flags().StringVarP(&listQuery, "query", "q", "", "case-insensitive search over title, description, skills and level")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "page size (server default 50)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "page offset")
}

// ── get ──────────────────────────────────────────────────────────────────────

type getRow struct {
	id     string
	result *client.Portfolio
	err    error
}

var getCmd = &cobra.Command{
	Use:   "get <id> [id] ...",
	Short: "Show one or more portfolios",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		// Fetch concurrently; rows keep input order.
		rows := make([]getRow, len(args))
		var g errgroup.Group
		g.SetLimit(8)
		for i, id := range args {
			g.Go(func() error {
				p, err := c.Get(ctx, id)
				rows[i] = getRow{id: id, result: p, err: err}
				return nil
			})
		}
		_ = g.Wait()

		out := cmd.OutOrStdout()
		if len(rows) == 1 {
			if rows[0].err != nil {
				return fmt.Errorf("get %s: %w", rows[0].id, rows[0].err)
			}
			if outFormat == "json" {
				return printJSON(out, rows[0].result)
			}
			printPortfolio(out, rows[0].result)
			return nil
		}

		if outFormat == "json" {
			type jsonRow struct {
				ID        string            `json:"id"`
				Portfolio *client.Portfolio `json:"portfolio,omitempty"`
				Error     string            `json:"error,omitempty"`
			}
			js := make([]jsonRow, len(rows))
			for i, r := range rows {
				js[i] = jsonRow{ID: r.id, Portfolio: r.result}
				if r.err != nil {
					js[i].Error = r.err.Error()
				}
			}
			return printJSON(out, js)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tOWNER\tTITLE\tERROR")
		for _, r := range rows {
			if r.err != nil {
				fmt.Fprintf(w, "%s\t\t\t\t%s\n", r.id, r.err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", r.id, r.result.Status, r.result.Owner, r.result.Title)
		}
		return w.Flush()
	},
}

// ── approve / reject ─────────────────────────────────────────────────────────

var approveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Mark a pending portfolio as verified",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(cmd, args[0], "approve")
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Mark a pending portfolio as rejected",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(cmd, args[0], "reject")
	},
}

func runReview(cmd *cobra.Command, id, action string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var p *client.Portfolio
	if action == "approve" {
		p, err = c.Approve(ctx, id)
	} else {
		p, err = c.Reject(ctx, id)
	}
	switch {
	case errors.Is(err, client.ErrForbidden):
		return fmt.Errorf("%s %s: the acting account may not review this portfolio", action, id)
	case errors.Is(err, client.ErrConflict):
		return fmt.Errorf("%s %s: portfolio is no longer pending", action, id)
	case err != nil:
		return fmt.Errorf("%s %s: %w", action, id, err)
	}

	if outFormat == "json" {
		return printJSON(cmd.OutOrStdout(), p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is now %s\n", p.ID, p.Status)
	return nil
}

// ── stats ────────────────────────────────────────────────────────────────────

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show portfolio counts by review status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		s, err := c.Stats(ctx)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		if outFormat == "json" {
			return printJSON(cmd.OutOrStdout(), s)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Total:\t%d\n", s.Total)
		fmt.Fprintf(w, "Pending:\t%d\n", s.Pending)
		fmt.Fprintf(w, "Verified:\t%d\n", s.Verified)
		fmt.Fprintf(w, "Rejected:\t%d\n", s.Rejected)
		return w.Flush()
	},
}

// ── orphans ──────────────────────────────────────────────────────────────────

var orphansReindex bool

var orphansCmd = &cobra.Command{
	Use:   "orphans [id] ...",
	Short: "List records stored but missing from the index, optionally reindexing them",
	Long: `orphans lists records whose publish wrote the record but failed to update
the index. With --reindex the given ids, or every orphan when none are
given, are appended to the index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		out := cmd.OutOrStdout()

		if orphansReindex {
			ids, err := c.Reindex(ctx, args...)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			if outFormat == "json" {
				return printJSON(out, ids)
			}
			fmt.Fprintf(out, "✓ reindexed %d portfolio(s)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		}

		ids, err := c.Orphans(ctx)
		if err != nil {
			return fmt.Errorf("orphans: %w", err)
		}
		if outFormat == "json" {
			return printJSON(out, ids)
		}
		if len(ids) == 0 {
			fmt.Fprintln(out, "no orphaned portfolios")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	},
}

func init() {
	orphansCmd.Flags().BoolVar(&orphansReindex, "reindex", false, "append the orphans to the index")
}

// ── journal ──────────────────────────────────────────────────────────────────

var (
	journalFrom  int
	journalLimit int
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show the audit journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		j, err := c.Journal(ctx, journalFrom, journalLimit)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		if outFormat == "json" {
			return printJSON(cmd.OutOrStdout(), j)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "entries: %d  root: %s\n\n", j.Length, j.Root)
		fmt.Fprintln(w, "IDX\tTIME\tACTION\tRECORD\tACTOR")
		for _, e := range j.Entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				e.Index, e.Timestamp.Format(time.RFC3339), e.Action, e.RecordID, e.Actor)
		}
		return w.Flush()
	},
}

var journalVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask the registry to verify the journal hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		ok, reason, err := c.VerifyJournal(ctx)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		if !ok {
			return fmt.Errorf("journal chain is broken: %s", reason)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ journal chain is intact")
		return nil
	},
}

func init() {
	journalCmd.Flags().IntVar(&journalFrom, "from", 0, "first entry index")
	journalCmd.Flags().IntVar(&journalLimit, "limit", 20, "maximum entries to show")
	journalCmd.AddCommand(journalVerifyCmd)
}

// ── payload ──────────────────────────────────────────────────────────────────

var (
	payloadPassphrase string
	payloadSalt       string
)

var payloadCmd = &cobra.Command{
	Use:   "payload <id>",
	Short: "Open the encrypted payload of a portfolio",
	Long: `Fetches a portfolio and decodes its data field back into the submitted draft.
Without --passphrase the payload is read as a placeholder (FHE- prefixed)
blob; with it, as a sealed box using the registry's passphrase and salt.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enc codec.Encrypter = codec.PlaceholderFHE{}
		if pass := viper.GetString("payload.passphrase"); pass != "" {
			box, err := codec.NewSealedBox(pass, viper.GetString("payload.salt"))
			if err != nil {
				return err
			}
			enc = box
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		p, err := c.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get %s: %w", args[0], err)
		}
		d, err := codec.OpenJSON[model.Draft](enc, p.Data)
		if err != nil {
			return fmt.Errorf("open payload of %s: %w", p.ID, err)
		}
		if outFormat == "json" {
			return printJSON(cmd.OutOrStdout(), d)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "  Title:       %s\n", d.Title)
		fmt.Fprintf(out, "  Description: %s\n", d.Description)
		fmt.Fprintf(out, "  Skills:      %s\n", strings.Join(d.Skills, ", "))
		fmt.Fprintf(out, "  Level:       %s\n", d.ExperienceLevel)
		return nil
	},
}

func init() {
	payloadCmd.Flags().StringVar(&payloadPassphrase, "passphrase", "", "sealed-box passphrase (encryption.passphrase of the registry)")
	payloadCmd.Flags().StringVar(&payloadSalt, "salt", "", "sealed-box salt (encryption.salt of the registry)")
	_ = viper.BindPFlag("payload.passphrase", payloadCmd.Flags().Lookup("passphrase"))
	_ = viper.BindPFlag("payload.salt", payloadCmd.Flags().Lookup("salt"))
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenSecret string
	tokenIssuer string
	tokenChain  string
	tokenTTL    time.Duration
)

// tokenCmd signs a session token locally with the registry's shared secret.
// It stands in for the wallet gateway on development deployments.
var tokenCmd = &cobra.Command{
	Use:   "token <address>",
	Short: "Issue a development session token for a wallet address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := viper.GetString("jwt_secret")
		if secret == "" {
			return errors.New("token: --secret (or FOLIO_JWT_SECRET) is required")
		}
		tokens, err := identity.NewAccountTokens([]byte(secret), viper.GetString("jwt_issuer"), tokenTTL)
		if err != nil {
			return err
		}
		signed, err := tokens.Issue(args[0], tokenChain)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "shared HMAC secret (auth.jwt_secret of the registry)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "", "issuer claim (auth.issuer of the registry)")
	tokenCmd.Flags().StringVar(&tokenChain, "chain", "", "chain claim, e.g. fhenix-helium")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")
	_ = viper.BindPFlag("jwt_secret", tokenCmd.Flags().Lookup("secret"))
	_ = viper.BindPFlag("jwt_issuer", tokenCmd.Flags().Lookup("issuer"))
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the folio CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "folio %s (careerledger)\n", version)
	},
}

// ── output helpers ───────────────────────────────────────────────────────────

func printPortfolio(w io.Writer, p *client.Portfolio) {
	fmt.Fprintf(w, "  ID:         %s\n", p.ID)
	fmt.Fprintf(w, "  Title:      %s\n", p.Title)
	if p.Description != "" {
		fmt.Fprintf(w, "  About:      %s\n", p.Description)
	}
	if len(p.Skills) > 0 {
		fmt.Fprintf(w, "  Skills:     %s\n", strings.Join(p.Skills, ", "))
	}
	fmt.Fprintf(w, "  Level:      %s\n", p.ExperienceLevel)
	fmt.Fprintf(w, "  Owner:      %s\n", p.Owner)
	fmt.Fprintf(w, "  Status:     %s\n", p.Status)
	fmt.Fprintf(w, "  Published:  %s\n", p.CreatedAt().UTC().Format(time.RFC3339))
}

func printTable(out io.Writer, ps []client.Portfolio, total int) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tLEVEL\tOWNER\tTITLE")
	for _, p := range ps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Status, p.ExperienceLevel, shortAccount(p.Owner), p.Title)
	}
	fmt.Fprintf(w, "\n%d of %d\n", len(ps), total)
	return w.Flush()
}

// shortAccount abbreviates long wallet addresses for table output.
func shortAccount(a string) string {
	if len(a) <= 14 {
		return a
	}
	return a[:8] + "…" + a[len(a)-4:]
}
