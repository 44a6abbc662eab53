// Package cli implements the recallr commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/recallrai/recallrai-go/client"
	"github.com/recallrai/recallrai-go/config"
)

// app holds the state shared by every command of one invocation.
type app struct {
	configPath string
	envFile    string
	apiKey     string
	projectID  string
	baseURL    string
	timeout    time.Duration
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
	client *client.Client
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "recallr",
		Short:        "Work with RecallrAI users, sessions, memories and merge conflicts",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", config.DefaultPath(), "Config file path")
	pf.StringVar(&a.envFile, "env-file", ".env", "Dotenv file loaded before reading RECALLRAI_* variables")
	pf.StringVar(&a.apiKey, "api-key", "", "API key (overrides config and $RECALLRAI_API_KEY)")
	pf.StringVar(&a.projectID, "project-id", "", "Project ID (overrides config and $RECALLRAI_PROJECT_ID)")
	pf.StringVar(&a.baseURL, "base-url", "", "API base URL")
	pf.DurationVar(&a.timeout, "timeout", 0, "Request timeout, e.g. 30s")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newUserCmd(a),
		newSessionCmd(a),
		newMemoryCmd(a),
		newConflictCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup resolves configuration (file < env < flags) and builds the logger.
// The client itself is built on first use so `version` works unconfigured.
func (a *app) setup() error {
	cfg, err := config.FromEnv(a.configPath, a.envFile)
	if err != nil {
		return err
	}
	if a.apiKey != "" {
		cfg.APIKey = a.apiKey
	}
	if a.projectID != "" {
		cfg.ProjectID = a.projectID
	}
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	if a.timeout > 0 {
		cfg.Timeout = a.timeout.String()
	}
	a.cfg = cfg

	zc := zap.NewProductionConfig()
	if a.verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else if cfg.Logging.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		zc.Level = lvl
	}
	a.logger, err = zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func (a *app) getClient() (*client.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	c, err := a.cfg.NewClient(a.logger)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

func (a *app) getUser(cmd *cobra.Command, userID string) (*client.User, error) {
	c, err := a.getClient()
	if err != nil {
		return nil, err
	}
	return c.GetUser(cmd.Context(), userID)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// pageOutput is the printed form of one listing page.
type pageOutput struct {
	Items   any  `json:"items"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
	Offset  int  `json:"offset"`
}

// parseMetadata decodes a JSON object flag. Empty input yields nil.
func parseMetadata(flag, raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("--%s must be a JSON object: %w", flag, err)
	}
	return m, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the SDK version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "recallr %s\n", client.Version)
			return err
		},
	}
}
