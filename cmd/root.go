package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxagent/internal/config"
	"github.com/teemow/inboxagent/internal/logging"
)

// rootCmd represents the base command for the inboxagent application
var rootCmd = &cobra.Command{
	Use:   "inboxagent",
	Short: "An LLM assistant that works through your Gmail inbox",
	Long: `inboxagent runs a Claude model in a tool loop over your mailbox. The model
searches, reads, labels, archives and drafts mail through the Gmail API, and
selects and acts on threads in an open webmail tab through the DOM bridge.

It can run as:
  - An interactive chat (default)
  - A one-shot command (run)
  - An HTTP API with a progress event stream (serve)
  - An MCP server exposing the tool catalog (mcp)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadSettings()
	},
}

// version will be set by main
var version = "dev"

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxagent version %s\n" .Version}}`)

	// If no subcommand is provided, start the chat
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "chat")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadSettings reads the config file and sets up the process logger. Logs go
// to stderr so that stdout stays usable for chat output and MCP stdio.
func loadSettings() error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", fmt.Sprintf("Config file (default %s)", config.DefaultPath()))
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides log.level)")

	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newPromptsCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
