package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/wafscope/internal/core/db"
	wslog "github.com/solatis/wafscope/internal/log"
)

// Version is the wafscope release.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
	logFile    string

	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "wafscope",
	Short:         "WAF rule dependency graphs and request evaluation",
	Long:          `wafscope builds label dependency graphs for WAF rule sets and steps requests through them rule by rule.`,
	Version:       Version,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		closer, err := wslog.Setup(wslog.Options{Level: logLevel, Format: logFormat, File: logFile})
		if err != nil {
			return err
		}
		logCloser = closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...), defaults to WS_DB_URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotated")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openDatabase opens --db-url (or WS_DB_URL).
func openDatabase() (*sqlx.DB, error) {
	url := dbURL
	if url == "" {
		url = os.Getenv("WS_DB_URL")
	}
	if url == "" {
		return nil, fmt.Errorf("--db-url required")
	}
	database, err := db.Open(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
