package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/solatis/wafscope/internal/core/auth"
	"github.com/solatis/wafscope/internal/core/config"
	"github.com/solatis/wafscope/internal/core/db"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Issue and revoke debugger API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue an API key for a workspace and print it once",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyCreate,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <api-key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, queries, err := openQueries()
		if err != nil {
			return err
		}
		defer database.Close()

		if err := queries.RevokeAPIKey(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd)
	apikeyCreateCmd.Flags().String("workspace", "", "workspace the key grants access to")
	apikeyCreateCmd.Flags().String("name", "", "label for the key")
	apikeyCreateCmd.Flags().String("secret-id", "", "HMAC secret to sign with (required when several are configured)")
	_ = apikeyCreateCmd.MarkFlagRequired("workspace")
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	workspace, _ := cmd.Flags().GetString("workspace")
	name, _ := cmd.Flags().GetString("name")
	secretID, _ := cmd.Flags().GetString("secret-id")

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	secretID, err = pickSecret(secrets, secretID)
	if err != nil {
		return err
	}

	key, hash, err := auth.GenerateAPIKey(secretID, secrets[secretID])
	if err != nil {
		return err
	}

	database, queries, err := openQueries()
	if err != nil {
		return err
	}
	defer database.Close()

	id, err := queries.InsertAPIKey(context.Background(), workspace, name, hash)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "api_key_id: %s\n", id)
	fmt.Fprintf(out, "api_key:    %s\n", key)
	return nil
}

// pickSecret resolves which configured secret signs a new key.
func pickSecret(secrets map[string][]byte, requested string) (string, error) {
	if requested != "" {
		if _, ok := secrets[requested]; !ok {
			return "", fmt.Errorf("secret_id %s is not configured", requested)
		}
		return requested, nil
	}
	switch len(secrets) {
	case 0:
		return "", fmt.Errorf("no HMAC secrets configured (set WS_HMAC_SECRET environment variable)")
	case 1:
		for id := range secrets {
			return id, nil
		}
	}
	ids := make([]string, 0, len(secrets))
	for id := range secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return "", fmt.Errorf("several HMAC secrets configured, choose one with --secret-id (%v)", ids)
}

// openQueries opens a migrated database with its named queries.
func openQueries() (closer interface{ Close() error }, queries *db.Queries, err error) {
	database, err := openDatabase()
	if err != nil {
		return nil, nil, err
	}
	if err := db.RequireMigrated(database); err != nil {
		database.Close()
		return nil, nil, err
	}
	queries, err = db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return database, queries, nil
}
