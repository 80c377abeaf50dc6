package cmd

import (
	"fmt"
	"time"

	"github.com/nijenhuis/api-guard/internal/config"
	"github.com/nijenhuis/api-guard/internal/logger"
	"github.com/nijenhuis/api-guard/internal/models"
	"github.com/nijenhuis/api-guard/internal/storage"
	"github.com/spf13/cobra"
)

var (
	keyName        string
	keyPermissions []string
	keyRateLimit   int
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new API key",
	RunE:  runKeysGenerate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored API keys",
	RunE:  runKeysList,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd, keysListCmd, keysRevokeCmd)

	keysGenerateCmd.Flags().StringVar(&keyName, "name", "", "key name (required)")
	keysGenerateCmd.Flags().StringSliceVar(&keyPermissions, "permissions", []string{"chat"}, "permissions (chat,health,config,admin)")
	keysGenerateCmd.Flags().IntVar(&keyRateLimit, "rate-limit", 0, "per-minute rate limit override (0 = global default)")
	keysGenerateCmd.MarkFlagRequired("name")
}

func openKeyStore() (*storage.KeyStore, error) {
	cfg, err := config.LoadOrCreate()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return storage.NewKeyStore(cfg.Storage.KeysDir, log), nil
}

func runKeysGenerate(cmd *cobra.Command, args []string) error {
	keys, err := openKeyStore()
	if err != nil {
		return err
	}

	permissions := make([]models.Permission, len(keyPermissions))
	for i, p := range keyPermissions {
		permissions[i] = models.Permission(p)
	}

	var override *int
	if keyRateLimit > 0 {
		override = &keyRateLimit
	}

	key, err := keys.Create(keyName, permissions, override)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	fmt.Printf("\n🔑 New API key: %s\n", key.Key)
	fmt.Println("   ⚠️  Store it now; it cannot be displayed again.")
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	keys, err := openKeyStore()
	if err != nil {
		return err
	}

	list := keys.List()
	if len(list) == 0 {
		fmt.Println("No API keys stored.")
		return nil
	}

	for _, k := range list {
		lastUsed := "never"
		if k.LastUsed != nil {
			lastUsed = time.Unix(*k.LastUsed, 0).Format("2006-01-02 15:04:05")
		}
		preview := k.Key
		if len(preview) > 12 {
			preview = preview[:8] + "..." + preview[len(preview)-4:]
		}
		fmt.Printf("%-16s  %-24s  perms=%v  used=%d  last=%s\n",
			preview, k.Name, k.Permissions, k.UsageCount, lastUsed)
	}
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	keys, err := openKeyStore()
	if err != nil {
		return err
	}

	if !keys.Revoke(args[0]) {
		return fmt.Errorf("key not found")
	}

	fmt.Println("✅ Key revoked.")
	return nil
}
