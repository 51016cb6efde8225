package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"brokerhub/core/internal/cache"
	"brokerhub/core/internal/config"
	"brokerhub/core/internal/storage"
)

var (
	flagDriver    string
	flagPath      string
	flagNamespace string
	flagOutput    string
)

var rootCmd = &cobra.Command{
	Use:   "cachectl",
	Short: "Inspect and maintain the durable broker cache",
	Long: `cachectl works directly on the store the server mirrors its caches to.

Defaults come from the same environment (and .env file) as the server:
STORAGE_DRIVER, STORAGE_PATH and CACHE_NAMESPACE.

  keys    List stored keys
  get     Show one stored record
  delete  Remove one key
  clear   Remove every key in a namespace
  purge   Remove expired or unreadable records`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		cfg := config.Load()
		if !cmd.Flags().Changed("driver") {
			flagDriver = cfg.Storage.Driver
		}
		if !cmd.Flags().Changed("path") {
			flagPath = cfg.Storage.Path
		}
		if cmd.Flags().Changed("namespace") {
			flagNamespace = cache.NormalizeNamespace(flagNamespace)
		} else {
			flagNamespace = cache.NormalizeNamespace(cfg.Cache.Namespace + "/search")
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDriver, "driver", "", "storage driver (memory, file, sqlite)")
	pf.StringVar(&flagPath, "path", "", "storage path")
	pf.StringVarP(&flagNamespace, "namespace", "n", "", "cache namespace")
	pf.StringVarP(&flagOutput, "output", "o", "yaml", "output format (yaml, json)")

	rootCmd.AddCommand(keysCmd, getCmd, deleteCmd, clearCmd, purgeCmd)
}

func openStore() (storage.Store, error) {
	return storage.Open(flagDriver, flagPath)
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
