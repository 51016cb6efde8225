package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"brokerhub/core/internal/cache"
	"brokerhub/core/internal/storage"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List stored keys in the namespace (--all for every key)",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		ns := flagNamespace
		if all {
			ns = ""
		}
		return runKeys(cmd.OutOrStdout(), st, ns, flagOutput)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show the stored record for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		return runGet(cmd.OutOrStdout(), st, flagNamespace, args[0], flagOutput, time.Now())
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a key from the namespace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		c := cache.New[json.RawMessage](cache.Options{Namespace: flagNamespace, Store: st})
		if !c.Delete(args[0]) {
			return fmt.Errorf("key %q not found in %s", args[0], flagNamespace)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every key in the namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		before, err := storage.KeysWithPrefix(st, cache.KeyPrefix(flagNamespace))
		if err != nil {
			return err
		}
		cache.New[json.RawMessage](cache.Options{Namespace: flagNamespace, Store: st}).Clear()
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d keys from %s\n", len(before), flagNamespace)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired or unreadable records from the namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		n, err := cache.New[json.RawMessage](cache.Options{Namespace: flagNamespace, Store: st}).PurgeDurable()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d records from %s\n", n, flagNamespace)
		return nil
	},
}

func init() {
	keysCmd.Flags().Bool("all", false, "list keys of every namespace")
}

func runKeys(w io.Writer, st storage.Store, ns, format string) error {
	prefix := ""
	if ns != "" {
		prefix = cache.KeyPrefix(ns)
	}
	keys, err := storage.KeysWithPrefix(st, prefix)
	if err != nil {
		return err
	}
	if keys == nil {
		keys = []string{}
	}
	return render(w, format, keys)
}

// storedRecord is the view cachectl prints for one durable record.
type storedRecord struct {
	Key       string `json:"key" yaml:"key"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
	TTL       string `json:"ttl" yaml:"ttl"`
	Expired   bool   `json:"expired" yaml:"expired"`
	Value     any    `json:"value" yaml:"value"`
}

func runGet(w io.Writer, st storage.Store, ns, key, format string, now time.Time) error {
	full := key
	if ns != "" && !strings.HasPrefix(key, cache.KeyPrefix(ns)) {
		full = cache.KeyPrefix(ns) + key
	}
	raw, ok, err := st.GetItem(full)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key %q not found", full)
	}
	var rec struct {
		Value     any   `json:"value"`
		CreatedAt int64 `json:"created_at"`
		TTLMillis int64 `json:"ttl_ms"`
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return fmt.Errorf("decode %q: %w", full, err)
	}
	created := time.UnixMilli(rec.CreatedAt).UTC()
	out := storedRecord{
		Key:       full,
		CreatedAt: created.Format(time.RFC3339),
		TTL:       "none",
		Value:     rec.Value,
	}
	if rec.TTLMillis > 0 {
		ttl := time.Duration(rec.TTLMillis) * time.Millisecond
		out.TTL = ttl.String()
		out.Expired = now.Sub(created) > ttl
	}
	return render(w, format, out)
}
