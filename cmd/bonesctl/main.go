// Command bonesctl is a small console for exercising a bones-api entity
// store: load a config file, seed tables from fixture data, and run
// condition queries against the in-memory store. Structured the way the
// teacher's cmd/bd root command assembles subcommands under a cobra root,
// with flags bound through viper.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/beccauwu/bones-api/internal/adapter/memory"
	bonesconfig "github.com/beccauwu/bones-api/internal/config"
	"github.com/beccauwu/bones-api/internal/logging"
	"github.com/beccauwu/bones-api/internal/query"
	"github.com/beccauwu/bones-api/internal/relate"
	"github.com/beccauwu/bones-api/internal/repo"
	"github.com/beccauwu/bones-api/internal/schema"
	"github.com/beccauwu/bones-api/internal/store"
	"github.com/beccauwu/bones-api/internal/txn"
	"github.com/beccauwu/bones-api/internal/value"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("bonesctl: fatal", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bonesctl",
		Short: "Inspect and query a bones-api entity store",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a bonesctl config file (toml or yaml)")
	root.AddCommand(newQueryCmd(), newSeedCmd())
	return root
}

// env wires up an in-memory store with a tiny demo schema (author/post,
// mirroring the query package's test fixtures) so the CLI has something
// concrete to operate on without requiring a pre-populated database.
type env struct {
	registry *schema.Registry
	store    *store.Store
	resolver *relate.Resolver
	repo     *repo.Repository
}

func newDemoEnv() (*env, error) {
	registry := schema.NewRegistry()
	if err := registry.Register(&schema.Metadata{
		EntityType: "Author",
		TableName:  "authors",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "name", Type: schema.TypeText, Constraints: schema.Constraints{Required: true}},
		},
	}); err != nil {
		return nil, err
	}
	if err := registry.Register(&schema.Metadata{
		EntityType: "Post",
		TableName:  "posts",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "title", Type: schema.TypeText, Constraints: schema.Constraints{Required: true}},
			{Name: "views", Type: schema.TypeInt},
			{Name: "author", Type: schema.TypeRef, RefType: "Author"},
		},
	}); err != nil {
		return nil, err
	}

	st := store.New(registry)
	resolver := relate.New(registry, st)
	backend := memory.New(st, registry)
	coord := txn.NewCoordinator(st, backend, logging.New("bonesctl"))
	r := repo.New(registry, st, resolver, coord, backend)

	return &env{registry: registry, store: st, resolver: resolver, repo: r}, nil
}

func newSeedCmd() *cobra.Command {
	var sourcePath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load fixture rows from a populate.source file into a fresh in-memory store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sourcePath == "" {
				return fmt.Errorf("--source is required")
			}
			data, err := bonesconfig.LoadSeedData(sourcePath)
			if err != nil {
				return err
			}
			e, err := newDemoEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			for table, rows := range data {
				entityType := entityTypeForTable(e.registry, table)
				if entityType == "" {
					slog.Warn("bonesctl: skipping unknown seed table", "table", table)
					continue
				}
				for _, row := range rows {
					id, err := e.repo.StoreFromJSON(ctx, entityType, "", row)
					if err != nil {
						return err
					}
					slog.Info("bonesctl: seeded row", "table", table, "id", id)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sourcePath, "source", "", "path to a .toml or .yaml fixture file")
	return cmd
}

func entityTypeForTable(registry *schema.Registry, table string) string {
	for _, t := range registry.Types() {
		meta, _ := registry.ByType(t)
		if meta.TableName == table {
			return t
		}
	}
	return ""
}

func newQueryCmd() *cobra.Command {
	var entityType string
	cmd := &cobra.Command{
		Use:   "query [condition]",
		Short: "Evaluate a condition expression against the demo entity store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conditionText := args[0]
			if _, err := query.Parse(conditionText); err != nil {
				return err
			}

			e, err := newDemoEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			rows, err := e.repo.SelectByQuery(ctx, entityType, conditionText, query.Params{}, relate.DepthShallow)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, row := range rows {
				jv, err := rowToJSON(row)
				if err != nil {
					return err
				}
				if err := enc.Encode(jv); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entityType, "type", "Post", "entity type to query")
	return cmd
}

func rowToJSON(row value.Record) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for k, v := range row {
		jv, err := v.ToJSON()
		if err != nil {
			return nil, err
		}
		out[k] = jv
	}
	return out, nil
}

func init() {
	viper.AutomaticEnv()
}
