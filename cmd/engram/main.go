// Command engram runs the knowledge engine from the command line: feed it
// model output to process directives, query stored records, and manage keyed
// user facts.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/engramkit/engram-go/engine"
	"github.com/engramkit/engram-go/knowledge"
	"github.com/engramkit/engram-go/knowledge/store/sqlite"
)

var (
	dbPath     string
	configPath string
	scope      string
)

func main() {
	root := &cobra.Command{
		Use:          "engram",
		Short:        "Knowledge ingestion and retrieval engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite database path (default: in-memory store)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&scope, "scope", "default", "conversation scope")

	root.AddCommand(processCmd(), queryCmd(), factCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newEngine builds an engine from the persistent flags. With --db the record
// store is file-backed; the similarity index is always in-memory, so
// db-backed sessions re-index via ReindexScope before semantic queries.
func newEngine() (*engine.Engine, *engine.Config, error) {
	cfg := engine.DefaultConfig()
	if configPath != "" {
		loaded, err := engine.LoadConfig(configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}

	var opts []engine.Option
	if dbPath != "" {
		store, err := sqlite.New(dbPath, sqlite.WithMaxPerScope(cfg.MaxRecordsPerScope))
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		opts = append(opts, engine.WithStore(store))
	}
	return engine.New(cfg, opts...), cfg, nil
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process [text]",
		Short: "Parse and execute directives from model output (arg or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(args)
			if err != nil {
				return err
			}

			eng, _, err := newEngine()
			if err != nil {
				return err
			}
			defer closeEngine(eng)

			result, err := eng.ProcessResponse(cmd.Context(), scope, text)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func queryCmd() *cobra.Command {
	var category, priority string
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List the scope's records, optionally filtered",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, _, err := newEngine()
			if err != nil {
				return err
			}
			defer closeEngine(eng)

			p, _ := knowledge.ParsePriority(priority)
			records, err := eng.Store().Query(cmd.Context(), scope, knowledge.Filter{
				Category: category,
				Priority: p,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&priority, "priority", "", "filter by priority (low, medium, high)")
	return cmd
}

func factCmd() *cobra.Command {
	fact := &cobra.Command{
		Use:   "fact",
		Short: "Manage keyed user facts",
	}

	fact.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Save a fact under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := newEngine()
			if err != nil {
				return err
			}
			defer closeEngine(eng)

			rec, err := eng.Store().Create(cmd.Context(), knowledge.CreateParams{
				Scope:    scope,
				Content:  args[1],
				Category: engine.FactCategory(args[0]),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	})

	var query bool
	var limit int
	get := &cobra.Command{
		Use:   "get <key-or-query>",
		Short: "Retrieve a fact by key, or semantically with --query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cfg, err := newEngine()
			if err != nil {
				return err
			}
			defer closeEngine(eng)

			if query {
				if _, err := eng.ReindexScope(cmd.Context(), scope); err != nil {
					return err
				}
				matches, err := eng.RetrieveByQuery(cmd.Context(), scope, args[0], limit, cfg.MinSimilarity, engine.FactPredicate)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), matches)
			}

			result, err := eng.RetrieveByKey(cmd.Context(), scope, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	get.Flags().BoolVar(&query, "query", false, "treat the argument as a semantic query")
	get.Flags().IntVar(&limit, "limit", 0, "max results for --query (0 = default)")
	fact.AddCommand(get)

	return fact
}

func inputText(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func closeEngine(eng *engine.Engine) {
	if err := eng.Close(); err != nil {
		log.Printf("[ENGINE] close: %v", err)
	}
}
