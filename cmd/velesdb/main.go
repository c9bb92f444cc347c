// Command velesdb is a thin CLI driver over the database and collection
// APIs, replacing the teacher's SQLite-backed cmd/sqvect tool.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/velesdb/velesdb/internal/distance"
	"github.com/velesdb/velesdb/internal/vlog"
	velesdb "github.com/velesdb/velesdb/pkg/database"
)

var (
	dbPath    string
	metric    string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "velesdb",
	Short: "CLI tool for the VelesDB embedded vector database",
}

var createCollectionCmd = &cobra.Command{
	Use:   "create-collection <name> <dim>",
	Short: "Create a new collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dim, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid dimension: %w", err)
		}
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		if _, err := db.CreateCollection(args[0], dim, parseMetric(metric)); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		fmt.Printf("Collection %q created with dimension %d (%s)\n", args[0], dim, metric)
		return nil
	},
}

var upsertCmd = &cobra.Command{
	Use:   "upsert <collection> <id>",
	Short: "Insert or update a point",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		payloadStr, _ := cmd.Flags().GetString("payload")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}
		payload, err := parsePayload(payloadStr)
		if err != nil {
			return err
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		col, err := db.GetCollection(args[0])
		if err != nil {
			return fmt.Errorf("failed to open collection: %w", err)
		}

		id, err := col.Upsert(args[1], vector, payload)
		if err != nil {
			return fmt.Errorf("upsert failed: %w", err)
		}
		fmt.Printf("Upserted %q -> point id %d\n", args[1], id)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <collection>",
	Short: "Find nearest neighbors of a vector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		k, _ := cmd.Flags().GetInt("top-k")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		col, err := db.GetCollection(args[0])
		if err != nil {
			return fmt.Errorf("failed to open collection: %w", err)
		}

		results, err := col.Search(vector, k)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <collection> <velesql>",
	Short: "Run a VelesQL query against a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		col, err := db.GetCollection(args[0])
		if err != nil {
			return fmt.Errorf("failed to open collection: %w", err)
		}

		rows, err := col.ExecuteVelesQL(args[1], nil)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}

		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush <collection>",
	Short: "Checkpoint the WAL and write a fresh snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		col, err := db.GetCollection(args[0])
		if err != nil {
			return fmt.Errorf("failed to open collection: %w", err)
		}
		if err := col.Flush(); err != nil {
			return fmt.Errorf("flush failed: %w", err)
		}
		fmt.Printf("Collection %q flushed\n", args[0])
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact <collection>",
	Short: "Rebuild the HNSW graph, dropping tombstoned points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		col, err := db.GetCollection(args[0])
		if err != nil {
			return fmt.Errorf("failed to open collection: %w", err)
		}
		if err := col.Compact(); err != nil {
			return fmt.Errorf("compact failed: %w", err)
		}
		fmt.Printf("Collection %q compacted\n", args[0])
		return nil
	},
}

func parseVector(s string) ([]float32, error) {
	if s == "" {
		return nil, fmt.Errorf("vector is required")
	}
	parts := strings.Split(s, ",")
	vector := make([]float32, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector format: %w", err)
		}
		vector = append(vector, float32(val))
	}
	return vector, nil
}

func parsePayload(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	return payload, nil
}

func parseMetric(s string) distance.Metric {
	switch s {
	case "euclidean":
		return distance.Euclidean
	case "dot":
		return distance.DotProduct
	case "hamming":
		return distance.Hamming
	case "jaccard":
		return distance.Jaccard
	default:
		return distance.Cosine
	}
}

// buildLogger constructs the vlog.Logger selected by --log: "text" (the
// default stderr writer), "zap" (for hosts already running go.uber.org/zap
// that want VelesDB's diagnostics folded into the same sink), or "none".
func buildLogger() (vlog.Logger, error) {
	switch logFormat {
	case "text":
		return vlog.NewStd(vlog.LevelInfo), nil
	case "zap":
		z, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to build zap logger: %w", err)
		}
		return vlog.NewZapLogger(z), nil
	case "none":
		return vlog.Nop(), nil
	default:
		return nil, fmt.Errorf("unknown --log value %q (want text, zap, or none)", logFormat)
	}
}

func openDatabase() (*velesdb.Database, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path not specified")
	}
	logger, err := buildLogger()
	if err != nil {
		return nil, err
	}
	return velesdb.Open(dbPath, velesdb.WithLogger(logger))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "veles.db", "Database directory path")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log", "text", "Log output: text, zap, or none")

	createCollectionCmd.Flags().StringVar(&metric, "metric", "cosine", "Distance metric (cosine/euclidean/dot/hamming/jaccard)")

	upsertCmd.Flags().String("vector", "", "Vector values (comma-separated)")
	upsertCmd.Flags().String("payload", "", "Payload as JSON object")
	upsertCmd.MarkFlagRequired("vector")

	searchCmd.Flags().String("vector", "", "Query vector (comma-separated)")
	searchCmd.Flags().Int("top-k", 10, "Number of results")
	searchCmd.MarkFlagRequired("vector")

	rootCmd.AddCommand(
		createCollectionCmd,
		upsertCmd,
		searchCmd,
		queryCmd,
		flushCmd,
		compactCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
