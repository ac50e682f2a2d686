// Copyright 2025 Halcyard Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/halcyard/fuselage"
	"github.com/halcyard/fuselage/ai"
	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/repair"
	"github.com/halcyard/fuselage/search"
)

func main() {
	app := &cli.App{
		Name:   "fuselage",
		Usage:  "Multi-tenant hybrid retrieval over your documents",
		Flags:  globalFlags(),
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Parse, chunk, embed and index a file",
				ArgsUsage: "<file>",
				Action:    ingestCommand,
				Flags: append(dbFlags(),
					&cli.StringFlag{
						Name:     "owner",
						Aliases:  []string{"o"},
						Usage:    "Owner the document belongs to",
						Required: true,
					},
				),
			},
			{
				Name:      "query",
				Usage:     "Run a hybrid retrieval query",
				ArgsUsage: "<text>",
				Action:    queryCommand,
				Flags: append(dbFlags(),
					&cli.StringFlag{
						Name:     "owner",
						Aliases:  []string{"o"},
						Usage:    "Owner whose corpus to search",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "k",
						Usage: "Maximum number of results",
						Value: search.DefaultTopK,
					},
					&cli.StringSliceFlag{
						Name:    "filter",
						Aliases: []string{"f"},
						Usage:   "Metadata filter as key=value (repeatable)",
					},
					&cli.Float64Flag{
						Name:  "sem-weight",
						Usage: "Semantic fusion weight override",
						Value: -1,
					},
					&cli.Float64Flag{
						Name:  "lex-weight",
						Usage: "Lexical fusion weight override",
						Value: -1,
					},
				),
			},
			{
				Name:   "list",
				Usage:  "List an owner's documents",
				Action: listCommand,
				Flags: append(dbFlags(),
					&cli.StringFlag{
						Name:     "owner",
						Aliases:  []string{"o"},
						Usage:    "Owner whose documents to list",
						Required: true,
					},
				),
			},
			{
				Name:      "rm",
				Usage:     "Remove a document and all its chunks",
				ArgsUsage: "<document-id>",
				Action:    removeCommand,
				Flags: append(dbFlags(),
					&cli.StringFlag{
						Name:     "owner",
						Aliases:  []string{"o"},
						Usage:    "Owner the document belongs to",
						Required: true,
					},
				),
			},
			{
				Name:   "clear",
				Usage:  "Remove all documents of one owner ('*' wipes everything)",
				Action: clearCommand,
				Flags: append(dbFlags(),
					&cli.StringFlag{
						Name:     "owner",
						Aliases:  []string{"o"},
						Usage:    "Owner to clear, or '*' for all",
						Required: true,
					},
				),
			},
			{
				Name:   "repair",
				Usage:  "Scan all chunks and restore missing index entries",
				Action: repairCommand,
				Flags: append(dbFlags(),
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to scan in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for embedding calls",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Usage:   "Set logging level (debug, info, warn, error)",
			Value:   "info",
		},
	}
}

func dbFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.StringFlag{
			Name:    "api-token",
			Usage:   "API token for the embedding service",
			EnvVars: []string{"FUSELAGE_API_TOKEN"},
		},
	}
}

// openDatabase builds a Database from the shared flags.
func openDatabase(c *cli.Context) (*fuselage.Database, error) {
	opts := []ai.ConfigOption{
		ai.WithHost(c.String("embedding-host")),
		ai.WithModel(c.String("embedding-model")),
	}
	if token := c.String("api-token"); token != "" {
		opts = append(opts, ai.WithAPIToken(token))
	}
	aiConfig := ai.NewConfig(opts...)

	db, err := fuselage.Open(c.String("db"), fuselage.WithAIConfig(aiConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one file argument")
	}
	path := c.Args().First()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	owner := core.OwnerID(c.String("owner"))
	doc, err := db.Ingest(context.Background(), owner, filepath.Base(path), data)
	if err != nil {
		if doc != nil {
			fmt.Fprintf(os.Stderr, "document %d: %s (%s)\n", doc.Id, doc.Status, doc.FailureReason)
		}
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("document %d: %s, %d chunks\n", doc.Id, doc.Status, doc.ChunkCount)
	if doc.FailureReason != "" {
		fmt.Printf("partial failures: %s\n", doc.FailureReason)
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one query argument")
	}

	filter, err := parseFilter(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	req := &core.QueryRequest{
		Owner:  core.OwnerID(c.String("owner")),
		Text:   c.Args().First(),
		Filter: filter,
		TopK:   c.Int("k"),
	}
	if w := c.Float64("sem-weight"); w >= 0 {
		req.SemanticWeight = &w
	}
	if w := c.Float64("lex-weight"); w >= 0 {
		req.LexicalWeight = &w
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := db.Query(context.Background(), req)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if len(result.Chunks) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, scored := range result.Chunks {
		fmt.Printf("%d. chunk %d (doc %d, seq %d) fused=%.4f sem=%.4f lex=%.4f\n",
			i+1, scored.Chunk.Id, scored.DocumentId, scored.Chunk.Seq,
			scored.FusedScore, scored.SemanticScore, scored.LexicalScore)
		fmt.Printf("   %s\n", scored.Chunk.Text)
	}
	return nil
}

func listCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	docs, err := db.ListDocuments(context.Background(), core.OwnerID(c.String("owner")))
	if err != nil {
		return fmt.Errorf("listing failed: %w", err)
	}

	if len(docs) == 0 {
		fmt.Println("no documents")
		return nil
	}
	for _, doc := range docs {
		line := fmt.Sprintf("%d\t%s\t%s\t%d chunks\t%s",
			doc.Id, doc.Filename, doc.Status, doc.ChunkCount,
			doc.UploadedAt.Format(time.RFC3339))
		if doc.FailureReason != "" {
			line += "\t" + doc.FailureReason
		}
		fmt.Println(line)
	}
	return nil
}

func removeCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one document-id argument")
	}
	var docID core.ID
	if _, err := fmt.Sscanf(c.Args().First(), "%d", &docID); err != nil {
		return fmt.Errorf("invalid document id %q", c.Args().First())
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	owner := core.OwnerID(c.String("owner"))
	if err := db.RemoveDocument(context.Background(), owner, docID); err != nil {
		return fmt.Errorf("removal failed: %w", err)
	}
	fmt.Printf("removed document %d\n", docID)
	return nil
}

func clearCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.ClearAll(context.Background(), core.OwnerID(c.String("owner")))
	if err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	fmt.Printf("removed %d documents\n", removed)
	return nil
}

func repairCommand(c *cli.Context) error {
	config := &repair.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := db.Repair(context.Background(), config, os.Stderr)
	if err != nil {
		return fmt.Errorf("repair failed: %w", err)
	}
	fmt.Printf("scanned %d, repaired %d, failed %d\n",
		report.Scanned, report.Repaired, report.Failed)
	return nil
}

// parseFilter converts repeated key=value flags into a metadata filter.
func parseFilter(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", pair)
		}
		filter[key] = value
	}
	return filter, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
