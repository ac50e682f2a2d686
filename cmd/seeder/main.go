package main

import (
	"context"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/halcyard/fuselage"
	"github.com/halcyard/fuselage/ai"
	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/parser"
)

var (
	dbPath    = flag.String("db", "./fuselage_db", "path to BadgerDB database directory")
	owner     = flag.String("owner", "seeder", "owner to ingest documents for")
	sourceDir = flag.String("dir", "", "directory tree to ingest (required)")
	host      = flag.String("embedding-host", "http://localhost:11434/v1", "embedding service host URL")
	model     = flag.String("embedding-model", "embeddinggemma", "embedding model name")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// collectFiles walks the tree and returns paths with a supported extension.
func collectFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if parser.Supported(ext) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

func main() {
	if *sourceDir == "" {
		slog.Error("missing required -dir flag")
		os.Exit(1)
	}

	paths, err := collectFiles(*sourceDir)
	if err != nil {
		slog.Error("failed to walk source directory", "dir", *sourceDir, "err", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		slog.Info("no supported files found", "dir", *sourceDir)
		return
	}

	aiConfig := ai.NewConfig(
		ai.WithHost(*host),
		ai.WithModel(*model),
	)
	db, err := fuselage.Open(*dbPath, fuselage.WithAIConfig(aiConfig))
	if err != nil {
		slog.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	ownerID := core.OwnerID(*owner)
	indexed, failed := 0, 0

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("failed to read file", "path", path, "err", err)
			failed++
			continue
		}

		doc, err := db.Ingest(ctx, ownerID, filepath.Base(path), data)
		if err != nil {
			slog.Error("ingestion failed", "path", path, "err", err)
			failed++
			continue
		}

		slog.Info("ingested", "path", path, "document", doc.Id,
			"status", doc.Status.String(), "chunks", doc.ChunkCount)
		indexed++
	}

	slog.Info("seeding complete", "indexed", indexed, "failed", failed)
}
