package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/tjfontaine/propertychat/internal/config"
	"github.com/tjfontaine/propertychat/internal/retrieval"
	"github.com/tjfontaine/propertychat/internal/storage/csvload"
	"github.com/tjfontaine/propertychat/internal/storage/sqldb"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "ingest",
		Usage: "load house price and rental price CSVs, and retrieval documents",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "config file"},
			&cli.StringFlag{Name: "house-prices", Usage: "house_prices CSV (date, region_name, average_price)"},
			&cli.StringFlag{Name: "rents", Usage: "rental_prices CSV (date, region_name, rent_all, rent_1bed...)"},
			&cli.StringFlag{Name: "docs", Usage: "JSON lines of report passages to embed for retrieval mode"},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ingest:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.LoadFrom(cmd.String("config"))
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))

	if path := cmd.String("house-prices"); path != "" || cmd.String("rents") != "" {
		store, err := sqldb.New(sqldb.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}

		if path != "" {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			rows, err := csvload.HousePrices(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := store.InsertHousePrices(ctx, rows); err != nil {
				return err
			}
			logger.Info("loaded house prices", slog.String("file", path), slog.Int("rows", len(rows)))
		}

		if path := cmd.String("rents"); path != "" {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			rows, err := csvload.Rents(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := store.InsertRents(ctx, rows); err != nil {
				return err
			}
			logger.Info("loaded rents", slog.String("file", path), slog.Int("rows", len(rows)))
		}
	}

	if path := cmd.String("docs"); path != "" {
		docs, err := readDocuments(path)
		if err != nil {
			return err
		}
		embed := retrieval.NewOpenAIEmbedder(retrieval.NewOpenAIClient(cfg.Model), cfg.Retrieval.EmbeddingModel)
		r, err := retrieval.New(cfg.Retrieval, embed, retrieval.WithLogger(logger))
		if err != nil {
			return err
		}
		if err := r.Index(ctx, docs); err != nil {
			return err
		}
		logger.Info("indexed documents", slog.String("file", path), slog.Int("documents", len(docs)), slog.Int("total", r.Count()))
	}
	return nil
}

func readDocuments(path string) ([]retrieval.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []retrieval.Document
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var d retrieval.Document
		if err := json.Unmarshal(sc.Bytes(), &d); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		docs = append(docs, d)
	}
	return docs, sc.Err()
}
