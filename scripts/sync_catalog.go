package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"zapis/internal/database"
	"zapis/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		catalogPath = flag.String("catalog", "configs/catalog.yaml", "path to catalog.yaml")
		dbPath      = flag.String("db", "./data/zapis.db", "path to sqlite db")
		checkOnly   = flag.Bool("check", false, "validate the catalog without touching the db")
	)
	flag.Parse()

	data, err := os.ReadFile(*catalogPath)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var catalog models.Catalog
	if err = yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	if len(catalog.Shops) == 0 {
		return fmt.Errorf("no shops in yaml")
	}
	if err = catalog.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	staff, services := 0, 0
	for _, shop := range catalog.Shops {
		staff += len(shop.Staff)
		services += len(shop.Services)
	}
	if *checkOnly {
		fmt.Printf("ok: shops=%d staff=%d services=%d\n", len(catalog.Shops), staff, services)
		return nil
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err = db.SyncCatalog(ctx, &catalog); err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}
	shops, err := db.ListShops(ctx)
	if err != nil {
		return fmt.Errorf("list shops: %w", err)
	}

	fmt.Printf("done: shops=%d (%v) staff=%d services=%d\n", len(shops), shops, staff, services)
	return nil
}
