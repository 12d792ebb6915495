package main

import (
	"flag"
	"log"
	"os"

	"fbo-nightly/nightly"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var dbConfPath string
	var dbName string
	var dataDir string
	var migrationsDir string
	var reparse bool
	var useGoose bool
	var noDownload bool
	var dedupeTable string

	flag.StringVar(&dbConfPath, "dbconf", "db/dbconf.yml", "dbconf.yml path (goose-style database config).")
	flag.StringVar(&dbName, "db-name", "development", "Environment name inside dbconf.yml.")
	flag.StringVar(&dataDir, "data-dir", "data", "Directory holding nightly feed files.")
	flag.StringVar(&migrationsDir, "migrations-dir", "db/sqlite3", "Directory to write goose migrations into.")
	flag.BoolVar(&reparse, "reparse", false, "Reparse feed files already recorded as parsed.")
	flag.BoolVar(&useGoose, "goose", false, "Delegate schema migration to the external goose binary.")
	flag.BoolVar(&noDownload, "no-download", false, "Skip downloading; only parse what is on disk.")
	flag.StringVar(&dedupeTable, "dedupe", "", "Run the duplicate-row sweep on the named table and exit.")
	flag.Parse()

	logger := log.Default()
	logger.Printf("Starting ETL of FBO nightly data.")

	cfg := nightly.DefaultDBConfig()
	if _, err := os.Stat(dbConfPath); err == nil {
		c, err := nightly.LoadDBConfig(dbConfPath, dbName)
		if err != nil {
			log.Fatalf("load dbconf: %v", err)
		}
		cfg = c
	} else {
		logger.Printf("%s not found, using default config values", dbConfPath)
	}

	store, err := nightly.OpenStore(cfg, logger)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	// Migration files are always emitted so the external runner stays
	// usable; the schema is applied directly unless goose is delegated to.
	if _, err := nightly.WriteMigrations(migrationsDir); err != nil {
		log.Fatalf("write migrations: %v", err)
	}
	if useGoose {
		out, err := nightly.RunGoose(cfg.Open, migrationsDir)
		if len(out) > 0 {
			os.Stderr.Write(out)
		}
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
	} else if err := store.EnsureSchema(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	if dedupeTable != "" {
		if err := store.Dedupe(dedupeTable); err != nil {
			log.Fatalf("dedupe %s: %v", dedupeTable, err)
		}
		return
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("data dir: %v", err)
	}

	if !noDownload {
		targets, err := nightly.FeedTargets(dataDir)
		if err != nil {
			log.Fatalf("list feed targets: %v", err)
		}
		dloader := nightly.NewDownloader(dataDir, store, "nightly", logger)
		if _, err := dloader.Download(targets, true); err != nil {
			log.Fatalf("download: %v", err)
		}
	}

	engine := nightly.NewEngine(store, logger)
	processed, err := engine.IngestDir(dataDir, reparse)
	if err != nil {
		log.Fatalf("ingest %s: %v", dataDir, err)
	}
	logger.Printf("Finished ETL of FBO nightly data, %d files processed.", len(processed))
}
