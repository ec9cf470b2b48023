package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/sheetport/sheetport/internal/api"
	"github.com/sheetport/sheetport/internal/config"
	"github.com/sheetport/sheetport/internal/configstore"
	"github.com/sheetport/sheetport/internal/drive"
	"github.com/sheetport/sheetport/internal/extractor"
	"github.com/sheetport/sheetport/internal/lander"
	"github.com/sheetport/sheetport/internal/storage"
	"github.com/sheetport/sheetport/internal/version"
)

func main() {
	configPath := flag.String("config", "sheetport.yml", "path to the YAML configuration file")
	runOnce := flag.Bool("run", false, "run one extraction pass and exit instead of serving HTTP")
	runAccount := flag.String("account", "", "restrict -run to a single account id")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		log.Printf("sheetport %s (%s, built %s)", version.Version, version.Commit, version.BuildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize storage
	client, err := storage.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", cfg.DatabasePath, err)
	}

	store := configstore.New(client, cfg.Component, nil)
	driveAPI := drive.NewClient(cfg.Google.OAuth())
	ext := extractor.New(store, driveAPI, lander.New(client, cfg.TempDir))

	if *runOnce {
		res, err := ext.Run(context.Background(), extractor.Options{Account: *runAccount})
		if err != nil {
			log.Fatalf("Extraction failed: %v", err)
		}
		json.NewEncoder(os.Stdout).Encode(res)
		return
	}

	srv := api.NewServer(store, ext)

	log.Printf("sheetport %s starting on %s (component %s)", version.Version, cfg.Listen, cfg.Component)
	if err := http.ListenAndServe(cfg.Listen, srv.Router()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
