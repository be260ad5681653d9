package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/rockfall.report/internal/api"
	"github.com/banshee-data/rockfall.report/internal/config"
	"github.com/banshee-data/rockfall.report/internal/db"
	"github.com/banshee-data/rockfall.report/internal/fsutil"
	"github.com/banshee-data/rockfall.report/internal/httputil"
	"github.com/banshee-data/rockfall.report/internal/inspect"
	"github.com/banshee-data/rockfall.report/internal/monitoring"
	"github.com/banshee-data/rockfall.report/internal/riskmap"
	"github.com/banshee-data/rockfall.report/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to a dashboard JSON config (defaults apply when empty)")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	csvPath    = flag.String("csv", "", "CSV to load at startup (overrides config)")
	dbPath     = flag.String("db", "", "Session database path (overrides config; default in memory)")
	noDB       = flag.Bool("no-db", false, "Disable the session database and debug SQL routes")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func loadConfig() *config.DashboardConfig {
	cfg := config.EmptyDashboardConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadDashboardConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *listen != "" {
		cfg.Listen = listen
	}
	if *csvPath != "" {
		cfg.CSVPath = csvPath
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *verbose {
		cfg.Verbose = verbose
	}
	return cfg
}

func main() {
	flag.Parse()

	if *showVer {
		log.SetFlags(0)
		log.Print(version.String())
		return
	}

	cfg := loadConfig()
	monitoring.SetVerbose(cfg.GetVerbose())
	log.Printf("starting %s", version.String())

	var database *db.DB
	var recorder riskmap.LoadRecorder
	if !*noDB {
		var err error
		database, err = db.NewDB(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		recorder = database
	}

	fsys := fsutil.OSFileSystem{}
	pipeline := riskmap.NewPipeline(fsys, recorder)
	pipeline.SetDataDirs(cfg.GetDataDirs())

	// a missing or broken startup CSV is not fatal; the page offers an upload
	if path := cfg.GetCSVPath(); path != "" {
		if fsys.Exists(path) {
			if _, err := pipeline.LoadPath(path); err != nil {
				log.Printf("failed to load %s: %v", path, err)
			}
		} else {
			log.Printf("startup CSV %s not found; waiting for an upload", path)
		}
	}

	images := &inspect.Loader{
		Client:      httputil.NewStandardClient(cfg.GetImageTimeout()),
		FS:          fsys,
		AllowedDirs: cfg.GetImageDirs(),
		MaxBytes:    cfg.GetMaxImageBytes(),
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(pipeline, images, database, cfg).ServeMux()
		if database != nil {
			if err := database.AttachAdminRoutes(mux); err != nil {
				log.Printf("debug routes disabled: %v", err)
			}
		}

		server := &http.Server{
			Addr:              cfg.GetListen(),
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("failed to start server: %v", err)
				os.Exit(1)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
