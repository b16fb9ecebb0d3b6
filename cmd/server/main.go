package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/serial-hub/backend/internal/api"
	"github.com/serial-hub/backend/internal/archive"
	"github.com/serial-hub/backend/internal/config"
	"github.com/serial-hub/backend/internal/datamgr"
	"github.com/serial-hub/backend/internal/driver"
	"github.com/serial-hub/backend/internal/event"
	"github.com/serial-hub/backend/internal/history"
	"github.com/serial-hub/backend/internal/library"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Resolve the config next to the executable for portable installs.
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	configPath := filepath.Join(exeDir, "SerialHub.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Core state: pattern library, send history, event bus, data manager.
	lib := library.Load(cfg.Storage.PatternLibraryFile)
	hist := history.Load(cfg.Storage.HistoryFile)
	bus := event.NewBus()
	mgr := datamgr.NewManager(lib, hist, bus, cfg.Storage.PortSettingsFile)

	// Entry archive, optional.
	var archiveStore *archive.Store
	if cfg.Storage.EnableArchive {
		archiveStore, err = archive.Open(cfg.Storage.ArchiveDirectory)
		if err != nil {
			fmt.Printf("Warning: archive disabled: %v\n", err)
		} else {
			defer archiveStore.Close()
			bus.Subscribe(archiveStore)
		}
	}

	// Serial driver: opens devices on port_started, feeds received frames
	// back into the manager, transmits on data_sent.
	serialDriver := driver.New(mgr)
	bus.Subscribe(serialDriver)
	defer serialDriver.Close()
	mgr.SetPortLister(serialDriver.ListPorts)

	// HTTP + websocket surface.
	h := api.NewHandler(mgr, archiveStore)
	hub := api.NewHub(mgr)
	bus.Subscribe(hub)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || strings.HasSuffix(path, "/ws")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
	}))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, h, hub)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Serial Hub Server                               ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Rules:     %-46d║\n", lib.Len())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	e.Logger.Fatal(e.StartServer(s))
}
