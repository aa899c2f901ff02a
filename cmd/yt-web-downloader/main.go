package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/ytget/yt-web-downloader/internal/api"
	"github.com/ytget/yt-web-downloader/internal/config"
	"github.com/ytget/yt-web-downloader/internal/download"
	"github.com/ytget/yt-web-downloader/internal/platform"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const (
	DefaultConfigPath = "config.yaml"
)

func main() {
	configPath := flag.String("config", DefaultConfigPath, "path to yaml config file")
	flag.Parse()

	fmt.Printf("yt-web-downloader v%s starting...\n", version)

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := platform.CreateDirectoryIfNotExists(settings.WorkRoot); err != nil {
		log.Fatalf("failed to ensure work root %s: %v", settings.WorkRoot, err)
	}

	// Initialize services
	registry := download.NewRegistry()
	service := download.NewService(registry, settings.WorkRoot, settings.ToolBinary)
	service.SetFilenameTemplate(settings.FilenameTemplate)
	service.SetSendTimeout(settings.SendTimeout())
	cleanup := download.NewCleanupManager(registry)

	prober := platform.NewFormatProber(settings.ToolBinary)
	prober.SetTimeout(settings.ProbeTimeout())

	// initialize Gin router and attach the API routes
	router := gin.Default()
	api.NewHandler(service, cleanup, prober).Register(router)

	log.Printf("Listening on %s, work root %s", settings.ListenAddr, settings.WorkRoot)
	if err := router.Run(settings.ListenAddr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
