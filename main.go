package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"finsent/artifact"
	"finsent/db"
	qhttp "finsent/http"
	"finsent/logging"
	"finsent/ml"
	"finsent/monitoring"
	"finsent/pipeline"
)

type Config struct {
	Http struct {
		Port           int      `yaml:"port"`
		MaxRequestSize int64    `yaml:"max_request_size"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log   logging.Config `yaml:"log"`
	Model struct {
		Name      string `yaml:"name"`
		Version   string `yaml:"version"`
		Dir       string `yaml:"dir"`
		SourceURL string `yaml:"source_url"`
		SHA256    string `yaml:"sha256"`
		Backend   string `yaml:"backend"`
		CacheSize int    `yaml:"cache_size"`
	} `yaml:"model"`
	Registry struct {
		Path string `yaml:"path"`
	} `yaml:"registry"`
	Stream struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"stream"`
	Watch struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"watch"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logging
	flush, err := logging.Init(config.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer flush()
	sugar := zap.S()

	// 3. Initialize the artifact registry
	registryPath := config.Registry.Path
	if registryPath == "" {
		registryPath = "finsent.db"
	}
	if err := db.InitDB(registryPath); err != nil {
		sugar.Fatalf("Failed to initialize registry: %v", err)
	}
	defer db.Close()
	sugar.Infof("Artifact registry at %s", registryPath)

	// 4. Make the model artifact available and load it. The model loads
	// exactly once; any failure here is terminal.
	artifactPath, err := artifact.Ensure(context.Background(), artifact.Options{
		Name:      config.Model.Name,
		Version:   config.Model.Version,
		Dir:       config.Model.Dir,
		SourceURL: config.Model.SourceURL,
		SHA256:    config.Model.SHA256,
	})
	if err != nil {
		sugar.Fatalf("Failed to ensure model artifact: %v", err)
	}

	model, err := ml.Load(ml.Config{Path: artifactPath, Backend: config.Model.Backend})
	if err != nil {
		sugar.Fatalf("Failed to load model: %v", err)
	}

	analyzer, err := pipeline.NewAnalyzer(model, config.Model.CacheSize)
	if err != nil {
		sugar.Fatalf("Failed to build analyzer: %v", err)
	}

	// 5. Monitoring
	collector := monitoring.NewMetricsCollector()

	var hub *monitoring.StreamHub
	if config.Stream.Enabled {
		hub = monitoring.NewStreamHub()
		go hub.Start()
	}

	var watcher *artifact.Watcher
	if config.Watch.Enabled {
		watcher, err = artifact.Watch(artifactPath, func() {
			collector.SetGauge("artifact_dirty", 1, nil)
		})
		if err != nil {
			sugar.Warnf("Artifact watcher disabled: %v", err)
		}
	}

	// 6. Start HTTP server
	serverConfig := qhttp.DefaultServerConfig()
	if config.Http.Port != 0 {
		serverConfig.Port = config.Http.Port
	}
	if config.Http.MaxRequestSize > 0 {
		serverConfig.MaxRequestSize = config.Http.MaxRequestSize
	}
	if len(config.Http.AllowedOrigins) > 0 {
		serverConfig.AllowedOrigins = config.Http.AllowedOrigins
	}

	server := qhttp.NewServer(serverConfig, qhttp.NewHandlers(analyzer, collector, hub))
	go func() {
		if err := server.Start(); err != nil {
			sugar.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 7. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugar.Info("Shutting down...")

	if err := server.Stop(); err != nil {
		sugar.Warnf("Server forced to shutdown: %v", err)
	}
	if watcher != nil {
		watcher.Close()
	}
	if hub != nil {
		hub.Stop()
	}
	collector.Stop()

	sugar.Info("Exiting")
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
