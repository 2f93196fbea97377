package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tgwall/config"
	"tgwall/internal/api"
	"tgwall/internal/mqtt"
	"tgwall/internal/scheduler"
	"tgwall/internal/storage"
	"tgwall/internal/telegram"
	"tgwall/internal/wallpaper"
	"tgwall/internal/weather"

	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tgwall",
		Short: "Telegram chat wallpaper rotation",
		Long:  "Rotates a Telegram chat's wallpaper by time-of-day phase and weather",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(testWallpaperCmd())
	rootCmd.AddCommand(statsRebuildCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// services bundles everything a tick needs, built once from config.
type services struct {
	scheduler *scheduler.Scheduler
	applier   *telegram.Client
	db        *storage.Database
	publisher *mqtt.Publisher
	stats     *wallpaper.Stats
}

func (s *services) close() {
	if err := s.applier.Close(); err != nil {
		log.Printf("Error closing Telegram client: %v", err)
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}
}

func buildServices(cfg *config.Config, intervalOverride int) (*services, error) {
	matrixCfg, err := wallpaper.LoadConfig(cfg.Wallpapers.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallpaper matrix: %w", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	matrix := wallpaper.New(cfg.Wallpapers.BaseDir, matrixCfg, rng)
	cache := wallpaper.NewCache(cfg.CacheFile(), matrixCfg.Flags.CacheEnabled)
	stats := wallpaper.NewStats(cfg.ResolveStatsFile(matrixCfg.Stats.File), matrixCfg.Stats.Enabled)

	var provider weather.Provider
	switch cfg.Weather.Provider {
	case "openmeteo":
		provider = weather.NewOpenMeteoClient(
			cfg.Weather.City,
			cfg.Weather.Country,
			cfg.Weather.Latitude,
			cfg.Weather.Longitude,
		)
	default:
		provider = weather.NewOpenWeatherClient(
			cfg.Weather.APIKey,
			cfg.Weather.City,
			cfg.Weather.Country,
			cfg.Weather.Latitude,
			cfg.Weather.Longitude,
			cfg.Weather.Units,
			cfg.Weather.Lang,
		)
	}

	applier := telegram.NewClient(cfg.Telegram.BotToken)

	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Printf("Warning: history database unavailable: %v", err)
		db = nil
	} else {
		log.Printf("History database opened at %s", cfg.Database.Path)
	}

	publisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Enabled:     cfg.MQTT.Enabled,
	})
	if err != nil {
		log.Printf("Warning: MQTT connection failed: %v", err)
		publisher = nil
	} else if cfg.MQTT.Enabled {
		log.Printf("MQTT connected to %s", cfg.MQTT.Broker)
	}

	fallback := cfg.FallbackInterval()
	if matrixCfg.Update.IntervalMinutes > 0 {
		fallback = time.Duration(matrixCfg.Update.IntervalMinutes) * time.Minute
	}
	if intervalOverride > 0 {
		fallback = time.Duration(intervalOverride) * time.Minute
	}

	sched := scheduler.New(scheduler.Config{
		Provider:         provider,
		Matrix:           matrix,
		Cache:            cache,
		Stats:            stats,
		Applier:          applier,
		Database:         db,
		Publisher:        publisher,
		Chat:             cfg.Telegram.Chat,
		FallbackInterval: fallback,
		HistoryLimit:     matrixCfg.Logs.MaxEntries,
	})

	return &services{
		scheduler: sched,
		applier:   applier,
		db:        db,
		publisher: publisher,
		stats:     stats,
	}, nil
}

func daemonCmd() *cobra.Command {
	var interval int

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the wallpaper rotation loop",
		Long:  "Keeps the chat wallpaper in sync with the day phase, sleeping until the next phase boundary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			svc, err := buildServices(cfg, interval)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				log.Println("Shutting down...")
				cancel()
			}()

			var server *api.Server
			if cfg.API.Enabled {
				server = api.NewServer(api.ServerConfig{
					Port:      cfg.API.Port,
					Scheduler: svc.scheduler,
					Database:  svc.db,
					Stats:     svc.stats,
				})
				go func() {
					if err := server.Start(); err != nil {
						log.Printf("API server error: %v", err)
					}
				}()
			}

			// RunDaemon closes the Telegram client itself; close the rest
			// here.
			err = svc.scheduler.RunDaemon(ctx)

			if server != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
					log.Printf("API server shutdown error: %v", shutdownErr)
				}
			}
			if svc.publisher != nil {
				svc.publisher.Close()
			}
			if svc.db != nil {
				svc.db.Close()
			}
			return err
		},
	}

	cmd.Flags().IntVar(&interval, "interval", 0, "override fallback interval in minutes")
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single wallpaper update",
		Long:  "Fetches the weather, resolves the wallpaper for the current phase, and applies it once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			svc, err := buildServices(cfg, 0)
			if err != nil {
				return err
			}
			defer svc.close()

			return svc.scheduler.RunOnce(context.Background())
		},
	}
}

func testWallpaperCmd() *cobra.Command {
	var image string

	cmd := &cobra.Command{
		Use:   "test-wallpaper",
		Short: "Apply a specific image once",
		Long:  "Uploads the given image and sets it as the chat wallpaper, bypassing the matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			path, err := filepath.Abs(image)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("image not found: %s", path)
			}

			client := telegram.NewClient(cfg.Telegram.BotToken)
			defer client.Close()

			if err := client.ApplyWallpaper(context.Background(), cfg.Telegram.Chat, path); err != nil {
				return fmt.Errorf("test wallpaper failed: %w", err)
			}
			log.Println("Test wallpaper applied successfully")
			return nil
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "path to image (.jpg/.png)")
	cmd.MarkFlagRequired("image")
	return cmd
}

func statsRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats-rebuild",
		Short: "Rebuild weather stats from the application history",
		Long:  "Recounts every recorded apply in the history database and rewrites the stats file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			matrixCfg, err := wallpaper.LoadConfig(cfg.Wallpapers.File)
			if err != nil {
				return fmt.Errorf("failed to load wallpaper matrix: %w", err)
			}

			db, err := storage.NewDatabase(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open history database: %w", err)
			}
			defer db.Close()

			raw, err := db.CountByInstance()
			if err != nil {
				return fmt.Errorf("failed to count history: %w", err)
			}

			counts := make(map[string]int)
			for instance, n := range raw {
				counts[wallpaper.StatsKey(instance)] += n
			}

			statsPath := cfg.ResolveStatsFile(matrixCfg.Stats.File)
			stats := wallpaper.NewStats(statsPath, true)
			if err := stats.Replace(counts); err != nil {
				return fmt.Errorf("failed to write stats: %w", err)
			}

			log.Printf("Stats rebuilt -> %s", statsPath)
			return nil
		},
	}
}
