package main

import (
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
)

var logger = log.New("lockstep")

type Config struct {
	Port          string
	DBURL         string
	YouTubeKey    string
	SaveInterval  time.Duration
	TakeoverGrace time.Duration
	IdleEvict     time.Duration // zero keeps idle sessions forever
}

func loadConfig() Config {
	return Config{
		Port:          envString("PORT", "3000"),
		DBURL:         os.Getenv("DB_URL"),
		YouTubeKey:    os.Getenv("YOUTUBE_API_KEY"),
		SaveInterval:  envDuration("SAVE_INTERVAL", time.Minute),
		TakeoverGrace: envDuration("TAKEOVER_GRACE", 42*time.Second),
		IdleEvict:     envDuration("IDLE_EVICT", 0),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warnf("ignoring %s=%q: %v", key, v, err)
		return fallback
	}
	return d
}

// openSnapshotStore picks a backend by the DB URL scheme. Any failure
// here degrades the process to in-memory-only mode instead of killing it.
func openSnapshotStore(dbURL string) SnapshotRepository {
	if dbURL == "" {
		return nil
	}
	u, err := url.Parse(dbURL)
	if err != nil {
		logger.Warnf("cannot parse DB_URL %q: %v", dbURL, err)
		return nil
	}

	var repo SnapshotRepository
	switch u.Scheme {
	case "sqlite":
		repo, err = NewSQLiteRepository(u.Hostname() + u.Path)
	case "postgres":
		repo, err = NewPostgresRepository(dbURL)
	case "valkey", "redis":
		repo, err = NewValkeyRepository(u.Host)
	case "memory":
		repo, err = NewMemoryRepository(), nil
	default:
		logger.Warnf("unknown DB_URL scheme %q", u.Scheme)
		return nil
	}
	if err != nil {
		logger.Warnf("snapshot store unreachable: %v", err)
		return nil
	}
	return repo
}

func main() {
	godotenv.Load()
	cfg := loadConfig()

	svc := NewService(openSnapshotStore(cfg.DBURL), NewYouTubeAPI(cfg.YouTubeKey))
	defer svc.Close()

	registry := NewRegistry(svc, cfg.TakeoverGrace)
	done := make(chan struct{})
	defer close(done)
	go registry.Sweep(cfg.SaveInterval, cfg.IdleEvict, done)

	hub := NewHub(registry, svc)
	router := NewHTTPRouter(hub)

	// the one intentionally fatal condition: failing to bind the port
	if err := router.Start(":" + cfg.Port); err != nil {
		logger.Fatalf("server stopped: %v", err)
	}
}
