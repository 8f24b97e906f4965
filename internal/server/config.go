package server

import (
	"flag"
	"log/slog"
	"os"
)

// Config collects everything read once at process startup: listen
// address, storage location, and the voice collaborator's credentials.
// There is no dynamic reload; a changed environment requires a restart.
type Config struct {
	Addr        string
	StoragePath string

	LiveKitAPIKey    string
	LiveKitAPISecret string
	LiveKitURL       string

	LogLevel slog.Level
}

// LoadConfig layers flags (for local runs) under the environment variables
// §6.6 names, the way the teacher's "-addr" flag is the only configuration
// knob exposed on its command line.
func LoadConfig(args []string) Config {
	fs := flag.NewFlagSet("collabd", flag.ContinueOnError)
	addr := fs.String("addr", "", "address to listen on, overrides PORT")
	_ = fs.Parse(args)

	cfg := Config{
		Addr:        ":" + envOr("PORT", "5000"),
		StoragePath: envOr("STORAGE_PATH", "./data/collab"),

		LiveKitAPIKey:    os.Getenv("LIVEKIT_API_KEY"),
		LiveKitAPISecret: os.Getenv("LIVEKIT_API_SECRET"),
		LiveKitURL:       os.Getenv("LIVEKIT_URL"),

		LogLevel: parseLevel(envOr("LOG_LEVEL", "info")),
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
