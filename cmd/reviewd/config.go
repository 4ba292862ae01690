package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AditiPrabhuA/gomarble/browser"
	"github.com/AditiPrabhuA/gomarble/oracle"
	"github.com/AditiPrabhuA/gomarble/scrape"
)

// fileConfig is the optional YAML file shape; zero values fall through
// to each package's defaults.
type fileConfig struct {
	Browser browser.Config `yaml:"browser"`
	Oracle  oracle.Config  `yaml:"oracle"`
	Scrape  scrape.Config  `yaml:"scrape"`

	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries"`
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &fileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeDetail emits the error contract the frontend consumes.
func writeDetail(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"detail": err.Error()})
}
