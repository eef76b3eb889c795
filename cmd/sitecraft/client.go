package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/sitecraft/internal/client"
	"github.com/kalambet/sitecraft/internal/config"
	"github.com/kalambet/sitecraft/internal/poller"
	"github.com/kalambet/sitecraft/internal/site"
)

// Plan and generate calls wait for a model round trip on the server.
const clientTimeout = 90 * time.Second

var newClient = func() (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newClientFor(cfg), nil
}

func newClientFor(cfg config.Config) *client.Client {
	return client.New(cfg.ServerURL(), &http.Client{Timeout: clientTimeout})
}

// pollConfig is the schedule used by generate --wait and watch.
var pollConfig = poller.DefaultConfig()

// readRequestFile loads a GenerationRequest from a YAML (or JSON) file.
func readRequestFile(path string) (site.GenerationRequest, error) {
	var req site.GenerationRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("reading request file: %w", err)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parsing request file %s: %w", path, err)
	}
	return req, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
