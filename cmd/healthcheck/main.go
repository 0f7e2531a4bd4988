// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the /health endpoint returns HTTP 200, and 1
// otherwise. A degraded rate-limit store still reports 200. Compile with
// CGO_ENABLED=0 for a fully static binary.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"coursehub/internal/version"
)

func main() {
	os.Exit(probe(healthURL()))
}

// healthURL honours the same port variables as the server.
func healthURL() string {
	if u := os.Getenv("COURSEHUB_HEALTHCHECK_URL"); u != "" {
		return u
	}
	port := "8000"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	if p := os.Getenv("COURSEHUB_PORT"); p != "" {
		port = p
	}
	return "http://localhost:" + port + "/health"
}

func probe(url string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 1
	}
	req.Header.Set("User-Agent", version.GetInfo().UserAgent("healthcheck"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 1
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
