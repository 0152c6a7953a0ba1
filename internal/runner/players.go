package runner

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	nitradoAccept      = "application/x.hytale.nitrado.query+json;version=1"
	nitradoDefaultHost = "127.0.0.1"
	nitradoDefaultPort = 7003
	nitradoTimeout     = 2 * time.Second
)

// NitradoConfigPath is where the Nitrado web server plugin keeps its bind
// settings, relative to the instance directory.
var NitradoConfigPath = filepath.Join("Server", "mods", "Nitrado_WebServer", "config.json")

type nitradoConfig struct {
	BindHost string `json:"BindHost"`
	BindPort int    `json:"BindPort"`
	Tls      struct {
		Insecure bool `json:"Insecure"`
	} `json:"Tls"`
}

type nitradoQuery struct {
	Basic struct {
		CurrentPlayers *int `json:"CurrentPlayers"`
	} `json:"Basic"`
	Universe struct {
		CurrentPlayers *int `json:"CurrentPlayers"`
	} `json:"Universe"`
}

// PlayerQuery asks a running server how many players are online. A nil
// result means the count is not known.
type PlayerQuery func(ctx context.Context, instanceDir string) *int

var queryClient = &http.Client{
	Timeout: nitradoTimeout,
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	},
}

// QueryNitradoPlayers reads the player count from the Nitrado query plugin.
// Instances without the plugin's web server config report nil.
func QueryNitradoPlayers(ctx context.Context, instanceDir string) *int {
	data, err := os.ReadFile(filepath.Join(instanceDir, NitradoConfigPath))
	if err != nil {
		return nil
	}
	var cfg nitradoConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	host := cfg.BindHost
	if host == "" {
		host = nitradoDefaultHost
	}
	port := cfg.BindPort
	if port == 0 {
		port = nitradoDefaultPort
	}
	scheme := "https"
	if cfg.Tls.Insecure {
		scheme = "http"
	}

	ctx, cancel := context.WithTimeout(ctx, nitradoTimeout)
	defer cancel()

	url := fmt.Sprintf("%s://%s:%d/Nitrado/Query", scheme, host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", nitradoAccept)

	resp, err := queryClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var q nitradoQuery
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return nil
	}
	if q.Basic.CurrentPlayers != nil {
		return q.Basic.CurrentPlayers
	}
	return q.Universe.CurrentPlayers
}
