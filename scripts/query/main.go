package main

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/query"
	"NetSeismic/internal/report"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' to query via the history API, 'direct' to query ClickHouse directly.")
	apiBase := flag.String("api", "http://localhost:8081", "Base URL of the history API")
	configPath := flag.String("config", "configs/seismic.yaml", "Configuration file holding the ClickHouse writer (direct mode)")
	role := flag.String("role", "", "Only sessions of this role (sender or receiver)")
	since := flag.Duration("since", 24*time.Hour, "Only sessions started within this window")
	limit := flag.Int("limit", 20, "Maximum number of sessions")
	id := flag.String("id", "", "Print the full report of one session instead of a listing")
	flag.Parse()

	log.Printf("Running in '%s' mode.", *mode)
	filter := query.Filter{Role: *role, Since: time.Now().Add(-*since), Limit: *limit}

	switch *mode {
	case "api":
		queryViaAPI(*apiBase, *id, filter)
	case "direct":
		directQueryClickHouse(*configPath, *id, filter)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

func queryViaAPI(base, id string, f query.Filter) {
	apiURL := base + "/api/v1/history/sessions"
	if id != "" {
		apiURL += "/" + url.PathEscape(id)
	} else {
		params := url.Values{}
		if f.Role != "" {
			params.Set("role", f.Role)
		}
		params.Set("since", f.Since.UTC().Format(time.RFC3339))
		params.Set("limit", strconv.Itoa(f.Limit))
		apiURL += "?" + params.Encode()
	}

	log.Printf("Sending request to %s", apiURL)
	resp, err := http.Get(apiURL)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}
	fmt.Println(prettyJSON.String())
}

func directQueryClickHouse(configPath, id string, f query.Filter) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	var chCfg *config.ClickHouseConfig
	for _, def := range cfg.Writers {
		if def.Type == "clickhouse" {
			chCfg = &def.ClickHouse
			break
		}
	}
	if chCfg == nil {
		log.Fatalf("No ClickHouse writer in %s", configPath)
	}

	q, err := query.NewClickHouseQuerier(*chCfg)
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	ctx := context.Background()

	if id != "" {
		r, err := q.SessionReport(ctx, id)
		if err != nil {
			log.Fatalf("Error loading session: %v", err)
		}
		report.Print(os.Stdout, r)
		return
	}

	sums, err := q.ListSessions(ctx, f)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	if len(sums) == 0 {
		log.Println("No sessions found for the specified criteria.")
		return
	}
	for _, s := range sums {
		fmt.Printf("%s  %-8s %-21s %s  %8.2fs  sent %s  received %s\n",
			s.StartTime.Format(time.RFC3339), s.Role, s.Peer, s.SessionID, s.Duration.Seconds(),
			report.FormatRate(s.MeanSentBps), report.FormatRate(s.MeanReceivedBps))
		if s.Error != "" {
			fmt.Printf("  error: %s\n", s.Error)
		}
	}
}
