package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
)

type siteStatus struct {
	URL           string     `json:"url"`
	Status        string     `json:"status"`
	Uptime        string     `json:"uptime"`
	Downtime      string     `json:"downtime"`
	UptimePercent string     `json:"uptime_percent"`
	LastChecked   *time.Time `json:"last_checked"`
	ResponseTime  *float64   `json:"response_time"`
	StatusCode    *int       `json:"status_code"`
}

type statusResponse struct {
	Sites         map[string]siteStatus `json:"sites"`
	OverallStatus string                `json:"overall_status"`
	Timestamp     time.Time             `json:"timestamp"`
	Version       string                `json:"version"`
}

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	pflag.StringVar(&api, "api", api, "base URL of the statusmonitor API")
	timeout := pflag.Duration("timeout", 10*time.Second, "request timeout")
	pflag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := fetchStatus(ctx, strings.TrimRight(api, "/"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error contacting API:", err)
		os.Exit(1)
	}
	render(os.Stdout, st, time.Now())
	if st.OverallStatus != "operational" {
		os.Exit(2)
	}
}

func fetchStatus(ctx context.Context, base string) (statusResponse, error) {
	var st statusResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("API returned status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

func render(out io.Writer, st statusResponse, now time.Time) {
	names := make([]string, 0, len(st.Sites))
	for n := range st.Sites {
		names = append(names, n)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SITE\tSTATUS\tUPTIME %\tUPTIME\tDOWNTIME\tRESPONSE\tLAST CHECK")
	for _, n := range names {
		s := st.Sites[n]
		resp := "-"
		if s.ResponseTime != nil {
			resp = fmt.Sprintf("%.0f ms", *s.ResponseTime*1000)
		}
		last := "never"
		if s.LastChecked != nil {
			last = humanize.RelTime(*s.LastChecked, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", n, s.Status, s.UptimePercent, s.Uptime, s.Downtime, resp, last)
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "\noverall: %s (%d sites, server %s)\n", st.OverallStatus, len(names), st.Version)
}
