package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/statusmonitor/internal/domain"
)

const (
	DefaultCheckInterval       = 60 * time.Second
	DefaultRequestTimeout      = 10 * time.Second
	DefaultMaxConcurrentChecks = 10
	DefaultAppName             = "Status Monitor"
)

var ErrNoSites = errors.New("configuration must define at least one site")

// Monitoring is the parsed monitoring config file: what to probe and how often.
type Monitoring struct {
	Name                string
	Version             string
	CheckInterval       time.Duration
	RequestTimeout      time.Duration
	MaxConcurrentChecks int
	Targets             []domain.Target
}

type fileApplication struct {
	Name                string `yaml:"name"`
	Version             string `yaml:"version"`
	CheckInterval       int    `yaml:"check_interval"`  // seconds
	RequestTimeout      int    `yaml:"request_timeout"` // seconds
	MaxConcurrentChecks int    `yaml:"max_concurrent_checks"`
}

type fileSite struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	Timeout        int    `yaml:"timeout"` // seconds
	ExpectedStatus int    `yaml:"expected_status"`
}

type file struct {
	Application   fileApplication `yaml:"application"`
	Sites         []fileSite      `yaml:"sites"`
	Notifications yaml.Node       `yaml:"notifications"`
	UI            yaml.Node       `yaml:"ui"`
}

// LoadSites reads and validates the monitoring config file. Any problem is
// returned as an error; callers must treat it as fatal.
func LoadSites(path string) (Monitoring, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Monitoring{}, fmt.Errorf("read config: %w", err)
	}
	return ParseSites(content)
}

func ParseSites(content []byte) (Monitoring, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Monitoring{}, ErrNoSites
		}
		return Monitoring{}, fmt.Errorf("parse config: %w", err)
	}

	m := Monitoring{
		Name:                strings.TrimSpace(f.Application.Name),
		Version:             strings.TrimSpace(f.Application.Version),
		CheckInterval:       seconds(f.Application.CheckInterval, DefaultCheckInterval),
		RequestTimeout:      seconds(f.Application.RequestTimeout, DefaultRequestTimeout),
		MaxConcurrentChecks: f.Application.MaxConcurrentChecks,
	}
	if m.Name == "" {
		m.Name = DefaultAppName
	}
	if m.MaxConcurrentChecks <= 0 {
		m.MaxConcurrentChecks = DefaultMaxConcurrentChecks
	}

	if len(f.Sites) == 0 {
		return Monitoring{}, ErrNoSites
	}
	seen := make(map[string]struct{}, len(f.Sites))
	for i, s := range f.Sites {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return Monitoring{}, fmt.Errorf("site %d is missing name", i)
		}
		if _, dup := seen[name]; dup {
			return Monitoring{}, fmt.Errorf("site %q is defined twice", name)
		}
		seen[name] = struct{}{}
		if !isValidHTTPURL(s.URL) {
			return Monitoring{}, fmt.Errorf("site %q has invalid url %q", name, s.URL)
		}
		if s.ExpectedStatus != 0 && (s.ExpectedStatus < 100 || s.ExpectedStatus > 599) {
			return Monitoring{}, fmt.Errorf("site %q has invalid expected_status %d", name, s.ExpectedStatus)
		}
		m.Targets = append(m.Targets, domain.Target{
			Name:           name,
			URL:            strings.TrimSpace(s.URL),
			Timeout:        seconds(s.Timeout, m.RequestTimeout),
			ExpectedStatus: s.ExpectedStatus,
		})
	}
	return m, nil
}

func seconds(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

func isValidHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
