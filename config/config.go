package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Selectors holds the CSS selectors the resolver waits for and reads.
type Selectors struct {
	OwnerName       string
	AssetAnchor     string
	CollectionLabel string
	CollectionLink  string
	BestOffer       string
}

// Config holds resolver configuration.
type Config struct {
	BaseURL    string
	SortFilter string

	AddressesFile  string
	SettingsFile   string
	UserAgentsFile string
	ProxiesFile    string

	OutputFile   string
	OutputFormat string // pipe, jsonl, or dual
	ArchiveDB    string

	Workers  int
	UseProxy bool
	Headless bool

	ChromePath string

	PremiumTimeout  time.Duration
	AnchorTimeout   time.Duration
	StatsTimeout    time.Duration
	LookupTimeout   time.Duration
	NavigateTimeout time.Duration

	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	ProxyQuarantine time.Duration

	Selectors Selectors

	LogFile     string
	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns the defaults for the public marketplace.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://opensea.io/",
		SortFilter:      "?search[sortBy]=UNIT_PRICE&search[sortAscending]=false",
		AddressesFile:   "BotRes/Addresses.csv",
		SettingsFile:    "BotRes/Settings.json",
		UserAgentsFile:  "BotRes/user_agents.txt",
		ProxiesFile:     "BotRes/proxies.txt",
		OutputFile:      "BotRes/Valid.csv",
		OutputFormat:    "pipe",
		Workers:         DefaultThreadsCount,
		UseProxy:        true,
		Headless:        false,
		PremiumTimeout:  10 * time.Second,
		AnchorTimeout:   10 * time.Second,
		StatsTimeout:    5 * time.Second,
		LookupTimeout:   2 * time.Second,
		NavigateTimeout: 60 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    500 * time.Millisecond,
		RetryBackoffMax: 5 * time.Second,
		ProxyQuarantine: 10 * time.Minute,
		Selectors: Selectors{
			OwnerName:       `[class="sc-29427738-0 sc-bdnxRM dKfiYh iIKkrq"]`,
			AssetAnchor:     `[class="sc-1f719d57-0 fKAlPV Asset--anchor"]`,
			CollectionLabel: `[class="sc-29427738-0 sc-d0e902a1-3 sc-21df3ef5-6 sc-ec8f13a5-5 eLucQB hVPIAI kixOOB"]`,
			CollectionLink:  `[class="sc-1f719d57-0 fKAlPV CollectionLink--link"]`,
			BestOffer:       `[class="sc-1a668f09-0 UitxP Price--fiat-amount Price--fiat-amount-secondary"]`,
		},
		LogFile: "resolver.log",
	}
}

// HomeURL returns the collection page for address, sorted by unit price.
func (c *Config) HomeURL(address string) string {
	return c.BaseURL + address + c.SortFilter
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if !strings.HasSuffix(c.BaseURL, "/") {
		return fmt.Errorf("base URL must end with a slash")
	}

	if c.AddressesFile == "" {
		return fmt.Errorf("addresses file cannot be empty")
	}
	if c.UserAgentsFile == "" {
		return fmt.Errorf("user agents file cannot be empty")
	}
	if c.UseProxy && c.ProxiesFile == "" {
		return fmt.Errorf("proxies file cannot be empty when proxies are enabled")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	for name, d := range map[string]time.Duration{
		"premium timeout":  c.PremiumTimeout,
		"anchor timeout":   c.AnchorTimeout,
		"stats timeout":    c.StatsTimeout,
		"lookup timeout":   c.LookupTimeout,
		"navigate timeout": c.NavigateTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.ProxyQuarantine < 0 {
		return fmt.Errorf("proxy quarantine cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "pipe" && c.OutputFormat != "jsonl" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be pipe, jsonl, or dual")
	}

	sel := c.Selectors
	if sel.OwnerName == "" || sel.AssetAnchor == "" || sel.CollectionLabel == "" || sel.CollectionLink == "" || sel.BestOffer == "" {
		return fmt.Errorf("selectors cannot be empty")
	}

	return nil
}
