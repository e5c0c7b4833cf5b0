package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the resolver needs to know about the target site.
// Zero values are filled in by Default; a YAML file overrides field by field.
type Config struct {
	Site     SiteConfig    `yaml:"site"`
	Markers  MarkerConfig  `yaml:"markers"`
	Headers  HeaderConfig  `yaml:"headers"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Server   ServerConfig  `yaml:"server"`
}

// SiteConfig identifies the target site and its API surface.
type SiteConfig struct {
	// Hosts accepted as belonging to the site (apex, www, mobile).
	Hosts []string `yaml:"hosts"`
	// MobileHost is the hostname desktop URLs are rewritten to.
	MobileHost string `yaml:"mobile_host"`
	// DesktopHosts are rewritten to MobileHost during normalization.
	DesktopHosts []string `yaml:"desktop_hosts"`
	// PathMarker must appear in the URL path for the input to be accepted.
	PathMarker string `yaml:"path_marker"`
	// APITemplates are tried in order; %s is replaced by the video id.
	// Several path shapes have existed over time, so all are kept.
	APITemplates []string `yaml:"api_templates"`
	// APIPathMarker tags in-browser responses worth a JSON parse attempt.
	APIPathMarker string `yaml:"api_path_marker"`
}

// MarkerConfig controls which strings qualify as candidate media URLs.
// The strict set is load-bearing; the loose set is only consulted by the
// browser response observer, which sees full request URLs rather than
// arbitrary JSON strings.
type MarkerConfig struct {
	Strict []string `yaml:"strict"`
	Loose  []string `yaml:"loose"`
}

// HeaderConfig is the browser-like identity presented to the site.
type HeaderConfig struct {
	MobileUserAgent  string `yaml:"mobile_user_agent"`
	DesktopUserAgent string `yaml:"desktop_user_agent"`
	Accept           string `yaml:"accept"`
	AcceptLanguage   string `yaml:"accept_language"`
	Referer          string `yaml:"referer"`
}

// TimeoutConfig bounds every network-facing step.
type TimeoutConfig struct {
	HTTP          time.Duration `yaml:"http"`
	MaxRedirects  int           `yaml:"max_redirects"`
	Navigation    time.Duration `yaml:"navigation"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	BrowserProbe  time.Duration `yaml:"browser_probe"`
	OverallBudget time.Duration `yaml:"overall_budget"`
}

// ServerConfig configures the optional HTTP front-end.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration for dongchedi.com.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			Hosts:        []string{"dongchedi.com", "www.dongchedi.com", "m.dongchedi.com"},
			MobileHost:   "m.dongchedi.com",
			DesktopHosts: []string{"dongchedi.com", "www.dongchedi.com"},
			PathMarker:   "/video/",
			APITemplates: []string{
				"https://m.dongchedi.com/api/video/get_video_play_info/?video_id=%s",
				"https://www.dongchedi.com/motor/api/video_info/?video_id=%s",
				"https://www.dongchedi.com/api/video/get_video_play_info/?video_id=%s",
				"https://m.dongchedi.com/motor/api/video_info/?video_id=%s",
				"https://www.dongchedi.com/api/article/get_video_info_by_id/?video_id=%s",
			},
			APIPathMarker: "/api/",
		},
		Markers: MarkerConfig{
			Strict: []string{".mp4", ".m3u8"},
			Loose:  []string{"/video/play/"},
		},
		Headers: HeaderConfig{
			MobileUserAgent:  "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/604.1",
			DesktopUserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
			Accept:           "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			AcceptLanguage:   "zh-CN,zh;q=0.9,en;q=0.8",
			Referer:          "https://www.dongchedi.com/",
		},
		Timeouts: TimeoutConfig{
			HTTP:          10 * time.Second,
			MaxRedirects:  10,
			Navigation:    45 * time.Second,
			SettleDelay:   5 * time.Second,
			BrowserProbe:  15 * time.Second,
			OverallBudget: 60 * time.Second,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			MaxBodyBytes:    1 << 20,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults. A missing path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Site.Hosts) == 0 {
		return fmt.Errorf("config: site.hosts must not be empty")
	}
	if c.Site.MobileHost == "" {
		return fmt.Errorf("config: site.mobile_host must not be empty")
	}
	if len(c.Site.APITemplates) == 0 {
		return fmt.Errorf("config: site.api_templates must not be empty")
	}
	if len(c.Markers.Strict) == 0 {
		return fmt.Errorf("config: markers.strict must not be empty")
	}
	if c.Timeouts.HTTP <= 0 {
		return fmt.Errorf("config: timeouts.http must be positive")
	}
	return nil
}
