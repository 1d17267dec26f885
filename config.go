/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	scoreStoreSQLite = "sqlite"
	scoreStoreJSON   = "json"
)

type Config struct {
	bind            string
	debounce        time.Duration
	port            int
	prefix          string
	profile         bool
	rateBurst       int
	rateLimit       int
	scorePath       string
	scoreStore      string
	sessionTimeout  time.Duration
	suggestionLimit int
	tlsCert         string
	tlsKey          string
	upstream        string
	upstreamTimeout time.Duration
	userAgent       string
	verbose         bool
	version         bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}

	u, err := url.Parse(c.upstream)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid upstream url (must be http or https): %q", c.upstream)
	}
	c.upstream = strings.TrimSuffix(c.upstream, "/")

	if c.upstreamTimeout <= 0 {
		return fmt.Errorf("invalid upstream timeout (must be positive): %s", c.upstreamTimeout)
	}
	if c.debounce < 0 {
		return fmt.Errorf("invalid debounce (must not be negative): %s", c.debounce)
	}
	if c.suggestionLimit < 1 {
		return fmt.Errorf("invalid suggestion limit (must be at least 1): %d", c.suggestionLimit)
	}
	if c.rateLimit < 0 || c.rateBurst < 1 {
		return fmt.Errorf("invalid rate limit (limit must be >= 0, burst >= 1): %d/%d", c.rateLimit, c.rateBurst)
	}

	switch c.scoreStore {
	case scoreStoreSQLite, scoreStoreJSON:
	default:
		return fmt.Errorf("invalid score store (must be %q or %q): %q", scoreStoreSQLite, scoreStoreJSON, c.scoreStore)
	}
	if c.scorePath == "" {
		return errors.New("--score-path must not be empty")
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TAGCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "tagchain",
		Short:         "Chain together fandom tags that co-occur on the Archive.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: TAGCHAIN_BIND)")
	fs.DurationVar(&cfg.debounce, "debounce", 400*time.Millisecond, "quiet period before an autocomplete lookup is sent (env: TAGCHAIN_DEBOUNCE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: TAGCHAIN_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: TAGCHAIN_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: TAGCHAIN_PROFILE)")
	fs.IntVar(&cfg.rateBurst, "rate-burst", 10, "burst size for per-client api rate limiting (env: TAGCHAIN_RATE_BURST)")
	fs.IntVar(&cfg.rateLimit, "rate-limit", 60, "api requests allowed per client per minute, 0 to disable (env: TAGCHAIN_RATE_LIMIT)")
	fs.StringVar(&cfg.scorePath, "score-path", "tagchain.db", "path to the best score database or json file (env: TAGCHAIN_SCORE_PATH)")
	fs.StringVar(&cfg.scoreStore, "score-store", scoreStoreSQLite, "best score backend: sqlite or json (env: TAGCHAIN_SCORE_STORE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle games are discarded (env: TAGCHAIN_SESSION_TIMEOUT)")
	fs.IntVar(&cfg.suggestionLimit, "suggestion-limit", 30, "maximum autocomplete suggestions shown (env: TAGCHAIN_SUGGESTION_LIMIT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: TAGCHAIN_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: TAGCHAIN_TLS_KEY)")
	fs.StringVar(&cfg.upstream, "upstream", "https://archiveofourown.org", "base url of the tag archive (env: TAGCHAIN_UPSTREAM)")
	fs.DurationVar(&cfg.upstreamTimeout, "upstream-timeout", 15*time.Second, "timeout for requests to the tag archive (env: TAGCHAIN_UPSTREAM_TIMEOUT)")
	fs.StringVar(&cfg.userAgent, "user-agent", "Mozilla/5.0 (compatible; TagChainGame/1.0)", "user agent sent to the tag archive (env: TAGCHAIN_USER_AGENT)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: TAGCHAIN_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: TAGCHAIN_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("tagchain v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
