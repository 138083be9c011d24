// Package cli defines the brandwatch command tree.
package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FranksOps/brandwatch/internal/app"
	"github.com/FranksOps/brandwatch/internal/config"
)

// state is shared by every command: flags are parsed into viper, then
// PersistentPreRunE decodes the Config once.
type state struct {
	v          *viper.Viper
	configFile string
	envFile    string

	cfg    *config.Config
	logger *slog.Logger
	app    *app.App
}

// NewRootCmd builds the brandwatch command tree.
func NewRootCmd() *cobra.Command {
	st := &state{v: config.New()}

	cmd := &cobra.Command{
		Use:   "brandwatch",
		Short: "Track brand mentions across search, social platforms and the web",
		Long: "brandwatch searches the web for a brand, scrapes the mentions it finds on social\n" +
			"platforms, scores sentiment and writes a report. Missing provider credentials\n" +
			"degrade to free fallbacks and clearly labelled placeholder data.",
		Example: `  # Search only
  brandwatch search "Acme Robotics"

  # Full run with platform scraping and a rendered report
  brandwatch monitor "Acme Robotics" --scrape --render

  # Serve stored runs
  brandwatch serve --addr :5000`,
		SilenceUsage: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return st.load(c)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if st.app != nil {
				return st.app.Close()
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&st.configFile, "config", "", "Config file (default: ./brandwatch.yaml when present)")
	pf.StringVar(&st.envFile, "env-file", ".env", "Load credentials from this dotenv file when it exists")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("storage", "", "Storage backend: json, csv, sqlite or postgres")
	pf.String("storage-location", "", "Directory, file or DSN for the storage backend")
	st.bind("log.level", pf.Lookup("log-level"))
	st.bind("log.format", pf.Lookup("log-format"))
	st.bind("storage.backend", pf.Lookup("storage"))
	st.bind("storage.location", pf.Lookup("storage-location"))

	cmd.AddCommand(
		newSearchCmd(st),
		newScrapeCmd(st),
		newMonitorCmd(st),
		newServeCmd(st),
		newResultsCmd(st),
	)
	return cmd
}

func (st *state) bind(key string, flag *pflag.Flag) {
	if err := st.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("cli: bind %s: %v", key, err))
	}
}

func (st *state) load(c *cobra.Command) error {
	if st.envFile != "" {
		if err := config.LoadDotEnv(st.envFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load(st.v, st.configFile)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger(c.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	st.cfg = cfg
	st.logger = logger
	return nil
}

// App builds the components on first use.
func (st *state) App() (*app.App, error) {
	if st.app != nil {
		return st.app, nil
	}
	a, err := app.New(st.cfg, st.logger)
	if err != nil {
		return nil, err
	}
	st.app = a
	return a, nil
}

// parseParams turns repeated key=value flags into a map.
func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
