package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vinodismyname/xlread/config"
	"github.com/vinodismyname/xlread/internal/registry"
	"github.com/vinodismyname/xlread/internal/runtime"
	"github.com/vinodismyname/xlread/internal/search"
	"github.com/vinodismyname/xlread/internal/security"
	"github.com/vinodismyname/xlread/internal/workbooks"
	"github.com/vinodismyname/xlread/pkg/version"
)

// globals holds persistent flags shared by every subcommand.
type globals struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "xlread:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   version.Name,
		Short: "Read-only Excel access over MCP and the command line",
		Long: `xlread opens .xlsx/.xlsm/.xls workbooks read-only and exposes workbook info,
range reads, all-sheet scans, quick overviews and text search, either as MCP
tools (xlread serve) or directly from the shell.`,
		Version:       version.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (.yaml, .yml or .toml)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "Dotenv file loaded before reading XLREAD_* variables")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(g),
		newToolsCmd(g),
		newInfoCmd(g),
		newReadCmd(g),
		newSheetsCmd(g),
		newOverviewCmd(g),
		newSearchCmd(g),
	)
	return root
}

// load resolves configuration: dotenv, then file, then environment.
func (g *globals) load() (config.Config, error) {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", g.envFile, err)
		}
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, nil
}

// newLogger writes JSON to stderr for the server and a console format for
// interactive commands. stdout stays reserved for protocol or command output.
func newLogger(level string, console bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if console {
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("service", version.Name).Logger()
}

// core is the engine shared by the server and the CLI subcommands.
type core struct {
	cfg      config.Config
	logger   zerolog.Logger
	security *security.Manager
	ctrl     *runtime.Controller
	mw       *runtime.Middleware
	reg      *registry.Registry
	tools    *registry.ExcelTools
}

func newCore(cfg config.Config, logger zerolog.Logger) (*core, error) {
	sec, err := security.NewManager(cfg.AllowedDirs, nil)
	if err != nil {
		return nil, err
	}
	limits := runtime.LimitsFrom(cfg.Limits)
	ctrl := runtime.NewController(limits)
	reg := registry.New()

	loader := workbooks.NewLoader(
		workbooks.WithGate(ctrl),
		workbooks.WithPathValidator(sec),
		workbooks.WithMaxFileBytes(limits.MaxFileBytes),
	)
	tools := &registry.ExcelTools{
		Loader: loader,
		Engine: search.NewEngine(search.WithMatchCeiling(limits.SearchMatchCeiling)),
		Limits: limits,
		Budget: reg.PayloadBudget(cfg.TokenModel, limits.MaxPayloadBytes),
	}
	return &core{
		cfg:      cfg,
		logger:   logger,
		security: sec,
		ctrl:     ctrl,
		mw:       runtime.NewMiddleware(ctrl, logger),
		reg:      reg,
		tools:    tools,
	}, nil
}
