package main

import (
	"fmt"
	"io"
	"os"

	"github.com/always-cache/cachejar"
	"github.com/always-cache/cachejar/metrics"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// CLI flags
	configFlag         string
	verbosityDebugFlag bool
	verbosityTraceFlag bool
	logFilenameFlag    string
	disableCacheFlag   bool
	disableCookiesFlag bool

	// loaded in the root pre-run
	fileConfig cachejar.FileConfig

	// this is set by goreleaser
	version string
)

var rootCmd = &cobra.Command{
	Use:   "cachejar",
	Short: "HTTP client with a persistent cache and cookie jar",
	Long: `cachejar sends HTTP requests through an RFC 9111 cache and an
RFC 6265 cookie jar. Stored responses and cookies survive between runs
when a cache db and a cookie file are configured.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	if version == "" {
		version = "DEV"
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFlag, "config", "c", "", "Config file (YAML)")
	flags.BoolVarP(&verbosityDebugFlag, "verbose", "v", false, "Verbosity: debug logging")
	flags.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flags.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stderr)")
	flags.BoolVar(&disableCacheFlag, "no-cache", false, "Do not cache responses")
	flags.BoolVar(&disableCookiesFlag, "no-cookies", false, "Do not send or store cookies")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cookiesCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup configures logging and loads the config file.
func setup(cmd *cobra.Command, args []string) error {
	// set log level
	logLevel := zerolog.WarnLevel
	if verbosityDebugFlag {
		logLevel = zerolog.DebugLevel
	}
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stderr, stdout carries response bodies
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stderr})
	if logFilenameFlag != "" {
		logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("cannot open log file: %w", err)
		}
		logOutputs = append(logOutputs, logFileOutput)
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	if configFlag != "" {
		config, err := cachejar.LoadConfig(configFlag)
		if err != nil {
			return err
		}
		fileConfig = config
	}
	if disableCacheFlag {
		fileConfig.Cache.Disable = true
	}
	if disableCookiesFlag {
		fileConfig.Cookies.Disable = true
	}
	log.Debug().Str("config", configFlag).Msg("Loaded configuration")
	return nil
}

// openTransport builds the transport from the loaded configuration.
// The returned function closes the cache db and the cookie file.
func openTransport(m *metrics.Metrics) (*cachejar.Transport, func() error, error) {
	config, closeAll, err := fileConfig.Build()
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	config.Logger = &log.Logger
	config.Metrics = m
	return cachejar.New(config), closeAll, nil
}
