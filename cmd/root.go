package cmd

import (
	"context"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/splitdl/internal/config"
	"github.com/tanq16/splitdl/internal/output"
	"github.com/tanq16/splitdl/internal/scheduler"
	"github.com/tanq16/splitdl/internal/utils"
)

var (
	workers       int
	connections   int
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	bearerToken   string
	rateLimit     string
	headers       []string
	tempDir       string
	maxRetries    int
	maxRedirects  int
	noResume      bool
	overwrite     bool
	debug         bool
	logFile       string
	envFile       string
)

var (
	appConfig        = &config.Config{}
	globalHTTPConfig utils.HTTPClientConfig
	globalOptions    utils.Options
)

var SplitdlVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "splitdl",
	Short:   "splitdl is a resumable multi-connection downloader",
	Version: SplitdlVersion,
	Long: `splitdl downloads files over several concurrent range requests, or
segmented media piece by piece, and resumes interrupted runs from where
they stopped.

Examples:
  splitdl http https://example.com/file.iso -c 8
  splitdl m3u8 https://example.com/live/index.m3u8 -o stream.ts
  splitdl segments segments.yaml -o video.ts
  splitdl s3 s3://bucket/path/to/file.zip --profile archive
  splitdl batch downloads.yaml -w 3`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 1, "Number of downloads to run in parallel")
	rootCmd.PersistentFlags().IntVarP(&connections, "connections", "c", utils.DefaultConnections, "Number of connections per download (above 5 enables high-thread-mode)")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 5*time.Minute, "Connection timeout (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "bearer-token", "", "Bearer token sent with every request")
	rootCmd.PersistentFlags().StringVar(&rateLimit, "limit-rate", "", "Bandwidth limit per download (e.g., 2MiB, 500KB)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().StringVar(&tempDir, "temp-dir", "", "Directory for segment temp files (default: .splitdl-temp next to the output)")
	rootCmd.PersistentFlags().IntVar(&maxRedirects, "max-redirects", utils.DefaultMaxRedirects, "Redirects to follow before giving up (0 disables redirects)")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "retries", utils.DefaultTaskRetries, "Attempts per chunk or segment on transient errors")
	rootCmd.PersistentFlags().BoolVar(&noResume, "no-resume", false, "Discard paused state and start over")
	rootCmd.PersistentFlags().BoolVar(&overwrite, "overwrite", false, "Replace an existing output file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a file instead of stderr")
	rootCmd.PersistentFlags().Lookup("log-file").NoOptDefVal = utils.LogFile
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load defaults from this file instead of ./.env")

	rootCmd.AddCommand(newHTTPCmd())
	rootCmd.AddCommand(newSegmentsCmd())
	rootCmd.AddCommand(newM3U8Cmd())
	rootCmd.AddCommand(newS3Cmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCleanCmd())
}

func setup(cmd *cobra.Command, args []string) error {
	utils.InitLogger(debug)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("error opening log file: %v", err)
		}
		utils.SetLogOutput(f)
	}

	var err error
	if envFile != "" {
		appConfig, err = config.Load(envFile)
	} else {
		appConfig, err = config.Load()
	}
	if err != nil {
		return err
	}
	applyConfigDefaults(cmd.Flags().Changed)

	httpConfig, err := buildHTTPConfig()
	if err != nil {
		return err
	}
	globalHTTPConfig = httpConfig
	globalOptions = utils.Options{
		Headers:    httpConfig.Headers,
		NoResume:   noResume,
		Overwrite:  overwrite,
		TempDir:    tempDir,
		MaxRetries: maxRetries,
	}
	log.Debug().Str("op", "cmd/root").Msgf("Connections=%d workers=%d temp=%q", connections, workers, tempDir)
	return nil
}

// applyConfigDefaults fills flags the user did not set from the environment.
func applyConfigDefaults(changed func(string) bool) {
	if !changed("proxy") && appConfig.Proxy != "" {
		proxyURL = appConfig.Proxy
	}
	if !changed("user-agent") && appConfig.UserAgent != "" {
		userAgent = appConfig.UserAgent
	}
	if !changed("bearer-token") && appConfig.BearerToken != "" {
		bearerToken = appConfig.BearerToken
	}
	if !changed("connections") && appConfig.Connections > 0 {
		connections = appConfig.Connections
	}
	if !changed("workers") && appConfig.Workers > 0 {
		workers = appConfig.Workers
	}
	if !changed("temp-dir") && appConfig.TempDir != "" {
		tempDir = appConfig.TempDir
	}
}

func buildHTTPConfig() (utils.HTTPClientConfig, error) {
	if userAgent == "randomize" {
		userAgent = utils.GetRandomUserAgent()
	}
	// credentials in the proxy URL move to the explicit fields
	parsedProxy, err := u.Parse(proxyURL)
	if proxyURL != "" && err == nil && parsedProxy.User != nil && proxyUsername == "" {
		proxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			proxyPassword = password
		}
		parsedProxy.User = nil
		proxyURL = parsedProxy.String()
	}
	cfg := utils.HTTPClientConfig{
		Timeout:       timeout,
		KATimeout:     kaTimeout,
		ProxyURL:      proxyURL,
		ProxyUsername: proxyUsername,
		ProxyPassword: proxyPassword,
		UserAgent:     userAgent,
		Headers:       utils.ParseHeaderArgs(headers),
		BearerToken:   bearerToken,
		MaxRedirects:  maxRedirects,
		RateLimit:     appConfig.RateLimit,
	}
	if maxRedirects <= 0 {
		cfg.MaxRedirects = -1
	}
	if rateLimit != "" {
		limit, err := humanize.ParseBytes(rateLimit)
		if err != nil {
			return cfg, fmt.Errorf("invalid --limit-rate %q: %v", rateLimit, err)
		}
		cfg.RateLimit = int64(limit)
	}
	return cfg, nil
}

// newJob fills the shared settings into a job of the given type.
func newJob(jobType, url, outputPath string) utils.Job {
	return utils.Job{
		JobType:          jobType,
		URL:              url,
		OutputPath:       outputPath,
		Connections:      connections,
		Profile:          appConfig.Profile,
		HTTPClientConfig: globalHTTPConfig,
		Options:          globalOptions,
	}
}

func runJobs(cmd *cobra.Command, jobs []utils.Job) {
	s := scheduler.New(workers, scheduler.NewRegistry(appConfig.S3Endpoint))
	if err := s.Run(cmd.Context(), jobs); err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
}
