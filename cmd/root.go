package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/syepes/hubitat-exporter/pkg/logcompat"
	"github.com/syepes/hubitat-exporter/pkg/promserver"
)

// version is set at build time with -ldflags "-X github.com/syepes/hubitat-exporter/cmd.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "hubitat-exporter",
	Short: "hubitat-exporter exposes the device state of a Hubitat hub as prometheus metrics",
	Long: "hubitat-exporter serves the attributes of every device published through a Hubitat Maker API\n" +
		"app in the prometheus text format. Each request to the listener triggers a fresh fetch from the hub.",
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: persistentPreRun,
	RunE:              runServer,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("config", "", "optional config file (yaml, toml or json) holding any of the long flag names as keys")
	f.CountP("verbose", "v", "increase log verbosity: -v warn, -vv info, -vvv debug, -vvvv trace. Errors are always logged.")
	f.String("log-format", "console", "log format, one of `console` or `json`")
	hubFlags(f)

	rootCmd.Flags().String("listener", "0.0.0.0:8000", "address the metrics listener binds to")
	rootCmd.Flags().Duration(
		"scrape-duration-warning",
		promserver.DefaultScrapeDurationWarning,
		"scrapes which exceed this duration log a warning. Default value 8s is 80% of the 10s default prometheus scrape_timeout.")
	telemetryFlags(rootCmd.Flags())

	bindEnv(map[string]string{
		"listener":   "LISTENER",
		"log-format": "LOG_FORMAT",
	})
}

// bindEnv maps flag names to the environment variables that may also set them.
func bindEnv(vars map[string]string) {
	for name, env := range vars {
		if err := viper.BindEnv(name, env); err != nil {
			panic(fmt.Sprintf("binding %s to %s: %v", name, env, err))
		}
	}
}

func persistentPreRun(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	if cfg := viper.GetString("config"); cfg != "" {
		viper.SetConfigFile(cfg)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	l, err := newLogger(cmd.ErrOrStderr(), viper.GetInt("verbose"), viper.GetString("log-format"))
	if err != nil {
		return err
	}
	log.Logger = l
	logcompat.Init(&l)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(l.WithContext(ctx))
	return nil
}

func verbosityLevel(v int) zerolog.Level {
	switch {
	case v <= 0:
		return zerolog.ErrorLevel
	case v == 1:
		return zerolog.WarnLevel
	case v == 2:
		return zerolog.InfoLevel
	case v == 3:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

func newLogger(w io.Writer, verbosity int, format string) (zerolog.Logger, error) {
	switch strings.ToLower(format) {
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02T15:04:05"}
	case "json":
	default:
		return zerolog.Logger{}, fmt.Errorf("unknown log format %q", format)
	}
	return zerolog.New(w).
		Level(verbosityLevel(verbosity)).
		With().
		Timestamp().
		Caller().
		Logger(), nil
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, signalStop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer signalStop()
	l := log.Ctx(ctx)

	c, err := hubClientFromFlags()
	if err != nil {
		return err
	}

	detailed := viper.GetBool("hubitat-device-details")
	opts := []promserver.Option{
		promserver.WithDetailedMode(detailed),
		promserver.WithScrapeDurationWarning(viper.GetDuration("scrape-duration-warning")),
	}

	rec, telemetryHandler, err := telemetryFromFlags(ctx)
	if err != nil {
		return err
	}
	if rec != nil {
		defer rec.Shutdown(ctx)
		opts = append(opts, promserver.WithScrapeRecorder(rec))
	}

	if detailed {
		if err := c.Login(ctx); err != nil {
			l.Err(err).Msg("logging in to hub; device details will use simple labels")
		}
	}

	lis, err := net.Listen("tcp", viper.GetString("listener"))
	if err != nil {
		return fmt.Errorf("binding metrics listener: %w", err)
	}
	servers := []*http.Server{{Handler: promserver.NewServer(ctx, c, opts...)}}
	listeners := []net.Listener{lis}

	if telemetryHandler != nil {
		tlis, err := net.Listen("tcp", viper.GetString("telemetry-listener"))
		if err != nil {
			lis.Close()
			return fmt.Errorf("binding telemetry listener: %w", err)
		}
		servers = append(servers, &http.Server{Handler: telemetryHandler})
		listeners = append(listeners, tlis)
	}

	errc := make(chan error, len(servers))
	for i, hs := range servers {
		go func(hs *http.Server, lis net.Listener) {
			l.Info().Str("addr", lis.Addr().String()).Msg("starting http server")
			if err := hs.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}(hs, listeners[i])
	}

	select {
	case <-ctx.Done():
		l.Info().Msg("shutting down")
	case err = <-errc:
		l.Err(err).Msg("serving http")
	}
	sCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, hs := range servers {
		if err := hs.Shutdown(sCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Err(err).Msg("shutting down http server")
		}
	}
	return err
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
