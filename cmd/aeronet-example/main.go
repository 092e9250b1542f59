// Command aeronet-example starts a single aeronet server (or a
// SO_REUSEPORT worker shard) from a viper-loaded config file, mirroring
// the shape of the library's own single-http-server demo: bind, serve a
// couple of routes, and drain cleanly on SIGINT/SIGTERM.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aeronet-go/aeronet/internal/obslog"
	"github.com/aeronet-go/aeronet/server"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "aeronet-example",
		Short: "Run an example aeronet HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (default: aeronet.yaml in the working directory)")
	return cmd
}

func loadConfig(path string) (server.Config, error) {
	v := viper.New()
	v.SetConfigName("aeronet")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if path != "" {
		v.SetConfigFile(path)
	}
	v.SetEnvPrefix("AERONET")
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("numWorkers", 1)
	v.SetDefault("enableKeepAlive", true)
	v.SetDefault("h2cEnabled", false)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return server.Config{}, fmt.Errorf("aeronet-example: reading config: %w", err)
		}
	}

	var cfg server.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return server.Config{}, fmt.Errorf("aeronet-example: unmarshal config: %w", err)
	}
	return cfg, nil
}

// shard is the minimal surface run needs, satisfied by both *server.Server
// and *server.Workers so the drain/wait sequence below is written once
// regardless of NumWorkers. BeginDrain's own deadline enforcement (driven
// off each worker's maintenance tick) calls Stop once the deadline passes
// or every connection has drained, so run need not call Stop itself.
type shard interface {
	BeginDrain(deadline time.Duration)
}

func run(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	cfg.Logger = obslog.New(os.Stdout, logiface.LevelInformational)

	router := exampleRouter()

	var (
		sh   shard
		wait func() error
	)
	if cfg.NumWorkers > 1 {
		w, err := server.StartWorkers(cfg, router)
		if err != nil {
			return fmt.Errorf("aeronet-example: starting workers: %w", err)
		}
		sh, wait = w, w.Wait
	} else {
		s, err := server.New(cfg, router)
		if err != nil {
			return fmt.Errorf("aeronet-example: building server: %w", err)
		}
		done := make(chan error, 1)
		go func() { done <- s.Start() }()
		if _, err := s.Port(); err != nil {
			return fmt.Errorf("aeronet-example: binding listener: %w", err)
		}
		sh, wait = s, func() error { return <-done }
	}

	waitForShutdownSignal()
	sh.BeginDrain(10 * time.Second)
	return wait()
}

func waitForShutdownSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
}

// exampleRouter wires up the handful of routes the demo exposes: a plain
// health check, an echo endpoint, and a WebSocket echo endpoint.
func exampleRouter() server.Router {
	return server.RouterFunc(func(method, path string) server.RoutingResult {
		switch path {
		case "/healthz":
			return server.RoutingResult{Handler: healthHandler}
		case "/echo":
			return server.RoutingResult{Handler: echoHandler}
		case "/ws/echo":
			return server.RoutingResult{WebSocket: &server.WebSocketEndpoint{
				OnMessage: echoWebSocketMessage,
			}}
		default:
			return server.RoutingResult{}
		}
	})
}
