// Command fluxpool serves static files from a fixed worker pool.
//
// Usage:
//
//	fluxpool -config fluxpool.yaml
//
// Every setting can be overridden from the environment, e.g.
// FLUXPOOL_SERVER_WORKERS=32.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fluxorio/fluxpool/pkg/auth"
	"github.com/fluxorio/fluxpool/pkg/config"
	"github.com/fluxorio/fluxpool/pkg/core"
	"github.com/fluxorio/fluxpool/pkg/db"
	"github.com/fluxorio/fluxpool/pkg/events"
	"github.com/fluxorio/fluxpool/pkg/httpd"
	"github.com/fluxorio/fluxpool/pkg/observability/otel"
	"github.com/fluxorio/fluxpool/pkg/observability/prometheus"
	"github.com/fluxorio/fluxpool/pkg/tcp"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("FLUXPOOL_CONFIG"), "path to a YAML or JSON config file")
	dumpConfig := flag.Bool("dump-config", false, "print the effective configuration and exit")
	hashPassword := flag.Bool("hash-password", false, "read a password from stdin, print its bcrypt hash and exit")
	adminToken := flag.String("admin-token", "", "print an admin JWT for `subject`, signed with metrics.auth.jwt_secret, and exit")
	flag.Parse()

	if *hashPassword {
		if err := printPasswordHash(os.Stdin, os.Stdout); err != nil {
			log.Fatalf("hash-password: %v", err)
		}
		return
	}

	cfg, err := config.LoadApp(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *adminToken != "" {
		if err := printAdminToken(os.Stdout, cfg.Metrics.Auth, *adminToken); err != nil {
			log.Fatalf("admin-token: %v", err)
		}
		return
	}
	if *dumpConfig {
		if err := config.WriteYAML(os.Stdout, cfg); err != nil {
			log.Fatalf("config: %v", err)
		}
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fluxpool: %v", err)
	}
}

func run(cfg *config.AppConfig) error {
	level, err := core.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := core.NewLogger(os.Stderr, level)

	err = otel.Initialize(context.Background(), otel.Config{
		ServiceName:    "fluxpool",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := otel.Shutdown(ctx); err != nil {
			logger.Warnf("tracing shutdown: %v", err)
		}
	}()

	metrics := prometheus.GetMetrics()

	var sinks []events.Sink
	if cfg.Log.Access {
		sinks = append(sinks, events.LogSink{Logger: logger})
	}
	if cfg.Events.NATSURL != "" {
		natsSink, err := events.NewNATSSink(events.NATSConfig{
			URL:     cfg.Events.NATSURL,
			Subject: cfg.Events.Subject,
			Name:    "fluxpool",
		})
		if err != nil {
			return fmt.Errorf("events: %w", err)
		}
		defer natsSink.Close()
		sinks = append(sinks, natsSink)
		logger.Infof("publishing access events on %s", natsSink.Subject())
	}

	if cfg.Events.DBDriver != "" {
		pool, err := db.NewPool(db.DefaultPoolConfig(cfg.Events.DBDriver, cfg.Events.DBDSN))
		if err != nil {
			return fmt.Errorf("events: %w", err)
		}
		defer pool.Close()
		sqlSink, err := events.NewSQLSink(context.Background(), pool, cfg.Events.DBTable, 0)
		if err != nil {
			return fmt.Errorf("events: %w", err)
		}
		sinks = append(sinks, sqlSink)
		logger.Infof("writing access events to %s table %s", pool.Driver(), sqlSink.Table())
	}

	handler, err := httpd.NewStaticHandler(cfg.Server.Root,
		httpd.WithServerName(cfg.Server.Name),
		httpd.WithLogger(logger),
		httpd.WithRecorder(metrics),
		httpd.WithSink(events.Multi(sinks...)),
	)
	if err != nil {
		return err
	}
	busy := &httpd.BusyResponder{
		RetryAfter: cfg.Server.RetryAfter,
		ServerName: cfg.Server.Name,
		Recorder:   metrics,
		Logger:     logger,
	}

	tcpConfig, err := tcpServerConfig(cfg.Server)
	if err != nil {
		return err
	}
	srv, err := tcp.NewTCPServer(tcpConfig,
		tcp.WithLogger(logger),
		tcp.WithPoolObserver(prometheus.NewPoolObserver(metrics)),
		tcp.WithRejectHandler(busy.Reject),
	)
	if err != nil {
		return err
	}
	if otel.IsInitialized() {
		srv.Use(otel.ConnMiddleware(nil))
	}
	srv.SetHandler(handler.ServeConn)

	var admin *adminServer
	if cfg.Metrics.Enabled {
		if err := metrics.RegisterServer(srv); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		admin = newAdminServer(cfg.Metrics, srv, logger)
		go func() {
			if err := admin.ListenAndServe(); err != nil {
				logger.Errorf("admin server: %v", err)
			}
		}()
	}

	logger.Infof("serving %s on %s", handler.Root(), cfg.Server.Addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Infof("received %s, shutting down", sig)
	case runErr = <-errCh:
	}

	if err := srv.Stop(); err != nil {
		logger.Warnf("stop: %v", err)
	}
	if admin != nil {
		if err := admin.Shutdown(); err != nil {
			logger.Warnf("admin shutdown: %v", err)
		}
	}

	m := srv.Metrics()
	logger.Infof("handled %d connections (%d rejected, %d errors)",
		m.HandledConnections, m.RejectedConnections, m.ErrorConnections)
	return runErr
}

func printPasswordHash(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

// adminTokenTTL is the lifetime of tokens minted by -admin-token
const adminTokenTTL = 365 * 24 * time.Hour

func printAdminToken(w io.Writer, cfg config.AdminAuthConfig, subject string) error {
	if cfg.JWTSecret == "" {
		return errors.New("metrics.auth.jwt_secret is not set")
	}
	token, err := auth.NewTokenGenerator([]byte(cfg.JWTSecret), cfg.JWTIssuer).Generate(subject, adminTokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// tcpServerConfig maps the file configuration onto the TCP server's
func tcpServerConfig(s config.ServerConfig) (*tcp.TCPServerConfig, error) {
	c := tcp.DefaultTCPServerConfig(s.Addr)
	c.Workers = s.Workers
	c.MaxQueue = s.MaxQueue
	c.MaxConns = s.MaxConns
	c.ReadTimeout = s.ReadTimeout
	c.WriteTimeout = s.WriteTimeout
	if s.ShutdownTimeout > 0 {
		c.ShutdownTimeout = s.ShutdownTimeout
	}
	if s.StartupTimeout > 0 {
		c.StartupTimeout = s.StartupTimeout
	}

	if s.TLS.Enabled() {
		cert, err := tls.LoadX509KeyPair(s.TLS.CertFile, s.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tls: %w", err)
		}
		c.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}
	return c, nil
}
