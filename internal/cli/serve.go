package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/remote-engine/internal/coordinator"
	"github.com/rcliao/remote-engine/internal/engine"
	"github.com/rcliao/remote-engine/internal/observability"
	"github.com/rcliao/remote-engine/internal/server"
)

const defaultPort = 9090

func init() {
	cmd := &cobra.Command{
		Use:   "serve <executable> [-- engine args...]",
		Short: "Start the engine and serve analysis requests",
		Long: `Start a UCI engine and serve POST /analyse, POST /configure and GET /config.

Engine options given with -o are applied once at startup, in order.
MultiPV, Ponder, UCI_Variant and UCI_Chess960 are tracked but never sent to the engine.`,
		Args: cobra.MinimumNArgs(1),
		Run:  runServe,
	}

	cmd.Flags().StringArrayP("option", "o", nil, "Engine option as Name:Value (repeatable)")
	cmd.Flags().IntP("port", "p", 0, "Port to listen on (default: $REMOTE_ENGINE_PORT or 9090)")
	cmd.Flags().String("host", "127.0.0.1", "Address to bind")
	cmd.Flags().Bool("no-history", false, "Do not record served analyses")
	cmd.Flags().Duration("handshake-timeout", 10*time.Second, "Time allowed for the engine's uci handshake")

	RootCmd.AddCommand(cmd)
}

func servePort(flag int) (int, error) {
	if flag != 0 {
		return flag, nil
	}
	if env := os.Getenv("REMOTE_ENGINE_PORT"); env != "" {
		p, err := strconv.Atoi(env)
		if err != nil {
			return 0, fmt.Errorf("REMOTE_ENGINE_PORT: %w", err)
		}
		return p, nil
	}
	return defaultPort, nil
}

func runServe(cmd *cobra.Command, args []string) {
	optFlags, _ := cmd.Flags().GetStringArray("option")
	portFlag, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	noHistory, _ := cmd.Flags().GetBool("no-history")
	handshake, _ := cmd.Flags().GetDuration("handshake-timeout")

	log := newLogger()
	opts, err := parseOptions(optFlags)
	if err != nil {
		exitErr("options", err)
	}
	port, err := servePort(portFlag)
	if err != nil {
		exitErr("port", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.StartUCI(ctx, engine.UCIConfig{
		Path:             args[0],
		Args:             args[1:],
		Logger:           log,
		HandshakeTimeout: handshake,
	})
	if err != nil {
		exitErr("start engine", err)
	}
	defer eng.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	coord := coordinator.New(eng, coordinator.Config{
		Logger:  log,
		Metrics: observability.NewMetrics(reg),
	})
	if err := seedOptions(ctx, coord, opts); err != nil {
		exitErr("apply options", err)
	}

	cfg := server.Config{
		Analyzer:   coord,
		Gatherer:   reg,
		Logger:     log,
		EngineName: eng.Name(),
	}
	if !noHistory {
		s, err := openStore()
		if err != nil {
			exitErr("open store", err)
		}
		defer s.Close()
		cfg.History = s
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           server.New(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", srv.Addr, "engine", eng.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-eng.Done():
			return fmt.Errorf("engine process exited")
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		eng.Close()
		exitErr("serve", err)
	}
}
