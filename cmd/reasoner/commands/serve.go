package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/reasoner/internal/logging"
	"github.com/opencode-ai/reasoner/internal/server"
	"github.com/opencode-ai/reasoner/pkg/types"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

// catalogDebounce coalesces bursts of file events while a model is copied in.
const catalogDebounce = 500 * time.Millisecond

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reasoner HTTP server",
	Long: `Start the reasoner as a server that exposes the HTTP API and the
bundled web client routes.

Model files are scanned from the configured model directory, which is
watched for new or removed files while the server runs.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 5000, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	log := logging.Component("serve")
	log.Info().Str("version", Version).Str("directory", workDir).Msg("starting reasoner server")

	go func() {
		err := a.loader.Catalog().Watch(ctx, catalogDebounce, func(files []types.ModelFile) {
			log.Info().Int("models", len(files)).Msg("model directory changed")
		})
		if err != nil {
			log.Warn().Err(err).Msg("model directory is not watched")
		}
	}()

	serverConfig := server.DefaultConfig()
	serverConfig.Port = servePort
	serverConfig.Hostname = serveHostname
	serverConfig.Directory = workDir

	srv := server.New(serverConfig, server.Deps{
		Engine:    a.engine,
		Sessions:  a.sessions,
		Processor: a.processor,
		Loader:    a.loader,
		Registry:  a.registry,
		Gateway:   a.gateway,
		Bus:       a.bus,
		AppConfig: a.config,
	})

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", srv.Addr())
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
		return err
	}
	return nil
}
