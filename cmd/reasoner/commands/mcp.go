package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/reasoner/pkg/mcpserver/reasoner"
)

var mcpDir string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the engine as MCP tools over stdio",
	Long: `Serve the reasoner as a Model Context Protocol server on stdin and
stdout. The "reason" tool answers a prompt and the "sessions" tool lists
the sessions of this process.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpDir, "directory", "", "Working directory")
}

func runMCP(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(mcpDir)
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

	s := reasoner.NewServer(reasoner.Deps{
		Engine:   a.engine,
		Sessions: a.sessions,
		Runner:   a.processor,
	})
	return server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
}
