package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/taskhub/internal/client/client"
	"github.com/dmitrijs2005/taskhub/internal/client/config"
)

type App struct {
	config   *config.Config
	client   client.Client
	reader   *bufio.Reader
	out      io.Writer
	userName string
}

func NewApp(c *config.Config) (*App, error) {
	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, c.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return newApp(c, apiClient, os.Stdin, os.Stdout), nil
}

func newApp(c *config.Config, cl client.Client, in io.Reader, out io.Writer) *App {
	return &App{config: c, client: cl, reader: bufio.NewReader(in), out: out}
}

func (a *App) isLoggedIn() bool {
	return a.client.LoggedIn()
}

func (a *App) getStatus() string {
	if a.isLoggedIn() && a.userName != "" {
		return fmt.Sprintf("(%s)", a.userName)
	}
	return ""
}

// Run starts the REPL and blocks until the user exits or input ends.
func (a *App) Run(ctx context.Context) {
	defer a.client.Close()

	fmt.Fprintf(a.out, "TaskHub CLI, server %s (type 'help' for commands)\n", a.config.ServerEndpointAddr)
	runREPL(ctx, a, a.getStatus, a.reader)
}
