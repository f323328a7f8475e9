package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v2"

	"github.com/hal9000y/sdr/internal/auth"
	"github.com/hal9000y/sdr/internal/config"
	"github.com/hal9000y/sdr/internal/logger"
	"github.com/hal9000y/sdr/internal/metrics"
	"github.com/hal9000y/sdr/internal/tool"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the SDR tools over MCP with Prometheus metrics",
		Description: "Endpoints:\n" +
			"  /mcp      MCP streamable HTTP transport\n" +
			"  /metrics  Prometheus metrics\n" +
			"  /oauth    Gmail authorization (EMAIL_PROVIDER=gmail only)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "http-addr", Value: defaultHTTPAddr, Usage: "HTTP server listen addr"},
			&cli.BoolFlag{Name: "stdio", Usage: "Enable stdio transport for MCP (disables console logging)"},
			&cli.StringFlag{Name: "log-file", Usage: "Path to log file (only used with stdio transport)"},
			&cli.StringFlag{Name: "oauth-url", Usage: "Public OAuth callback URL, defaults to http://<http-addr>/oauth"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	appCfg := appConfig(c)

	closeLogs, err := setupLogger(appCfg, c.Bool("stdio"), c.String("log-file"))
	if err != nil {
		return err
	}
	defer closeLogs()
	log := logger.Get()

	ln, err := net.Listen("tcp", c.String("http-addr"))
	if err != nil {
		return fmt.Errorf("net.Listen failed: %w", err)
	}
	redirectURL := oauthURL(ln, c.String("oauth-url"))

	svc, tok, err := newMailer(appCfg, redirectURL)
	if err != nil {
		return err
	}
	defer persistToken(tok)

	_, factory, err := newManager(appCfg, svc)
	if err != nil {
		return err
	}

	mcpSrv := tool.NewServer(factory)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server { return mcpSrv }, nil))
	mux.Handle("/metrics", metrics.Handler())
	if tok != nil {
		mux.Handle("/oauth", auth.NewHTTPHandler(tok))
		if _, err := tok.OAuthToken(); errors.Is(err, auth.ErrTokenNotSet) {
			log.Warnw("gmail is not authorized yet, sends will fail until it is", "url", redirectURL+"?redirect=1")
		}
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT)

	stopHTTP, errHTTPCh := serveHTTP(srv, ln)
	defer stopHTTP()

	var errStdioCh <-chan error
	if c.Bool("stdio") {
		var stopStdio func()
		stopStdio, errStdioCh = serveStdio(mcpSrv)
		defer stopStdio()
	}

	select {
	case err := <-errHTTPCh:
		return err
	case err := <-errStdioCh:
		return err
	case <-shutdown:
		log.Infow("shutdown signal received")
	case <-c.Context.Done():
	}

	return nil
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize the Gmail transport and store its token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "http-addr", Value: defaultHTTPAddr, Usage: "HTTP server listen addr for the OAuth callback"},
			&cli.StringFlag{Name: "oauth-url", Usage: "Public OAuth callback URL, defaults to http://<http-addr>/oauth"},
		},
		Action: runAuth,
	}
}

func runAuth(c *cli.Context) error {
	w := c.App.Writer

	ln, err := net.Listen("tcp", c.String("http-addr"))
	if err != nil {
		return fmt.Errorf("net.Listen failed: %w", err)
	}
	redirectURL := oauthURL(ln, c.String("oauth-url"))

	tok, err := newGmailToken(redirectURL)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/oauth", auth.NewHTTPHandler(tok))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	stopHTTP, errHTTPCh := serveHTTP(srv, ln)
	defer stopHTTP()

	if _, err := tok.OAuthToken(); errors.Is(err, auth.ErrTokenNotSet) {
		_, _ = fmt.Fprintf(w, "Open %s?redirect=1 to authorize Gmail sending\n", redirectURL)
		openBrowser(redirectURL)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-tok.Authorized():
	case err := <-errHTTPCh:
		return err
	case <-shutdown:
		return fmt.Errorf("%w: authorization cancelled", config.ErrConfiguration)
	case <-c.Context.Done():
		return c.Context.Err()
	}

	if err := tok.Persist(); err != nil {
		return fmt.Errorf("tok.Persist failed: %w", err)
	}
	_, _ = fmt.Fprintln(w, "✓ Gmail sending authorized, token saved.")

	return nil
}

func oauthURL(ln net.Listener, override string) string {
	if override != "" {
		return override
	}
	return fmt.Sprintf("http://%s/oauth", ln.Addr().String())
}

func serveStdio(srv *mcp.Server) (func(), <-chan error) {
	errStdioCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(errStdioCh)
		logger.Get().Infow("starting stdio transport")

		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			errStdioCh <- fmt.Errorf("srv.Run failed: %w", err)
		}
	}()

	return func() {
		cancel()

		<-errStdioCh
		logger.Get().Infow("stdio transport stopped")
	}, errStdioCh
}

func serveHTTP(srv *http.Server, ln net.Listener) (func(), <-chan error) {
	errHTTPCh := make(chan error, 1)
	go func() {
		defer close(errHTTPCh)

		logger.Get().Infow("starting http server", "addr", ln.Addr().String())

		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errHTTPCh <- fmt.Errorf("srv.Serve failed: %w", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Get().Errorw("srv.Shutdown failed", "error", err)
		}

		<-errHTTPCh
		logger.Get().Infow("http server stopped")
	}, errHTTPCh
}

// setupLogger keeps stdout free for the stdio transport by logging to a file or nowhere.
func setupLogger(appCfg config.AppConfig, enableStdio bool, logFile string) (func(), error) {
	var out io.Writer
	closeFn := func() {}

	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = func() {
			logger.Sync()
			if err := f.Close(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "f.Close failed: %v\n", err)
			}
		}
	case enableStdio:
		out = io.Discard
	default:
		return closeFn, nil
	}

	if err := logger.Init(logger.Options{Level: appCfg.LogLevel, Env: appCfg.Env, Output: out}); err != nil {
		closeFn()
		return nil, fmt.Errorf("logger.Init failed: %w", err)
	}

	return closeFn, nil
}

func openBrowser(url string) {
	url = fmt.Sprintf("%s?redirect=1", url)
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		logger.Get().Warnw("could not open browser automatically, please open the link manually", "error", err, "url", url)
	}
}
