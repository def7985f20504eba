package commands

import (
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/ctxeng/am"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/logger"
	"github.com/teranos/ctxeng/server"
)

type serveOptions struct {
	port      int
	dbPath    string
	noBrowser bool
	noWatch   bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Start the Context Engineer web workbench",
		Long: `Serve the single-page workbench with live preview, key storage and
sending. The port comes from server.port unless --port is given; when it
is taken the next free port is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "Port to listen on (overrides server.port)")
	cmd.Flags().StringVar(&opts.dbPath, "db-path", "", "Database path (overrides database.path)")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "Do not open a browser")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not reload configuration files on change")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		// Serve logs at Info by default
		verbosity = 1
		if err := logger.Initialize(false, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.port != 0 {
		cfg.Server.Port = &opts.port
	}

	database, dbPath, err := openDatabase(cfg, opts.dbPath)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	printStartupBanner(verbosity, dbPath, am.MergedFiles())

	srv, err := server.New(server.Options{
		DB:     database,
		Config: cfg,
		Logger: logger.Logger,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	if !opts.noWatch && len(am.MergedFiles()) > 0 {
		if err := srv.WatchConfig(am.MergedFiles()); err != nil {
			pterm.Warning.Printf("Configuration reload disabled: %v\n", err)
		}
	}

	var browserFunc func(string)
	if cfg.Server.OpenBrowser && !opts.noBrowser {
		browserFunc = openBrowser
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(browserFunc)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server failed to start")
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("Force shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}

// openBrowser opens url in the default browser. Failures are ignored; the
// URL is printed in the banner.
func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "darwin":
		err = exec.Command("open", url).Start()
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("cmd", "/c", "start", url).Start()
	}
	_ = err
}
