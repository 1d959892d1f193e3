package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gramvani/kisan/internal/advisory"
	"github.com/gramvani/kisan/internal/api"
	"github.com/gramvani/kisan/internal/config"
	"github.com/gramvani/kisan/internal/connectivity"
	"github.com/gramvani/kisan/internal/directory"
	"github.com/gramvani/kisan/internal/dispatch"
	"github.com/gramvani/kisan/internal/locale"
	"github.com/gramvani/kisan/internal/profile"
	"github.com/gramvani/kisan/internal/storage"
	"github.com/gramvani/kisan/internal/voice"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the kisan server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running kisan server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show kisan system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

// dataStore is the full store surface the server wires together. Satisfied by
// both *storage.Store and *storage.Memory, so a broken SQLite open degrades
// to an in-memory session instead of refusing to start.
type dataStore interface {
	SaveQuery(prompt, kind, status string) (int64, error)
	GetQuery(id int64) (storage.Query, error)
	GetPending() ([]storage.Query, error)
	ListQueries(limit int) ([]storage.Query, error)
	UpdateQueryStatus(id int64, status string) error
	SaveResponse(queryID int64, body string) (int64, error)
	GetResponsesFor(queryID int64) ([]storage.Response, error)
	DeleteQuery(id int64) error
	CountByStatus(status string) (int, error)
	SetProfileKey(key, value string) error
	GetProfileKey(key string) (string, error)
	GetAllProfileKeys() (map[string]string, error)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "kisan.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "kisan version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	// Refuse to double-start: probe the health endpoint before claiming the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("kisan is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("kisan is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage. A failure here is not fatal: fall back to an in-memory
	// store so the farmer can still ask questions this session.
	var store dataStore
	sqlStore, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		slog.Warn("could not open durable storage, continuing in-memory", "error", err)
		store = storage.NewMemory()
	} else {
		defer func() {
			if err := sqlStore.Close(); err != nil {
				slog.Warn("closing storage", "error", err)
			}
		}()
		store = sqlStore
	}

	profileMgr := profile.NewManager(store)

	advisor := advisory.NewClientWithBaseURL(
		cfg.Advisory.APIKey,
		cfg.Advisory.Model,
		cfg.Advisory.VisionModel,
		cfg.Advisory.BaseURL,
	)
	advisor.ProfileSummary = profileMgr.Summary

	monitor := connectivity.NewMonitor(true)
	defaultLocale := locale.Normalize(cfg.Locale.Default)
	dispatcher := dispatch.New(store, advisor, monitor, defaultLocale)
	dispatcher.BindMonitor(ctx)

	// Voice is best-effort: a missing speech binary downgrades to text-only.
	var rec voice.Recognizer
	var syn voice.Synthesizer
	if cfg.Voice.Enabled {
		if s, err := voice.NewCommandSynthesizer(cfg.Voice.SpeakCommand); err != nil {
			slog.Warn("speech synthesis unavailable", "command", cfg.Voice.SpeakCommand, "error", err)
		} else {
			syn = s
		}
		if cfg.Voice.ListenCommand != "" {
			if r, err := voice.NewCommandRecognizer(cfg.Voice.ListenCommand); err != nil {
				slog.Warn("speech recognition unavailable", "command", cfg.Voice.ListenCommand, "error", err)
			} else {
				rec = r
			}
		}
	}
	bridge := voice.NewBridge(rec, syn)

	dir, err := directory.Load()
	if err != nil {
		return fmt.Errorf("loading helpline directory: %w", err)
	}

	handler := api.NewAppHandler(api.AppDeps{
		Dispatcher: dispatcher,
		Store:      store,
		Monitor:    monitor,
		Profile:    profileMgr,
		Directory:  dir,
		Diagnoser:  advisor,
		Token:      apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Dispatcher: dispatcher,
		Pending:    store,
		Profile:    profileMgr,
		Directory:  dir,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "kisan listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	// Speak replayed answers aloud so queued questions resolve audibly even
	// when nobody is watching the screen.
	g.Go(func() error {
		speakResults(gctx, dispatcher, bridge, defaultLocale)
		return nil
	})

	slog.Info("MCP server started (stdio transport)")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func speakResults(ctx context.Context, dispatcher *dispatch.Dispatcher, bridge *voice.Bridge, localeCode string) {
	if !bridge.CanSpeak() {
		return
	}

	id, ch := dispatcher.Subscribe()
	defer dispatcher.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case res, open := <-ch:
			if !open {
				return
			}
			if err := bridge.Speak(ctx, res.Text, localeCode); err != nil {
				slog.Warn("could not speak answer", "query_id", res.QueryID, "error", err)
			}
		}
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("kisan is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop kisan (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to kisan (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	httpClient := &http.Client{Timeout: 2 * time.Second}

	resp, err := httpClient.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}
	printStatus("Server", "running on port %d", cfg.Server.Port)

	client, err := newAPIClient()
	if err == nil {
		statusResp, err := client.get("/status")
		if err == nil {
			var st struct {
				Online    bool `json:"online"`
				Pending   int  `json:"pending"`
				Completed int  `json:"completed"`
			}
			if decodeJSON(statusResp, &st) == nil {
				if st.Online {
					printStatus("Connectivity", "online")
				} else {
					printStatus("Connectivity", "offline")
				}
				printStatus("Pending", "%d", st.Pending)
				printStatus("Completed", "%d", st.Completed)
			}
		}
	}

	printStatus("Model", "%s", cfg.Advisory.Model)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
