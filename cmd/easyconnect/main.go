package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/easyconnect/internal/api"
	"github.com/mattjoyce/easyconnect/internal/auth"
	"github.com/mattjoyce/easyconnect/internal/config"
	"github.com/mattjoyce/easyconnect/internal/events"
	"github.com/mattjoyce/easyconnect/internal/llm"
	"github.com/mattjoyce/easyconnect/internal/log"
	"github.com/mattjoyce/easyconnect/internal/oauth"
	"github.com/mattjoyce/easyconnect/internal/store"
	"github.com/mattjoyce/easyconnect/internal/tui/watch"
	"github.com/mattjoyce/easyconnect/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "workspace":
		return runWorkspaceNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: easyconnect version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("easyconnect %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime != "" && resolvedBuildTime != "unknown" {
		info.BuildTime = resolvedBuildTime
	} else if t := strings.TrimSpace(readBuildSetting("vcs.time")); t != "" {
		info.BuildTime = t
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`easyconnect - Notion workspace connector and chat proxy

Usage:
  easyconnect <noun> <action> [flags]

Core Resources (Nouns):
  system     Service lifecycle and health
  config     Configuration and integrity
  workspace  Connected workspace inspection

System Commands:
  system start      Start the service in foreground
  system watch      Real-time monitoring TUI

Config Commands:
  config check      Validate syntax, policy, and integrity
  config lock       Authorize current state (update integrity hashes)

Workspace Commands:
  workspace list    List connected workspaces from the credential store

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Use 'easyconnect <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	case "help":
		printSystemNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runWorkspaceNoun(args []string) int {
	if len(args) < 1 {
		printWorkspaceNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printWorkspaceNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		if hasHelpFlag(actionArgs) {
			printWorkspaceListHelp()
			return 0
		}
		return runWorkspaceList(actionArgs)
	case "help":
		printWorkspaceNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown workspace action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: easyconnect system <action>")
	fmt.Fprintln(w, "Actions: start, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: easyconnect config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printWorkspaceNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: easyconnect workspace <action> [flags]")
	fmt.Fprintln(w, "Actions: list")
}

func printSystemStartHelp() {
	fmt.Println("Usage: easyconnect system start [--config PATH]")
	fmt.Println("Start the service in the foreground.")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: easyconnect system watch [flags]")
	fmt.Println()
	fmt.Println("Real-time monitoring TUI.")
	fmt.Println("Shows service health, connected workspaces, and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Service API URL (default: http://localhost:8080)")
	fmt.Println("  --api-key KEY    API Bearer Token (or EASYCONNECT_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Navigate workspaces")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: easyconnect config check [--config PATH]")
	fmt.Println("Validate configuration syntax, policy, and integrity.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: easyconnect config lock [--config PATH]")
	fmt.Println("Authorize current configuration state by regenerating integrity hashes.")
}

func printWorkspaceListHelp() {
	fmt.Println("Usage: easyconnect workspace list [--config PATH] [--json]")
	fmt.Println("List connected workspaces from the credential store.")
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("easyconnect starting", "version", version, "config", *configPath)

	credStore, err := store.New(cfg.StorePath)
	if err != nil {
		logger.Error("failed to open credential store", "path", cfg.StorePath, "error", err)
		return 1
	}
	logger.Info("credential store ready", "path", cfg.StorePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder := events.NewRecorder(nil, log.WithComponent("events"))
	if cfg.EventsDBPath != "" {
		db, err := events.OpenSQLite(ctx, cfg.EventsDBPath)
		if err != nil {
			logger.Error("failed to open event log", "path", cfg.EventsDBPath, "error", err)
			return 1
		}
		defer db.Close()
		recorder = events.NewRecorder(db, log.WithComponent("events"))
		logger.Info("event log opened", "path", cfg.EventsDBPath)
	}

	maxBody, err := config.ParseMaxBodySize(cfg.Webhook.MaxBodySize)
	if err != nil {
		logger.Error("invalid webhook max_body_size", "value", cfg.Webhook.MaxBodySize, "error", err)
		return 1
	}
	webhookHandler := webhook.NewHandler(webhook.Config{
		Policy:      webhook.Policy(cfg.Webhook.Policy),
		MaxBodySize: maxBody,
	}, credStore, recorder, log.WithComponent("webhook"))
	logger.Info("webhook verifier configured", "policy", cfg.Webhook.Policy)

	oauthHandler := oauth.NewHandler(cfg.Notion, credStore, log.WithComponent("oauth"))
	if missing := config.MissingNotionVars(cfg.Notion); len(missing) > 0 {
		logger.Warn("OAuth flow not fully configured", "missing", strings.Join(missing, ","))
	}

	var chatClient llm.Client
	if cfg.LLM.APIKey != "" {
		chatClient, err = llm.New(llm.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		}, log.WithComponent("llm"))
		if err != nil {
			logger.Error("failed to configure chat backend", "error", err)
			return 1
		}
		logger.Info("chat backend configured", "model", chatClient.Model())
	} else {
		logger.Warn("chat backend disabled (no llm.api_key)")
	}

	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Tokens))
	for _, t := range cfg.API.Tokens {
		tokens = append(tokens, auth.TokenConfig{
			Token:  t.Token,
			Scopes: t.Scopes,
		})
	}
	apiServer := api.New(api.Config{
		Listen: cfg.Listen,
		APIKey: cfg.API.APIKey,
		Tokens: tokens,
	}, credStore, recorder, chatClient, oauthHandler.Routes(), webhookHandler, log.WithComponent("api"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	logger.Info("easyconnect running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("easyconnect stopped")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "Service API URL")
	apiKey := fs.String("api-key", os.Getenv("EASYCONNECT_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or EASYCONNECT_API_KEY env var.")
		return 1
	}

	m := watch.New(*apiURL, *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config invalid: %v\n", err)
		return 1
	}
	fmt.Printf("Config OK: listen=%s store=%s policy=%s\n", cfg.Listen, cfg.StorePath, cfg.Webhook.Policy)

	if missing := config.MissingNotionVars(cfg.Notion); len(missing) > 0 {
		fmt.Printf("Warning: OAuth flow incomplete, missing: %s\n", strings.Join(missing, ", "))
	}

	result, err := config.VerifyIntegrity(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Integrity check failed: %v\n", err)
		return 1
	}
	for _, w := range result.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	if !result.Passed {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "Integrity error: %s\n", e)
		}
		fmt.Fprintln(os.Stderr, "Run 'easyconnect config lock' to authorize the current state.")
		return 1
	}
	fmt.Println("Integrity OK")
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if _, err := config.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock invalid config: %v\n", err)
		return 1
	}
	if err := config.Lock(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	fmt.Println("Config integrity hashes updated")
	return 0
}

func runWorkspaceList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	credStore, err := store.New(cfg.StorePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open credential store: %v\n", err)
		return 1
	}

	ids, err := credStore.ListWorkspaceIDs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list workspaces: %v\n", err)
		return 1
	}

	type row struct {
		WorkspaceID   string `json:"workspace_id"`
		BotID         string `json:"bot_id,omitempty"`
		WebhookID     string `json:"webhook_id,omitempty"`
		HasToken      bool   `json:"has_token"`
		HasAutomation bool   `json:"has_automation"`
	}
	rows := make([]row, 0, len(ids))
	for _, id := range ids {
		ws, ok, err := credStore.GetWorkspace(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read workspace %s: %v\n", id, err)
			return 1
		}
		if !ok {
			continue
		}
		rows = append(rows, row{
			WorkspaceID:   id,
			BotID:         ws.BotID,
			WebhookID:     ws.WebhookID,
			HasToken:      ws.AccessToken != "",
			HasAutomation: ws.IncomingSecret != "",
		})
	}

	if *jsonOut {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(rows) == 0 {
		fmt.Println("No connected workspaces.")
		return 0
	}
	fmt.Printf("%-36s  %-6s  %-14s  %s\n", "WORKSPACE", "TOKEN", "WEBHOOK", "AUTOMATION")
	for _, r := range rows {
		token := "no"
		if r.HasToken {
			token = "yes"
		}
		webhookID := r.WebhookID
		if webhookID == "" {
			webhookID = "-"
		}
		automation := "no"
		if r.HasAutomation {
			automation = "yes"
		}
		fmt.Printf("%-36s  %-6s  %-14s  %s\n", r.WorkspaceID, token, webhookID, automation)
	}
	return 0
}
