package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/tenebris-tech/mlogger"

	"github.com/VDIOps/CitrixMonMCP/citrix"
	"github.com/VDIOps/CitrixMonMCP/db"
	"github.com/VDIOps/CitrixMonMCP/global"
	"github.com/VDIOps/CitrixMonMCP/mcpserver"
	"github.com/VDIOps/CitrixMonMCP/monitor"
)

// Version information
const (
	AppName    = "CitrixMonMCP"
	AppVersion = "0.1.0"
)

func main() {
	var err error
	var listen string

	// Define command line flags
	debugFlag := flag.Bool("debug", false, "Enable debug mode")
	portFlag := flag.Int("port", 8888, "Port to listen on")
	stdioFlag := flag.Bool("stdio", false, "Serve on stdin/stdout instead of a network listener")
	noStreamingFlag := flag.Bool("no-streaming", false, "Disable streaming (use plain HTTP instead of SSE)")
	envFlag := flag.String("env", "", "Path to an environment file (optional)")
	helpFlag := flag.Bool("help", false, "Show help information")
	versionFlag := flag.Bool("version", false, "Show version information")

	// Token management subcommands
	tokenAddFlag := flag.String("token-add", "", "Add new access token with description")
	tokenListFlag := flag.Bool("token-list", false, "List all access tokens")
	tokenDeleteFlag := flag.String("token-del", "", "Delete access token by prefix or hash")

	flag.Usage = func() {
		fmt.Printf("%s - Citrix Monitor Service MCP Server\n\n", AppName)
		fmt.Printf("Usage:\n")
		fmt.Printf("  %s [options]\n\n", os.Args[0])
		fmt.Printf("Server Options:\n")
		fmt.Printf("  -debug\n")
		fmt.Printf("        Enable debug mode\n")
		fmt.Printf("  -env string\n")
		fmt.Printf("        Path to an environment file (optional)\n")
		fmt.Printf("  -help\n")
		fmt.Printf("        Show help information\n")
		fmt.Printf("  -no-streaming\n")
		fmt.Printf("        Disable streaming (use plain HTTP instead of SSE)\n")
		fmt.Printf("  -port int\n")
		fmt.Printf("        Port to listen on (default 8888)\n")
		fmt.Printf("  -stdio\n")
		fmt.Printf("        Serve on stdin/stdout instead of a network listener\n")
		fmt.Printf("  -version\n")
		fmt.Printf("        Show version information\n\n")
		fmt.Printf("Token Management Commands:\n")
		fmt.Printf("  -token-add string\n")
		fmt.Printf("        Add new access token with description\n")
		fmt.Printf("  -token-list\n")
		fmt.Printf("        List all access tokens\n")
		fmt.Printf("  -token-del string\n")
		fmt.Printf("        Delete access token by prefix or hash\n\n")
		fmt.Printf("Environment Variables:\n")
		fmt.Printf("  CITRIX_DEPLOYMENT    \"cloud\" or \"onprem\"\n")
		fmt.Printf("  CITRIX_CUSTOMER_ID   Citrix Cloud customer ID (cloud)\n")
		fmt.Printf("  CITRIX_CLIENT_ID     API client ID (cloud)\n")
		fmt.Printf("  CITRIX_CLIENT_SECRET API client secret (cloud)\n")
		fmt.Printf("  CITRIX_REGION        Citrix Cloud region: us, eu, ap-s, jp (default us)\n")
		fmt.Printf("  CITRIX_DDC_HOST      Delivery Controller URL (on-prem)\n")
		fmt.Printf("  CITRIX_DOMAIN        AD domain (on-prem)\n")
		fmt.Printf("  CITRIX_USERNAME      AD username (on-prem)\n")
		fmt.Printf("  CITRIX_PASSWORD      AD password (on-prem)\n")
		fmt.Printf("  CITRIX_VERIFY_SSL    Verify TLS certificates (default true)\n")
		fmt.Printf("  CITRIXMON_DB_DIR     Database directory (default: /opt/citrixmon or ~/.citrixmon)\n")
		fmt.Printf("  CITRIXMON_LISTEN     Listen address, overrides -port\n\n")
		fmt.Printf("Examples:\n")
		fmt.Printf("  # Start for a local MCP client\n")
		fmt.Printf("  %s -stdio\n\n", os.Args[0])
		fmt.Printf("  # Start the network server\n")
		fmt.Printf("  %s -port 8888\n\n", os.Args[0])
		fmt.Printf("  # Token management\n")
		fmt.Printf("  %s -token-add \"Grafana integration\"\n", os.Args[0])
		fmt.Printf("  %s -token-list\n", os.Args[0])
		fmt.Printf("  %s -token-del abc12345\n\n", os.Args[0])
	}

	flag.Parse()

	if *helpFlag {
		flag.Usage()
		os.Exit(0)
	}

	if *versionFlag {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	debug := *debugFlag
	stdio := *stdioFlag

	// In stdio mode stdout belongs to the MCP protocol, so logging goes
	// to the file only.
	logger, err := mlogger.New(
		mlogger.WithPrefix(AppName),
		mlogger.WithDateFormat("2006-01-02 15:04:05"),
		mlogger.WithLogFile("citrixmon.log"),
		mlogger.WithLogStdout(!stdio),
		mlogger.WithDebug(debug),
	)
	if err != nil {
		fmt.Printf("Unable to create logger: %v", err)
		os.Exit(1)
	}

	// Load environment variables from config files in priority order
	envFiles := []string{}
	if *envFlag != "" {
		envFiles = append(envFiles, *envFlag)
	}
	envFiles = append(envFiles, "/opt/citrixmon/env")
	if homeDir, err := os.UserHomeDir(); err == nil {
		envFiles = append(envFiles, homeDir+string(os.PathSeparator)+".citrixmon")
	}
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err == nil {
				logger.Infof("Loaded environment variables from %s", envFile)
				break
			}
		}
	}

	// Determine listen address from environment or flag
	if envListen := os.Getenv("CITRIXMON_LISTEN"); envListen != "" {
		listen = envListen
	} else if *portFlag > 0 && *portFlag < 65536 {
		listen = fmt.Sprintf("localhost:%d", *portFlag)
	} else {
		listen = "localhost:8888"
	}

	// Initialize the token database
	dbOpts := []db.Option{db.WithLogger(logger)}
	if dbDataDir := os.Getenv("CITRIXMON_DB_DIR"); dbDataDir != "" {
		dbOpts = append(dbOpts, db.WithDataDir(dbDataDir))
	}
	store, err := db.New(dbOpts...)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// Handle token management commands and exit without starting the server
	if *tokenAddFlag != "" || *tokenListFlag || *tokenDeleteFlag != "" {
		if err := handleTokenCommands(store, *tokenAddFlag, *tokenListFlag, *tokenDeleteFlag); err != nil {
			logger.Fatalf("Token management failed: %v", err)
		}
		_ = store.Close()
		os.Exit(0)
	}

	// Build the Monitor Service client from the environment
	cfg := monitor.ConfigFromEnv()
	client, err := monitor.New(cfg, monitor.WithLogger(logger))
	if err != nil {
		logger.Fatalf("Invalid Citrix configuration: %v", err)
	}
	logger.Infof("Citrix Monitor client configured for %s (%s)", client.Auth().TenantID(), cfg.Deployment)

	provider := citrix.New(client, citrix.WithLogger(logger))

	mcpOpts := []mcpserver.Option{
		mcpserver.WithListen(listen),
		mcpserver.WithDebug(debug),
		mcpserver.WithLogger(logger),
		mcpserver.WithName(AppName),
		mcpserver.WithVersion(AppVersion),
		mcpserver.WithStdio(stdio),
		mcpserver.WithNoStreaming(*noStreamingFlag),
		mcpserver.WithToolProviders([]global.ToolProvider{provider}...),
	}

	if !stdio {
		authMiddleware := mcpserver.NewAuthMiddleware(store,
			mcpserver.WithAuthLogger(logger),
			mcpserver.WithSkipPaths("/health", "/status"),
		)
		mcpOpts = append(mcpOpts, mcpserver.WithAuthMiddleware(authMiddleware))
	}

	srv, err := mcpserver.New(mcpOpts...)
	if err != nil {
		logger.Fatalf("Unable to create MCP server: %v", err)
	}

	if stdio {
		// Blocks until the client disconnects
		if err := srv.ServeStdio(); err != nil {
			logger.Errorf("Stdio server error: %v", err)
		}
		_ = store.Close()
		os.Exit(0)
	}

	if err = srv.Start(); err != nil {
		logger.Fatalf("MCP server failed to start: %v", err)
	}

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Infof("Shutting down...")

	if err = srv.Stop(); err != nil {
		logger.Errorf("Error stopping MCP server: %s", err.Error())
		os.Exit(1)
	}

	if err := store.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	logger.Infof("MCP server stopped successfully")
	os.Exit(0)
}

// handleTokenCommands processes token management commands
func handleTokenCommands(store db.Store, tokenAdd string, tokenList bool, tokenDelete string) error {
	if tokenAdd != "" {
		return handleTokenAdd(store, tokenAdd)
	}
	if tokenList {
		return handleTokenList(store)
	}
	if tokenDelete != "" {
		return handleTokenDelete(store, tokenDelete)
	}
	return nil
}

// handleTokenAdd creates a new access token
func handleTokenAdd(store db.Store, description string) error {
	if len(description) > 255 {
		return fmt.Errorf("description too long (max 255 characters)")
	}

	token, hash, err := store.AddAccessToken(description)
	if err != nil {
		return fmt.Errorf("failed to create access token: %w", err)
	}

	fmt.Printf("\n")
	fmt.Printf("Access token created successfully\n")
	fmt.Printf("\n")
	fmt.Printf("SECURITY WARNING: This token will only be displayed once!\n")
	fmt.Printf("   Copy it now and store it securely.\n")
	fmt.Printf("\n")
	fmt.Printf("Token:       %s\n", token)
	fmt.Printf("Hash:        %s\n", hash[:12])
	fmt.Printf("Description: %s\n", description)
	fmt.Printf("\n")
	fmt.Printf("Use this token in the Authorization header:\n")
	fmt.Printf("  Authorization: Bearer %s\n", token)
	fmt.Printf("\n")
	return nil
}

// handleTokenList displays all access tokens
func handleTokenList(store db.Store) error {
	tokens, err := store.ListAccessTokens()
	if err != nil {
		return fmt.Errorf("failed to list access tokens: %w", err)
	}

	if len(tokens) == 0 {
		fmt.Printf("No access tokens found.\n")
		fmt.Printf("Create one with: %s -token-add \"Description\"\n", os.Args[0])
		return nil
	}

	fmt.Printf("Access Tokens:\n")
	fmt.Printf("%-10s %-14s %-20s %-20s %s\n", "PREFIX", "HASH", "CREATED", "LAST USED", "DESCRIPTION")
	fmt.Printf("%-10s %-14s %-20s %-20s %s\n", "------", "----", "-------", "---------", "-----------")

	for _, token := range tokens {
		lastUsed := "Never used"
		if !token.LastUsed.IsZero() {
			lastUsed = token.LastUsed.Format("2006-01-02 15:04:05")
		}
		description := token.Description
		if len(description) > 30 {
			description = description[:27] + "..."
		}
		fmt.Printf("%-10s %-14s %-20s %-20s %s\n",
			token.Prefix, token.Hash[:12],
			token.CreatedAt.Format("2006-01-02 15:04:05"), lastUsed, description)
	}

	fmt.Printf("\nTotal: %d tokens\n", len(tokens))
	return nil
}

// handleTokenDelete removes an access token after confirmation
func handleTokenDelete(store db.Store, identifier string) error {
	tokens, err := store.ListAccessTokens()
	if err != nil {
		return fmt.Errorf("failed to list access tokens: %w", err)
	}

	var matched *db.AccessTokenMetadata
	for i := range tokens {
		token := tokens[i]
		if token.Hash == identifier || strings.HasPrefix(token.Hash, identifier) ||
			strings.HasPrefix(token.Prefix, identifier) {
			if matched != nil {
				return fmt.Errorf("multiple tokens match %q, use a longer prefix", identifier)
			}
			matched = &tokens[i]
		}
	}
	if matched == nil {
		return fmt.Errorf("no access token found matching %q", identifier)
	}

	fmt.Printf("Token Details:\n")
	fmt.Printf("  Hash:        %s\n", matched.Hash[:12])
	fmt.Printf("  Description: %s\n", matched.Description)
	fmt.Printf("  Created:     %s\n", matched.CreatedAt.Format("2006-01-02 15:04:05"))

	fmt.Printf("Are you sure you want to delete this token? (y/N): ")
	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(response)
	if response != "y" && response != "yes" {
		fmt.Printf("Token deletion cancelled.\n")
		return nil
	}

	if err := store.DeleteAccessToken(matched.Hash); err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}

	fmt.Printf("Token deleted successfully.\n")
	return nil
}
