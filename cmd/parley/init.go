// ABOUTME: Interactive init subcommand that writes a starter parley.yaml
// ABOUTME: Generates a random JWT secret so the config validates out of the box

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

type initAnswers struct {
	HTTPAddr          string
	DBPath            string
	JWTSecret         string
	TokenTTL          string
	NATSURL           string
	TailscaleEnabled  bool
	TailscaleHostname string
	TailscaleAuthKey  string
	TailscaleHTTPS    bool
	LogLevel          string
	LogFormat         string
	MetricsEnabled    bool
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("parley configuration setup")
	fmt.Println("==========================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	var a initAnswers
	a.JWTSecret = secret

	fmt.Println("\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, "HTTP address", "localhost:8000")

	fmt.Println("\n--- Database Configuration ---")
	a.DBPath = prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "parley.db"))

	fmt.Println("\n--- Auth Configuration ---")
	a.TokenTTL = prompt(reader, "Access token lifetime", "24h")

	fmt.Println("\n--- Relay Configuration ---")
	a.NATSURL = prompt(reader, "NATS URL (leave empty for a single instance)", "")

	fmt.Println("\n--- Tailscale Configuration ---")
	a.TailscaleEnabled = isYes(prompt(reader, "Enable Tailscale?", "no"))
	if a.TailscaleEnabled {
		a.TailscaleHostname = prompt(reader, "Tailscale hostname", "parley")
		a.TailscaleAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		a.TailscaleHTTPS = isYes(prompt(reader, "Serve HTTPS with a tailnet certificate?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")
	a.MetricsEnabled = isYes(prompt(reader, "Expose Prometheus metrics?", "yes"))

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file carries the signing secret.
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(a.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	fmt.Println()
	green.Print("  ✓ ")
	fmt.Printf("Config written to %s\n", outputFile)
	green.Print("  ✓ ")
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  parley adduser --username <name>")
	fmt.Println("  parley serve")

	return nil
}

// renderConfig produces the YAML written by init.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# parley configuration\n")
	cfg.WriteString("# Generated by parley init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n\n", a.HTTPAddr)

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n\n", a.DBPath)

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n", a.JWTSecret)
	fmt.Fprintf(&cfg, "  token_ttl: %q\n\n", a.TokenTTL)

	cfg.WriteString("realtime:\n")
	cfg.WriteString("  write_timeout: \"10s\"\n")
	cfg.WriteString("  pong_timeout: \"60s\"\n")
	cfg.WriteString("  ping_interval: \"54s\"\n")
	cfg.WriteString("  send_buffer: 64\n\n")

	if a.NATSURL != "" {
		cfg.WriteString("relay:\n")
		fmt.Fprintf(&cfg, "  nats_url: %q\n\n", a.NATSURL)
	}

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", a.TailscaleEnabled)
	if a.TailscaleEnabled {
		fmt.Fprintf(&cfg, "  hostname: %q\n", a.TailscaleHostname)
		if a.TailscaleAuthKey != "" {
			fmt.Fprintf(&cfg, "  auth_key: %q\n", a.TailscaleAuthKey)
		}
		fmt.Fprintf(&cfg, "  https: %t\n", a.TailscaleHTTPS)
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&cfg, "  format: %q\n\n", a.LogFormat)

	cfg.WriteString("metrics:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", a.MetricsEnabled)
	cfg.WriteString("  path: \"/metrics\"\n")

	return cfg.String()
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func isYes(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "yes" || answer == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
