package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"foodrelay/internal/analysis"
	"foodrelay/internal/config"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the relay setup",
		Long: `Verifies that the configuration loads, the analysis service answers,
the listen port is free and the upload temp directory is writable.
Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("foodrelay doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file (optional)
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using defaults and environment", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, _, err := config.LoadOrDefaults(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Analysis service
			client := analysis.NewClient(analysis.ClientConfig{
				Endpoint: cfg.Analysis.Endpoint,
				Timeout:  cfg.Analysis.Timeout.Std(),
				Logger:   newLogger("error"),
			})
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Analysis.Timeout.Std())
			start := time.Now()
			err = client.Healthy(ctx)
			cancel()
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				printWarn("Analysis service", fmt.Sprintf("%s timed out (it may be waking up)", cfg.Analysis.Endpoint))
				warned++
			case err != nil:
				printFail("Analysis service", err.Error())
				failed++
			default:
				printPass("Analysis service", fmt.Sprintf("%s (%s)", cfg.Analysis.Endpoint, time.Since(start).Round(time.Millisecond)))
				passed++
			}

			// 4. Listen port
			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				printWarn("Listen port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("Listen port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			// 5. Upload temp dir writable
			if err := checkTempDir(cfg.Relay.TempDir); err != nil {
				printFail("Upload temp dir", err.Error())
				failed++
			} else {
				printPass("Upload temp dir", lookupTempDir(cfg.Relay.TempDir))
				passed++
			}

			// 6. Transfer mode
			printPass("Transfer mode", cfg.Analysis.Transfer)
			passed++

			// 7. Telegram
			if cfg.Telegram.Enabled {
				printPass("Telegram", "enabled")
				passed++
			} else {
				printWarn("Telegram", "disabled")
				warned++
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before starting the relay.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nThe relay should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! The relay is ready to run.\n")
			}
			return nil
		},
	}
}

func lookupTempDir(dir string) string {
	if dir == "" {
		return os.TempDir()
	}
	return dir
}

func checkTempDir(dir string) error {
	f, err := os.CreateTemp(lookupTempDir(dir), "foodrelay-doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	f.Close()
	return os.Remove(f.Name())
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
