package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/toolboxpm/toolbox-vault/internal/keychain"
	"github.com/toolboxpm/toolbox-vault/internal/vault"
)

var (
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
)

// readPassword reads a password without echo when stdin is a terminal,
// falling back to plain line reading for piped input.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)

	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return password, nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// readPasswordConfirmed prompts twice and insists both match.
func readPasswordConfirmed(prompt string) ([]byte, error) {
	first, err := readPassword(prompt)
	if err != nil {
		return nil, err
	}
	second, err := readPassword("Confirm: ")
	if err != nil {
		return nil, err
	}
	if string(first) != string(second) {
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}

// readLine reads one trimmed line from stdin.
func readLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func vaultKeychain() *keychain.Service {
	return keychain.New(filepath.Base(filepath.Dir(cfg.VaultPath)))
}

// unlockWithKeychainOrPrompt tries the stored keychain password first and
// falls back to an interactive prompt.
func unlockWithKeychainOrPrompt(v *vault.Service) error {
	ks := vaultKeychain()
	if stored, err := ks.Retrieve(); err == nil && stored != "" {
		if err := v.Unlock([]byte(stored)); err == nil {
			log.Debug("vault unlocked via keychain")
			return nil
		}
		warnColor.Fprintln(os.Stderr, "Keychain password no longer matches, falling back to prompt.")
	}

	password, err := readPassword("Master password: ")
	if err != nil {
		return err
	}
	return v.Unlock(password)
}

// copyToClipboard puts a secret on the clipboard.
func copyToClipboard(secret string) error {
	if err := clipboard.WriteAll(secret); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}

// copyWithAutoClear copies a secret and blocks until the configured delay
// has passed, then clears the clipboard unless it was overwritten since.
func copyWithAutoClear(secret string) error {
	if err := copyToClipboard(secret); err != nil {
		return err
	}

	delay := time.Duration(cfg.ClipboardClearSeconds) * time.Second
	fmt.Fprintf(os.Stderr, "Copied to clipboard, clearing in %ds...\n", cfg.ClipboardClearSeconds)
	time.Sleep(delay)

	if current, err := clipboard.ReadAll(); err == nil && current == secret {
		_ = clipboard.WriteAll("")
	}
	return nil
}

func formatRelativeTime(ts int64) string {
	if ts <= 0 {
		return "never"
	}
	d := time.Since(time.Unix(ts, 0))
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return time.Unix(ts, 0).Format("2006-01-02")
	}
}
