package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"xqcrawler/pkg/auth"
	"xqcrawler/pkg/browser"
	"xqcrawler/pkg/ui"
	"xqcrawler/pkg/xueqiu"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage saved xueqiu sessions",
	Long: `Manage saved xueqiu cookie sessions.

Sessions are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - XQCRAWLER_COOKIES environment variable (read only)

A crawl saves its session automatically after a successful login.
Never share your cookies or config files!`,
}

// setCmd represents the auth set command
var setCmd = &cobra.Command{
	Use:   "set [account]",
	Short: "Save a session from browser cookies",
	Long: `Save a cookie session copied from a logged-in browser.

To get the cookie string:
1. Log into xueqiu.com in your browser
2. Open Developer Tools (F12) and go to the Network tab
3. Reload the page and select any request to xueqiu.com
4. Copy the value of the Cookie request header

The string must contain the xq_a_token cookie.`,
	Example: `  # Save the default account
  xqcrawler auth set

  # Save a named account
  xqcrawler auth set research`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthSet,
}

// authListCmd represents the auth list command
var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions",
	Long:  `List saved sessions with cookie values masked.`,
	RunE:  runAuthList,
}

// deleteCmd represents the auth delete command
var deleteCmd = &cobra.Command{
	Use:     "delete <account>",
	Aliases: []string{"logout"},
	Short:   "Remove a saved session",
	Args:    cobra.ExactArgs(1),
	RunE:    runAuthDelete,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(setCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(deleteCmd)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize session store", err.Error())
		return err
	}

	name := "default"
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}
	if name == "" {
		return errors.New("account name is required")
	}

	reader := bufio.NewReader(os.Stdin)

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Account '%s' already exists. Replace its session? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("Cookie header (hidden): ")
	cookies, err := readSecret(reader)
	if err != nil {
		ui.PrintError("Failed to read cookies", err.Error())
		return err
	}
	if err := checkCookies(cookies); err != nil {
		ui.PrintError("Invalid cookie string", err.Error())
		return err
	}

	fmt.Print("User Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')

	account := &auth.Account{
		Name:         name,
		Cookies:      cookies,
		UserAgent:    strings.TrimSpace(userAgent),
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store session", err.Error())
		return err
	}

	ui.PrintSuccess("Session saved: " + name)
	if auth.IsKeyringAvailable() {
		ui.PrintInfo("Stored in", "system keychain")
	} else {
		ui.PrintInfo("Stored in", "encrypted file")
	}
	fmt.Printf("\nUse it with:\n  xqcrawler crawl --account %s --keywords <keyword>\n", name)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize session store", err.Error())
		return err
	}

	accounts, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list sessions", err.Error())
		return err
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No saved sessions", "Use 'xqcrawler auth set' to add one")
		return nil
	}

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Account: %s\n", i+1, sanitized.Name)
		fmt.Printf("   Cookies: %s\n", sanitized.Cookies)
		if sanitized.UserAgent != "" {
			fmt.Printf("   User Agent: %s\n", sanitized.UserAgent)
		}
		fmt.Printf("   Last Modified: %s\n\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runAuthDelete(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize session store", err.Error())
		return err
	}

	name := args[0]
	if err := manager.Delete(name); err != nil {
		ui.PrintError("Failed to remove session", err.Error())
		return err
	}
	ui.PrintSuccess("Session removed: " + name)
	return nil
}

// checkCookies requires a parsable cookie string carrying the auth token.
func checkCookies(s string) error {
	cookies := browser.CookieMap(browser.ParseCookieString(s))
	if len(cookies) == 0 {
		return errors.New("expected name=value pairs separated by ';'")
	}
	if cookies[xueqiu.AuthTokenCookie] == "" {
		return fmt.Errorf("missing %s cookie", xueqiu.AuthTokenCookie)
	}
	return nil
}

// readSecret reads a line from stdin without echoing when stdin is a
// terminal.
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
