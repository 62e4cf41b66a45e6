package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"weibogeo/pkg/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored Weibo sessions",
	Long: `Manage stored Weibo session cookies.

The cookie is copied from a logged-in m.weibo.cn browser session
(DevTools, Network tab, the Cookie request header). It is stored in the
system keychain when available, otherwise in an encrypted file.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login [label]",
	Short: "Store a session cookie",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthLogin,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	RunE:  runAuthList,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout <label>",
	Short: "Remove a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authLogoutCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	label := "default"
	if len(args) == 1 {
		label = strings.TrimSpace(args[0])
	}

	cookie, err := promptSecret("Paste the Cookie header value: ")
	if err != nil {
		return err
	}
	if cookie == "" {
		return fmt.Errorf("empty cookie")
	}

	fmt.Print("User-Agent (enter to use the default): ")
	reader := bufio.NewReader(os.Stdin)
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("opening credential stores: %w", err)
	}
	profile := &auth.Profile{Label: label, Cookie: cookie, UserAgent: userAgent}
	if err := manager.Store(profile); err != nil {
		return err
	}

	fmt.Printf("Stored session %q (%s)\n", label, auth.Sanitize(profile).Cookie)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("opening credential stores: %w", err)
	}
	profiles, err := manager.List()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("No stored sessions. Run 'weibogeo auth login'.")
		return nil
	}
	for _, profile := range profiles {
		clean := auth.Sanitize(profile)
		fmt.Printf("%-16s %s  (modified %s)\n",
			clean.Label, clean.Cookie, clean.LastModified.Format("2006-01-02 15:04"))
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("opening credential stores: %w", err)
	}
	label := strings.TrimSpace(args[0])
	if err := manager.Delete(label); err != nil {
		return err
	}
	fmt.Printf("Removed session %q\n", label)
	return nil
}

// promptSecret reads a line without echoing when stdin is a terminal,
// so pasted cookies do not land in the scrollback.
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
