package commands

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <user>",
	Short: "Log into the portal and save the capability token locally.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if hostFlag == "" {
			fatal(fmt.Errorf("--host is required for login"))
		}
		user := args[0]

		fmt.Fprint(os.Stderr, "password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fatal(err)
		}

		client := apiClient{
			http: resty.New().SetBaseURL(hostFlag),
			creds: credentials{
				Host: hostFlag,
				User: user,
			},
		}
		res, err := client.call(cmd.Context(), "login", map[string]string{
			"password": strings.TrimSpace(string(password)),
		})
		if err != nil {
			fatal(err)
		}
		if res.Status != "ok" {
			fatal(fmt.Errorf("login refused: %s", res.Status))
		}

		err = saveCredentials(credentials{
			Host:  hostFlag,
			User:  user,
			Token: res.Token,
		})
		if err != nil {
			fatal(err)
		}
		fmt.Printf("logged in as %s\n", user)
	},
}
