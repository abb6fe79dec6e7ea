package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(homeCmd)
	rootCmd.AddCommand(removePostitCmd)
	rootCmd.AddCommand(logoutCmd)
}

var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "Show the sticky note on the portal home page.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fatal(err)
		}
		res, err := client.callOk(cmd.Context(), "home", nil)
		if err != nil {
			fatal(err)
		}

		if res.Postit == nil || res.Postit.Content == "" {
			fmt.Println("no sticky note")
			return
		}
		fmt.Println(res.Postit.Content)
	},
}

var removePostitCmd = &cobra.Command{
	Use:   "remove-postit",
	Short: "Dismiss the sticky note on the portal home page.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fatal(err)
		}
		res, err := client.call(cmd.Context(), "remove_postit", nil)
		if err != nil {
			fatal(err)
		}
		if res.Status == "invalid" {
			fmt.Println("no sticky note to remove")
			return
		}
		if res.Status != "ok" {
			fatal(fmt.Errorf("server returned status %q", res.Status))
		}
		fmt.Println("sticky note removed")
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Close the portal session.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fatal(err)
		}
		res, err := client.call(cmd.Context(), "logout", nil)
		if err != nil {
			fatal(err)
		}
		// the portal answers a successful logout with its login page
		if res.Status != "logout" {
			fatal(fmt.Errorf("server returned status %q", res.Status))
		}
		fmt.Println("logged out")
	},
}
