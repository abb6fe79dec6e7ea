package commands

import (
	"fmt"
	"sync"

	"gepi-backend/lib/scrapers/gepi/view"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(mailboxCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(transferCmd)
}

var mailboxNames = map[view.Mailbox]string{
	view.MailboxA: "inbox",
	view.MailboxB: "archive",
	view.MailboxZ: "trash",
}

func fetchMailbox(cmd *cobra.Command, client apiClient, mb view.Mailbox) ([]view.Mail, error) {
	res, err := client.callOk(cmd.Context(), "mailbox", map[string]string{
		"mailbox": string(mb),
	})
	if err != nil {
		return nil, fmt.Errorf("mailbox %s: %w", mb, err)
	}
	return res.Mails, nil
}

var mailboxCmd = &cobra.Command{
	Use:   "mailbox <a|b|z|all>",
	Short: "List the mails in one folder, or in all three at once.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fatal(err)
		}

		boxes := []view.Mailbox{view.Mailbox(args[0])}
		if args[0] == "all" {
			boxes = []view.Mailbox{view.MailboxA, view.MailboxB, view.MailboxZ}
		} else if !boxes[0].Valid() {
			fatal(fmt.Errorf("unknown mailbox %q, expected a, b, z or all", args[0]))
		}

		// the server serializes same-user calls anyway, but issuing them
		// together still saves two round trips worth of latency
		var mu sync.Mutex
		byBox := map[view.Mailbox][]view.Mail{}

		group, _ := errgroup.WithContext(cmd.Context())
		for _, mb := range boxes {
			mb := mb
			group.Go(func() error {
				mails, err := fetchMailbox(cmd, client, mb)
				if err != nil {
					return err
				}
				mu.Lock()
				byBox[mb] = mails
				mu.Unlock()
				return nil
			})
		}
		err = group.Wait()
		if err != nil {
			fatal(err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"folder", "id", "date", "author", "subject"})
		for _, mb := range boxes {
			for _, mail := range byBox[mb] {
				t.AppendRow(table.Row{
					mailboxNames[mb], mail.ID,
					mail.Day + " " + mail.Time,
					mail.Author, mail.Subject,
				})
			}
		}
		t.Render()
	},
}

var readCmd = &cobra.Command{
	Use:   "read <mail id>",
	Short: "Print the body of one mail.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fatal(err)
		}
		res, err := client.callOk(cmd.Context(), "read_mail", map[string]string{
			"id": args[0],
		})
		if err != nil {
			fatal(err)
		}
		fmt.Println(res.Content)
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer <transfer id> <from> <to>",
	Short: "Move a mail between folders. Only a<->b and b<->z are accepted.",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		from := view.Mailbox(args[1])
		to := view.Mailbox(args[2])
		if !view.ValidTransfer(from, to) {
			fatal(fmt.Errorf("transfer %s -> %s is not accepted by the portal", from, to))
		}

		client, err := newClient()
		if err != nil {
			fatal(err)
		}
		_, err = client.callOk(cmd.Context(), "transfer_mail", map[string]string{
			"id":   args[0],
			"from": string(from),
			"to":   string(to),
		})
		if err != nil {
			fatal(err)
		}
		fmt.Println("transferred")
	},
}
