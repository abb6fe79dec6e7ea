package commands

import (
	"os"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var subjectFlag string

func init() {
	notebookCmd.Flags().StringVar(
		&subjectFlag, "subject", "",
		"Only show homework whose subject fuzzily matches this.",
	)
	rootCmd.AddCommand(notebookCmd)
}

// subjectMatches tolerates the portal's inconsistent subject spelling,
// "math" should still find "Mathématiques".
func subjectMatches(subject, query string) bool {
	subject = strings.ToLower(subject)
	query = strings.ToLower(query)
	if strings.Contains(subject, query) {
		return true
	}
	return matchr.JaroWinkler(subject, query, true) >= 0.8
}

var notebookCmd = &cobra.Command{
	Use:   "notebook",
	Short: "List upcoming homework grouped by day.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fatal(err)
		}
		res, err := client.callOk(cmd.Context(), "notebook", nil)
		if err != nil {
			fatal(err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"day", "subject", "teacher", "min", "test", "content"})
		for _, day := range res.Days {
			for _, hw := range day.Homework {
				if subjectFlag != "" && !subjectMatches(hw.Subject, subjectFlag) {
					continue
				}
				test := ""
				if hw.IsTest {
					test = "x"
				}
				t.AppendRow(table.Row{
					day.Date, hw.Subject, hw.Teacher, hw.Duration, test, hw.Content,
				})
			}
		}
		t.Render()
	},
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
