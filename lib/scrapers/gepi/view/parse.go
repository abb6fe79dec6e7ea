package view

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"gepi-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ErrMalformedPage marks a page that is missing an element the portal is
// expected to always serve. Optional structure (the postit widget) never
// produces it, it degrades to empty values instead.
var ErrMalformedPage = errors.New("page is missing a required element")

type Postit struct {
	Content   string `json:"content"`
	CsrfToken string `json:"csrf_alea,omitempty"`
	RemovalID string `json:"supprimer_message,omitempty"`
}

type Homework struct {
	ID       string `json:"id"`
	IsTest   bool   `json:"test"`
	Subject  string `json:"subject"`
	Duration string `json:"duration"`
	Classes  string `json:"classes"`
	Teacher  string `json:"teacher"`
	Content  string `json:"content"`
}

// NotebookDay is one day header and its homework blocks in document
// order. The notebook page renders days chronologically, so a slice
// keeps that ordering where a map would lose it.
type NotebookDay struct {
	Date     string     `json:"date"`
	Homework []Homework `json:"homework"`
}

type Mail struct {
	ID         int    `json:"id"`
	TransferID int    `json:"transfer_id"`
	Day        string `json:"day"`
	Time       string `json:"time"`
	Author     string `json:"author"`
	Subject    string `json:"subject"`
}

// ParsePostit extracts the sticky-note widget from the home page. An
// absent widget is not an error, the zero Postit is returned.
func ParsePostit(doc *goquery.Document) (Postit, error) {
	container := doc.Find("div.postit").First()
	if container.Length() == 0 {
		return Postit{}, nil
	}

	content := htmlutil.CollapseText(container.Text())

	form := container.Find("form").First()
	csrf, okCsrf := form.Find("input[name=csrf_alea]").Attr("value")
	removal, okRemoval := form.Find("input[name=supprimer_message]").Attr("value")
	if !okCsrf || !okRemoval {
		return Postit{}, fmt.Errorf("postit removal form: %w", ErrMalformedPage)
	}

	return Postit{
		Content:   content,
		CsrfToken: csrf,
		RemovalID: removal,
	}, nil
}

const (
	dayHeaderPrefix  = "Travaux personnels pour le "
	homeworkIdPrefix = "div_travail_"

	testDurationSep   = "durée d'effort estimée (en min) "
	normalDurationSep = "durée estimée pour ce travail (en min) "
)

// python-style capitalize: first rune upper, the rest lower
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func parseHomework(block *goquery.Selection) (Homework, error) {
	hw := Homework{
		ID:     strings.TrimPrefix(block.AttrOr("id", ""), homeworkIdPrefix),
		IsTest: block.Find("img[title='contrôle']").Length() > 0,
	}

	header := block.Find("h4").First()
	if header.Length() == 0 {
		return Homework{}, fmt.Errorf("homework header: %w", ErrMalformedPage)
	}

	sep := normalDurationSep
	if hw.IsTest {
		sep = testDurationSep
	}
	subject, duration, found := strings.Cut(strings.TrimSpace(header.Text()), sep)
	if !found {
		return Homework{}, fmt.Errorf("homework duration separator: %w", ErrMalformedPage)
	}
	// lop off the 2-character unit suffix
	if len(duration) >= 2 {
		duration = duration[:len(duration)-2]
	}
	hw.Duration = duration

	tokens := strings.Split(subject, " ")
	if len(tokens) > 0 {
		hw.Subject = capitalize(tokens[0])
	}
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		switch {
		case tok[0] == '[':
			hw.Classes = strings.TrimSuffix(tok[1:], "]")
		case tok[0] == '(':
			hw.Teacher = tok[1:]
		case hw.Teacher != "" && !strings.Contains(hw.Teacher, " "):
			hw.Teacher += " " + tok
		}
	}

	var paragraphs []string
	block.Find("p").Each(func(_ int, p *goquery.Selection) {
		paragraphs = append(paragraphs, strings.TrimSpace(p.Text()))
	})
	hw.Content = strings.Join(paragraphs, "\n")

	return hw, nil
}

// ParseNotebook walks the day headers and homework blocks of the
// notebook page in document order. Divs without a class attribute are
// layout noise and skipped, exactly like the portal renders them.
func ParseNotebook(doc *goquery.Document) ([]NotebookDay, error) {
	container := doc.Find("div.cel_trav_futur").First()
	if container.Length() == 0 {
		return nil, fmt.Errorf("notebook container: %w", ErrMalformedPage)
	}

	var days []NotebookDay
	var walkErr error

	container.Find("h3, div").EachWithBreak(func(_ int, child *goquery.Selection) bool {
		if goquery.NodeName(child) == "h3" {
			label := strings.TrimPrefix(strings.TrimSpace(child.Text()), dayHeaderPrefix)
			days = append(days, NotebookDay{Date: label})
			return true
		}

		if _, hasClass := child.Attr("class"); !hasClass {
			return true
		}
		if len(days) == 0 {
			walkErr = fmt.Errorf("homework block before any day header: %w", ErrMalformedPage)
			return false
		}

		hw, err := parseHomework(child)
		if err != nil {
			walkErr = err
			return false
		}
		days[len(days)-1].Homework = append(days[len(days)-1].Homework, hw)
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return days, nil
}

const (
	readMailHrefPrefix = "lect_alerte.php?rg="
	transferIdParam    = "id_alerte="
	dateTimeSep        = " à "
)

// ParseMailbox extracts one Mail per data row of a mailbox listing.
// Header rows carry no td cells and are skipped.
func ParseMailbox(doc *goquery.Document) ([]Mail, error) {
	var mails []Mail
	var walkErr error

	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return true
		}
		if cells.Length() < 5 {
			walkErr = fmt.Errorf("mailbox row with %d cells: %w", cells.Length(), ErrMalformedPage)
			return false
		}

		readHref, ok := cells.Eq(0).Find("a").First().Attr("href")
		if !ok {
			walkErr = fmt.Errorf("mailbox row read link: %w", ErrMalformedPage)
			return false
		}
		idStr, _, _ := strings.Cut(strings.TrimPrefix(readHref, readMailHrefPrefix), "&")
		id, err := strconv.Atoi(idStr)
		if err != nil {
			walkErr = fmt.Errorf("mailbox row mail id %q: %w", idStr, ErrMalformedPage)
			return false
		}

		transferHref, ok := cells.Eq(4).Find("a").First().Attr("href")
		if !ok {
			walkErr = fmt.Errorf("mailbox row transfer link: %w", ErrMalformedPage)
			return false
		}
		_, transferStr, found := strings.Cut(transferHref, transferIdParam)
		if !found {
			walkErr = fmt.Errorf("mailbox row transfer id: %w", ErrMalformedPage)
			return false
		}
		transferId, err := strconv.Atoi(transferStr)
		if err != nil {
			walkErr = fmt.Errorf("mailbox row transfer id %q: %w", transferStr, ErrMalformedPage)
			return false
		}

		day, tm, found := strings.Cut(cells.Eq(1).Text(), dateTimeSep)
		if !found {
			walkErr = fmt.Errorf("mailbox row date: %w", ErrMalformedPage)
			return false
		}

		mails = append(mails, Mail{
			ID:         id,
			TransferID: transferId,
			Day:        day,
			Time:       tm,
			Author:     htmlutil.CollapseText(cells.Eq(2).Text()),
			Subject:    htmlutil.CollapseText(cells.Eq(3).Text()),
		})
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return mails, nil
}

// trailer sentinels the portal appends to every mail body
var mailBodySentinels = []string{"Post scriptum", "Désabonnement", "laus:"}

// ParseMailBody extracts the readable part of a mail page, truncating at
// the earliest trailer sentinel.
func ParseMailBody(doc *goquery.Document) (string, error) {
	cell := doc.Find("td").First()
	if cell.Length() == 0 {
		return "", fmt.Errorf("mail body cell: %w", ErrMalformedPage)
	}

	content := htmlutil.GetText(cell.Nodes[0])
	for _, sentinel := range mailBodySentinels {
		content, _, _ = strings.Cut(content, sentinel)
		content = strings.TrimSpace(content)
	}
	return content, nil
}
