package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"

	"github.com/dashpull/dashpull/internal/tasks"
)

// ErrSelectionAborted is returned when the user interrupts a prompt.
var ErrSelectionAborted = errors.New("selection aborted")

// isInteractive reports whether stdin is a terminal.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// parseSelection turns "1, 3 5" into task ids. Blank input selects every task
// and yields nil. Unknown ids are an error; repeats are dropped.
func parseSelection(input string, catalog *tasks.Catalog) ([]string, error) {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(fields))
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := catalog.Find(f); !ok {
			return nil, fmt.Errorf("unknown task %q", f)
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		ids = append(ids, f)
	}
	return ids, nil
}

// printTaskMenu lists the catalog the way the selection prompt expects it.
func printTaskMenu(w io.Writer, catalog *tasks.Catalog) {
	fmt.Fprintln(w, "Available tasks:")
	for _, t := range catalog.Tasks {
		fmt.Fprintf(w, "  %s. %s\n", t.ID, t.Name)
	}
	fmt.Fprintln(w)
}

// promptTaskSelection shows the menu and reads a comma-separated selection.
func promptTaskSelection(catalog *tasks.Catalog) ([]string, error) {
	printTaskMenu(os.Stdout, catalog)

	prompt := promptui.Prompt{
		Label: "Tasks to run (e.g. 1,3,5; Enter for all)",
		Validate: func(s string) error {
			_, err := parseSelection(s, catalog)
			return err
		},
	}
	input, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
			return nil, ErrSelectionAborted
		}
		return nil, err
	}
	return parseSelection(input, catalog)
}

// promptChoice asks the user to pick one of items.
func promptChoice(label string, items []string, current string) (string, error) {
	cursor := 0
	for i, it := range items {
		if it == current {
			cursor = i
		}
	}
	sel := promptui.Select{
		Label:     label,
		Items:     items,
		CursorPos: cursor,
	}
	_, choice, err := sel.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return "", ErrSelectionAborted
		}
		return "", err
	}
	return choice, nil
}

// promptLine reads one line, returning def when the input is blank.
func promptLine(reader *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}

// promptSecret reads a value without echo.
func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(string(b)), nil
}
