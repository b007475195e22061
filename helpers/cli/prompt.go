// Package cli runs interactive command loop for development subcommands.
package cli

import (
	"bufio"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
)

// MainLoop uses go-prompt with completion on terminal, plain stdin lines otherwise.
// Returns on Ctrl-D or stdin EOF.
func MainLoop(tag string, exec func(line string), complete func(d prompt.Document) []prompt.Suggest) error {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		prompt.New(exec, complete,
			prompt.OptionPrefix(tag+"> "),
			prompt.OptionTitle(tag),
		).Run()
		return nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			exec(line)
		}
	}
	return errors.Annotate(scanner.Err(), "stdin")
}
