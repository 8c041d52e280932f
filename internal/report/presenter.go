package report

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ConsolePresenter writes messages to a writer. It is used when no dialog
// can be shown.
type ConsolePresenter struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsolePresenter(out io.Writer) *ConsolePresenter {
	if out == nil {
		out = os.Stderr
	}
	return &ConsolePresenter{out: out}
}

func (p *ConsolePresenter) ShowError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "error: %s\n", msg)
}
