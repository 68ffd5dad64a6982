package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompter asks the player for a license key
type Prompter interface {
	PromptKey(ctx context.Context, message string) (string, error)
}

// Console prompts on a terminal. One reader goroutine feeds all prompts so
// a cancelled prompt does not lose the next line.
type Console struct {
	out io.Writer

	once  sync.Once
	in    *bufio.Scanner
	lines chan string
	err   error
}

// NewConsole creates a console prompter on in and out
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{
		out: out,
		in:  bufio.NewScanner(in),
	}
}

func (c *Console) start() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		for c.in.Scan() {
			c.lines <- c.in.Text()
		}
		c.err = c.in.Err()
	}()
}

// PromptKey prints message, if any, and reads one line. io.EOF is returned
// when the input is closed.
func (c *Console) PromptKey(ctx context.Context, message string) (string, error) {
	c.once.Do(c.start)

	if message != "" {
		fmt.Fprintln(c.out, message)
	}
	fmt.Fprint(c.out, "License key: ")

	select {
	case line, ok := <-c.lines:
		if !ok {
			if c.err != nil {
				return "", c.err
			}
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Println writes a status line
func (c *Console) Println(msg string) {
	fmt.Fprintln(c.out, msg)
}
