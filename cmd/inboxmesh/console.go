package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/inboxmesh/dispatcher"
)

// conversation is the part of *dispatcher.Dispatcher the console drives.
type conversation interface {
	Start(ctx context.Context, session, request string) (dispatcher.Reply, error)
	Resume(ctx context.Context, session, answer string) (dispatcher.Reply, error)
}

// console reads user lines and prints assistant replies.
type console struct {
	in  *bufio.Scanner
	out io.Writer
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: bufio.NewScanner(in), out: out}
}

// readLine prints prompt and returns the next trimmed line. io.EOF means
// the input ended.
func (c *console) readLine(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *console) show(r dispatcher.Reply) {
	for _, n := range r.Notes {
		fmt.Fprintf(c.out, "Assistant\n%s\n\n", n)
	}
	if r.Text != "" {
		fmt.Fprintf(c.out, "Assistant\n%s\n\n", r.Text)
	}
}

// converse runs one session from its opening request until it ends,
// reading answers from the console whenever the assistant waits for one.
func (c *console) converse(ctx context.Context, conv conversation, session, request string) error {
	r, err := conv.Start(ctx, session, request)
	for {
		if err != nil {
			return err
		}
		c.show(r)
		if !r.AwaitingAnswer {
			return nil
		}

		answer, rerr := c.readLine("User\n")
		if rerr != nil {
			return rerr
		}
		fmt.Fprintln(c.out)
		r, err = conv.Resume(ctx, session, answer)
	}
}

// repl opens a new session for every request until the input ends or the
// user types exit.
func (c *console) repl(ctx context.Context, conv conversation, newSession func() string) error {
	for {
		line, err := c.readLine("User\n")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		fmt.Fprintln(c.out)

		if err := c.converse(ctx, conv, newSession(), line); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
