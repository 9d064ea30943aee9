package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// terminalKeyProvider asks the decryption key on the terminal without echo.
type terminalKeyProvider struct {
	in  *os.File
	out io.Writer
}

func newTerminalKeyProvider(out io.Writer) (*terminalKeyProvider, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("stdin is not a terminal")
	}
	return &terminalKeyProvider{in: os.Stdin, out: out}, nil
}

func (t terminalKeyProvider) Key(ctx context.Context, filename string) (string, error) {
	return t.prompt(ctx, fmt.Sprintf("Decryption key for %s: ", filename))
}

func (t terminalKeyProvider) prompt(ctx context.Context, msg string) (string, error) {
	type result struct {
		key string
		err error
	}

	fmt.Fprint(t.out, msg)
	resC := make(chan result, 1)
	go func() {
		b, err := term.ReadPassword(int(t.in.Fd()))
		resC <- result{key: strings.TrimSpace(string(b)), err: err}
	}()

	// ReadPassword can't be interrupted, on cancellation the goroutine is left reading.
	select {
	case <-ctx.Done():
		fmt.Fprintln(t.out)
		return "", ctx.Err()
	case res := <-resC:
		fmt.Fprintln(t.out)
		if res.err != nil {
			return "", fmt.Errorf("could not read key: %w", res.err)
		}
		return res.key, nil
	}
}
