package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/50zero/pm-trader-art/internal/mint"
)

// promptConfirm prints the mint summary and reads a yes/no answer from in.
// Anything other than y or yes declines.
func promptConfirm(ctx context.Context, in io.Reader, out io.Writer, c mint.Confirmation) (bool, error) {
	fmt.Fprintf(out, "Mint the Portfolio Mandala of %s on %s\n", c.Trader.Short(), c.Network.Name)
	fmt.Fprintf(out, "  contract: %s\n", c.Payload.To)
	if c.GasEstimate != nil {
		fmt.Fprintf(out, "  gas:      %s\n", c.GasEstimate.Formatted)
		if c.GasEstimate.Cost != "" {
			fmt.Fprintf(out, "  cost:     %s\n", c.GasEstimate.Cost)
		}
	}
	fmt.Fprint(out, "Proceed? [y/N] ")

	answer := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			errc <- err
			return
		}
		answer <- line
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-errc:
		if err == io.EOF {
			return false, nil
		}
		return false, err
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
