package main

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"backdash/internal/analyst"
	"backdash/internal/dashboard"
	"backdash/internal/domain"
)

func cmdChat(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("chat", "[-run ID] [message]")
	runID := fs.String("run", "", "run the question is about")
	width := fs.Int("width", 100, "wrap answers at this width")
	if err := fs.Parse(args); err != nil {
		return err
	}

	render := analyst.RenderPlain
	if isatty.IsTerminal(os.Stdout.Fd()) {
		render = analyst.Render
	}
	asst := analyst.NewAssistant(a.client, a.log)

	ask := func(q string) {
		reply := asst.Ask(ctx, q, *runID)
		if reply.Fallback {
			a.printf("(analyst offline: %s)\n", describe(reply.Err))
		}
		a.printf("%s\n\n", render(reply.Content, *width))
	}

	if fs.NArg() > 0 {
		q := strings.Join(fs.Args(), " ")
		if strings.TrimSpace(q) == "" {
			return &domain.ValidationError{Field: "message", Reason: "empty"}
		}
		ask(q)
		return nil
	}

	// No message: read questions line by line until EOF.
	interactive := isatty.IsTerminal(os.Stdin.Fd())
	sc := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			a.printf("> ")
		}
		if !sc.Scan() {
			break
		}
		q := strings.TrimSpace(sc.Text())
		switch q {
		case "":
			continue
		case "/reset":
			asst.Reset()
			continue
		case "/quit", "/exit":
			return nil
		}
		ask(q)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return sc.Err()
}

func cmdAIRuns(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("ai-runs", "").Parse(args); err != nil {
		return err
	}
	list, err := a.client.ListAnalystRuns(ctx)
	if err != nil {
		return err
	}
	a.printf("%-24s %-28s %-20s %s\n", "RUN", "STRATEGY", "WHEN", "STATUS")
	for _, r := range list.Runs {
		a.printf("%-24s %-28s %-20s %s\n", r.RunID, r.Strategy, dashboard.FormatDate(r.Timestamp), r.Status)
	}
	a.printf("\n%d runs\n", len(list.Runs))
	return nil
}
