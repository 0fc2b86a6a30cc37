package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jajabor-ai/tutor/pkg/models"
	"github.com/jajabor-ai/tutor/pkg/playback"
	"github.com/jajabor-ai/tutor/pkg/stream"
	"github.com/jajabor-ai/tutor/pkg/tutor"
)

// terminalSink prints an answer as it grows. When a frame does not extend
// what is already printed (a stopped or error message) it starts a new line.
type terminalSink struct {
	mu      sync.Mutex
	w       io.Writer
	printed string
	quiet   bool
}

func (t *terminalSink) Frame(f playback.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.quiet {
		t.printed = f.Text
		return
	}
	if strings.HasPrefix(f.Text, t.printed) {
		fmt.Fprint(t.w, f.Text[len(t.printed):])
	} else {
		fmt.Fprint(t.w, "\n"+f.Text)
	}
	t.printed = f.Text
}

func (t *terminalSink) ScrollToBottom() {}

func (t *terminalSink) State(stream.State) {}

func (t *terminalSink) text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.printed
}

func newAskCmd(load configLoader) *cobra.Command {
	var (
		subject string
		chapter string
		pretty  bool
	)

	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Ask one question and stream the answer to the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			t := tutor.New(models.User{Name: "terminal"}, a.tutorDeps())
			defer t.Close()

			out := cmd.OutOrStdout()
			sink := &terminalSink{w: out, quiet: pretty}
			res, err := t.Ask(ctx, models.AskRequest{
				Question:  strings.Join(args, " "),
				SubjectID: subject,
				ChapterID: chapter,
			}, sink)
			if err != nil {
				return err
			}

			if pretty {
				r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
				if err != nil {
					return fmt.Errorf("markdown renderer: %w", err)
				}
				rendered, err := r.Render(sink.text())
				if err != nil {
					return fmt.Errorf("render answer: %w", err)
				}
				fmt.Fprint(out, rendered)
			} else {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "[%s, %s]\n", res.Source, res.State)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "math", "subject id")
	cmd.Flags().StringVar(&chapter, "chapter", "math_1", "chapter id")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "render the final answer as markdown instead of streaming it")
	return cmd
}
