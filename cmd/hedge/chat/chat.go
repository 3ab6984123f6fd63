// Package chatcmder provides the chat command for interactive agent chat
// through the hedge relay or directly against the agent.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/hedge/pkg/agentstream"
	"github.com/papercomputeco/hedge/pkg/cliui"
	"github.com/papercomputeco/hedge/pkg/config"
	"github.com/papercomputeco/hedge/pkg/dotdir"
	"github.com/papercomputeco/hedge/pkg/logger"
)

// relayChatPath is the relay's chat endpoint.
const relayChatPath = "/v1/chat"

type chatCommander struct {
	flags struct {
		proxyTarget   string
		agent         string
		agentPath     string
		agentTimeout  string
		flushInterval uint
	}

	direct         bool
	fresh          bool
	markdown       bool
	hideThoughts   bool
	conversationID string
	wallet         string
	configDir      string
	debug          bool

	cfg       *config.Config
	transport *agentstream.Transport
	dotdir    *dotdir.Manager
	logger    *slog.Logger

	in     io.Reader
	out    io.Writer
	styled bool
}

var chatFlags = []string{
	config.FlagProxyTarget,
	config.FlagAgentTarget,
	config.FlagAgentPath,
	config.FlagAgentTimeout,
	config.FlagFlushInterval,
}

const chatLongDesc string = `Start an interactive chat session with the agent.

Messages go through the hedge relay (client.proxy_target) so the transcript
is recorded, or straight to the agent with --direct. Answer text is printed
as it streams; reasoning phases and tool statuses follow once the answer is
complete.

The conversation id announced by the agent is remembered in .hedge/chat.json
and continued by the next "hedge chat". Use --new to start over or
--conversation to pick one explicitly.

Pass a message as arguments to send a single prompt and exit.

Examples:
  hedge chat
  hedge chat --direct --agent http://localhost:8000
  hedge chat --new "what moved the market today?"`

const chatShortDesc string = "Interactive agent chat"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, chatFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.styled = isTerminal(cmder.out)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, strings.TrimSpace(strings.Join(args, " ")))
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagProxyTarget, &cmder.flags.proxyTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagAgentTarget, &cmder.flags.agent)
	config.AddStringFlag(cmd, config.Flags, config.FlagAgentPath, &cmder.flags.agentPath)
	config.AddStringFlag(cmd, config.Flags, config.FlagAgentTimeout, &cmder.flags.agentTimeout)
	config.AddUintFlag(cmd, config.Flags, config.FlagFlushInterval, &cmder.flags.flushInterval)
	cmd.Flags().BoolVar(&cmder.direct, "direct", false, "Talk to the agent directly instead of through the relay")
	cmd.Flags().BoolVar(&cmder.fresh, "new", false, "Start a new conversation instead of resuming")
	cmd.Flags().StringVarP(&cmder.conversationID, "conversation", "c", "", "Continue the given conversation id")
	cmd.Flags().StringVarP(&cmder.wallet, "wallet", "w", "", "Wallet passed through to the agent")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render the finished answer as markdown instead of streaming it")
	cmd.Flags().BoolVar(&cmder.hideThoughts, "hide-thoughts", false, "Do not print reasoning phases")

	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *chatCommander) run(ctx context.Context, oneShot string) error {
	// Agent errors are already shown inline, so only failures are logged
	// unless --debug is set.
	level := new(slog.LevelVar)
	level.Set(slog.LevelError)
	if c.debug {
		level.Set(slog.LevelDebug)
	}
	c.logger = logger.New(
		logger.WithLevelVar(level),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)
	c.dotdir = dotdir.NewManager()

	transport, err := c.newTransport()
	if err != nil {
		return err
	}
	c.transport = transport

	if err := c.resolveConversation(); err != nil {
		return err
	}

	if oneShot != "" {
		return c.turn(ctx, oneShot)
	}

	fmt.Fprintln(c.out)
	if c.conversationID != "" {
		fmt.Fprintf(c.out, "  %s Resuming %s\n", c.paint("✓", cliui.PromptStyle), c.paint(c.conversationID, cliui.KeyStyle))
	} else {
		fmt.Fprintf(c.out, "  %s New conversation\n", c.paint("●", cliui.DimStyle))
	}
	fmt.Fprintf(c.out, "  %s %s\n\n", c.paint("Agent:", cliui.KeyStyle), c.paint(c.transport.URL(), cliui.ValueStyle))
	fmt.Fprintf(c.out, "  %s\n\n", c.paint("Type your message and press Enter. /new starts over, /exit or Ctrl+D quits.", cliui.DimStyle))

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, c.paint("you> ", cliui.PromptStyle))
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			return nil
		case "/new":
			c.conversationID = ""
			if err := c.dotdir.ClearResumeState(c.configDir); err != nil {
				c.logger.Warn("could not clear resume state", "error", err)
			}
			fmt.Fprintf(c.out, "  %s New conversation\n\n", c.paint("●", cliui.DimStyle))
			continue
		}

		if err := c.turn(ctx, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(c.out, "  %s %v\n\n", c.paint("✗", cliui.ErrorStyle), err)
		}
	}

	return scanner.Err()
}

func (c *chatCommander) newTransport() (*agentstream.Transport, error) {
	cfg := agentstream.TransportConfig{
		Target:  c.cfg.Client.ProxyTarget,
		Path:    relayChatPath,
		Timeout: c.cfg.Agent.Timeout.Duration,
	}
	if c.direct {
		cfg.Target = c.cfg.Agent.Target
		cfg.Path = c.cfg.Agent.Path
	}

	transport, err := agentstream.NewTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}
	return transport, nil
}

// resolveConversation picks the conversation to continue: --conversation,
// then the saved resume state unless --new was given.
func (c *chatCommander) resolveConversation() error {
	if c.conversationID != "" {
		return nil
	}

	if c.fresh {
		return c.dotdir.ClearResumeState(c.configDir)
	}

	state, err := c.dotdir.LoadResumeState(c.configDir)
	if err != nil {
		c.logger.Warn("ignoring unreadable resume state", "error", err)
		return nil
	}
	if state != nil {
		c.conversationID = state.ConversationID
	}
	return nil
}

// turn sends one prompt and renders the streamed answer.
func (c *chatCommander) turn(ctx context.Context, prompt string) error {
	var body io.ReadCloser
	open := func() error {
		var err error
		body, err = c.transport.Open(ctx, agentstream.Request{
			ConversationID: c.conversationID,
			Message:        prompt,
			Wallet:         c.wallet,
		})
		return err
	}

	// The spinner only makes sense on a terminal.
	var err error
	if c.styled {
		err = cliui.Step(c.out, "Waiting for agent", open)
	} else {
		err = open()
	}
	if err != nil {
		return err
	}
	defer body.Close()

	if !c.markdown {
		fmt.Fprint(c.out, c.paint("agent> ", cliui.StepStyle))
	}

	display := agentstream.NewDisplayBuffer(func(text string) {
		if !c.markdown {
			fmt.Fprint(c.out, text)
		}
	})

	session := agentstream.NewSession(
		agentstream.WithLogger(c.logger),
		agentstream.WithConversationID(c.conversationID),
		agentstream.WithDisplay(display),
		agentstream.WithEventHook(func(ev agentstream.Event) {
			if ev.Kind == agentstream.KindError {
				// Keep the banner after the text that preceded it.
				display.Flush()
				fmt.Fprintf(c.out, "\n  %s %s\n", c.paint("✗", cliui.ErrorStyle), c.paint(ev.Content, cliui.ErrorStyle))
			}
		}),
	)

	flushCtx, stopFlush := context.WithCancel(ctx)
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		display.Run(flushCtx, c.flushInterval())
	}()

	consumeErr := agentstream.Consume(ctx, body, session)
	stopFlush()
	<-flushed

	completion, ok := session.Completion()
	if !ok {
		fmt.Fprintln(c.out)
		if consumeErr == nil {
			consumeErr = errors.New("stream ended without a completion")
		}
		return consumeErr
	}

	c.render(completion)
	c.remember(completion.ConversationID)

	if completion.Failed() {
		return fmt.Errorf("stream interrupted: %s", completion.TransportError)
	}
	return nil
}

// render prints everything that is shown after the answer completes.
func (c *chatCommander) render(done agentstream.Completion) {
	if c.markdown {
		rendered, err := cliui.RenderMarkdown(done.FinalText)
		if err != nil {
			c.logger.Debug("markdown rendering failed", "error", err)
		}
		fmt.Fprint(c.out, rendered)
	}
	fmt.Fprintln(c.out)

	if !c.hideThoughts {
		for i, phase := range done.Phases {
			fmt.Fprintf(c.out, "  %s %s\n",
				c.paint(fmt.Sprintf("thought %d", i+1), cliui.StepStyle),
				c.paint(indent(phase), cliui.DimStyle),
			)
		}
	}

	names := make([]string, 0, len(done.Tools))
	for name := range done.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.out, "  %s %s %s\n",
			c.paint("tool", cliui.StepStyle),
			c.paint(name, cliui.KeyStyle),
			c.paint(done.Tools[name], cliui.ValueStyle),
		)
	}

	if done.Reason == agentstream.ReasonEOF {
		fmt.Fprintf(c.out, "  %s\n", c.paint("(stream ended without DONE)", cliui.DimStyle))
	}
	fmt.Fprintln(c.out)
}

// remember continues id on the next turn and in the next chat session.
func (c *chatCommander) remember(id string) {
	if id == "" {
		return
	}
	c.conversationID = id

	err := c.dotdir.SaveResumeState(&dotdir.ResumeState{
		ConversationID: id,
		UpdatedAt:      time.Now().UTC(),
	}, c.configDir)
	if err != nil {
		c.logger.Warn("could not save resume state", "error", err)
	}
}

func (c *chatCommander) flushInterval() time.Duration {
	if d := c.cfg.Stream.FlushInterval(); d > 0 {
		return d
	}
	return 50 * time.Millisecond
}

func (c *chatCommander) paint(s string, style lipgloss.Style) string {
	if !c.styled {
		return s
	}
	return style.Render(s)
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n    ")
}
