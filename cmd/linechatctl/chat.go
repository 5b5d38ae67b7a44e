package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"linechat/internal/kernel"
	"linechat/pkg/config"
	"linechat/pkg/dispatch"
	"linechat/pkg/llm"
)

const noReply = "(no reply)"

func runChat(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("chat", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		modeStr    = flags.String("mode", string(ModeMock), "Completion backend: live (OpenAI) or mock (echo)")
		configPath = flags.String("config", "", "YAML config file for live mode")
		userID     = flags.String("user", "local-user", "User id the messages are sent as")
		inputPath  = flags.String("input", "", "File with one message per line (default: stdin)")
		directive  = flags.String("directive", "", "System directive override")
	)
	if err := flags.Parse(args); err != nil {
		return 2
	}

	k, err := newChatKernel(Mode(*modeStr), *configPath, *directive)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	input := stdin
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open input: %v\n", err)
			return 1
		}
		defer f.Close()
		input = f
	}

	if err := chatLoop(context.Background(), k.Dispatcher, *userID, input, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newChatKernel builds a kernel for mode. Live mode needs a complete configuration;
// mock mode starts from defaults and never contacts OpenAI.
func newChatKernel(mode Mode, configPath, directive string) (*kernel.Kernel, error) {
	var (
		cfg  *config.Config
		opts []kernel.Option
	)
	switch mode {
	case ModeLive:
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case ModeMock:
		cfg = config.Default()
		opts = append(opts, kernel.WithBaseClient(llm.NewEchoClient("[mock] ")))
	default:
		return nil, fmt.Errorf("invalid mode '%s', must be 'live' or 'mock'", mode)
	}

	if directive != "" {
		cfg.Bot.SystemDirective = directive
	}
	return kernel.NewKernel(cfg, opts...)
}

// chatLoop dispatches each input line as a message from userID and prints the reply.
func chatLoop(ctx context.Context, d *dispatch.Dispatcher, userID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		reply, ok := d.Handle(ctx, dispatch.Inbound{UserID: userID, Text: line})
		text := noReply
		if ok {
			text = reply.Text
		}
		if _, err := fmt.Fprintf(out, "> %s\n%s\n", line, text); err != nil {
			return fmt.Errorf("failed to write reply: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}
