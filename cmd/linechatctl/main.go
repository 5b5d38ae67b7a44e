// Command linechatctl is a developer tool for the LINE bot. "chat" runs conversations
// in-process without LINE; "send" posts a signed text event to a running webhook.
package main

import (
	"fmt"
	"io"
	"os"
)

// Mode selects the completion backend for the chat command.
type Mode string

const (
	ModeLive Mode = "live"
	ModeMock Mode = "mock"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "chat":
		return runChat(args[1:], stdin, stdout, stderr)
	case "send":
		return runSend(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Error: unknown command '%s'\n\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "linechatctl - LINE chat bot developer tool\n\n")
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  linechatctl chat [-mode <mock|live>] [-config <file>] [-user <id>] [-input <file>] [-directive <text>]\n")
	fmt.Fprintf(w, "  linechatctl send -text <text> [-url <webhook url>] [-user <id>] [-secret <channel secret>]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  chat  - Read messages line by line and print the bot's replies\n")
	fmt.Fprintf(w, "  send  - Post a signed text message event to a webhook\n\n")
	fmt.Fprintf(w, "Examples:\n")
	fmt.Fprintf(w, "  linechatctl chat -mode mock -directive \"You are a pirate.\"\n")
	fmt.Fprintf(w, "  linechatctl chat -mode live -config linechat.yaml -input script.txt\n")
	fmt.Fprintf(w, "  linechatctl send -url http://localhost:8080/webhook -user U123 -text 啟動\n")
}
