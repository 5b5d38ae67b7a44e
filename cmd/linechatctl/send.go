package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"linechat/pkg/config"
)

func runSend(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("send", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		url    = flags.String("url", "http://localhost:8080/webhook", "Webhook URL")
		userID = flags.String("user", "U-linechatctl", "Source user id")
		text   = flags.String("text", "", "Message text")
		secret = flags.String("secret", "", "Channel secret (default $"+config.EnvLineChannelSecret+")")
	)
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *text == "" {
		fmt.Fprintf(stderr, "Error: -text is required\n")
		return 1
	}
	if *secret == "" {
		*secret = os.Getenv(config.EnvLineChannelSecret)
	}
	if *secret == "" {
		fmt.Fprintf(stderr, "Error: no channel secret; pass -secret or set %s\n", config.EnvLineChannelSecret)
		return 1
	}

	body, err := textEventBody(*userID, *text, time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	status, err := postSigned(&http.Client{Timeout: 2 * time.Minute}, *url, *secret, body)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%s -> %d %s\n", *url, status, http.StatusText(status))
	if status != http.StatusOK {
		return 1
	}
	return 0
}

// textEventBody builds a webhook callback carrying one text message event from userID.
func textEventBody(userID, text string, now time.Time) ([]byte, error) {
	id := uuid.NewString()
	event := map[string]any{
		"type":            "message",
		"mode":            "active",
		"timestamp":       now.UnixMilli(),
		"webhookEventId":  id,
		"deliveryContext": map[string]any{"isRedelivery": false},
		"replyToken":      "linechatctl-" + id,
		"source":          map[string]any{"type": "user", "userId": userID},
		"message": map[string]any{
			"type":       "text",
			"id":         strconv.FormatInt(now.UnixNano(), 10),
			"text":       text,
			"quoteToken": id,
		},
	}
	body, err := json.Marshal(map[string]any{
		"destination": "U-linechatctl",
		"events":      []any{event},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode callback: %w", err)
	}
	return body, nil
}

// signature computes the X-Line-Signature value for body.
func signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postSigned(client *http.Client, url, secret string, body []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", signature(secret, body))

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to post to %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
