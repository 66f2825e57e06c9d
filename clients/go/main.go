// meshchat CLI - command line client for the meshchat service
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/meshchat-protocol/meshchat/clients/go/meshchat"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("MESHCHAT_URL")
	token := os.Getenv("MESHCHAT_TOKEN")

	client := meshchat.NewClient(baseURL, token)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "me":
		resp, err := client.Me()
		exitOnError(err)
		printJSON(resp)

	case "conversations":
		convs, err := client.Conversations()
		exitOnError(err)
		for _, conv := range convs {
			ts := time.UnixMicro(conv.LastTS).Format("2006-01-02 15:04")
			fmt.Printf("  %s  [%s] %s\n", conv.ID, ts, conv.LastContent)
		}

	case "history":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: meshchat history <conversation-id> [limit]")
			os.Exit(1)
		}
		limit := 20
		if len(os.Args) > 3 {
			n, err := strconv.Atoi(os.Args[3])
			exitOnError(err)
			limit = n
		}
		msgs, err := client.History(os.Args[2], limit, 0)
		exitOnError(err)
		for _, msg := range msgs {
			printMessage(&msg)
		}

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: meshchat send <user-id> <message>")
			os.Exit(1)
		}
		stream, err := client.Connect(context.Background())
		exitOnError(err)
		defer stream.Close()

		exitOnError(stream.SendChat(os.Args[2], os.Args[3]))
		// Wait for the echo so a quota denial is visible.
		ev, err := stream.Next()
		exitOnError(err)
		if ev.Type == "error" {
			fmt.Fprintf(os.Stderr, "rejected: %s (%s)\n", ev.Message, ev.Code)
			os.Exit(1)
		}
		fmt.Println("sent")

	case "listen":
		stream, err := client.Connect(context.Background())
		exitOnError(err)
		defer stream.Close()

		fmt.Fprintln(os.Stderr, "listening... (ctrl-c to quit)")
		for {
			ev, err := stream.Next()
			exitOnError(err)
			switch ev.Type {
			case "text", "file":
				printMessage(&ev.Envelope)
			case "error":
				fmt.Fprintf(os.Stderr, "error: %s (%s)\n", ev.Message, ev.Code)
			}
		}

	default:
		usage()
		os.Exit(1)
	}
}

func printMessage(msg *meshchat.Envelope) {
	ts := time.UnixMicro(msg.Timestamp).Format("2006-01-02 15:04:05")
	from := msg.Username
	if from == "" {
		from = msg.From
	}
	if msg.Kind == "file" {
		fmt.Printf("[%s] %s sent a file: %s\n", ts, from, msg.Content)
		return
	}
	fmt.Printf("[%s] %s: %s\n", ts, from, msg.Content)
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `meshchat - command line chat client

Usage: meshchat <command> [args]

Commands:
  health                    node health
  me                        show my profile
  conversations             list my conversations
  history <conv-id> [n]     show recent messages
  send <user-id> <message>  send a text message
  listen                    print messages as they arrive

Environment:
  MESHCHAT_URL    service URL (default http://localhost:8080)
  MESHCHAT_TOKEN  session token`)
}
