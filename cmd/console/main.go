package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/bookingline/messages"
)

// ServerMessage mirrors messages.ServerMessage with a raw payload
type ServerMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func main() {
	// Flags
	serverURL := flag.String("server", "ws://localhost:8080/console", "Console websocket URL")
	caller := flag.String("caller", "console", "Caller id reported to the agent")
	script := flag.String("file", "", "Send utterances from this file, one per line, instead of stdin")
	flag.Parse()

	log.Printf("🔌 Connecting to %s...", *serverURL)

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Println("✅ Connected!")

	// Handle interrupt
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	replies := make(chan struct{}, 1)

	// Read responses from server
	go func() {
		defer close(done)
		for {
			var msg ServerMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Println("Read error:", err)
				}
				return
			}

			switch msg.Type {
			case messages.TypeReply:
				var payload messages.ReplyPayload
				_ = json.Unmarshal(msg.Payload, &payload)
				fmt.Printf("🤖 %s\n", payload.Text)
				if payload.Prompt != "" {
					fmt.Printf("🤖 %s\n", payload.Prompt)
				}
				if payload.Intent != "" {
					log.Printf("🏷️ intent=%s action=%s", payload.Intent, payload.Action)
				}
				select {
				case replies <- struct{}{}:
				default:
				}

			case messages.TypeStatus:
				var payload messages.StatusPayload
				_ = json.Unmarshal(msg.Payload, &payload)
				log.Printf("📊 Status: %s %s", payload.Status, payload.Message)
				if payload.Status == messages.StatusEnded {
					return
				}

			case messages.TypeError:
				var payload messages.ErrorPayload
				_ = json.Unmarshal(msg.Payload, &payload)
				log.Printf("❌ Error: %s %s", payload.Code, payload.Message)
			}
		}
	}()

	if err := send(conn, messages.TypeStart, messages.StartPayload{Caller: *caller}); err != nil {
		log.Fatalf("Failed to start call: %v", err)
	}
	waitReply(replies, done)

	var input io.Reader = os.Stdin
	if *script != "" {
		f, err := os.Open(*script)
		if err != nil {
			log.Fatalf("Failed to open script: %v", err)
		}
		defer f.Close()
		input = f
	} else {
		fmt.Println("Type what the caller says. /quit hangs up.")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-done:
			log.Println("Connection closed")
			return

		case <-interrupt:
			log.Println("\n👋 Interrupted, hanging up...")
			hangup(conn, done)
			return

		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				hangup(conn, done)
				return
			}
			if *script != "" {
				fmt.Printf("🗣️ %s\n", line)
			}
			if err := send(conn, messages.TypeSpeech, messages.SpeechPayload{Text: line}); err != nil {
				log.Printf("Send error: %v", err)
				return
			}
			waitReply(replies, done)
		}
	}
}

func send(conn *websocket.Conn, typ string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(messages.ClientMessage{Type: typ, Payload: raw})
}

func waitReply(replies <-chan struct{}, done <-chan struct{}) {
	select {
	case <-replies:
	case <-done:
	case <-time.After(10 * time.Second):
		log.Println("⏰ Timeout waiting for reply")
	}
}

func hangup(conn *websocket.Conn, done <-chan struct{}) {
	_ = send(conn, messages.TypeControl, messages.ControlPayload{Action: "hangup"})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
