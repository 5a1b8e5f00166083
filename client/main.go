// Command client is a terminal client for poking at a running server.
//
//	client -addr localhost:8080 -session s1 -token p1:Alice
//
// Lines starting with a command are typed messages, anything else is
// table talk:
//
//	/action sneak past the guard
//	/roll 1d20
//	/ooc be right back
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

func send(c *websocket.Conn, msgType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := envelope{Type: msgType, Data: data}
	return c.WriteJSON(env)
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	session := flag.String("session", "dev", "session id")
	token := flag.String("token", "", "auth token (id:name for local setups)")
	flag.Parse()

	if *token == "" {
		log.Fatal("A -token is required")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{
		Scheme:   "ws",
		Host:     *addr,
		Path:     "/ws/" + *session,
		RawQuery: "token=" + url.QueryEscape(*token),
	}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			var env envelope
			if err := c.ReadJSON(&env); err != nil {
				log.Println("Read error:", err)
				return
			}
			printEnvelope(env)
		}
	}()

	// Input loop
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := handleInput(c, line); err != nil {
				log.Println("Send error:", err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		log.Println("Interrupted, closing connection")
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}

func handleInput(c *websocket.Conn, line string) error {
	switch {
	case strings.HasPrefix(line, "/action "):
		return send(c, "player_action", map[string]string{
			"action": strings.TrimPrefix(line, "/action "),
		})
	case strings.HasPrefix(line, "/roll "):
		parts := strings.SplitN(strings.TrimPrefix(line, "/roll "), " ", 2)
		payload := map[string]string{"notation": parts[0]}
		if len(parts) == 2 {
			payload["purpose"] = parts[1]
		}
		return send(c, "dice_roll", payload)
	case strings.HasPrefix(line, "/ooc "):
		return send(c, "chat_message", map[string]interface{}{
			"content": strings.TrimPrefix(line, "/ooc "),
			"is_ooc":  true,
		})
	case line == "/ping":
		return send(c, "ping", map[string]string{})
	default:
		return send(c, "chat_message", map[string]interface{}{
			"content": line,
			"is_ooc":  false,
		})
	}
}

func printEnvelope(env envelope) {
	var fields map[string]interface{}
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		log.Printf("[%s] %s", env.Type, string(env.Data))
		return
	}

	switch env.Type {
	case "chat_message":
		fmt.Printf("<%v> %v\n", fields["sender_name"], fields["content"])
	case "ai_response":
		fmt.Printf("\n--- Narrator ---\n%v\n\n", fields["message"])
	case "roll_request":
		fmt.Printf("*** %v\n", fields["message"])
	case "dice_check_result":
		fmt.Printf("*** %v\n", fields["message"])
	case "dice_roll":
		fmt.Printf("%v rolled %v: %v\n", fields["player_name"], fields["notation"], fields["total"])
	case "system", "player_joined", "player_left":
		fmt.Printf("* %v\n", fields["message"])
	case "error":
		fmt.Printf("! %v\n", fields["message"])
	case "pong":
	default:
		log.Printf("[%s] %s", env.Type, string(env.Data))
	}
}
