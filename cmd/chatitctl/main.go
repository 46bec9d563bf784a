package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"github.com/chatit/chatit/internal/config"
	"github.com/chatit/chatit/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	addrFlag := flag.String("addr", "", "daemon address (overrides config)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	addr := resolveAddr(*addrFlag)
	c := resty.New().
		SetBaseURL("http://" + addr).
		SetTimeout(10 * time.Second)

	switch args[0] {
	case "status":
		cmdStatus(c, *jsonFlag)
	case "register":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatitctl register <email> [image-path]")
			os.Exit(1)
		}
		imagePath := ""
		if len(args) >= 3 {
			imagePath = args[2]
		}
		cmdRegister(c, args[1], imagePath, *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: chatitctl send <receiver-id> <content>")
			os.Exit(1)
		}
		cmdSend(c, args[1], args[2], "", *jsonFlag)
	case "send-image":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: chatitctl send-image <receiver-id> <image-path>")
			os.Exit(1)
		}
		cmdSend(c, args[1], "", args[2], *jsonFlag)
	case "view":
		cmdView(c, *jsonFlag)
	case "watch":
		chatID := ""
		if len(args) >= 2 {
			chatID = args[1]
		}
		cmdWatch(addr, chatID)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatitctl [--profile <name>] [--addr <host:port>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                         Show daemon status")
	fmt.Fprintln(os.Stderr, "  register <email> [image]       Register or refresh the profile")
	fmt.Fprintln(os.Stderr, "  send <receiver> <content>      Send a text message")
	fmt.Fprintln(os.Stderr, "  send-image <receiver> <image>  Send an image message")
	fmt.Fprintln(os.Stderr, "  view                           Show the current chat view")
	fmt.Fprintln(os.Stderr, "  watch [chat-id]                Stream the view, or one chat's messages")
}

// resolveAddr prefers the flag, then the config file, then the default.
func resolveAddr(override string) string {
	if override != "" {
		return override
	}
	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		return config.Default().Daemon.Listen
	}
	return cfg.Daemon.Listen
}

func cmdStatus(c *resty.Client, jsonOut bool) {
	var status map[string]any
	resp, err := c.R().SetResult(&status).Get("/v1/healthz")
	checkResponse(resp, err)
	if jsonOut {
		outputJSON(status)
		return
	}
	fmt.Printf("Status: %v\n", status["status"])
	fmt.Printf("Send:   %v\n", status["send"])
	if uid, ok := status["uid"]; ok {
		fmt.Printf("UID:    %v\n", uid)
	} else {
		fmt.Println("UID:    (not registered)")
	}
}

func cmdRegister(c *resty.Client, email, imagePath string, jsonOut bool) {
	var user map[string]any
	resp, err := c.R().
		SetBody(map[string]string{"email": email, "image_path": imagePath}).
		SetResult(&user).
		Post("/v1/register")
	checkResponse(resp, err)
	if jsonOut {
		outputJSON(user)
		return
	}
	fmt.Printf("Registered: %v (%v)\n", user["email"], user["uid"])
}

func cmdSend(c *resty.Client, receiverID, content, imagePath string, jsonOut bool) {
	body := map[string]string{
		"receiver_id": receiverID,
		"content":     content,
	}
	if imagePath != "" {
		body["type"] = "image"
		body["media_path"] = imagePath
	}

	var result map[string]any
	resp, err := c.R().SetBody(body).SetResult(&result).Post("/v1/messages")
	checkResponse(resp, err)
	if jsonOut {
		outputJSON(result)
		return
	}
	fmt.Printf("Sent to %s (chat %v)\n", receiverID, result["chat_id"])
}

func cmdView(c *resty.Client, jsonOut bool) {
	var view struct {
		Phase string `json:"phase"`
		Chats []struct {
			ChatID      string `json:"chatId"`
			LastMessage string `json:"lastMessage"`
			Timestamp   int64  `json:"timestamp"`
		} `json:"chats"`
		EligibleContacts map[string]struct {
			Email string `json:"email"`
		} `json:"eligibleContacts"`
		Err string `json:"error"`
	}
	resp, err := c.R().SetResult(&view).Get("/v1/view")
	checkResponse(resp, err)
	if jsonOut {
		outputJSON(view)
		return
	}

	fmt.Printf("Phase: %s\n", view.Phase)
	if view.Err != "" {
		fmt.Printf("Error: %s\n", view.Err)
	}
	if len(view.Chats) > 0 {
		fmt.Println("Chats:")
		for _, ch := range view.Chats {
			ts := time.UnixMilli(ch.Timestamp).Format("2006-01-02 15:04")
			fmt.Printf("  %-24s %s  %s\n", ch.ChatID, ts, ch.LastMessage)
		}
	}
	if len(view.EligibleContacts) > 0 {
		fmt.Println("Contacts:")
		for uid, u := range view.EligibleContacts {
			fmt.Printf("  %-40s %s\n", uid, u.Email)
		}
	}
}

func cmdWatch(addr, chatID string) {
	url := "ws://" + addr + "/v1/ws/view"
	if chatID != "" {
		url = "ws://" + addr + "/v1/ws/messages?chat_id=" + chatID
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon at %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			fmt.Fprintf(os.Stderr, "stream closed: %v\n", err)
			os.Exit(1)
		}
		var pretty json.RawMessage = msg
		outputJSON(pretty)
	}
}

func checkResponse(resp *resty.Response, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon: %v\n", err)
		os.Exit(1)
	}
	if resp.IsError() {
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", resp.Status(), resp.String())
		os.Exit(1)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
