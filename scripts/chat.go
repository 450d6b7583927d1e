// Command chat is a terminal client for /vapi/chat. Each line typed is sent as
// a user turn with the full history, the way the voice platform does.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/harunnryd/frontdesk/pkg/config"
	"github.com/tidwall/gjson"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func main() {
	configPath := flag.String("config", "", "read server.addr and server.secret from this config")
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	secret := flag.String("secret", os.Getenv("VAPI_SECRET"), "shared secret")
	to := flag.String("to", "", "dialed tenant number")
	from := flag.String("from", "+15550009999", "caller number")
	flag.Parse()
	if *to == "" {
		fmt.Println("usage: chat -to=+15551234567 [-url=...] [-secret=...] [-config=...]")
		os.Exit(1)
	}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Println("config error:", err)
			os.Exit(1)
		}
		*secret = cfg.Server.Secret
		if strings.HasPrefix(cfg.Server.Addr, ":") {
			*baseURL = "http://localhost" + cfg.Server.Addr
		}
	}

	callID := uuid.NewString()
	var history []message
	in := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		history = append(history, message{Role: "user", Content: line})
		reply, err := send(*baseURL, *secret, callID, *to, *from, history)
		fmt.Println()
		if err != nil {
			fmt.Println("error:", err)
		} else {
			history = append(history, message{Role: "assistant", Content: reply})
		}
		fmt.Print("> ")
	}
}

func send(baseURL, secret, callID, to, from string, history []message) (string, error) {
	body, err := json.Marshal(map[string]any{
		"call": map[string]any{
			"id":       callID,
			"toNumber": to,
			"customer": map[string]string{"number": from},
		},
		"messages": history,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(baseURL, "/")+"/vapi/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, e.Error)
	}

	var reply strings.Builder
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok || data == "[DONE]" {
			continue
		}
		text := gjson.Get(data, "choices.0.delta.content").String()
		fmt.Print(text)
		reply.WriteString(text)
	}
	return reply.String(), sc.Err()
}
