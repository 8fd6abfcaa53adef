// Command collab is a terminal client for collaborators. It signs in
// through a share link, watches the live event stream, and lets the
// user propose edits that the owner can approve or reject.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"livesh/api/internal/notify"
	"livesh/api/internal/rbac"
	"livesh/api/internal/ws"
)

func main() {
	server := flag.String("server", "http://localhost:8787", "API base URL")
	shareID := flag.String("share", "", "share id from the link you were given")
	name := flag.String("name", "", "your display name")
	flag.Parse()

	if *shareID == "" || *name == "" {
		fmt.Fprintln(os.Stderr, "usage: collab -share <id> -name <name> [-server <url>]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := &apiClient{baseURL: strings.TrimRight(*server, "/"), http: &http.Client{Timeout: 10 * time.Second}}
	session, err := api.login(ctx, *name, *shareID)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}
	fmt.Printf("signed in as %s (%s)\n", session.UserName, session.Role)

	view, err := api.sharedView(ctx, *shareID)
	if err != nil {
		log.Fatalf("share lookup failed: %v", err)
	}
	fmt.Printf("shared folder %q:\n", view.FolderName)
	for _, f := range view.Files {
		fmt.Printf("  %s  %s\n", f.ID, f.Path)
	}

	client := ws.DialClient(ctx, ws.ClientOptions{
		URL: wsURL(api.baseURL),
		Identity: ws.IdentifyPayload{
			UserID:   session.UserID,
			UserName: session.UserName,
			Role:     session.Role,
			ShareID:  *shareID,
		},
	})
	defer client.Close()

	feed := notify.NewFeed(rbac.Normalize(session.Role), session.UserName)
	commands := make(chan string)
	go readCommands(commands)

	ticker := time.NewTicker(notify.SweepInterval)
	defer ticker.Stop()

	fmt.Println("commands: ls, get <fileId>, propose <fileId> <new text>, dismiss <n>, quit")

	for {
		select {
		case <-ctx.Done():
			return

		case env, ok := <-client.Events():
			if !ok {
				fmt.Println("connection lost for good")
				return
			}
			if err := feed.Apply(env); err != nil {
				feed.AddError(err.Error())
			}
			render(feed)

		case state, ok := <-client.States():
			if !ok {
				return
			}
			fmt.Printf("[%s]\n", state)

		case <-ticker.C:
			feed.Sweep()

		case line, ok := <-commands:
			if !ok {
				return
			}
			if quit := runCommand(ctx, api, client, feed, view, line); quit {
				return
			}
		}
	}
}

func runCommand(ctx context.Context, api *apiClient, client *ws.Client, feed *notify.Feed, view sharedView, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true

	case "ls":
		for _, f := range view.Files {
			fmt.Printf("  %s  %s\n", f.ID, f.Path)
		}

	case "get":
		if len(fields) != 2 {
			fmt.Println("usage: get <fileId>")
			return false
		}
		content, err := api.fileContent(ctx, fields[1])
		if err != nil {
			feed.AddError(err.Error())
			render(feed)
			return false
		}
		fmt.Println(content)

	case "propose":
		if len(fields) < 3 {
			fmt.Println("usage: propose <fileId> <new text>")
			return false
		}
		fileID := fields[1]
		proposed := strings.Join(fields[2:], " ")
		current, err := api.fileContent(ctx, fileID)
		if err != nil {
			feed.AddError(err.Error())
			render(feed)
			return false
		}
		if err := api.requestChange(ctx, fileID, current, proposed); err != nil {
			feed.AddError(err.Error())
			render(feed)
			return false
		}
		fmt.Println("change requested, waiting for the owner")

	case "dismiss":
		if len(fields) != 2 {
			fmt.Println("usage: dismiss <n>")
			return false
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Println("usage: dismiss <n>")
			return false
		}
		feed.Dismiss(id)
		render(feed)

	case "ping":
		client.Ping()

	default:
		fmt.Printf("unknown command %q\n", fields[0])
	}
	return false
}

func render(feed *notify.Feed) {
	notifications := feed.List()
	if len(notifications) == 0 {
		return
	}
	fmt.Println("notifications:")
	for _, n := range notifications {
		name := n.FileName
		if name == "" {
			name = n.FileID
		}
		fmt.Printf("  [%d] %-17s %s %s\n", n.ID, n.Kind, name, n.Message)
	}
}

func readCommands(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func wsURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/ws"
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/ws"
	default:
		return baseURL + "/ws"
	}
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

type sessionInfo struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Role     string `json:"role"`
}

type sharedFile struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type sharedView struct {
	FolderName string       `json:"folderName"`
	Files      []sharedFile `json:"files"`
}

func (c *apiClient) login(ctx context.Context, name, shareID string) (sessionInfo, error) {
	var session sessionInfo
	err := c.call(ctx, http.MethodPost, "/api/session/login", map[string]string{"name": name, "shareId": shareID}, &session)
	if err != nil {
		return sessionInfo{}, err
	}
	c.token = session.Token
	return session, nil
}

func (c *apiClient) sharedView(ctx context.Context, shareID string) (sharedView, error) {
	var view sharedView
	err := c.call(ctx, http.MethodGet, "/api/files/shared/"+shareID, nil, &view)
	return view, err
}

func (c *apiClient) fileContent(ctx context.Context, fileID string) (string, error) {
	var payload struct {
		Content string `json:"content"`
	}
	err := c.call(ctx, http.MethodGet, "/api/files/"+fileID, nil, &payload)
	return payload.Content, err
}

func (c *apiClient) requestChange(ctx context.Context, fileID, from, to string) error {
	body := map[string]string{"fileId": fileID, "contentFrom": from, "contentTo": to}
	return c.call(ctx, http.MethodPost, "/api/files/request-change", body, nil)
}

func (c *apiClient) call(ctx context.Context, method, path string, body, target any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
