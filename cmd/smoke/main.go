// Command smoke runs one streamed search against a live server and prints the
// event stream, answering a clarification once if -reply is set.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"
)

type frame struct {
	name string
	data string
}

type options struct {
	baseURL   string
	token     string
	sessionID string
	query     string
	reply     string
	lat, lng  float64
	language  string
}

func main() {
	var o options
	flag.StringVar(&o.baseURL, "base", "http://localhost:3000/api", "API base URL")
	flag.StringVar(&o.token, "token", "", "optional bearer token")
	flag.StringVar(&o.sessionID, "session", "smoke", "session id recorded as the request owner")
	flag.StringVar(&o.query, "query", "cheap ramen near me", "search text")
	flag.StringVar(&o.reply, "reply", "", "answer sent if the server asks for clarification")
	flag.Float64Var(&o.lat, "lat", 0, "latitude (0 = no location)")
	flag.Float64Var(&o.lng, "lng", 0, "longitude")
	flag.StringVar(&o.language, "lang", "en", "language hint")
	flag.Parse()

	color.Cyan("Starting search smoke test against %s\n", o.baseURL)

	body := map[string]interface{}{
		"sessionId": o.sessionID,
		"query":     o.query,
		"language":  o.language,
	}
	if o.lat != 0 || o.lng != 0 {
		body["location"] = map[string]float64{"lat": o.lat, "lng": o.lng}
	}

	requestID, clarify, err := stream(o, "/search/stream", body)
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}

	if clarify && o.reply != "" {
		color.Yellow("\nReplying to clarification: %q", o.reply)
		_, _, err = stream(o, "/search/"+requestID+"/reply/stream", map[string]interface{}{
			"sessionId": o.sessionID,
			"message":   o.reply,
			"language":  o.language,
		})
		if err != nil {
			color.Red("Failed: %v", err)
			os.Exit(1)
		}
	}

	if requestID == "" {
		return
	}
	color.Yellow("\nFinal state")
	if err := showState(o, requestID); err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
}

// stream posts body to path and prints every event until the server ends the
// stream. It reports the request id and whether a blocking question arrived.
func stream(o options, path string, body interface{}) (string, bool, error) {
	resp, err := send(o, http.MethodPost, path, body)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", false, fmt.Errorf("status %s: %s", resp.Status, raw)
	}

	var (
		requestID string
		clarify   bool
	)
	err = readFrames(resp.Body, func(f frame) {
		switch f.name {
		case "meta":
			var meta struct {
				RequestID string `json:"requestId"`
			}
			_ = json.Unmarshal([]byte(f.data), &meta)
			requestID = meta.RequestID
			color.Cyan("[meta] %s", f.data)
		case "narration":
			color.Yellow("[narration] %s", f.data)
		case "delta":
			fmt.Printf("[delta] %s\n", f.data)
		case "message":
			var msg struct {
				Type         string `json:"type"`
				BlocksSearch bool   `json:"blocksSearch"`
			}
			_ = json.Unmarshal([]byte(f.data), &msg)
			if msg.BlocksSearch && msg.Type == "CLARIFY" {
				clarify = true
			}
			color.Green("[message] %s", f.data)
		case "error":
			color.Red("[error] %s", f.data)
		case "done":
			color.Cyan("[done]")
		default:
			fmt.Printf("[%s] %s\n", f.name, f.data)
		}
	})
	return requestID, clarify, err
}

func readFrames(r io.Reader, fn func(frame)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cur frame
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.name != "" {
				fn(cur)
			}
			cur = frame{}
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	return scanner.Err()
}

func showState(o options, requestID string) error {
	resp, err := send(o, http.MethodGet, "/search/"+requestID+"?sessionId="+o.sessionID, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	color.Green("Status: %s", resp.Status)

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func send(o options, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, o.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	// No client timeout: the stream stays open for the whole search.
	return http.DefaultClient.Do(req)
}
