// handoffctl is the operator tool for the capture handoff pipeline:
// it submits payload files to a running agent and inspects agent and
// server state.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "handoffctl",
		Usage: "submit captures to and inspect the handoff pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "agent",
				Value: "http://localhost:8080",
				Usage: "base URL of the capture agent",
			},
			&cli.StringFlag{
				Name:  "server",
				Value: "http://localhost:9090",
				Usage: "base URL of the handoff server",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Minute,
				Usage: "HTTP request timeout",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "submit a capture payload file to the agent",
				ArgsUsage: "<payload.json>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "manual", Usage: "mark the submission as user initiated"},
					&cli.BoolFlag{Name: "force", Usage: "bypass the dedup window (manual only)"},
				},
				Action: sendAction,
			},
			{
				Name:   "status",
				Usage:  "print the agent's current handoff state",
				Action: statusAction,
			},
			{
				Name:   "health",
				Usage:  "print agent and server health",
				Action: healthAction,
			},
			{
				Name:  "list",
				Usage: "list captures pending import on the server",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "maximum rows to list"},
				},
				Action: listAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func client(c *cli.Context) *http.Client {
	return &http.Client{Timeout: c.Duration("timeout")}
}

func sendAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one payload file, got %d", c.NArg())
	}
	body, err := os.ReadFile(c.Args().First())
	if err != nil {
		return err
	}

	params := url.Values{}
	if c.Bool("manual") {
		params.Set("trigger", "manual")
	}
	if c.Bool("force") {
		params.Set("force", "true")
	}
	endpoint := c.String("agent") + "/api/capture"
	if q := params.Encode(); q != "" {
		endpoint += "?" + q
	}

	resp, err := client(c).Post(endpoint, "application/json", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func statusAction(c *cli.Context) error {
	return getAndPrint(c, c.String("agent")+"/api/status")
}

func healthAction(c *cli.Context) error {
	fmt.Println("agent:")
	if err := getAndPrint(c, c.String("agent")+"/api/health"); err != nil {
		fmt.Println("  unreachable:", err)
	}
	fmt.Println("server:")
	if err := getAndPrint(c, c.String("server")+"/api/health"); err != nil {
		fmt.Println("  unreachable:", err)
	}
	return nil
}

func listAction(c *cli.Context) error {
	return getAndPrint(c, fmt.Sprintf("%s/api/captures?limit=%d", c.String("server"), c.Int("limit")))
}

func getAndPrint(c *cli.Context, endpoint string) error {
	resp, err := client(c).Get(endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

// printResponse pretty-prints a JSON response body, falling back to
// raw output when the body is not JSON.
func printResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
	} else {
		var prettyList []any
		if err := json.Unmarshal(body, &prettyList); err == nil {
			out, _ := json.MarshalIndent(prettyList, "", "  ")
			fmt.Println(string(out))
		} else {
			fmt.Println(string(body))
		}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}
