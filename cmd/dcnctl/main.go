// dcnctl is an interactive client for the dcnd HTTP API.
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
	"time"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"
)

// Version is set at build time via ldflags.
var Version = "dev"

type client struct {
	base string
	http *http.Client
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "dcnd API address")
	flag.Parse()

	c := &client{
		base: strings.TrimRight(*addr, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}

	// One-shot mode: `dcnctl sources` runs a single command and exits.
	if flag.NArg() > 0 {
		c.execute(strings.Join(flag.Args(), " "))
		return
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		// Piped input: run each line as a command.
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			c.execute(line)
		}
		return
	}

	fmt.Printf("dcnctl %s connected to %s (type 'help' for commands)\n", Version, c.base)
	p := prompt.New(
		c.execute,
		completer,
		prompt.OptionPrefix("dcn> "),
		prompt.OptionTitle("dcnctl"),
	)
	p.Run()
}

func completer(d prompt.Document) []prompt.Suggest {
	suggestions := []prompt.Suggest{
		{Text: "health", Description: "daemon health and uptime"},
		{Text: "ready", Description: "readiness probe"},
		{Text: "sources", Description: "data source liveness"},
		{Text: "counters", Description: "registered metric catalog"},
		{Text: "query", Description: "query <metric> [range, e.g. 1h]"},
		{Text: "export", Description: "export <json|csv|prometheus> [metric]"},
		{Text: "quarantine", Description: "quarantined samples"},
		{Text: "deadletter", Description: "dead-lettered write batches"},
		{Text: "help", Description: "show commands"},
		{Text: "exit", Description: "quit"},
	}
	return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
}

func (c *client) execute(line string) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "exit", "quit":
		os.Exit(0)
	case "help":
		for _, s := range completer(prompt.Document{}) {
			fmt.Printf("  %-12s %s\n", s.Text, s.Description)
		}
	case "health":
		c.get("/health")
	case "ready":
		c.get("/ready")
	case "sources":
		c.get("/api/v1/sources")
	case "counters":
		if len(fields) > 1 {
			c.get("/api/v1/counters/" + fields[1])
		} else {
			c.get("/api/v1/counters")
		}
	case "query":
		c.query(fields[1:])
	case "export":
		c.export(fields[1:])
	case "quarantine":
		c.get("/api/v1/quarantine")
	case "deadletter":
		c.get("/api/v1/deadletter")
	default:
		fmt.Printf("unknown command %q (try 'help')\n", fields[0])
	}
}

func (c *client) query(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: query <metric> [range, e.g. 1h]")
		return
	}
	span := time.Hour
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			fmt.Printf("bad range %q: %v\n", args[1], err)
			return
		}
		span = d
	}

	end := time.Now()
	body, err := json.Marshal(map[string]any{
		"metric": args[0],
		"start":  end.Add(-span).Format(time.RFC3339),
		"end":    end.Format(time.RFC3339),
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	resp, err := c.http.Post(c.base+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer resp.Body.Close()
	printJSON(resp.Body)
}

func (c *client) export(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: export <json|csv|prometheus> [metric]")
		return
	}
	path := "/api/v1/export/" + args[0]
	if len(args) > 1 {
		path += "?metric=" + args[1]
	}

	resp, err := c.http.Get(c.base + path)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(os.Stdout, resp.Body)
	fmt.Println()
}

func (c *client) get(path string) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer resp.Body.Close()
	printJSON(resp.Body)
}

func printJSON(r io.Reader) {
	data, err := io.ReadAll(r)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		os.Stdout.Write(data)
		fmt.Println()
		return
	}
	fmt.Println(out.String())
}
