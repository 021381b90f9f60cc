// internal/mcp/server.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/colebrumley/logtrigger/internal/config"
	"github.com/colebrumley/logtrigger/internal/pattern"
	"github.com/colebrumley/logtrigger/internal/state"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrHistoryDisabled is returned by recent_matches when no history
// database is configured.
var ErrHistoryDisabled = errors.New("trigger history is not enabled")

// Server exposes the trigger log and pattern tools over MCP.
type Server struct {
	db           *state.DB
	triggersPath string
	server       *mcp.Server
}

// RecentMatchesInput is the input schema for the recent_matches tool
type RecentMatchesInput struct {
	Trigger string `json:"trigger,omitempty" jsonschema:"Optional trigger name or ID filter"`
	Profile string `json:"profile,omitempty" jsonschema:"Optional character profile filter"`
	Since   string `json:"since,omitempty" jsonschema:"Optional RFC 3339 lower bound or Go duration such as 1h"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum entries to return (default 20, max 200)"`
}

// RecentMatchesOutput is the output schema for the recent_matches tool
type RecentMatchesOutput struct {
	Matches []state.MatchRecord `json:"matches"`
	Count   int                 `json:"count"`
}

// TestPatternInput is the input schema for the test_pattern tool
type TestPatternInput struct {
	SearchText string `json:"search_text" jsonschema:"Trigger search text, with {S} {N} {TS} {C} tags or a regular expression"`
	UseRegex   bool   `json:"use_regex,omitempty" jsonschema:"Treat search_text as a regular expression"`
	Line       string `json:"line" jsonschema:"Log line to test, without the leading [timestamp]"`
	Template   string `json:"template,omitempty" jsonschema:"Optional display text to fill from the captures"`
	Character  string `json:"character,omitempty" jsonschema:"Character name substituted for {C}"`
}

// TestPatternOutput is the output schema for the test_pattern tool
type TestPatternOutput struct {
	Expression string            `json:"expression"`
	Literal    bool              `json:"literal,omitempty"`
	Error      string            `json:"error,omitempty"`
	Matched    bool              `json:"matched"`
	Captures   map[string]string `json:"captures,omitempty"`
	Duration   int               `json:"duration_seconds,omitempty"`
	Rendered   string            `json:"rendered,omitempty"`
}

// ListTriggersInput is the input schema for the list_triggers tool
type ListTriggersInput struct {
	Filter string `json:"filter,omitempty" jsonschema:"Optional case-insensitive substring of the trigger name or group path"`
}

// ListTriggersOutput is the output schema for the list_triggers tool
type ListTriggersOutput struct {
	Triggers []TriggerSummary `json:"triggers"`
	Count    int              `json:"count"`
}

// TriggerSummary is one trigger in list_triggers results
type TriggerSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Group      string `json:"group"`
	Enabled    bool   `json:"enabled"`
	SearchText string `json:"search_text"`
	TimerType  string `json:"timer_type"`
	Duration   int    `json:"duration,omitempty"`
}

// NewServer creates an MCP server. dbPath may be empty when history is
// disabled.
func NewServer(dbPath, triggersPath string) (*Server, error) {
	s := &Server{triggersPath: triggersPath}
	if dbPath != "" {
		db, err := state.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("opening history database: %w", err)
		}
		s.db = db
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "logtrigger",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recent_matches",
		Description: "List recent trigger log entries: the timers started and texts shown because a log line matched, newest first.",
	}, s.handleRecentMatches)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "test_pattern",
		Description: "Compile a trigger search text and test it against a log line. Returns the compiled expression, the captured values and, if a template is given, the text the trigger would display.",
	}, s.handleTestPattern)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_triggers",
		Description: "List the configured triggers with their group, search text and timer settings.",
	}, s.handleListTriggers)

	s.server = server
	return s, nil
}

func (s *Server) handleRecentMatches(ctx context.Context, req *mcp.CallToolRequest, input RecentMatchesInput) (*mcp.CallToolResult, RecentMatchesOutput, error) {
	if s.db == nil {
		return nil, RecentMatchesOutput{}, ErrHistoryDisabled
	}

	filter := state.HistoryFilter{
		Trigger: input.Trigger,
		Profile: input.Profile,
		Limit:   input.Limit,
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if input.Since != "" {
		since, err := parseSince(input.Since, time.Now())
		if err != nil {
			return nil, RecentMatchesOutput{}, err
		}
		filter.Since = since
	}

	records, err := s.db.GetHistory(filter)
	if err != nil {
		return nil, RecentMatchesOutput{}, fmt.Errorf("failed to query history: %w", err)
	}
	if records == nil {
		records = []state.MatchRecord{}
	}
	return nil, RecentMatchesOutput{Matches: records, Count: len(records)}, nil
}

// parseSince accepts an RFC 3339 time or a duration back from now.
func parseSince(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid since %q: expected RFC 3339 time or duration", v)
	}
	return now.Add(-d), nil
}

func (s *Server) handleTestPattern(ctx context.Context, req *mcp.CallToolRequest, input TestPatternInput) (*mcp.CallToolResult, TestPatternOutput, error) {
	if input.SearchText == "" {
		return nil, TestPatternOutput{}, errors.New("search_text is required")
	}

	p, err := pattern.Compile(input.SearchText, pattern.Options{UseRegex: input.UseRegex})
	out := TestPatternOutput{
		Expression: p.String(),
		Literal:    p.Literal(),
	}
	if err != nil {
		out.Error = err.Error()
	}

	m := p.Match(input.Line)
	out.Matched = m.Matched()
	if !out.Matched {
		return nil, out, nil
	}

	for _, name := range p.Names() {
		if v, ok := m.Named(name); ok {
			if out.Captures == nil {
				out.Captures = make(map[string]string)
			}
			out.Captures[name] = v
		}
	}
	if v, ok := m.Named(pattern.TimestampGroup); ok {
		if secs, ok := pattern.ParseDuration(v); ok {
			out.Duration = secs
		}
	}
	if input.Template != "" {
		out.Rendered = p.Execute(input.Template, m, input.Character)
	}
	return nil, out, nil
}

func (s *Server) handleListTriggers(ctx context.Context, req *mcp.CallToolRequest, input ListTriggersInput) (*mcp.CallToolResult, ListTriggersOutput, error) {
	tf, err := config.LoadTriggers(s.triggersPath)
	if err != nil {
		return nil, ListTriggersOutput{}, fmt.Errorf("failed to load triggers: %w", err)
	}

	filter := strings.ToLower(input.Filter)
	results := []TriggerSummary{}
	tf.Walk(func(path []*config.Group, t *config.Trigger) {
		names := make([]string, len(path))
		enabled := t.Enabled
		for i, g := range path {
			names[i] = g.Name
			enabled = enabled && g.Enabled
		}
		group := strings.Join(names, "/")
		if filter != "" &&
			!strings.Contains(strings.ToLower(t.Name), filter) &&
			!strings.Contains(strings.ToLower(group), filter) {
			return
		}
		results = append(results, TriggerSummary{
			ID:         t.ID,
			Name:       t.Name,
			Group:      group,
			Enabled:    enabled,
			SearchText: t.SearchText,
			TimerType:  t.TimerType,
			Duration:   t.Duration,
		})
	})

	return nil, ListTriggersOutput{Triggers: results, Count: len(results)}, nil
}

// Run starts the MCP server on stdio
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves MCP over streamable HTTP on addr until ctx is done.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.server }, nil)
	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close closes the database connection
func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
