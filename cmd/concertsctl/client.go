package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mtbar/concerts/pkg/models"
)

// adminEvent mirrors the admin API event view
type adminEvent struct {
	models.Event
	Missing []models.Field `json:"missing"`
	Ready   bool           `json:"ready"`
}

// adminClient calls the bot's admin HTTP API
type adminClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAdminClient(baseURL, token string) *adminClient {
	return &adminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *adminClient) Events(ctx context.Context, status string) ([]adminEvent, error) {
	path := "/api/events"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var resp struct {
		Events []adminEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *adminClient) Event(ctx context.Context, id int64) (*adminEvent, error) {
	var ev adminEvent
	if err := c.do(ctx, http.MethodGet, "/api/events/"+strconv.FormatInt(id, 10), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *adminClient) Digest(ctx context.Context) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/digest", &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *adminClient) BroadcastDigest(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/digest/broadcast", nil)
}

func (c *adminClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, apiErr.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func printEvents(w io.Writer, events []adminEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDATE\tTIME\tSTATUS\tPROGRESS")
	for _, ev := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d%%\n", ev.ID, ev.Title, ev.Date, ev.Time, ev.Status, ev.Completeness)
	}
	_ = tw.Flush()
}

func printEventDetails(w io.Writer, ev *adminEvent) {
	fmt.Fprintf(w, "Event #%d %s\n", ev.ID, ev.Title)
	fmt.Fprintf(w, "Status: %s (%d%%)\n", ev.Status, ev.Completeness)
	fmt.Fprintf(w, "Date: %s %s\n", ev.Date, ev.Time)
	fmt.Fprintf(w, "Tickets: %s\n", ev.TicketsURL)
	fmt.Fprintf(w, "Music: %s\n", ev.MusicURL)
	fmt.Fprintf(w, "Poster: %s\n", ev.ImageURL)
	if ev.PageURL != "" {
		fmt.Fprintf(w, "Page: %s\n", ev.PageURL)
	}
	if len(ev.Missing) > 0 {
		fmt.Fprintf(w, "Missing: %v\n", ev.Missing)
	}
	if ev.Ready && ev.Status == models.StatusDraft {
		fmt.Fprintln(w, "Ready to publish")
	}
}
