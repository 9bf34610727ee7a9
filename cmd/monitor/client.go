package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"focus_sched/internal/domain"
	"focus_sched/internal/experiment"
)

type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *client) listRuns(scheduler string, limit int) ([]domain.RunRecord, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	if scheduler != "" {
		q.Set("scheduler", scheduler)
	}
	var out []domain.RunRecord
	if err := c.getJSON("/runs?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) listRunEvents(runID string, limit int) ([]domain.Event, error) {
	var out []domain.Event
	if err := c.getJSON(fmt.Sprintf("/runs/%s/events?limit=%d", url.PathEscape(runID), limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) summary(limit int) ([]experiment.Summary, error) {
	var out []experiment.Summary
	if err := c.getJSON(fmt.Sprintf("/summary?limit=%d", limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) listDatasets() ([]domain.Dataset, error) {
	var out []domain.Dataset
	if err := c.getJSON("/datasets", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return err
	}
	return nil
}

func waitHealth(c *client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+"/healthz", nil)
		if err == nil {
			resp, err := c.http.Do(req)
			if err == nil {
				_ = resp.Body.Close()
				if resp.StatusCode < 300 {
					return nil
				}
			}
		}
		time.Sleep(400 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for /healthz")
}
