package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stewardlabs/steward/tools"
)

// helperClient calls the cloud helper's REST API. One attempt per tool call,
// no retries; failures surface as handler errors for the executor to fold.
type helperClient struct {
	base           string
	http           *http.Client
	queryTimeout   time.Duration
	commandTimeout time.Duration
}

func newHelperClient(cfg *Config) *helperClient {
	query := cfg.QueryTimeoutSeconds
	if query <= 0 {
		query = 10
	}
	command := cfg.CommandTimeoutSeconds
	if command <= 0 {
		command = 30
	}
	return &helperClient{
		base:           strings.TrimRight(cfg.HelperURL, "/"),
		http:           &http.Client{},
		queryTimeout:   time.Duration(query) * time.Second,
		commandTimeout: time.Duration(command) * time.Second,
	}
}

type instance struct {
	Name              string `json:"name"`
	Zone              string `json:"zone"`
	MachineType       string `json:"machine_type"`
	Status            string `json:"status"`
	InternalIP        string `json:"internal_ip"`
	ExternalIP        string `json:"external_ip"`
	CreationTimestamp string `json:"creation_timestamp"`
	CPUPlatform       string `json:"cpu_platform"`
	Disks             []struct {
		Name string `json:"name"`
		Boot bool   `json:"boot"`
	} `json:"disks"`
	Labels map[string]string `json:"labels"`
}

func (h *helperClient) listInstances(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
	args, err := decodeArgs[struct {
		ProjectID string `json:"project_id"`
	}](raw)
	if err != nil {
		return tools.Result{}, err
	}

	path := "/api/compute/instances"
	if args.ProjectID != "" {
		path += "?project_id=" + url.QueryEscape(args.ProjectID)
	}

	var payload struct {
		ProjectID string     `json:"project_id"`
		Instances []instance `json:"instances"`
		Count     int        `json:"count"`
	}
	if err := h.getJSON(ctx, h.queryTimeout, path, &payload); err != nil {
		return tools.Result{}, fmt.Errorf("fetching compute instances: %w", err)
	}

	if payload.Count == 0 {
		return tools.Result{
			Content: fmt.Sprintf("No compute instances found in project %s.", payload.ProjectID),
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d compute instance(s) in project %s:\n\n", payload.Count, payload.ProjectID)
	for _, inst := range payload.Instances {
		fmt.Fprintf(&b, "- Name: %s\n", inst.Name)
		fmt.Fprintf(&b, "  Zone: %s\n", inst.Zone)
		fmt.Fprintf(&b, "  Status: %s\n", inst.Status)
		fmt.Fprintf(&b, "  Machine Type: %s\n", inst.MachineType)
		if inst.InternalIP != "" {
			fmt.Fprintf(&b, "  Internal IP: %s\n", inst.InternalIP)
		}
		if inst.ExternalIP != "" {
			fmt.Fprintf(&b, "  External IP: %s\n", inst.ExternalIP)
		}
		b.WriteString("\n")
	}
	return tools.Result{Content: b.String()}, nil
}

func (h *helperClient) getInstance(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
	args, err := decodeArgs[struct {
		Zone string `json:"zone"`
		Name string `json:"name"`
	}](raw)
	if err != nil {
		return tools.Result{}, err
	}

	path := fmt.Sprintf("/api/compute/instance/%s/%s", url.PathEscape(args.Zone), url.PathEscape(args.Name))

	var inst instance
	if err := h.getJSON(ctx, h.queryTimeout, path, &inst); err != nil {
		return tools.Result{}, fmt.Errorf("fetching instance %s: %w", args.Name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Instance %s (zone %s):\n", inst.Name, inst.Zone)
	fmt.Fprintf(&b, "  Status: %s\n", inst.Status)
	fmt.Fprintf(&b, "  Machine Type: %s\n", inst.MachineType)
	if inst.CPUPlatform != "" {
		fmt.Fprintf(&b, "  CPU Platform: %s\n", inst.CPUPlatform)
	}
	if inst.InternalIP != "" {
		fmt.Fprintf(&b, "  Internal IP: %s\n", inst.InternalIP)
	}
	if inst.ExternalIP != "" {
		fmt.Fprintf(&b, "  External IP: %s\n", inst.ExternalIP)
	}
	if inst.CreationTimestamp != "" {
		fmt.Fprintf(&b, "  Created: %s\n", inst.CreationTimestamp)
	}
	for _, disk := range inst.Disks {
		boot := ""
		if disk.Boot {
			boot = " (boot)"
		}
		fmt.Fprintf(&b, "  Disk: %s%s\n", disk.Name, boot)
	}
	for k, v := range inst.Labels {
		fmt.Fprintf(&b, "  Label: %s=%s\n", k, v)
	}
	return tools.Result{Content: b.String()}, nil
}

func (h *helperClient) listClusters(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
	args, err := decodeArgs[struct {
		ProjectID string `json:"project_id"`
	}](raw)
	if err != nil {
		return tools.Result{}, err
	}

	path := "/api/gke/clusters"
	if args.ProjectID != "" {
		path += "?project_id=" + url.QueryEscape(args.ProjectID)
	}

	var payload struct {
		ProjectID string            `json:"project_id"`
		Clusters  []json.RawMessage `json:"clusters"`
		Count     int               `json:"count"`
	}
	if err := h.getJSON(ctx, h.commandTimeout, path, &payload); err != nil {
		return tools.Result{}, fmt.Errorf("fetching GKE clusters: %w", err)
	}

	if payload.Count == 0 {
		return tools.Result{
			Content: fmt.Sprintf("No GKE clusters found in project %s.", payload.ProjectID),
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d GKE cluster(s) in project %s:\n", payload.Count, payload.ProjectID)
	for _, cluster := range payload.Clusters {
		b.WriteString(indentJSON(cluster))
		b.WriteString("\n")
	}
	return tools.Result{Content: b.String()}, nil
}

func (h *helperClient) projectInfo(ctx context.Context, _ json.RawMessage) (tools.Result, error) {
	var payload struct {
		ProjectID       string `json:"project_id"`
		DetectedProject string `json:"detected_project"`
		ServiceAccount  string `json:"service_account"`
	}
	if err := h.getJSON(ctx, h.queryTimeout, "/api/project/info", &payload); err != nil {
		return tools.Result{}, fmt.Errorf("fetching project info: %w", err)
	}

	return tools.Result{Content: fmt.Sprintf(
		"Project: %s\nDetected project: %s\nService account: %s\n",
		payload.ProjectID, payload.DetectedProject, payload.ServiceAccount,
	)}, nil
}

// command builds a handler for the helper's allow-listed gcloud commands.
func (h *helperClient) command(name string) tools.Handler {
	return func(ctx context.Context, _ json.RawMessage) (tools.Result, error) {
		body, err := json.Marshal(map[string]string{"command": name})
		if err != nil {
			return tools.Result{}, err
		}

		ctx, cancel := context.WithTimeout(ctx, h.commandTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+"/execute", bytes.NewReader(body))
		if err != nil {
			return tools.Result{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		var payload struct {
			Output json.RawMessage `json:"output"`
			Error  string          `json:"error"`
		}
		if err := h.do(req, &payload); err != nil {
			return tools.Result{}, fmt.Errorf("running %s: %w", name, err)
		}
		if payload.Error != "" {
			return tools.Result{}, fmt.Errorf("running %s: %s", name, payload.Error)
		}
		return tools.Result{Content: indentJSON(payload.Output)}, nil
	}
}

func (h *helperClient) getJSON(ctx context.Context, timeout time.Duration, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+path, nil)
	if err != nil {
		return err
	}
	return h.do(req, out)
}

func (h *helperClient) do(req *http.Request, out any) error {
	resp, err := h.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helper returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
