// Package gcp provides the fixed catalog of Google-Cloud query tools. Each
// handler calls the cloud helper service over HTTP and renders the response
// as text for the model; the helper owns credentials and project scoping.
package gcp

import (
	"encoding/json"
	"fmt"

	"github.com/stewardlabs/steward/core/protocol"
	"github.com/stewardlabs/steward/tools"
)

// Config holds the helper service connection parameters.
type Config struct {
	// HelperURL is the base URL of the cloud helper service, e.g.
	// http://gcp-helper-service:8080.
	HelperURL string `json:"helper_url,omitempty"`
	// QueryTimeoutSeconds bounds direct resource queries. Zero means the
	// default of 10.
	QueryTimeoutSeconds int `json:"query_timeout_seconds,omitempty"`
	// CommandTimeoutSeconds bounds gcloud-backed listings, which are slower.
	// Zero means the default of 30.
	CommandTimeoutSeconds int `json:"command_timeout_seconds,omitempty"`
}

// DefaultConfig returns the default tool configuration.
func DefaultConfig() Config {
	return Config{
		QueryTimeoutSeconds:   10,
		CommandTimeoutSeconds: 30,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.HelperURL != "" {
		c.HelperURL = source.HelperURL
	}
	if source.QueryTimeoutSeconds > 0 {
		c.QueryTimeoutSeconds = source.QueryTimeoutSeconds
	}
	if source.CommandTimeoutSeconds > 0 {
		c.CommandTimeoutSeconds = source.CommandTimeoutSeconds
	}
}

func noParams() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func projectParam() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"project_id": map[string]any{
				"type":        "string",
				"description": "Project to query. Defaults to the helper's configured project.",
			},
		},
	}
}

// Register adds the full tool catalog to the registry. Called once at process
// start; the catalog is read-only afterwards.
func Register(r *tools.Registry, cfg *Config) error {
	h := newHelperClient(cfg)

	entries := []struct {
		tool    protocol.Tool
		handler tools.Handler
	}{
		{
			tool: protocol.Tool{
				Name: "list_compute_instances",
				Description: "List the Google Cloud compute instances in the project. Use this " +
					"when the user asks about instances, VMs, or compute resources.",
				Parameters: projectParam(),
			},
			handler: h.listInstances,
		},
		{
			tool: protocol.Tool{
				Name: "get_compute_instance",
				Description: "Get details of one compute instance, including machine type, IPs, " +
					"CPU platform, disks, and labels.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"zone": map[string]any{
							"type":        "string",
							"description": "Zone the instance runs in, e.g. us-central1-a.",
						},
						"name": map[string]any{
							"type":        "string",
							"description": "Instance name.",
						},
					},
					"required": []string{"zone", "name"},
				},
			},
			handler: h.getInstance,
		},
		{
			tool: protocol.Tool{
				Name:        "list_gke_clusters",
				Description: "List the GKE clusters in the project.",
				Parameters:  projectParam(),
			},
			handler: h.listClusters,
		},
		{
			tool: protocol.Tool{
				Name:        "get_project_info",
				Description: "Get basic information about the current Google Cloud project.",
				Parameters:  noParams(),
			},
			handler: h.projectInfo,
		},
		{
			tool: protocol.Tool{
				Name:        "list_compute_zones",
				Description: "List the available compute zones.",
				Parameters:  noParams(),
			},
			handler: h.command("list_zones"),
		},
		{
			tool: protocol.Tool{
				Name:        "list_compute_regions",
				Description: "List the available compute regions.",
				Parameters:  noParams(),
			},
			handler: h.command("list_regions"),
		},
		{
			tool: protocol.Tool{
				Name:        "list_machine_types",
				Description: "List the available compute machine types.",
				Parameters:  noParams(),
			},
			handler: h.command("list_machine_types"),
		},
	}

	for _, e := range entries {
		if err := r.Register(e.tool, e.handler); err != nil {
			return fmt.Errorf("register %s: %w", e.tool.Name, err)
		}
	}
	return nil
}

func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var args T
	err := json.Unmarshal(raw, &args)
	return args, err
}
