package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/nstogner/uistream/pkg/sandbox"
)

const (
	// LabelManager is the label used to identify containers managed by this system.
	LabelManager = "manager"
	// LabelManagerValue is the value of the manager label.
	LabelManagerValue = "uistream"
	// LabelThreadID is the label used to identify which thread a container belongs to.
	LabelThreadID = "thread-id"
	// DefaultImage is the default sandbox container image.
	DefaultImage = "sandbox-python:latest"
	// ServerPort is the HTTP port exposed by the sandbox container.
	ServerPort = "8000"
	// ReconcileInterval is how often the Run loop checks for orphans.
	ReconcileInterval = 30 * time.Second
)

// Manager implements sandbox.Manager using Docker containers that serve the
// cell execution API over HTTP.
type Manager struct {
	client *client.Client
	image  string
	http   *http.Client
}

// Verify interface compliance.
var _ sandbox.Manager = (*Manager)(nil)

// New creates a new Docker sandbox manager. An empty image selects
// DefaultImage.
func New(image string) (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	if image == "" {
		image = DefaultImage
	}
	return &Manager{client: cli, image: image, http: &http.Client{Timeout: 5 * time.Minute}}, nil
}

// Run periodically removes containers whose thread no longer exists. Blocks
// until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, threads sandbox.ThreadLister) error {
	slog.Info("Sandbox manager reconciliation loop starting")

	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()

	for {
		if err := m.reconcile(ctx, threads); err != nil {
			slog.Error("Reconciliation failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("Sandbox manager reconciliation loop stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) reconcile(ctx context.Context, threads sandbox.ThreadLister) error {
	ids, err := threads.ListThreadIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing thread IDs: %w", err)
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	containers, err := m.client.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManager+"="+LabelManagerValue)),
	})
	if err != nil {
		return fmt.Errorf("listing managed containers: %w", err)
	}
	for _, c := range containers {
		threadID := c.Labels[LabelThreadID]
		if !known[threadID] {
			slog.Info("Removing orphaned sandbox", "threadID", threadID)
			if err := m.Stop(ctx, threadID); err != nil {
				slog.Warn("Failed to remove sandbox", "threadID", threadID, "error", err)
			}
		}
	}
	return nil
}

// RunCell executes code in the thread's sandbox.
func (m *Manager) RunCell(ctx context.Context, threadID, code string) (*sandbox.Result, error) {
	hostPort, err := m.ensureRunning(ctx, threadID)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{"code": code, "split_output": false})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("http://127.0.0.1:%s/tools:run_ipython_cell", hostPort)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling sandbox: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sandbox error %d: %s", resp.StatusCode, string(b))
	}

	var res sandbox.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding sandbox result: %w", err)
	}
	return &res, nil
}

// Status returns the status of the thread's sandbox.
func (m *Manager) Status(ctx context.Context, threadID string) (string, error) {
	c, err := m.client.ContainerInspect(ctx, m.containerName(threadID))
	if client.IsErrNotFound(err) {
		return "stopped", nil
	}
	if err != nil {
		return "unknown", err
	}
	if c.State.Running {
		return "running", nil
	}
	return "stopped", nil
}

// Stop removes the thread's container.
func (m *Manager) Stop(ctx context.Context, threadID string) error {
	err := m.client.ContainerRemove(ctx, m.containerName(threadID), types.ContainerRemoveOptions{Force: true})
	if client.IsErrNotFound(err) {
		return nil
	}
	return err
}

// Close releases the Docker client resources.
func (m *Manager) Close() error {
	return m.client.Close()
}

func (m *Manager) containerName(threadID string) string {
	return "uistream-sandbox-" + threadID
}

// ensureRunning starts the container if needed and returns its host port.
func (m *Manager) ensureRunning(ctx context.Context, threadID string) (string, error) {
	name := m.containerName(threadID)

	c, err := m.client.ContainerInspect(ctx, name)
	if client.IsErrNotFound(err) {
		return m.createAndStart(ctx, threadID)
	}
	if err != nil {
		return "", fmt.Errorf("inspecting container: %w", err)
	}

	if !c.State.Running {
		if err := m.client.ContainerStart(ctx, name, types.ContainerStartOptions{}); err != nil {
			return "", fmt.Errorf("starting container: %w", err)
		}
		if c, err = m.client.ContainerInspect(ctx, name); err != nil {
			return "", err
		}
	}
	port, err := m.getPort(c)
	if err != nil {
		return "", err
	}
	if err := m.waitForHealth(ctx, port); err != nil {
		return "", err
	}
	return port, nil
}

func (m *Manager) createAndStart(ctx context.Context, threadID string) (string, error) {
	// Ensure image exists locally.
	if _, _, err := m.client.ImageInspectWithRaw(ctx, m.image); err != nil {
		return "", fmt.Errorf("sandbox image '%s' not found, run 'make build-sandbox': %w", m.image, err)
	}

	cfg := &container.Config{
		Image: m.image,
		Labels: map[string]string{
			LabelManager:  LabelManagerValue,
			LabelThreadID: threadID,
		},
		ExposedPorts: nat.PortSet{
			nat.Port(ServerPort + "/tcp"): {},
		},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			nat.Port(ServerPort + "/tcp"): []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0", // Dynamically assigned port.
				},
			},
		},
	}

	resp, err := m.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, m.containerName(threadID))
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	if err := m.client.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("starting container: %w", err)
	}

	c, err := m.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return "", err
	}
	port, err := m.getPort(c)
	if err != nil {
		return "", err
	}
	if err := m.waitForHealth(ctx, port); err != nil {
		return "", err
	}
	slog.Info("Sandbox started", "threadID", threadID, "port", port)
	return port, nil
}

func (m *Manager) getPort(c types.ContainerJSON) (string, error) {
	ports := c.NetworkSettings.Ports[nat.Port(ServerPort+"/tcp")]
	if len(ports) > 0 {
		return ports[0].HostPort, nil
	}
	return "", fmt.Errorf("container running but port not mapped")
}

func (m *Manager) waitForHealth(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://127.0.0.1:%s/healthz", port)

	// Initial startup can be slow due to pip install.
	timeoutCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-timeoutCtx.Done():
			return fmt.Errorf("timeout waiting for sandbox health")
		case <-ticker.C:
		}
	}
}
