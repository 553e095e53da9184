package connectors

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Defaults for remote shell execution.
const (
	DefaultJarvisTimeout    = 30 * time.Second
	DefaultShellTimeoutSecs = 30
)

// ShellResult is the outcome of a remote command. Older agents report the
// exit status as returncode instead of exit_code.
type ShellResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   *int   `json:"exit_code"`
	ReturnCode *int   `json:"returncode"`
}

// Code returns the exit status, preferring exit_code. nil means the agent
// did not report one.
func (r *ShellResult) Code() *int {
	if r.ExitCode != nil {
		return r.ExitCode
	}
	return r.ReturnCode
}

// Jarvis executes shell commands and reads files on remote hosts running
// the jarvis agent. Each configured host gets its own client.
type Jarvis struct {
	hosts map[string]string

	mu      sync.Mutex
	clients map[string]*httpJSON
}

// NewJarvis creates a remote shell connector over the label → base URL map.
func NewJarvis(hosts map[string]string) *Jarvis {
	if hosts == nil {
		hosts = map[string]string{}
	}
	return &Jarvis{hosts: hosts, clients: map[string]*httpJSON{}}
}

// Name returns "jarvis".
func (j *Jarvis) Name() string {
	return "jarvis"
}

// Hosts returns the configured host labels in sorted order.
func (j *Jarvis) Hosts() []string {
	labels := make([]string, 0, len(j.hosts))
	for label := range j.hosts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Connect establishes one client per configured host.
func (j *Jarvis) Connect(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for label, hostURL := range j.hosts {
		j.clients[label] = newHTTPJSON(hostURL, DefaultJarvisTimeout)
	}
	return nil
}

// Disconnect releases all host clients.
func (j *Jarvis) Disconnect() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, client := range j.clients {
		client.close()
	}
	j.clients = map[string]*httpJSON{}
	return nil
}

// resolve picks the client for a host label. An unknown or empty label falls
// back to the first host in sorted label order so the choice is stable.
func (j *Jarvis) resolve(host string) (*httpJSON, error) {
	if len(j.hosts) == 0 {
		return nil, &ConnectorUnavailableError{Connector: "jarvis", Reason: "no hosts configured"}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if host != "" {
		if client, ok := j.clients[host]; ok {
			return client, nil
		}
		if hostURL, ok := j.hosts[host]; ok {
			client := newHTTPJSON(hostURL, DefaultJarvisTimeout)
			j.clients[host] = client
			return client, nil
		}
	}

	first := j.Hosts()[0]
	if client, ok := j.clients[first]; ok {
		return client, nil
	}
	client := newHTTPJSON(j.hosts[first], DefaultJarvisTimeout)
	j.clients[first] = client
	return client, nil
}

// Execute runs a command on the target host. timeoutSecs is forwarded to
// the agent and defaults to 30.
func (j *Jarvis) Execute(ctx context.Context, command, host string, timeoutSecs int) (*ShellResult, error) {
	client, err := j.resolve(host)
	if err != nil {
		return nil, err
	}
	if timeoutSecs <= 0 {
		timeoutSecs = DefaultShellTimeoutSecs
	}

	body := map[string]any{"command": command, "timeout": timeoutSecs}
	var result ShellResult
	if _, err := client.postJSON(ctx, "/shell", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReadFile reads a file from the target host.
func (j *Jarvis) ReadFile(ctx context.Context, path, host string) (string, error) {
	client, err := j.resolve(host)
	if err != nil {
		return "", err
	}

	var reply struct {
		Content string `json:"content"`
	}
	if _, err := client.postJSON(ctx, "/files/read", map[string]string{"path": path}, &reply); err != nil {
		return "", err
	}
	return reply.Content, nil
}

// HealthCheck probes every host's /health endpoint. The connector is
// healthy only when every host answers; no hosts means disabled.
func (j *Jarvis) HealthCheck(ctx context.Context) Health {
	if len(j.hosts) == 0 {
		return Health{Status: StatusDisabled}
	}

	perHost := map[string]any{}
	allHealthy := true
	for _, label := range j.Hosts() {
		client, err := j.resolve(label)
		if err != nil {
			perHost[label] = map[string]any{"status": StatusUnhealthy, "error": err.Error()}
			allHealthy = false
			continue
		}

		code, err := client.getJSON(ctx, "/health", nil, nil)
		if err != nil && code == 0 {
			perHost[label] = map[string]any{"status": StatusUnhealthy, "error": err.Error()}
			allHealthy = false
			continue
		}
		perHost[label] = map[string]any{"status": StatusHealthy, "code": code}
	}

	status := StatusHealthy
	if !allHealthy {
		status = StatusUnhealthy
	}
	return Health{Status: status, Detail: map[string]any{"hosts": perHost}}
}
