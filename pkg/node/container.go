package node

import (
	"Dumbbell/api"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	log "github.com/sirupsen/logrus"
)

const (
	ContainerPrefix = "dbl-"
	DefaultImage    = "networkstatic/iperf3:latest"
)

// ContainerManager manages the lifecycle of the host containers and of the
// processes executed inside them.
type ContainerManager struct {
	dClient *client.Client
	image   string

	// sysctls applied to every container, set before the first AddNode
	sysctls map[string]string

	containers []string

	mu    sync.Mutex
	procs map[string]*Process // by exec id
}

func NewContainerManager(img string) (*ContainerManager, error) {
	dClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("error creating docker client: %w", err)
	}
	if img == "" {
		img = DefaultImage
	}
	return &ContainerManager{
		dClient: dClient,
		image:   img,
		sysctls: map[string]string{
			"net.ipv4.ip_forward": "1",
		},
		procs: make(map[string]*Process),
	}, nil
}

// ContainerName maps a host node name to its container name (e.g. S1 -> dbl-s1).
func ContainerName(node string) string {
	return ContainerPrefix + strings.ToLower(node)
}

// SetSysctl sets a namespaced sysctl for every container created afterwards.
func (cm *ContainerManager) SetSysctl(key, value string) {
	if cm.sysctls == nil {
		cm.sysctls = make(map[string]string)
	}
	cm.sysctls[key] = value
}

// EnsureImage pulls the host image when it is not present locally.
func (cm *ContainerManager) EnsureImage(ctx context.Context) error {
	_, _, err := cm.dClient.ImageInspectWithRaw(ctx, cm.image)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("error inspecting image %s: %w", cm.image, err)
	}

	log.Infof("node: pulling image %s", cm.image)
	rc, err := cm.dClient.ImagePull(ctx, cm.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("error pulling image %s: %w", cm.image, err)
	}
	defer rc.Close()
	// the pull only completes once the progress stream is drained
	_, err = io.Copy(io.Discard, rc)
	return err
}

// AddNode creates and starts the container of a host node and records its
// network namespace path in n.NetNs. The container has no docker network,
// links are plugged in afterwards.
func (cm *ContainerManager) AddNode(ctx context.Context, n *api.Node) error {
	name := ContainerName(n.Name)
	img := n.Image
	if img == "" {
		img = cm.image
	}

	sysctls := make(map[string]string, len(cm.sysctls))
	for k, v := range cm.sysctls {
		sysctls[k] = v
	}

	_, err := cm.dClient.ContainerCreate(ctx, &container.Config{
		Image:           img,
		Hostname:        strings.ToLower(n.Name),
		Entrypoint:      []string{"sleep"},
		Cmd:             []string{"infinity"},
		NetworkDisabled: true,
		User:            "root",
	}, &container.HostConfig{
		Privileged: true,
		Sysctls:    sysctls,
	}, nil, nil, name)
	if err != nil {
		return fmt.Errorf("error creating container %s: %w", name, err)
	}
	cm.containers = append(cm.containers, name)

	if err = cm.dClient.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("error starting container %s: %w", name, err)
	}

	// Get Ns from container
	res, err := cm.dClient.ContainerInspect(ctx, name)
	if err != nil {
		return fmt.Errorf("error inspecting container %s: %w", name, err)
	}
	n.NetNs = fmt.Sprintf("/proc/%d/ns/net", res.State.Pid)
	n.Interface.NetNs = n.NetNs
	log.Debugf("node: %s up, netns %s", name, n.NetNs)
	return nil
}

// DeleteNodes force-removes every container created so far, which also
// kills the processes running inside them.
func (cm *ContainerManager) DeleteNodes(ctx context.Context) error {
	var failed []string
	for _, name := range cm.containers {
		if err := cm.dClient.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
			log.Warnf("node: failed to remove container %s: %v", name, err)
			failed = append(failed, name)
		}
	}
	cm.containers = nil
	if len(failed) > 0 {
		return fmt.Errorf("failed to remove containers %s", strings.Join(failed, ","))
	}
	return nil
}
