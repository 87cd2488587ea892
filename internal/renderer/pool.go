package renderer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/snapgate/snapgate/pkg/shared"
)

const (
	engineAPIPort     = 8082
	engineReadyWait   = 30 * time.Second
	engineIdleTimeout = 15 * time.Minute
	reapInterval      = 1 * time.Minute
)

// Pool runs a fixed number of rendering-engine containers and hands
// captures to whichever is free. Acquisition blocks when all engines are
// busy, so the pool also caps concurrent load on the engine image.
type Pool struct {
	docker      *client.Client
	image       string
	networkName string
	size        int

	mu        sync.Mutex
	engines   map[string]*engineInstance
	idle      chan *engineInstance
	launching int

	stopChan chan struct{}
}

type engineInstance struct {
	id          string
	containerID string
	client      *Client
	lastUsed    time.Time
}

func NewPool(image, networkName string, size int) (*Pool, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if size < 1 {
		size = 1
	}

	return &Pool{
		docker:      docker,
		image:       image,
		networkName: networkName,
		size:        size,
		engines:     make(map[string]*engineInstance),
		idle:        make(chan *engineInstance, size),
		stopChan:    make(chan struct{}),
	}, nil
}

func (p *Pool) Start(ctx context.Context) {
	go p.reapLoop(ctx)
}

func (p *Pool) Stop(ctx context.Context) {
	close(p.stopChan)

	p.mu.Lock()
	engines := make([]*engineInstance, 0, len(p.engines))
	for _, e := range p.engines {
		engines = append(engines, e)
	}
	p.engines = make(map[string]*engineInstance)
	p.mu.Unlock()

	for _, e := range engines {
		p.stopContainer(ctx, e.containerID)
	}
}

// Capture acquires an engine, runs the capture, and releases the engine.
// A failed engine is recycled rather than returned to the idle set.
func (p *Pool) Capture(ctx context.Context, opts shared.CaptureOptions) (*Result, error) {
	e, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	result, err := e.client.Capture(ctx, opts)
	if err != nil && IsTransient(err) {
		// The engine may be wedged; replace it instead of reusing.
		p.retire(context.WithoutCancel(ctx), e)
		return nil, err
	}

	p.release(e)
	return result, err
}

func (p *Pool) acquire(ctx context.Context) (*engineInstance, error) {
	select {
	case e := <-p.idle:
		return e, nil
	default:
	}

	p.mu.Lock()
	if len(p.engines)+p.launching < p.size {
		p.launching++
		p.mu.Unlock()

		e, err := p.launch(ctx)

		p.mu.Lock()
		p.launching--
		if err == nil {
			p.engines[e.id] = e
		}
		p.mu.Unlock()

		if err != nil {
			return nil, err
		}
		return e, nil
	}
	p.mu.Unlock()

	select {
	case e := <-p.idle:
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.stopChan:
		return nil, fmt.Errorf("renderer pool stopped")
	}
}

func (p *Pool) release(e *engineInstance) {
	e.lastUsed = time.Now().UTC()
	select {
	case p.idle <- e:
	default:
		// Pool shrank underneath us; drop the engine.
		p.retire(context.Background(), e)
	}
}

func (p *Pool) retire(ctx context.Context, e *engineInstance) {
	p.mu.Lock()
	delete(p.engines, e.id)
	p.mu.Unlock()
	p.stopContainer(ctx, e.containerID)
}

func (p *Pool) launch(ctx context.Context) (*engineInstance, error) {
	id := uuid.New().String()
	containerName := fmt.Sprintf("snapgate-engine-%s", id[:8])

	exposedPorts := nat.PortSet{
		nat.Port(fmt.Sprintf("%d/tcp", engineAPIPort)): struct{}{},
	}

	config := &container.Config{
		Image:        p.image,
		Env:          []string{fmt.Sprintf("ENGINE_ID=%s", id)},
		ExposedPorts: exposedPorts,
	}

	hostConfig := &container.HostConfig{
		AutoRemove: true,
		Resources: container.Resources{
			Memory:   2 * 1024 * 1024 * 1024,
			NanoCPUs: 2 * 1000000000,
		},
	}

	var networkConfig *network.NetworkingConfig
	if p.networkName != "" {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				p.networkName: {},
			},
		}
	}

	resp, err := p.docker.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine container: %w", err)
	}

	if err := p.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start engine container: %w", err)
	}

	inspect, err := p.docker.ContainerInspect(ctx, resp.ID)
	if err != nil {
		p.stopContainer(ctx, resp.ID)
		return nil, fmt.Errorf("failed to inspect engine container: %w", err)
	}

	var containerIP string
	if p.networkName != "" && inspect.NetworkSettings.Networks[p.networkName] != nil {
		containerIP = inspect.NetworkSettings.Networks[p.networkName].IPAddress
	} else if inspect.NetworkSettings.IPAddress != "" {
		containerIP = inspect.NetworkSettings.IPAddress
	} else {
		for _, net := range inspect.NetworkSettings.Networks {
			if net.IPAddress != "" {
				containerIP = net.IPAddress
				break
			}
		}
	}

	e := &engineInstance{
		id:          id,
		containerID: resp.ID,
		client:      NewClient(fmt.Sprintf("http://%s:%d", containerIP, engineAPIPort)),
		lastUsed:    time.Now().UTC(),
	}

	if err := p.waitForReady(ctx, e); err != nil {
		p.stopContainer(ctx, resp.ID)
		return nil, fmt.Errorf("engine not ready: %w", err)
	}

	return e, nil
}

func (p *Pool) waitForReady(ctx context.Context, e *engineInstance) error {
	deadline := time.Now().Add(engineReadyWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if e.client.Healthy(ctx) {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for engine to be ready")
}

func (p *Pool) stopContainer(ctx context.Context, containerID string) {
	stopTimeout := 5
	err := p.docker.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &stopTimeout})
	if err != nil {
		log.Printf("failed to stop engine container %s: %v", containerID, err)
	}
}

func (p *Pool) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.reapIdle(ctx)
		}
	}
}

// reapIdle stops engines that have sat unused past the idle timeout.
// Only engines currently in the idle set are candidates; busy engines
// are never touched.
func (p *Pool) reapIdle(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-engineIdleTimeout)

	for {
		select {
		case e := <-p.idle:
			if e.lastUsed.Before(cutoff) {
				log.Printf("reaping idle engine %s", e.id[:8])
				p.retire(ctx, e)
				continue
			}
			// Still fresh; put it back and stop scanning.
			p.release(e)
			return
		default:
			return
		}
	}
}
