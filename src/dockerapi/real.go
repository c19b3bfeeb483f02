package dockerapi

import (
	"context"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"dockyard/src/errdefs"
)

// RealClient wraps the official Docker Go client.
type RealClient struct {
	c *client.Client
}

// Connect builds a client from the environment (DOCKER_HOST etc.), falling
// back to the local UNIX socket, with API version negotiation.
func Connect() (*RealClient, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &errdefs.RuntimeUnavailableError{Err: err}
	}
	return &RealClient{c: c}, nil
}

// mapErr translates runtime client errors into the shared taxonomy.
func mapErr(err error, resource, name string) error {
	if err == nil {
		return nil
	}
	if client.IsErrNotFound(err) {
		return &errdefs.NotFoundError{Resource: resource, Name: name}
	}
	if client.IsErrConnectionFailed(err) {
		return &errdefs.RuntimeUnavailableError{Err: err}
	}
	return err
}

func (r *RealClient) Ping(ctx context.Context) error {
	if _, err := r.c.Ping(ctx); err != nil {
		return &errdefs.RuntimeUnavailableError{Err: err}
	}
	return nil
}

func (r *RealClient) InspectContainer(ctx context.Context, nameOrID string) (ContainerDetails, error) {
	info, err := r.c.ContainerInspect(ctx, nameOrID)
	if err != nil {
		return ContainerDetails{}, mapErr(err, "container", nameOrID)
	}
	d := ContainerDetails{
		ID:   info.ID,
		Name: strings.TrimPrefix(info.Name, "/"),
	}
	if info.Config != nil {
		d.Image = info.Config.Image
		d.Env = info.Config.Env
		d.Cmd = []string(info.Config.Cmd)
		d.Labels = info.Config.Labels
	}
	if info.HostConfig != nil {
		d.Network = string(info.HostConfig.NetworkMode)
	}
	if info.State != nil {
		d.Running = info.State.Running
	}
	for _, mp := range info.Mounts {
		d.Mounts = append(d.Mounts, MountPoint{
			Type:        string(mp.Type),
			Name:        mp.Name,
			Source:      mp.Source,
			Destination: mp.Destination,
			ReadWrite:   mp.RW,
		})
	}
	return d, nil
}

func (r *RealClient) ListContainers(ctx context.Context, all bool, labelFilters []string) ([]ContainerSummary, error) {
	args := filters.NewArgs()
	for _, lf := range labelFilters {
		args.Add("label", lf)
	}
	opts := container.ListOptions{All: all}
	if len(labelFilters) > 0 {
		opts.Filters = args
	}
	list, err := r.c.ContainerList(ctx, opts)
	if err != nil {
		return nil, mapErr(err, "container", "")
	}
	out := make([]ContainerSummary, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, ContainerSummary{ID: c.ID, Name: name, Labels: c.Labels, State: c.State})
	}
	return out, nil
}

func (r *RealClient) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	cfg := &container.Config{
		Image:     spec.Image,
		Cmd:       spec.Cmd,
		Env:       spec.Env,
		Labels:    spec.Labels,
		OpenStdin: spec.OpenStdin,
		StdinOnce: spec.OpenStdin,
	}
	hc := &container.HostConfig{}
	if spec.Network != "" {
		hc.NetworkMode = container.NetworkMode(spec.Network)
	}
	for _, m := range spec.Mounts {
		hc.Mounts = append(hc.Mounts, mount.Mount{
			Type:     mount.Type(m.Type),
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	resp, err := r.c.ContainerCreate(ctx, cfg, hc, &network.NetworkingConfig{}, nil, spec.Name)
	if err != nil {
		return "", mapErr(err, "container", spec.Name)
	}
	return resp.ID, nil
}

func (r *RealClient) StartContainer(ctx context.Context, id string) error {
	return mapErr(r.c.ContainerStart(ctx, id, container.StartOptions{}), "container", id)
}

func (r *RealClient) WaitContainer(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := r.c.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 0, mapErr(err, "container", id)
	case status := <-statusCh:
		return status.StatusCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *RealClient) RemoveContainer(ctx context.Context, id string, force bool) error {
	return mapErr(r.c.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}), "container", id)
}

func (r *RealClient) AttachContainer(ctx context.Context, id string) (*AttachStreams, error) {
	resp, err := r.c.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, mapErr(err, "container", id)
	}
	// Without a TTY the runtime multiplexes stdout/stderr onto one stream;
	// demux stdout onto a pipe and drop stderr (helpers report via exit code).
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, io.Discard, resp.Reader)
		pw.CloseWithError(err)
	}()
	return &AttachStreams{
		Stdin:  hijackedStdin{resp},
		Stdout: pr,
		closer: resp.Close,
	}, nil
}

// hijackedStdin adapts a hijacked connection to io.WriteCloser where Close
// half-closes the write side so the contained process sees EOF.
type hijackedStdin struct {
	resp types.HijackedResponse
}

func (h hijackedStdin) Write(p []byte) (int, error) { return h.resp.Conn.Write(p) }
func (h hijackedStdin) Close() error                { return h.resp.CloseWrite() }

func (r *RealClient) CreateVolume(ctx context.Context, name string) error {
	_, err := r.c.VolumeCreate(ctx, volume.CreateOptions{Name: name})
	return mapErr(err, "volume", name)
}

func (r *RealClient) InspectVolume(ctx context.Context, name string) (VolumeDetails, error) {
	v, err := r.c.VolumeInspect(ctx, name)
	if err != nil {
		return VolumeDetails{}, mapErr(err, "volume", name)
	}
	return VolumeDetails{Name: v.Name, Driver: v.Driver, Options: v.Options}, nil
}

func (r *RealClient) PullImage(ctx context.Context, ref string) error {
	rc, err := r.c.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return mapErr(err, "image", ref)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained.
	_, err = io.Copy(io.Discard, rc)
	return err
}
