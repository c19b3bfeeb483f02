package dockerapi

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"dockyard/src/errdefs"
)

// FakeClient is an in-memory runtime for unit tests. Volumes and binds are
// modeled as file maps (relative path -> content). Helper transfer commands
// are executed against those maps with real tar.gz bytes on the attach
// streams, so everything above this layer round-trips genuine archives.
type FakeClient struct {
	mu sync.Mutex

	Volumes    map[string]map[string][]byte // volume name -> files
	Binds      map[string]map[string][]byte // host path -> files
	VolumeMeta map[string]VolumeDetails     // optional driver metadata overrides
	Containers map[string]*FakeContainer
	Images     map[string]bool

	PingErr error
	// FailExec forces a non-zero exit for any helper whose transfer mount
	// source matches the key.
	FailExec map[string]int64
}

// FakeContainer is one container known to the fake runtime.
type FakeContainer struct {
	ID      string
	Spec    ContainerSpec
	Running bool
	Exited  bool
	Started bool

	exitCode int64
	done     chan struct{}

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
}

func NewFake() *FakeClient {
	return &FakeClient{
		Volumes:    map[string]map[string][]byte{},
		Binds:      map[string]map[string][]byte{},
		VolumeMeta: map[string]VolumeDetails{},
		Containers: map[string]*FakeContainer{},
		Images:     map[string]bool{},
		FailExec:   map[string]int64{},
	}
}

// SetVolumeFile seeds one file into a volume, creating the volume if needed.
func (f *FakeClient) SetVolumeFile(volume, relPath string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Volumes[volume] == nil {
		f.Volumes[volume] = map[string][]byte{}
	}
	f.Volumes[volume][relPath] = content
}

// SetBindFile seeds one file into a bind-mounted host directory.
func (f *FakeClient) SetBindFile(hostPath, relPath string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Binds[hostPath] == nil {
		f.Binds[hostPath] = map[string][]byte{}
	}
	f.Binds[hostPath][relPath] = content
}

// VolumeFiles returns a copy of a volume's file map.
func (f *FakeClient) VolumeFiles(volume string) map[string][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]byte{}
	for k, v := range f.Volumes[volume] {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// BindFiles returns a copy of a bind directory's file map.
func (f *FakeClient) BindFiles(hostPath string) map[string][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]byte{}
	for k, v := range f.Binds[hostPath] {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

func (f *FakeClient) Ping(ctx context.Context) error {
	if f.PingErr != nil {
		return &errdefs.RuntimeUnavailableError{Err: f.PingErr}
	}
	return nil
}

func (f *FakeClient) InspectContainer(ctx context.Context, nameOrID string) (ContainerDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Containers[nameOrID]
	if !ok {
		return ContainerDetails{}, &errdefs.NotFoundError{Resource: "container", Name: nameOrID}
	}
	d := ContainerDetails{
		ID:      c.ID,
		Name:    c.Spec.Name,
		Image:   c.Spec.Image,
		Env:     c.Spec.Env,
		Cmd:     c.Spec.Cmd,
		Network: c.Spec.Network,
		Labels:  c.Spec.Labels,
		Running: c.Running,
	}
	for _, m := range c.Spec.Mounts {
		mp := MountPoint{
			Type:        m.Type,
			Source:      m.Source,
			Destination: m.Target,
			ReadWrite:   !m.ReadOnly,
		}
		if m.Type == "volume" {
			mp.Name = m.Source
		}
		d.Mounts = append(d.Mounts, mp)
	}
	return d, nil
}

func (f *FakeClient) ListContainers(ctx context.Context, all bool, labelFilters []string) ([]ContainerSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ContainerSummary
	for _, c := range f.Containers {
		if !all && !c.Running {
			continue
		}
		if !matchesLabels(c.Spec.Labels, labelFilters) {
			continue
		}
		state := "created"
		if c.Running {
			state = "running"
		} else if c.Exited {
			state = "exited"
		}
		out = append(out, ContainerSummary{ID: c.ID, Name: c.Spec.Name, Labels: c.Spec.Labels, State: state})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func matchesLabels(labels map[string]string, filters []string) bool {
	for _, lf := range filters {
		key, val, hasVal := strings.Cut(lf, "=")
		got, ok := labels[key]
		if !ok {
			return false
		}
		if hasVal && got != val {
			return false
		}
	}
	return true
}

func (f *FakeClient) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Containers[spec.Name]; ok {
		return "", fmt.Errorf("container name conflict: %s", spec.Name)
	}
	// The runtime auto-creates named volumes referenced by new containers.
	for _, m := range spec.Mounts {
		switch m.Type {
		case "volume":
			if f.Volumes[m.Source] == nil {
				f.Volumes[m.Source] = map[string][]byte{}
			}
		case "bind":
			if f.Binds[m.Source] == nil {
				f.Binds[m.Source] = map[string][]byte{}
			}
		}
	}
	c := &FakeContainer{ID: spec.Name, Spec: spec, done: make(chan struct{})}
	f.Containers[spec.Name] = c
	return c.ID, nil
}

func (f *FakeClient) AttachContainer(ctx context.Context, id string) (*AttachStreams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Containers[id]
	if !ok {
		return nil, &errdefs.NotFoundError{Resource: "container", Name: id}
	}
	c.stdinR, c.stdinW = io.Pipe()
	c.stdoutR, c.stdoutW = io.Pipe()
	stdinW, stdoutR := c.stdinW, c.stdoutR
	return &AttachStreams{
		Stdin:  stdinW,
		Stdout: stdoutR,
		closer: func() {
			stdinW.Close()
			stdoutR.Close()
		},
	}, nil
}

func (f *FakeClient) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	c, ok := f.Containers[id]
	if !ok {
		f.mu.Unlock()
		return &errdefs.NotFoundError{Resource: "container", Name: id}
	}
	if c.Started {
		f.mu.Unlock()
		return fmt.Errorf("container already started: %s", id)
	}
	c.Started = true
	c.Running = true
	f.mu.Unlock()

	if op, ok := parseTransferCmd(c.Spec.Cmd); ok {
		go f.exec(c, op)
	}
	return nil
}

func (f *FakeClient) WaitContainer(ctx context.Context, id string) (int64, error) {
	f.mu.Lock()
	c, ok := f.Containers[id]
	f.mu.Unlock()
	if !ok {
		return 0, &errdefs.NotFoundError{Resource: "container", Name: id}
	}
	select {
	case <-c.done:
		return c.exitCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (f *FakeClient) RemoveContainer(ctx context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Containers[id]
	if !ok {
		return &errdefs.NotFoundError{Resource: "container", Name: id}
	}
	if c.Running && !force {
		return fmt.Errorf("cannot remove running container: %s", id)
	}
	if c.stdinR != nil {
		c.stdinR.Close()
		c.stdoutW.Close()
	}
	delete(f.Containers, id)
	return nil
}

func (f *FakeClient) CreateVolume(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Volumes[name] == nil {
		f.Volumes[name] = map[string][]byte{}
	}
	return nil
}

func (f *FakeClient) InspectVolume(ctx context.Context, name string) (VolumeDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if meta, ok := f.VolumeMeta[name]; ok {
		return meta, nil
	}
	if _, ok := f.Volumes[name]; !ok {
		return VolumeDetails{}, &errdefs.NotFoundError{Resource: "volume", Name: name}
	}
	return VolumeDetails{Name: name, Driver: "local"}, nil
}

func (f *FakeClient) PullImage(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Images[ref] = true
	return nil
}

// transferOp is a recognized helper command.
type transferOp struct {
	action string // "archive", "extract", "fetch", "store", "exists"
	dir    string // mount point the tar commands operate on
	path   string // in-container file path for fetch/store/exists
}

// parseTransferCmd recognizes the command shapes the helper runner produces.
// Anything else is treated as a long-running container.
func parseTransferCmd(cmd []string) (transferOp, bool) {
	switch {
	case len(cmd) == 6 && cmd[0] == "tar" && cmd[1] == "-czf":
		return transferOp{action: "archive", dir: cmd[4]}, true
	case len(cmd) == 5 && cmd[0] == "tar" && cmd[1] == "-xzf":
		return transferOp{action: "extract", dir: cmd[4]}, true
	case len(cmd) == 3 && cmd[0] == "test" && cmd[1] == "-e":
		return transferOp{action: "exists", path: cmd[2]}, true
	case len(cmd) == 3 && cmd[0] == "sh" && cmd[1] == "-c" && strings.Contains(cmd[2], "cat >"):
		fields := strings.Fields(cmd[2])
		return transferOp{action: "store", path: fields[len(fields)-1]}, true
	case len(cmd) == 3 && cmd[0] == "sh" && cmd[1] == "-c" && strings.Contains(cmd[2], "; cat "):
		fields := strings.Fields(cmd[2])
		return transferOp{action: "fetch", path: fields[len(fields)-1]}, true
	}
	return transferOp{}, false
}

// exec runs a recognized transfer command against the fake state, streaming
// through the attach pipes, then records the exit code.
func (f *FakeClient) exec(c *FakeContainer, op transferOp) {
	var stdin io.Reader = strings.NewReader("")
	var stdout io.Writer = io.Discard
	if c.stdinR != nil {
		stdin = c.stdinR
		stdout = c.stdoutW
	}

	code := f.runOp(c, op, stdin, stdout)

	f.mu.Lock()
	c.exitCode = code
	c.Running = false
	c.Exited = true
	f.mu.Unlock()
	// Closing both ends mirrors the real runtime: once the process exits,
	// readers see EOF and writers see a closed pipe.
	if c.stdinR != nil {
		c.stdinR.Close()
	}
	if c.stdoutW != nil {
		c.stdoutW.Close()
	}
	close(c.done)
}

func (f *FakeClient) runOp(c *FakeContainer, op transferOp, stdin io.Reader, stdout io.Writer) int64 {
	files, mountSource, ok := f.lookupMount(c, op)
	if !ok {
		return 1
	}
	if code, forced := f.forcedExit(mountSource); forced {
		return code
	}

	switch op.action {
	case "archive":
		if err := writeTarball(stdout, files); err != nil {
			return 2
		}
	case "extract":
		extracted, err := readTarball(stdin)
		if err != nil {
			return 2
		}
		f.mu.Lock()
		for k, v := range extracted {
			files[k] = v
		}
		f.mu.Unlock()
	case "fetch":
		rel := relativeTo(c, op.path)
		f.mu.Lock()
		content, ok := files[rel]
		f.mu.Unlock()
		if !ok {
			// The fetch script probes existence first and exits 4 when the
			// file is absent.
			return 4
		}
		if _, err := stdout.Write(content); err != nil {
			return 2
		}
	case "exists":
		rel := relativeTo(c, op.path)
		f.mu.Lock()
		_, ok := files[rel]
		f.mu.Unlock()
		if !ok {
			return 1
		}
	case "store":
		content, err := io.ReadAll(stdin)
		if err != nil {
			return 2
		}
		rel := relativeTo(c, op.path)
		f.mu.Lock()
		files[rel] = content
		f.mu.Unlock()
	}
	return 0
}

// lookupMount finds the file map behind the mount the op addresses.
func (f *FakeClient) lookupMount(c *FakeContainer, op transferOp) (map[string][]byte, string, bool) {
	target := op.dir
	if target == "" {
		target = mountTargetFor(c, op.path)
	}
	for _, m := range c.Spec.Mounts {
		if m.Target != target {
			continue
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		switch m.Type {
		case "volume":
			if f.Volumes[m.Source] == nil {
				f.Volumes[m.Source] = map[string][]byte{}
			}
			return f.Volumes[m.Source], m.Source, true
		case "bind":
			if f.Binds[m.Source] == nil {
				f.Binds[m.Source] = map[string][]byte{}
			}
			return f.Binds[m.Source], m.Source, true
		}
	}
	return nil, "", false
}

func (f *FakeClient) forcedExit(mountSource string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.FailExec[mountSource]
	return code, ok
}

// mountTargetFor finds which mount target prefixes the given file path.
func mountTargetFor(c *FakeContainer, filePath string) string {
	best := ""
	for _, m := range c.Spec.Mounts {
		if strings.HasPrefix(filePath, m.Target+"/") && len(m.Target) > len(best) {
			best = m.Target
		}
	}
	return best
}

func relativeTo(c *FakeContainer, filePath string) string {
	target := mountTargetFor(c, filePath)
	rel := strings.TrimPrefix(filePath, target+"/")
	return path.Clean(rel)
}

func writeTarball(w io.Writer, files map[string][]byte) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		content := files[name]
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(content); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func readTarball(r io.Reader) (map[string][]byte, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	files := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nil, err
		}
		files[path.Clean(hdr.Name)] = buf.Bytes()
	}
}
