// Package container provides the container entity: a named image
// placed on a node, with its ports, links, volumes and restart policy.
package container

import (
	"fmt"

	"github.com/volplane/volplane/domain/document"
)

// RestartPolicyName discriminates the restart policy variants.
type RestartPolicyName string

const (
	RestartNever     RestartPolicyName = "never"
	RestartAlways    RestartPolicyName = "always"
	RestartOnFailure RestartPolicyName = "on-failure"
)

// RestartPolicy is the resolved restart policy variant.
// MaximumRetryCount is meaningful only for RestartOnFailure.
type RestartPolicy struct {
	Name              RestartPolicyName
	MaximumRetryCount int
}

// Port maps a container port to a host port.
type Port struct {
	Internal int
	External int
}

// Link connects a local port to a port on a named peer.
type Link struct {
	Alias      string
	LocalPort  int
	RemotePort int
}

// Volume mounts a dataset at a path inside the container.
type Volume struct {
	DatasetID  string
	Mountpoint string
}

// Container is the typed form of a structurally valid container
// document (immutable value type). Running is observed state reported
// by node agents; submissions cannot set it.
type Container struct {
	Name          string
	Image         string
	CommandLine   []string
	Ports         []Port
	Environment   map[string]string
	Links         []Link
	RestartPolicy RestartPolicy
	CPUShares     *int64
	MemoryLimit   *int64
	Volumes       []Volume
	NodeUUID      string
	Running       bool
}

// FromDocument builds a Container from a normalized document that
// already passed validation against container_configuration or
// container_state. An absent restart_policy defaults to never.
func FromDocument(v document.Value) (Container, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Container{}, fmt.Errorf("container: document is %T, not an object", v)
	}
	c := Container{
		RestartPolicy: RestartPolicy{Name: RestartNever},
	}
	c.Name, _ = obj["name"].(string)
	c.Image, _ = obj["image"].(string)
	c.NodeUUID, _ = obj["node_uuid"].(string)
	c.Running, _ = obj["running"].(bool)

	if raw, ok := obj["command_line"].([]any); ok {
		c.CommandLine = make([]string, len(raw))
		for i, item := range raw {
			s, ok := item.(string)
			if !ok {
				return Container{}, fmt.Errorf("container: command_line[%d] is %T, not a string", i, item)
			}
			c.CommandLine[i] = s
		}
	}
	if raw, ok := obj["ports"].([]any); ok {
		c.Ports = make([]Port, len(raw))
		for i, item := range raw {
			p, err := portFromDocument(item)
			if err != nil {
				return Container{}, fmt.Errorf("container: ports[%d]: %w", i, err)
			}
			c.Ports[i] = p
		}
	}
	if raw, ok := obj["environment"].(map[string]any); ok {
		c.Environment = make(map[string]string, len(raw))
		for k, ev := range raw {
			s, ok := ev.(string)
			if !ok {
				return Container{}, fmt.Errorf("container: environment %q is %T, not a string", k, ev)
			}
			c.Environment[k] = s
		}
	}
	if raw, ok := obj["links"].([]any); ok {
		c.Links = make([]Link, len(raw))
		for i, item := range raw {
			l, err := linkFromDocument(item)
			if err != nil {
				return Container{}, fmt.Errorf("container: links[%d]: %w", i, err)
			}
			c.Links[i] = l
		}
	}
	if raw, ok := obj["restart_policy"].(map[string]any); ok {
		rp, err := restartPolicyFromDocument(raw)
		if err != nil {
			return Container{}, fmt.Errorf("container: restart_policy: %w", err)
		}
		c.RestartPolicy = rp
	}
	if raw, present := obj["cpu_shares"]; present {
		shares, ok := document.Int(raw)
		if !ok {
			return Container{}, fmt.Errorf("container: cpu_shares is not an integer")
		}
		c.CPUShares = &shares
	}
	if raw, present := obj["memory_limit"]; present {
		limit, ok := document.Int(raw)
		if !ok {
			return Container{}, fmt.Errorf("container: memory_limit is not an integer")
		}
		c.MemoryLimit = &limit
	}
	if raw, ok := obj["volumes"].([]any); ok {
		c.Volumes = make([]Volume, len(raw))
		for i, item := range raw {
			vol, err := volumeFromDocument(item)
			if err != nil {
				return Container{}, fmt.Errorf("container: volumes[%d]: %w", i, err)
			}
			c.Volumes[i] = vol
		}
	}
	return c, nil
}

func portFromDocument(v document.Value) (Port, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Port{}, fmt.Errorf("port is %T, not an object", v)
	}
	internal, ok := document.Int(obj["internal"])
	if !ok {
		return Port{}, fmt.Errorf("internal is not an integer")
	}
	external, ok := document.Int(obj["external"])
	if !ok {
		return Port{}, fmt.Errorf("external is not an integer")
	}
	return Port{Internal: int(internal), External: int(external)}, nil
}

func linkFromDocument(v document.Value) (Link, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Link{}, fmt.Errorf("link is %T, not an object", v)
	}
	alias, ok := obj["alias"].(string)
	if !ok {
		return Link{}, fmt.Errorf("alias is not a string")
	}
	local, ok := document.Int(obj["local_port"])
	if !ok {
		return Link{}, fmt.Errorf("local_port is not an integer")
	}
	remote, ok := document.Int(obj["remote_port"])
	if !ok {
		return Link{}, fmt.Errorf("remote_port is not an integer")
	}
	return Link{Alias: alias, LocalPort: int(local), RemotePort: int(remote)}, nil
}

func restartPolicyFromDocument(obj map[string]any) (RestartPolicy, error) {
	name, ok := obj["name"].(string)
	if !ok {
		return RestartPolicy{}, fmt.Errorf("name is not a string")
	}
	switch RestartPolicyName(name) {
	case RestartNever, RestartAlways:
		return RestartPolicy{Name: RestartPolicyName(name)}, nil
	case RestartOnFailure:
		count, ok := document.Int(obj["maximum_retry_count"])
		if !ok {
			return RestartPolicy{}, fmt.Errorf("maximum_retry_count is not an integer")
		}
		return RestartPolicy{Name: RestartOnFailure, MaximumRetryCount: int(count)}, nil
	}
	return RestartPolicy{}, fmt.Errorf("unknown policy %q", name)
}

func volumeFromDocument(v document.Value) (Volume, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Volume{}, fmt.Errorf("volume is %T, not an object", v)
	}
	id, ok := obj["dataset_id"].(string)
	if !ok {
		return Volume{}, fmt.Errorf("dataset_id is not a string")
	}
	mount, ok := obj["mountpoint"].(string)
	if !ok {
		return Volume{}, fmt.Errorf("mountpoint is not a string")
	}
	return Volume{DatasetID: id, Mountpoint: mount}, nil
}

// Document renders the container in its canonical committed shape
// (container_state). Unset optional fields are omitted; the restart
// policy is always emitted so defaults survive the round trip.
func (c Container) Document() document.Value {
	obj := map[string]any{
		"name":           c.Name,
		"image":          c.Image,
		"node_uuid":      c.NodeUUID,
		"running":        c.Running,
		"restart_policy": c.RestartPolicy.document(),
	}
	if c.CommandLine != nil {
		cmd := make([]any, len(c.CommandLine))
		for i, s := range c.CommandLine {
			cmd[i] = s
		}
		obj["command_line"] = cmd
	}
	if c.Ports != nil {
		ports := make([]any, len(c.Ports))
		for i, p := range c.Ports {
			ports[i] = map[string]any{
				"internal": document.Number(int64(p.Internal)),
				"external": document.Number(int64(p.External)),
			}
		}
		obj["ports"] = ports
	}
	if c.Environment != nil {
		env := make(map[string]any, len(c.Environment))
		for k, v := range c.Environment {
			env[k] = v
		}
		obj["environment"] = env
	}
	if c.Links != nil {
		links := make([]any, len(c.Links))
		for i, l := range c.Links {
			links[i] = map[string]any{
				"alias":       l.Alias,
				"local_port":  document.Number(int64(l.LocalPort)),
				"remote_port": document.Number(int64(l.RemotePort)),
			}
		}
		obj["links"] = links
	}
	if c.CPUShares != nil {
		obj["cpu_shares"] = document.Number(*c.CPUShares)
	}
	if c.MemoryLimit != nil {
		obj["memory_limit"] = document.Number(*c.MemoryLimit)
	}
	if c.Volumes != nil {
		vols := make([]any, len(c.Volumes))
		for i, v := range c.Volumes {
			vols[i] = map[string]any{
				"dataset_id": v.DatasetID,
				"mountpoint": v.Mountpoint,
			}
		}
		obj["volumes"] = vols
	}
	return obj
}

func (p RestartPolicy) document() map[string]any {
	obj := map[string]any{"name": string(p.Name)}
	if p.Name == RestartOnFailure {
		obj["maximum_retry_count"] = document.Number(int64(p.MaximumRetryCount))
	}
	return obj
}
