// Copyright (c) 2026 Serverprep Team
// Serverprep - container host preparation over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package deployfile reads the container deployment descriptor
// (config/deploy.yml) and extracts the hosts to prepare and the SSH user to
// create on them.
//
// Hosts are collected from every server role in file order, followed by
// every accessory in file order, and deduplicated keeping the first
// occurrence. The order matters: the first host is the one shown in the
// login reminder.
package deployfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultUser is the SSH user the deployer assumes when ssh.user is absent.
const DefaultUser = "root"

// Deployment is what the provisioner needs from the descriptor.
type Deployment struct {
	Hosts []string
	User  string
}

// FirstHost returns the first host in descriptor order.
func (d Deployment) FirstHost() (string, bool) {
	if len(d.Hosts) == 0 {
		return "", false
	}
	return d.Hosts[0], true
}

// ErrNoServers is returned when the descriptor names no servers at all.
var ErrNoServers = errors.New("no servers configured")

// Load reads the descriptor at path. When destination is not empty the
// sibling file deploy.<destination>.yml is merged over it.
func Load(path, destination string) (Deployment, error) {
	root, err := readNode(path)
	if err != nil {
		return Deployment{}, err
	}
	if destination != "" {
		overlay, err := readNode(DestinationPath(path, destination))
		if err != nil {
			return Deployment{}, err
		}
		root = merge(root, overlay)
	}
	return decode(root)
}

// Parse decodes a single descriptor document.
func Parse(data []byte) (Deployment, error) {
	root, err := parseNode(data, "<input>")
	if err != nil {
		return Deployment{}, err
	}
	return decode(root)
}

// DestinationPath returns the overlay path for destination, e.g.
// config/deploy.yml + staging -> config/deploy.staging.yml.
func DestinationPath(path, destination string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + destination + ext
}

func readNode(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deploy file: %w", err)
	}
	return parseNode(data, path)
}

func parseNode(data []byte, name string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%s is empty", name)
	}
	root := resolve(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: top level must be a mapping", name)
	}
	return root, nil
}

type role struct {
	name  string
	hosts []string
}

func decode(root *yaml.Node) (Deployment, error) {
	roles, err := decodeServers(lookup(root, "servers"))
	if err != nil {
		return Deployment{}, err
	}

	var hosts hostSet
	for _, r := range roles {
		hosts.add(r.hosts...)
	}

	accessoryHosts, err := decodeAccessories(lookup(root, "accessories"), roles)
	if err != nil {
		return Deployment{}, err
	}
	hosts.add(accessoryHosts...)

	user := DefaultUser
	if ssh := lookup(root, "ssh"); ssh != nil && ssh.Kind == yaml.MappingNode {
		if u := lookup(ssh, "user"); u != nil && u.Kind == yaml.ScalarNode && u.Value != "" {
			user = u.Value
		}
	}

	return Deployment{Hosts: hosts.list, User: user}, nil
}

func decodeServers(n *yaml.Node) ([]role, error) {
	if n == nil || isNull(n) {
		return nil, ErrNoServers
	}
	switch n.Kind {
	case yaml.SequenceNode:
		hosts, err := decodeHostList(n, "servers")
		if err != nil {
			return nil, err
		}
		return []role{{name: "web", hosts: hosts}}, nil
	case yaml.MappingNode:
		var roles []role
		for i := 0; i+1 < len(n.Content); i += 2 {
			name := n.Content[i].Value
			value := resolve(n.Content[i+1])
			var hosts []string
			var err error
			switch {
			case isNull(value):
			case value.Kind == yaml.SequenceNode:
				hosts, err = decodeHostList(value, "servers."+name)
			case value.Kind == yaml.MappingNode:
				if h := lookup(value, "hosts"); h != nil && !isNull(h) {
					hosts, err = decodeHostList(h, "servers."+name+".hosts")
				}
			default:
				err = fmt.Errorf("servers.%s: expected a host list or a mapping", name)
			}
			if err != nil {
				return nil, err
			}
			roles = append(roles, role{name: name, hosts: hosts})
		}
		return roles, nil
	default:
		return nil, fmt.Errorf("servers: expected a host list or a mapping of roles")
	}
}

// decodeHostList accepts plain hosts and single-key "host: tags" entries.
func decodeHostList(n *yaml.Node, where string) ([]string, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%s: expected a list of hosts", where)
	}
	hosts := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		item = resolve(item)
		switch {
		case item.Kind == yaml.ScalarNode && item.Value != "":
			hosts = append(hosts, item.Value)
		case item.Kind == yaml.MappingNode && len(item.Content) == 2:
			hosts = append(hosts, item.Content[0].Value)
		default:
			return nil, fmt.Errorf("%s: invalid host entry at line %d", where, item.Line)
		}
	}
	return hosts, nil
}

func decodeAccessories(n *yaml.Node, roles []role) ([]string, error) {
	if n == nil || isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("accessories: expected a mapping")
	}

	roleHosts := func(name, accessory string) ([]string, error) {
		for _, r := range roles {
			if r.name == name {
				return r.hosts, nil
			}
		}
		return nil, fmt.Errorf("accessories.%s: unknown role %q", accessory, name)
	}

	var hosts []string
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		acc := resolve(n.Content[i+1])
		if acc.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("accessories.%s: expected a mapping", name)
		}

		switch {
		case lookup(acc, "host") != nil:
			h := lookup(acc, "host")
			if h.Kind != yaml.ScalarNode || h.Value == "" {
				return nil, fmt.Errorf("accessories.%s.host: expected a host", name)
			}
			hosts = append(hosts, h.Value)
		case lookup(acc, "hosts") != nil:
			list, err := decodeHostList(lookup(acc, "hosts"), "accessories."+name+".hosts")
			if err != nil {
				return nil, err
			}
			hosts = append(hosts, list...)
		case lookup(acc, "role") != nil:
			list, err := roleHosts(lookup(acc, "role").Value, name)
			if err != nil {
				return nil, err
			}
			hosts = append(hosts, list...)
		case lookup(acc, "roles") != nil:
			r := lookup(acc, "roles")
			if r.Kind != yaml.SequenceNode {
				return nil, fmt.Errorf("accessories.%s.roles: expected a list", name)
			}
			for _, rn := range r.Content {
				list, err := roleHosts(resolve(rn).Value, name)
				if err != nil {
					return nil, err
				}
				hosts = append(hosts, list...)
			}
		default:
			return nil, fmt.Errorf("accessories.%s: missing host, hosts, role or roles", name)
		}
	}
	return hosts, nil
}

// hostSet keeps insertion order and drops repeats.
type hostSet struct {
	seen map[string]struct{}
	list []string
}

func (s *hostSet) add(hosts ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, h := range hosts {
		if _, ok := s.seen[h]; ok {
			continue
		}
		s.seen[h] = struct{}{}
		s.list = append(s.list, h)
	}
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return resolve(m.Content[i+1])
		}
	}
	return nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

// merge overlays o onto b: mappings merge key by key, anything else in o
// replaces what b had.
func merge(b, o *yaml.Node) *yaml.Node {
	b, o = resolve(b), resolve(o)
	if b == nil || b.Kind != yaml.MappingNode || o.Kind != yaml.MappingNode {
		return o
	}
	for i := 0; i+1 < len(o.Content); i += 2 {
		key := o.Content[i]
		val := o.Content[i+1]
		replaced := false
		for j := 0; j+1 < len(b.Content); j += 2 {
			if b.Content[j].Value == key.Value {
				b.Content[j+1] = merge(b.Content[j+1], val)
				replaced = true
				break
			}
		}
		if !replaced {
			b.Content = append(b.Content, key, val)
		}
	}
	return b
}
