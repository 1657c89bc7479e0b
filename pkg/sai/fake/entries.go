package fake

import "github.com/lumenswitch/orchagent/pkg/sai"

func createEntry(c *Client, kind string, table map[string]sai.Attributes, key string, attrs sai.Attributes) sai.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, hit := c.consumeFailure(kind, "create"); hit {
		return status
	}
	if _, ok := table[key]; ok {
		return sai.StatusItemAlreadyExists
	}
	table[key] = attrs.Clone()
	return sai.StatusSuccess
}

func removeEntry(c *Client, kind string, table map[string]sai.Attributes, key string) sai.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, hit := c.consumeFailure(kind, "remove"); hit {
		return status
	}
	if _, ok := table[key]; !ok {
		return sai.StatusItemNotFound
	}
	delete(table, key)
	return sai.StatusSuccess
}

func setEntryAttr(c *Client, kind string, table map[string]sai.Attributes, key string, attrs sai.Attributes) sai.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, hit := c.consumeFailure(kind, "set"); hit {
		return status
	}
	existing, ok := table[key]
	if !ok {
		return sai.StatusItemNotFound
	}
	for k, v := range attrs {
		existing[k] = v
	}
	return sai.StatusSuccess
}

func getEntryAttr(c *Client, table map[string]sai.Attributes, key string, keys []string) (sai.Attributes, sai.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := table[key]
	if !ok {
		return nil, sai.StatusItemNotFound
	}
	if len(keys) == 0 {
		return existing.Clone(), sai.StatusSuccess
	}
	out := make(sai.Attributes, len(keys))
	for _, k := range keys {
		if v, ok := existing[k]; ok {
			out[k] = v
		}
	}
	return out, sai.StatusSuccess
}

// --- Neighbor ---

func (c *Client) CreateNeighborEntry(key string, attrs sai.Attributes) sai.Status {
	return createEntry(c, "neighbor_entry", c.neighbors, key, attrs)
}
func (c *Client) RemoveNeighborEntry(key string) sai.Status {
	return removeEntry(c, "neighbor_entry", c.neighbors, key)
}
func (c *Client) SetNeighborEntryAttribute(key string, attrs sai.Attributes) sai.Status {
	return setEntryAttr(c, "neighbor_entry", c.neighbors, key, attrs)
}
func (c *Client) GetNeighborEntryAttribute(key string, keys []string) (sai.Attributes, sai.Status) {
	return getEntryAttr(c, c.neighbors, key, keys)
}

// --- Route ---

func (c *Client) CreateRouteEntry(key string, attrs sai.Attributes) sai.Status {
	return createEntry(c, "route_entry", c.routes, key, attrs)
}
func (c *Client) RemoveRouteEntry(key string) sai.Status {
	return removeEntry(c, "route_entry", c.routes, key)
}
func (c *Client) SetRouteEntryAttribute(key string, attrs sai.Attributes) sai.Status {
	return setEntryAttr(c, "route_entry", c.routes, key, attrs)
}
func (c *Client) GetRouteEntryAttribute(key string, keys []string) (sai.Attributes, sai.Status) {
	return getEntryAttr(c, c.routes, key, keys)
}

// --- FDB ---

func (c *Client) CreateFDBEntry(key string, attrs sai.Attributes) sai.Status {
	return createEntry(c, "fdb_entry", c.fdbEntries, key, attrs)
}
func (c *Client) RemoveFDBEntry(key string) sai.Status {
	return removeEntry(c, "fdb_entry", c.fdbEntries, key)
}
func (c *Client) FlushFDBEntries(attrs sai.Attributes) sai.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, hit := c.consumeFailure("fdb_flush", "flush"); hit {
		return status
	}
	bridgePort, hasBridgePort := attrs["bridge_port_id"]
	vlan, hasVlan := attrs["vlan_id"]
	for key, entry := range c.fdbEntries {
		if hasBridgePort && entry["bridge_port_id"] != bridgePort {
			continue
		}
		if hasVlan && entry["vlan_id"] != vlan {
			continue
		}
		delete(c.fdbEntries, key)
	}
	return sai.StatusSuccess
}

// --- MPLS ---

func (c *Client) CreateInsegEntry(label uint32, attrs sai.Attributes) sai.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, hit := c.consumeFailure("inseg_entry", "create"); hit {
		return status
	}
	if _, ok := c.insegEntries[label]; ok {
		return sai.StatusItemAlreadyExists
	}
	c.insegEntries[label] = attrs.Clone()
	return sai.StatusSuccess
}
func (c *Client) RemoveInsegEntry(label uint32) sai.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, hit := c.consumeFailure("inseg_entry", "remove"); hit {
		return status
	}
	if _, ok := c.insegEntries[label]; !ok {
		return sai.StatusItemNotFound
	}
	delete(c.insegEntries, label)
	return sai.StatusSuccess
}
