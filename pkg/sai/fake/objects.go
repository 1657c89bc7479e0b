package fake

import "github.com/lumenswitch/orchagent/pkg/sai"

// create is the shared create-by-handle helper: check fault injection,
// synthesize an ID, store the attributes.
func create(c *Client, kind string, table map[sai.ObjectID]sai.Attributes, attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, hit := c.consumeFailure(kind, "create"); hit {
		return 0, status
	}
	id := newObjectID()
	table[id] = attrs.Clone()
	return id, sai.StatusSuccess
}

func remove(c *Client, kind string, table map[sai.ObjectID]sai.Attributes, id sai.ObjectID) sai.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, hit := c.consumeFailure(kind, "remove"); hit {
		return status
	}
	if _, ok := table[id]; !ok {
		return sai.StatusItemNotFound
	}
	delete(table, id)
	return sai.StatusSuccess
}

func setAttr(c *Client, kind string, table map[sai.ObjectID]sai.Attributes, id sai.ObjectID, attrs sai.Attributes) sai.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, hit := c.consumeFailure(kind, "set"); hit {
		return status
	}
	existing, ok := table[id]
	if !ok {
		return sai.StatusItemNotFound
	}
	for k, v := range attrs {
		existing[k] = v
	}
	return sai.StatusSuccess
}

func getAttr(c *Client, table map[sai.ObjectID]sai.Attributes, id sai.ObjectID, keys []string) (sai.Attributes, sai.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := table[id]
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

// --- Port ---

func (c *Client) CreatePort(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "port", c.ports, attrs)
}
func (c *Client) RemovePort(id sai.ObjectID) sai.Status {
	return remove(c, "port", c.ports, id)
}
func (c *Client) SetPortAttribute(id sai.ObjectID, attrs sai.Attributes) sai.Status {
	return setAttr(c, "port", c.ports, id, attrs)
}
func (c *Client) GetPortAttribute(id sai.ObjectID, keys []string) (sai.Attributes, sai.Status) {
	return getAttr(c, c.ports, id, keys)
}
func (c *Client) CreateBridgePort(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "bridge_port", c.bridgePorts, attrs)
}
func (c *Client) RemoveBridgePort(id sai.ObjectID) sai.Status {
	return remove(c, "bridge_port", c.bridgePorts, id)
}

// --- Router interface ---

func (c *Client) CreateRouterInterface(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "router_interface", c.rifs, attrs)
}
func (c *Client) RemoveRouterInterface(id sai.ObjectID) sai.Status {
	return remove(c, "router_interface", c.rifs, id)
}
func (c *Client) SetRouterInterfaceAttribute(id sai.ObjectID, attrs sai.Attributes) sai.Status {
	return setAttr(c, "router_interface", c.rifs, id, attrs)
}
func (c *Client) GetRouterInterfaceAttribute(id sai.ObjectID, keys []string) (sai.Attributes, sai.Status) {
	return getAttr(c, c.rifs, id, keys)
}

// --- Next hop ---

func (c *Client) CreateNextHop(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "next_hop", c.nextHops, attrs)
}
func (c *Client) RemoveNextHop(id sai.ObjectID) sai.Status {
	return remove(c, "next_hop", c.nextHops, id)
}
func (c *Client) SetNextHopAttribute(id sai.ObjectID, attrs sai.Attributes) sai.Status {
	return setAttr(c, "next_hop", c.nextHops, id, attrs)
}
func (c *Client) GetNextHopAttribute(id sai.ObjectID, keys []string) (sai.Attributes, sai.Status) {
	return getAttr(c, c.nextHops, id, keys)
}

// --- Next hop group ---

func (c *Client) CreateNextHopGroup(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "next_hop_group", c.nhGroups, attrs)
}
func (c *Client) RemoveNextHopGroup(id sai.ObjectID) sai.Status {
	return remove(c, "next_hop_group", c.nhGroups, id)
}
func (c *Client) CreateNextHopGroupMember(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "next_hop_group_member", c.nhGroupMembers, attrs)
}
func (c *Client) RemoveNextHopGroupMember(id sai.ObjectID) sai.Status {
	return remove(c, "next_hop_group_member", c.nhGroupMembers, id)
}
func (c *Client) SetNextHopGroupMemberAttribute(id sai.ObjectID, attrs sai.Attributes) sai.Status {
	return setAttr(c, "next_hop_group_member", c.nhGroupMembers, id, attrs)
}

// --- ACL ---

func (c *Client) CreateACLTable(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "acl_table", c.aclTables, attrs)
}
func (c *Client) RemoveACLTable(id sai.ObjectID) sai.Status {
	return remove(c, "acl_table", c.aclTables, id)
}
func (c *Client) CreateACLTableGroup(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "acl_table_group", c.aclTableGroups, attrs)
}
func (c *Client) RemoveACLTableGroup(id sai.ObjectID) sai.Status {
	return remove(c, "acl_table_group", c.aclTableGroups, id)
}
func (c *Client) CreateACLTableGroupMember(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "acl_table_group_member", c.aclGroupMembers, attrs)
}
func (c *Client) RemoveACLTableGroupMember(id sai.ObjectID) sai.Status {
	return remove(c, "acl_table_group_member", c.aclGroupMembers, id)
}
func (c *Client) CreateACLEntry(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "acl_entry", c.aclEntries, attrs)
}
func (c *Client) RemoveACLEntry(id sai.ObjectID) sai.Status {
	return remove(c, "acl_entry", c.aclEntries, id)
}
func (c *Client) SetACLEntryAttribute(id sai.ObjectID, attrs sai.Attributes) sai.Status {
	return setAttr(c, "acl_entry", c.aclEntries, id, attrs)
}
func (c *Client) CreateACLCounter(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "acl_counter", c.aclCounters, attrs)
}
func (c *Client) RemoveACLCounter(id sai.ObjectID) sai.Status {
	return remove(c, "acl_counter", c.aclCounters, id)
}
func (c *Client) GetACLCounterAttribute(id sai.ObjectID, keys []string) (sai.Attributes, sai.Status) {
	return getAttr(c, c.aclCounters, id, keys)
}
func (c *Client) CreateACLRange(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "acl_range", c.aclRanges, attrs)
}
func (c *Client) RemoveACLRange(id sai.ObjectID) sai.Status {
	return remove(c, "acl_range", c.aclRanges, id)
}
func (c *Client) SetPortACLAttribute(port sai.ObjectID, attrs sai.Attributes) sai.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, hit := c.consumeFailure("port_acl_binding", "set"); hit {
		return status
	}
	existing := c.portACLBindings[port]
	if existing == nil {
		existing = sai.Attributes{}
	}
	for k, v := range attrs {
		existing[k] = v
	}
	c.portACLBindings[port] = existing
	return sai.StatusSuccess
}

// --- Policer ---

func (c *Client) CreatePolicer(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "policer", c.policers, attrs)
}
func (c *Client) RemovePolicer(id sai.ObjectID) sai.Status {
	return remove(c, "policer", c.policers, id)
}
func (c *Client) SetPolicerAttribute(id sai.ObjectID, attrs sai.Attributes) sai.Status {
	return setAttr(c, "policer", c.policers, id, attrs)
}

// --- Tunnel ---

func (c *Client) CreateTunnel(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "tunnel", c.tunnels, attrs)
}
func (c *Client) RemoveTunnel(id sai.ObjectID) sai.Status {
	return remove(c, "tunnel", c.tunnels, id)
}
func (c *Client) CreateTunnelTermEntry(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "tunnel_term_entry", c.tunnelTerms, attrs)
}
func (c *Client) RemoveTunnelTermEntry(id sai.ObjectID) sai.Status {
	return remove(c, "tunnel_term_entry", c.tunnelTerms, id)
}

// --- Hostif / VLAN / LAG / Bridge / SRv6 ---

func (c *Client) CreateHostif(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "hostif", c.hostifs, attrs)
}
func (c *Client) RemoveHostif(id sai.ObjectID) sai.Status {
	return remove(c, "hostif", c.hostifs, id)
}

func (c *Client) CreateVLAN(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "vlan", c.vlans, attrs)
}
func (c *Client) RemoveVLAN(id sai.ObjectID) sai.Status {
	return remove(c, "vlan", c.vlans, id)
}
func (c *Client) CreateVLANMember(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "vlan_member", c.vlanMembers, attrs)
}
func (c *Client) RemoveVLANMember(id sai.ObjectID) sai.Status {
	return remove(c, "vlan_member", c.vlanMembers, id)
}

func (c *Client) CreateLAG(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "lag", c.lags, attrs)
}
func (c *Client) RemoveLAG(id sai.ObjectID) sai.Status {
	return remove(c, "lag", c.lags, id)
}
func (c *Client) CreateLAGMember(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "lag_member", c.lagMembers, attrs)
}
func (c *Client) RemoveLAGMember(id sai.ObjectID) sai.Status {
	return remove(c, "lag_member", c.lagMembers, id)
}

func (c *Client) CreateBridge(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "bridge", c.bridges, attrs)
}
func (c *Client) RemoveBridge(id sai.ObjectID) sai.Status {
	return remove(c, "bridge", c.bridges, id)
}

func (c *Client) CreateSRv6SIDList(attrs sai.Attributes) (sai.ObjectID, sai.Status) {
	return create(c, "srv6_sidlist", c.srv6SidLists, attrs)
}
func (c *Client) RemoveSRv6SIDList(id sai.ObjectID) sai.Status {
	return remove(c, "srv6_sidlist", c.srv6SidLists, id)
}
