// Package fake is an in-memory SAI implementation used by Orch tests in
// place of a vendor dataplane, grounded on the role the original source's
// fake_portorch.cpp / fake_dbconnector.cpp play for orchagent's own test
// suite: a small, inspectable stand-in that still enforces the basic
// create/remove/not-found contract real SAI enforces.
package fake

import (
	"sync"

	"github.com/google/uuid"

	"github.com/lumenswitch/orchagent/pkg/sai"
)

// FailInjection describes one scheduled failure: the next call matching Kind
// and Op returns Status instead of succeeding, then the injection is
// consumed.
type FailInjection struct {
	Kind   string
	Op     string
	Status sai.Status
}

// Client is the in-memory sai.Client. Every object kind gets its own handle
// map; fault injection lets tests reproduce the "inject a SAI failure on the
// next create_route_entry call" class of scenario.
type Client struct {
	mu sync.Mutex

	ports            map[sai.ObjectID]sai.Attributes
	bridgePorts      map[sai.ObjectID]sai.Attributes
	rifs             map[sai.ObjectID]sai.Attributes
	neighbors        map[string]sai.Attributes
	nextHops         map[sai.ObjectID]sai.Attributes
	nhGroups         map[sai.ObjectID]sai.Attributes
	nhGroupMembers   map[sai.ObjectID]sai.Attributes
	routes           map[string]sai.Attributes
	aclTables        map[sai.ObjectID]sai.Attributes
	aclTableGroups   map[sai.ObjectID]sai.Attributes
	aclGroupMembers  map[sai.ObjectID]sai.Attributes
	aclEntries       map[sai.ObjectID]sai.Attributes
	aclCounters      map[sai.ObjectID]sai.Attributes
	aclRanges        map[sai.ObjectID]sai.Attributes
	portACLBindings  map[sai.ObjectID]sai.Attributes
	policers         map[sai.ObjectID]sai.Attributes
	stormBindings    map[string]sai.ObjectID
	tunnels          map[sai.ObjectID]sai.Attributes
	tunnelTerms      map[sai.ObjectID]sai.Attributes
	hostifs          map[sai.ObjectID]sai.Attributes
	vlans            map[sai.ObjectID]sai.Attributes
	vlanMembers      map[sai.ObjectID]sai.Attributes
	lags             map[sai.ObjectID]sai.Attributes
	lagMembers       map[sai.ObjectID]sai.Attributes
	fdbEntries       map[string]sai.Attributes
	bridges          map[sai.ObjectID]sai.Attributes
	insegEntries     map[uint32]sai.Attributes
	srv6SidLists     map[sai.ObjectID]sai.Attributes
	switchAttrs      sai.Attributes

	pendingFailures []FailInjection
}

// New returns an empty fake dataplane.
func New() *Client {
	return &Client{
		ports:           make(map[sai.ObjectID]sai.Attributes),
		bridgePorts:     make(map[sai.ObjectID]sai.Attributes),
		rifs:            make(map[sai.ObjectID]sai.Attributes),
		neighbors:       make(map[string]sai.Attributes),
		nextHops:        make(map[sai.ObjectID]sai.Attributes),
		nhGroups:        make(map[sai.ObjectID]sai.Attributes),
		nhGroupMembers:  make(map[sai.ObjectID]sai.Attributes),
		routes:          make(map[string]sai.Attributes),
		aclTables:       make(map[sai.ObjectID]sai.Attributes),
		aclTableGroups:  make(map[sai.ObjectID]sai.Attributes),
		aclGroupMembers: make(map[sai.ObjectID]sai.Attributes),
		aclEntries:      make(map[sai.ObjectID]sai.Attributes),
		aclCounters:     make(map[sai.ObjectID]sai.Attributes),
		aclRanges:       make(map[sai.ObjectID]sai.Attributes),
		portACLBindings: make(map[sai.ObjectID]sai.Attributes),
		policers:        make(map[sai.ObjectID]sai.Attributes),
		stormBindings:   make(map[string]sai.ObjectID),
		tunnels:         make(map[sai.ObjectID]sai.Attributes),
		tunnelTerms:     make(map[sai.ObjectID]sai.Attributes),
		hostifs:         make(map[sai.ObjectID]sai.Attributes),
		vlans:           make(map[sai.ObjectID]sai.Attributes),
		vlanMembers:     make(map[sai.ObjectID]sai.Attributes),
		lags:            make(map[sai.ObjectID]sai.Attributes),
		lagMembers:      make(map[sai.ObjectID]sai.Attributes),
		fdbEntries:      make(map[string]sai.Attributes),
		bridges:         make(map[sai.ObjectID]sai.Attributes),
		insegEntries:    make(map[uint32]sai.Attributes),
		srv6SidLists:    make(map[sai.ObjectID]sai.Attributes),
		switchAttrs:     sai.Attributes{},
	}
}

// newObjectID synthesizes a unique handle. Real SAI handles are opaque
// 64-bit values; a UUID's low 64 bits serve the same role here without
// tempting tests to depend on sequential allocation order.
func newObjectID() sai.ObjectID {
	id := uuid.New()
	var v uint64
	for _, b := range id[8:16] {
		v = v<<8 | uint64(b)
	}
	if v == 0 {
		v = 1
	}
	return sai.ObjectID(v)
}

// InjectFailure schedules the next call matching kind/op to fail with the
// given status, consumed on first match. Used to reproduce the "inject a
// SAI failure on the next create_route_entry call" class of test.
func (c *Client) InjectFailure(kind, op string, status sai.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingFailures = append(c.pendingFailures, FailInjection{Kind: kind, Op: op, Status: status})
}

// consumeFailure returns (status, true) if a matching injection was pending,
// removing it. Must be called with c.mu held.
func (c *Client) consumeFailure(kind, op string) (sai.Status, bool) {
	for i, f := range c.pendingFailures {
		if f.Kind == kind && f.Op == op {
			c.pendingFailures = append(c.pendingFailures[:i], c.pendingFailures[i+1:]...)
			return f.Status, true
		}
	}
	return sai.StatusSuccess, false
}

func (c *Client) Port() sai.PortAPI                     { return c }
func (c *Client) RouterInterface() sai.RouterInterfaceAPI { return c }
func (c *Client) Neighbor() sai.NeighborAPI              { return c }
func (c *Client) NextHop() sai.NextHopAPI                { return c }
func (c *Client) NextHopGroup() sai.NextHopGroupAPI       { return c }
func (c *Client) Route() sai.RouteAPI                    { return c }
func (c *Client) ACL() sai.ACLAPI                        { return c }
func (c *Client) Policer() sai.PolicerAPI                { return c }
func (c *Client) Tunnel() sai.TunnelAPI                  { return c }
func (c *Client) Hostif() sai.HostifAPI                  { return c }
func (c *Client) VLAN() sai.VLANAPI                      { return c }
func (c *Client) LAG() sai.LAGAPI                        { return c }
func (c *Client) FDB() sai.FDBAPI                        { return c }
func (c *Client) Bridge() sai.BridgeAPI                  { return c }
func (c *Client) Switch() sai.SwitchAPI                  { return c }
func (c *Client) MPLS() sai.MPLSAPI                      { return c }
func (c *Client) SRv6() sai.SRv6API                      { return c }

var _ sai.Client = (*Client)(nil)
