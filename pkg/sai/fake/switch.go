package fake

import (
	"fmt"

	"github.com/lumenswitch/orchagent/pkg/sai"
)

func (c *Client) GetSwitchAttribute(keys []string) (sai.Attributes, sai.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(keys) == 0 {
		return c.switchAttrs.Clone(), sai.StatusSuccess
	}
	out := make(sai.Attributes, len(keys))
	for _, k := range keys {
		if v, ok := c.switchAttrs[k]; ok {
			out[k] = v
		}
	}
	return out, sai.StatusSuccess
}

func (c *Client) SetSwitchAttribute(attrs sai.Attributes) sai.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range attrs {
		c.switchAttrs[k] = v
	}
	return sai.StatusSuccess
}

// SetPortStormControlAttribute binds a policer to one of a port's
// broadcast/unknown-unicast/unknown-multicast storm-control attributes, or
// clears the binding when policer is zero.
func (c *Client) SetPortStormControlAttribute(port sai.ObjectID, stormType string, policer sai.ObjectID) sai.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, hit := c.consumeFailure("storm_control_binding", "set"); hit {
		return status
	}
	key := stormBindingKey(port, stormType)
	if policer == 0 {
		delete(c.stormBindings, key)
		return sai.StatusSuccess
	}
	if _, ok := c.policers[policer]; !ok {
		return sai.StatusItemNotFound
	}
	c.stormBindings[key] = policer
	return sai.StatusSuccess
}

func stormBindingKey(port sai.ObjectID, stormType string) string {
	return fmt.Sprintf("%d:%s", port, stormType)
}
