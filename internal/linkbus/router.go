package linkbus

import "sort"

// Router hands incoming bounces to the bus registered for each tag. It is
// owned by the tick loop and is not safe for concurrent use.
type Router struct {
	buses map[string]*Bus
}

func NewRouter() *Router {
	return &Router{
		buses: make(map[string]*Bus),
	}
}

// Register adds bus under its tag, replacing any previous bus for that tag.
func (r *Router) Register(bus *Bus) {
	r.buses[bus.Tag()] = bus
}

// Bus returns the bus registered for tag.
func (r *Router) Bus(tag string) (*Bus, bool) {
	bus, ok := r.buses[tag]
	return bus, ok
}

// Route decodes data once per matching tag and delivers it. It returns the
// number of buses that applied the message.
func (r *Router) Route(tags []string, data map[string]any) int {
	applied := 0
	for _, tag := range tags {
		bus, ok := r.buses[tag]
		if !ok {
			continue
		}
		if bus.OnReceive(Decode(tag, data)) {
			applied++
		}
	}
	return applied
}

// EnabledTags returns the sorted tags of enabled buses, for the session's
// tag subscription.
func (r *Router) EnabledTags() []string {
	var tags []string
	for tag, bus := range r.buses {
		if bus.Enabled() {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// SetTransport installs t on every registered bus.
func (r *Router) SetTransport(t Transport) {
	for _, bus := range r.buses {
		bus.SetTransport(t)
	}
}
