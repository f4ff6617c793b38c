package notifications

import "maps"

// ChannelPolicy declares, per type, which channels are allowed and which
// are forced on regardless of user preference. The zero value allows every
// channel and forces none.
type ChannelPolicy struct {
	allowed map[Type]ChannelSet
	forced  map[Type]ChannelSet
	// unsuppressible types ignore a "never" frequency.
	unsuppressible map[Type]bool
}

// DefaultChannelPolicy forces in-app and email for security notices and
// makes them immune to "never".
func DefaultChannelPolicy() ChannelPolicy {
	return ChannelPolicy{}.
		Force(TypeSecurity, NewChannelSet(ChannelInApp, ChannelEmail)).
		Unsuppressible(TypeSecurity)
}

// Allow restricts t to set. Returns a modified copy.
func (p ChannelPolicy) Allow(t Type, set ChannelSet) ChannelPolicy {
	p.allowed = withEntry(p.allowed, t, set)
	return p
}

// Force always adds set to t's channels. Returns a modified copy.
func (p ChannelPolicy) Force(t Type, set ChannelSet) ChannelPolicy {
	p.forced = withEntry(p.forced, t, set)
	return p
}

// Unsuppressible marks t as deliverable even when the user chose "never".
func (p ChannelPolicy) Unsuppressible(t Type) ChannelPolicy {
	next := maps.Clone(p.unsuppressible)
	if next == nil {
		next = make(map[Type]bool, 1)
	}
	next[t] = true
	p.unsuppressible = next
	return p
}

func withEntry(m map[Type]ChannelSet, t Type, set ChannelSet) map[Type]ChannelSet {
	next := maps.Clone(m)
	if next == nil {
		next = make(map[Type]ChannelSet, 1)
	}
	next[t] = set
	return next
}

// Allowed returns the channels valid for t.
func (p ChannelPolicy) Allowed(t Type) ChannelSet {
	if set, ok := p.allowed[t]; ok {
		return set
	}
	return AllChannels
}

// Forced returns the channels always used for t.
func (p ChannelPolicy) Forced(t Type) ChannelSet {
	return p.forced[t]
}

// IsUnsuppressible reports whether t ignores a "never" frequency.
func (p ChannelPolicy) IsUnsuppressible(t Type) bool {
	return p.unsuppressible[t]
}

// Apply computes (enabled ∩ allowed) ∪ forced. Applying it twice gives
// the same set.
func (p ChannelPolicy) Apply(t Type, enabled ChannelSet) ChannelSet {
	return enabled.Intersect(p.Allowed(t)).Union(p.Forced(t))
}
