package incident

import (
	"context"
	"log/slog"
	"sync"
)

// StaticDirectory serves a fixed member set. Used in development and tests;
// production wires the REST client instead.
type StaticDirectory struct {
	mu      sync.RWMutex
	members map[string]Member
}

func NewStaticDirectory(members ...Member) *StaticDirectory {
	d := &StaticDirectory{members: make(map[string]Member, len(members))}
	for _, m := range members {
		d.members[m.ID] = m
	}
	return d
}

func (d *StaticDirectory) Lookup(_ context.Context, memberID string) (Member, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[memberID]
	return m, ok, nil
}

// MemoryCreator records incidents in process memory. Development fallback
// and the exactly-once witness in tests.
type MemoryCreator struct {
	mu      sync.Mutex
	created []Incident
}

func NewMemoryCreator() *MemoryCreator {
	return &MemoryCreator{}
}

func (c *MemoryCreator) CreateIncident(_ context.Context, inc Incident) (Ref, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, inc)
	return Ref{ID: NewID(), Number: inc.Number}, nil
}

// Created returns a snapshot of everything recorded so far.
func (c *MemoryCreator) Created() []Incident {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Incident, len(c.created))
	copy(out, c.created)
	return out
}

// LogNotifier records activations in the log instead of fanning them out.
// Keeps local runs honest about what would have been sent.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) EmergencyActivated(_ context.Context, ref Ref, member Member) {
	if n.Logger == nil {
		return
	}
	n.Logger.Info("emergency activated",
		"incident_number", ref.Number,
		"member_id", member.ID,
	)
}
