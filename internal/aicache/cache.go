package aicache

import (
	"sync"
	"time"
)

type key struct {
	issueID string
	typ     ArtifactType
}

// Cache is a process-local copy of the newest artifact per (issue, type).
// Invalidated entries are kept so callers can tell Invalidated from Absent.
type Cache struct {
	mu   sync.Mutex
	rows map[key]Artifact
	now  func() time.Time
}

func NewCache() *Cache {
	return &Cache{rows: map[key]Artifact{}, now: time.Now}
}

func (c *Cache) Put(a Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[key{a.IssueID, a.Type}] = a
}

// Get returns the active artifact for the pair.
func (c *Cache) Get(issueID string, t ArtifactType) (Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.rows[key{issueID, t}]
	if !ok || !a.IsActive() {
		return Artifact{}, false
	}
	return a, true
}

func (c *Cache) State(issueID string, t ArtifactType) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.rows[key{issueID, t}]
	if !ok {
		return Absent
	}
	return StateOf([]Artifact{a})
}

// Apply marks every artifact the mutation makes stale as invalidated.
func (c *Cache) Apply(issueID string, m Mutation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range Invalidates(m) {
		c.invalidateLocked(key{issueID, t})
	}
}

// Invalidate marks the pair's artifact invalidated, e.g. when the server
// reports it so.
func (c *Cache) Invalidate(issueID string, t ArtifactType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(key{issueID, t})
}

// Remove forgets the pair entirely.
func (c *Cache) Remove(issueID string, t ArtifactType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, key{issueID, t})
}

func (c *Cache) invalidateLocked(k key) {
	a, ok := c.rows[k]
	if !ok || !a.IsActive() {
		return
	}
	at := c.now()
	a.InvalidatedAt = &at
	c.rows[k] = a
}
