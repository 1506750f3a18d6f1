package exporter

import (
	"sort"
	"sync"
	"time"
)

// Device is the host record of one plan.
type Device struct {
	PlanID  string    `json:"planId"`
	Label   string    `json:"label"`
	Created time.Time `json:"created"`
}

// Registry stores one device record per plan.
type Registry interface {
	// PlanIDs returns the plans that have a device record.
	PlanIDs() []string
	// Ensure creates the device record of a plan or updates its label.
	Ensure(plan, label string)
	// Remove deletes the device record of a plan.
	Remove(plan string)
}

// MemoryRegistry is a Registry that lives as long as the process.
type MemoryRegistry struct {
	mu      sync.RWMutex
	devices map[string]Device
	now     func() time.Time
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		devices: make(map[string]Device),
		now:     time.Now,
	}
}

// PlanIDs implements Registry.
func (r *MemoryRegistry) PlanIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ensure implements Registry.
func (r *MemoryRegistry) Ensure(plan, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[plan]
	if !ok {
		d = Device{PlanID: plan, Created: r.now()}
	}
	d.Label = label
	r.devices[plan] = d
}

// Remove implements Registry.
func (r *MemoryRegistry) Remove(plan string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, plan)
}

// Devices returns every device record ordered by plan.
func (r *MemoryRegistry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlanID < out[j].PlanID })
	return out
}
