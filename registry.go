package parley

// RegisteredTool pairs a tool with the connector that provides it.
type RegisteredTool struct {
	Tool
	Origin string
	Runner Runner
}

// Collision records a rejected registration: Name was already claimed by the
// Kept connector when Origin tried to register it again.
type Collision struct {
	Name   string
	Origin string
	Kept   string
}

// Registry maps tool names to their providing connectors. Registration is
// first-writer-wins and iteration order is registration order.
type Registry struct {
	tools map[string]RegisteredTool
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]RegisteredTool)}
}

// Register adds a tool. If the name is already taken the registration is
// skipped and the returned Collision identifies the connector keeping it.
func (r *Registry) Register(t RegisteredTool) *Collision {
	if kept, ok := r.tools[t.Name]; ok {
		return &Collision{Name: t.Name, Origin: t.Origin, Kept: kept.Origin}
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Resolve looks up a tool by name.
func (r *Registry) Resolve(name string) (RegisteredTool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the registered tools in registration order.
func (r *Registry) Specs() []Tool {
	specs := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Tool)
	}
	return specs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len reports the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }
