package trigger

// EventTable resolves a transport-level event type (and optional action
// qualifier) to logical event names using lookup tables rather than
// conditional chains.
//
// Direct maps a transport type straight to a logical name. Composite marks
// transport types whose logical name is the type joined with the delivery's
// action as type_action; any action value resolves, so new provider actions
// pass through without code changes. A transport type in neither table
// resolves to nothing, which a dispatcher surfaces as a zero-event
// acknowledgment.
type EventTable struct {
	Direct    map[string]string
	Composite map[string]bool
}

// Resolve returns the logical event names for a transport type and action.
func (t EventTable) Resolve(eventType, action string) []string {
	if t.Composite[eventType] {
		if action == "" {
			return nil
		}
		return []string{eventType + "_" + action}
	}
	if name, ok := t.Direct[eventType]; ok {
		return []string{name}
	}
	return nil
}
