package hub

// subscriptionIndex is the two-level session -> method -> set<clientID> map
// plus its reverse clientID -> session -> set<method> required by §4.1 for
// O(1) cleanup on disconnect. It generalizes the teacher's
// streaming.Hub.taskClients (one level, keyed by task id) to the spec's two
// levels keyed by (session, method).
//
// Invariant (§8 property 5, subscription-index cleanliness): whenever an
// inner set empties, its parent entry is removed — no empty containers
// persist in either direction. Callers MUST hold Hub.mu for every method
// below; the index itself does no locking.
type subscriptionIndex struct {
	bySession map[string]map[string]map[string]struct{} // session -> method -> clientID set
	byClient  map[string]map[string]map[string]struct{} // clientID -> session -> method set
}

func newSubscriptionIndex() *subscriptionIndex {
	return &subscriptionIndex{
		bySession: make(map[string]map[string]map[string]struct{}),
		byClient:  make(map[string]map[string]map[string]struct{}),
	}
}

// subscribe registers clientID for (session, method). Idempotent: a
// duplicate subscription has no observable effect beyond the first (§8
// round-trip property).
func (idx *subscriptionIndex) subscribe(clientID, session, method string) {
	methods, ok := idx.bySession[session]
	if !ok {
		methods = make(map[string]map[string]struct{})
		idx.bySession[session] = methods
	}
	clients, ok := methods[method]
	if !ok {
		clients = make(map[string]struct{})
		methods[method] = clients
	}
	clients[clientID] = struct{}{}

	sessions, ok := idx.byClient[clientID]
	if !ok {
		sessions = make(map[string]map[string]struct{})
		idx.byClient[clientID] = sessions
	}
	ms, ok := sessions[session]
	if !ok {
		ms = make(map[string]struct{})
		sessions[session] = ms
	}
	ms[method] = struct{}{}
}

// unsubscribe removes clientID from (session, method), pruning any inner
// container that becomes empty in both directions.
func (idx *subscriptionIndex) unsubscribe(clientID, session, method string) {
	if methods, ok := idx.bySession[session]; ok {
		if clients, ok := methods[method]; ok {
			delete(clients, clientID)
			if len(clients) == 0 {
				delete(methods, method)
			}
		}
		if len(methods) == 0 {
			delete(idx.bySession, session)
		}
	}

	if sessions, ok := idx.byClient[clientID]; ok {
		if ms, ok := sessions[session]; ok {
			delete(ms, method)
			if len(ms) == 0 {
				delete(sessions, session)
			}
		}
		if len(sessions) == 0 {
			delete(idx.byClient, clientID)
		}
	}
}

// unsubscribeAll removes every subscription owned by clientID, used on
// disconnect (§4.1 "O(1) cleanup").
func (idx *subscriptionIndex) unsubscribeAll(clientID string) {
	sessions, ok := idx.byClient[clientID]
	if !ok {
		return
	}
	for session, methods := range sessions {
		for method := range methods {
			if clients, ok := idx.bySession[session]; ok {
				if cs, ok := clients[method]; ok {
					delete(cs, clientID)
					if len(cs) == 0 {
						delete(clients, method)
					}
				}
				if len(clients) == 0 {
					delete(idx.bySession, session)
				}
			}
		}
	}
	delete(idx.byClient, clientID)
}

// subscribers returns the client ids subscribed to (session, method), or
// nil if none.
func (idx *subscriptionIndex) subscribers(session, method string) []string {
	methods, ok := idx.bySession[session]
	if !ok {
		return nil
	}
	clients, ok := methods[method]
	if !ok || len(clients) == 0 {
		return nil
	}
	out := make([]string, 0, len(clients))
	for c := range clients {
		out = append(out, c)
	}
	return out
}
