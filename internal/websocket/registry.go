package websocket

import (
	"log"
	"sync"

	"handraise/internal/metrics"
)

// Registry tracks observer connections per class
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic
// maintains clean separation between connection tracking and connection operations
type Registry struct {
	mu            sync.RWMutex                      // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	connections   map[string]*Connection            // class/role/user -> Connection
	classTeachers map[string]map[string]*Connection // classCode -> userID -> Connection
	classStudents map[string]map[string]*Connection // classCode -> userID -> Connection
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections:   make(map[string]*Connection),
		classTeachers: make(map[string]map[string]*Connection),
		classStudents: make(map[string]map[string]*Connection),
	}
}

func connectionKey(classCode, role, userID string) string {
	return classCode + "/" + role + "/" + userID
}

// RegisterConnection adds a connection, replacing and closing any previous
// connection of the same observer in the same class
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	userID := conn.GetUserID()
	role := conn.GetRole()
	classCode := conn.GetClassCode()
	key := connectionKey(classCode, role, userID)

	r.mu.Lock()
	defer r.mu.Unlock()

	// FUNCTIONAL DISCOVERY: Close existing connection asynchronously to prevent deadlock
	if existing, exists := r.connections[key]; exists {
		go func() {
			if err := existing.Close(); err != nil {
				log.Printf("Failed to close replaced connection: %v", err)
			}
		}()
	} else {
		metrics.ObserverConnections.WithLabelValues(role).Inc()
	}

	r.connections[key] = conn

	byClass := r.roleMap(role)
	if byClass[classCode] == nil {
		byClass[classCode] = make(map[string]*Connection)
	}
	byClass[classCode][userID] = conn

	return nil
}

// UnregisterConnection removes conn if it is still the registered instance
// RACE CONDITION FIX: an old connection cleaning up must not remove its replacement
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	userID := conn.GetUserID()
	role := conn.GetRole()
	classCode := conn.GetClassCode()
	key := connectionKey(classCode, role, userID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[key]; !exists || registered != conn {
		return
	}
	delete(r.connections, key)
	metrics.ObserverConnections.WithLabelValues(role).Dec()

	// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
	byClass := r.roleMap(role)
	if users, exists := byClass[classCode]; exists {
		delete(users, userID)
		if len(users) == 0 {
			delete(byClass, classCode)
		}
	}
}

// roleMap must be called with r.mu held.
func (r *Registry) roleMap(role string) map[string]map[string]*Connection {
	if role == RoleTeacher {
		return r.classTeachers
	}
	return r.classStudents
}

// GetConnection returns the connection of one observer in a class
func (r *Registry) GetConnection(classCode, role, userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[connectionKey(classCode, role, userID)]
	return conn, exists
}

// GetClassConnections returns every observer of a class
func (r *Registry) GetClassConnections(classCode string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []*Connection
	for _, conn := range r.classTeachers[classCode] {
		connections = append(connections, conn)
	}
	for _, conn := range r.classStudents[classCode] {
		connections = append(connections, conn)
	}
	return connections
}

// GetClassTeachers returns teacher observers of a class
func (r *Registry) GetClassTeachers(classCode string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []*Connection
	for _, conn := range r.classTeachers[classCode] {
		connections = append(connections, conn)
	}
	return connections
}

// GetClassStudents returns student observers of a class
func (r *Registry) GetClassStudents(classCode string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []*Connection
	for _, conn := range r.classStudents[classCode] {
		connections = append(connections, conn)
	}
	return connections
}

// BroadcastToClass writes v to every observer of a class and returns how many
// writes were queued. Failed writes are logged.
func (r *Registry) BroadcastToClass(classCode string, v interface{}) int {
	sent := 0
	for _, conn := range r.GetClassConnections(classCode) {
		if err := conn.WriteJSON(v); err != nil {
			log.Printf("Broadcast to %s in class %s failed: %v", conn.GetUserID(), classCode, err)
			continue
		}
		sent++
	}
	return sent
}

// ClassClosed tells every observer of classCode that the class closed.
func (r *Registry) ClassClosed(classCode string) {
	n := r.BroadcastToClass(classCode, Frame{Type: FrameClassClosed, ClassCode: classCode})
	log.Printf("Class closed broadcast: class=%s observers=%d", classCode, n)
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	classes := make(map[string]bool)
	teachers, students := 0, 0
	for code, users := range r.classTeachers {
		classes[code] = true
		teachers += len(users)
	}
	for code, users := range r.classStudents {
		classes[code] = true
		students += len(users)
	}

	return map[string]int{
		"total_connections": len(r.connections),
		"teachers":          teachers,
		"students":          students,
		"active_classes":    len(classes),
	}
}

// CloseAll closes every registered connection. Each connection's handler
// unregisters it on the way out.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	return len(conns)
}
