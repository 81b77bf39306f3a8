package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"handraise/internal/feed"
	"handraise/internal/hub"
	"handraise/internal/metrics"
	"handraise/internal/notifier"
	"handraise/internal/questions"
	"handraise/internal/roster"
	"handraise/internal/session"
	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// WebSocket upgrader with production-ready settings
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FUNCTIONAL DISCOVERY: Classroom clients are served from other origins
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

const (
	defaultPingInterval = 30 * time.Second
	defaultPongWait     = 60 * time.Second
)

// Handler upgrades observer connections and keeps them mirrored to the class
// ARCHITECTURAL DISCOVERY: Multi-stage validation (parameters -> class -> roster
// membership -> upgrade -> registration) keeps invalid observers from holding
// store subscriptions
type Handler struct {
	registry  *Registry
	sessions  *session.Manager
	ledger    *roster.Ledger
	questions *questions.Queue

	hub          *hub.Hub
	redis        *redis.Client
	policy       *notifier.Policy
	logDelivery  bool
	pingInterval time.Duration
	pongWait     time.Duration
}

// HandlerOption configures optional collaborators of a Handler.
type HandlerOption func(*Handler)

// WithHub routes teacher notifications through the dispatch hub.
func WithHub(h *hub.Hub) HandlerOption {
	return func(handler *Handler) { handler.hub = h }
}

// WithRedis suppresses a repeated notification tag for the same teacher
// within the tag's dismiss window.
func WithRedis(client *redis.Client) HandlerOption {
	return func(handler *Handler) { handler.redis = client }
}

// WithPolicy applies a suppression rule to every teacher's notifications.
func WithPolicy(policy *notifier.Policy) HandlerOption {
	return func(handler *Handler) { handler.policy = policy }
}

// WithDeliveryLog copies every teacher notification to the process log.
func WithDeliveryLog() HandlerOption {
	return func(handler *Handler) { handler.logDelivery = true }
}

// WithHeartbeat sets the ping interval and how long to wait for a pong.
func WithHeartbeat(pingInterval, pongWait time.Duration) HandlerOption {
	return func(handler *Handler) {
		if pingInterval > 0 {
			handler.pingInterval = pingInterval
		}
		if pongWait > 0 {
			handler.pongWait = pongWait
		}
	}
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, sessions *session.Manager, ledger *roster.Ledger, queue *questions.Queue, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry:     registry,
		sessions:     sessions,
		ledger:       ledger,
		questions:    queue,
		pingInterval: defaultPingInterval,
		pongWait:     defaultPongWait,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleWebSocket serves GET /ws?class_code=&role=&user_id=
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	classCode := r.URL.Query().Get("class_code")
	role := r.URL.Query().Get("role")
	userID := r.URL.Query().Get("user_id")

	if classCode == "" || role == "" || userID == "" {
		http.Error(w, "Missing required query parameters: class_code, role, user_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidClassCode(classCode) {
		http.Error(w, "Invalid class_code format", http.StatusBadRequest)
		return
	}
	if role != RoleTeacher && role != RoleStudent {
		http.Error(w, "Invalid role: must be 'teacher' or 'student'", http.StatusBadRequest)
		return
	}
	if err := types.ValidateStudentID(userID); err != nil {
		http.Error(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}

	if status, msg := h.admit(r, classCode, role, userID); status != 0 {
		http.Error(w, msg, status)
		return
	}

	// FUNCTIONAL DISCOVERY: WebSocket upgrade after validation prevents resource waste
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(ws)
	if err := conn.SetCredentials(userID, role, classCode); err != nil {
		log.Printf("Failed to set credentials: %v", err)
		_ = conn.Close()
		return
	}
	if err := h.registry.RegisterConnection(conn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = conn.Close()
		return
	}

	log.Printf("Observer connected: class=%s role=%s user=%s", classCode, role, userID)
	go h.handleConnection(conn)
}

// admit checks the class and, for students, roster membership. A zero status
// admits the observer.
func (h *Handler) admit(r *http.Request, classCode, role, userID string) (int, string) {
	ctx := r.Context()

	class, err := h.sessions.Get(ctx, classCode)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return http.StatusNotFound, "Class not found"
		}
		log.Printf("Class lookup failed for %s: %v", classCode, err)
		return http.StatusServiceUnavailable, "Class lookup failed"
	}
	if role == RoleTeacher {
		return 0, ""
	}

	if !class.IsOpen() {
		return http.StatusConflict, "Class is closed"
	}
	student, err := h.ledger.Get(ctx, classCode, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return http.StatusForbidden, "Not a member of this class"
		}
		log.Printf("Roster lookup failed for %s/%s: %v", classCode, userID, err)
		return http.StatusServiceUnavailable, "Roster lookup failed"
	}
	if !student.IsActive() {
		return http.StatusForbidden, "Removed from this class"
	}
	return 0, ""
}

// handleConnection runs the observer until the socket closes
// ARCHITECTURAL DISCOVERY: The mirror and the teacher's change notifier hold
// separate subscriptions so neither can starve the other of snapshots
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures resources are released
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		log.Printf("Observer disconnected: class=%s role=%s user=%s",
			conn.GetClassCode(), conn.GetRole(), conn.GetUserID())
	}()

	ctx := conn.Context()
	classCode := conn.GetClassCode()

	rosterFeed, questionFeed, err := h.subscribe(conn)
	if err != nil {
		log.Printf("Observer subscription failed for class %s: %v", classCode, err)
		_ = conn.WriteJSON(Frame{Type: FrameError, ClassCode: classCode, Message: "subscription failed"})
		return
	}
	go h.mirror(conn, rosterFeed, questionFeed)

	var changes *notifier.ChangeNotifier
	if conn.GetRole() == RoleTeacher {
		changes = notifier.NewChangeNotifier(classCode, h.notificationSink(conn), notifier.WithPolicy(h.policy))
		defer changes.Close()

		watchRoster, watchQuestions, err := h.subscribe(conn)
		if err != nil {
			log.Printf("Notifier subscription failed for class %s: %v", classCode, err)
		} else {
			go func() {
				if err := changes.Watch(ctx, watchRoster, watchQuestions); err != nil {
					log.Printf("Change notifier stopped: %v", err)
				}
			}()
		}
	}

	h.readPump(conn, changes)
}

func (h *Handler) subscribe(conn *Connection) (*feed.Feed[*types.Student], *feed.Feed[*types.Question], error) {
	ctx := conn.Context()
	code := conn.GetClassCode()

	rosterFeed, err := h.ledger.Subscribe(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	questionFeed, err := h.questions.Subscribe(ctx, code)
	if err != nil {
		_ = rosterFeed.Close()
		return nil, nil, err
	}
	return rosterFeed, questionFeed, nil
}

// mirror forwards snapshots to the observer. Students see only their own
// questions and are disconnected once they leave the active roster.
func (h *Handler) mirror(conn *Connection, rosterFeed *feed.Feed[*types.Student], questionFeed *feed.Feed[*types.Question]) {
	defer rosterFeed.Close()
	defer questionFeed.Close()

	classCode := conn.GetClassCode()
	isStudent := conn.GetRole() == RoleStudent
	userID := conn.GetUserID()

	rosterUpdates := rosterFeed.Updates()
	questionUpdates := questionFeed.Updates()
	for {
		select {
		case <-conn.Done():
			return

		case students, ok := <-rosterUpdates:
			if !ok {
				h.feedEnded(conn, rosterFeed.Err())
				return
			}
			if isStudent && !stillActive(students, userID) {
				_ = conn.WriteJSON(Frame{Type: FrameRemoved, ClassCode: classCode})
				time.AfterFunc(time.Second, func() { _ = conn.Close() })
				return
			}
			if err := conn.WriteJSON(RosterFrame{Type: FrameRoster, ClassCode: classCode, Students: roster.ActiveOnly(students)}); err != nil {
				return
			}

		case qs, ok := <-questionUpdates:
			if !ok {
				h.feedEnded(conn, questionFeed.Err())
				return
			}
			if isStudent {
				qs = questions.ForStudent(qs, userID)
			}
			if err := conn.WriteJSON(QuestionsFrame{Type: FrameQuestions, ClassCode: classCode, Questions: qs}); err != nil {
				return
			}
		}
	}
}

// feedEnded closes the observer after a subscription error; reconnecting is
// the client's job.
func (h *Handler) feedEnded(conn *Connection, err error) {
	if err == nil {
		return
	}
	log.Printf("Feed ended for class %s: %v", conn.GetClassCode(), err)
	_ = conn.WriteJSON(Frame{Type: FrameError, ClassCode: conn.GetClassCode(), Message: "live updates interrupted"})
	_ = conn.Close()
}

func stillActive(students []*types.Student, id string) bool {
	for _, s := range students {
		if s.ID == id {
			return s.IsActive()
		}
	}
	return false
}

// notificationSink builds the delivery chain for one teacher:
// hub -> redis dedup -> socket (+ log)
func (h *Handler) notificationSink(conn *Connection) interfaces.Notifier {
	var target interfaces.Notifier = connectionNotifier{conn: conn}
	if h.logDelivery {
		target = notifier.Fanout{target, notifier.LogNotifier{}}
	}
	if h.redis != nil {
		target = notifier.NewDedupNotifier(h.redis, notifier.ObserverScope(conn.GetClassCode(), conn.GetUserID()), target)
	}
	if h.hub != nil {
		return h.hub.Sink(target)
	}
	return target
}

type connectionNotifier struct {
	conn *Connection
}

func (c connectionNotifier) Notify(intent types.Intent) {
	kind := string(intent.Kind)
	if err := c.conn.WriteJSON(NotificationFrame{Type: FrameNotification, Notification: intent}); err != nil {
		metrics.NotificationsTotal.WithLabelValues(kind, metrics.OutcomeFailed).Inc()
		log.Printf("Failed to deliver notification %s: %v", intent.Tag, err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(kind, metrics.OutcomeDelivered).Inc()
}

// readPump reads client frames with heartbeat monitoring
// TECHNICAL DISCOVERY: read deadline twice the ping interval detects dead peers
func (h *Handler) readPump(conn *Connection, changes *notifier.ChangeNotifier) {
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.pongWait)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = conn.WriteJSON(Frame{Type: FrameError, Message: "invalid frame"})
			continue
		}
		switch {
		case frame.Type == FrameNotifications && changes != nil && frame.Enabled != nil:
			changes.SetEnabled(*frame.Enabled)
			log.Printf("Notifications toggled: class=%s user=%s enabled=%v",
				conn.GetClassCode(), conn.GetUserID(), *frame.Enabled)
		default:
			log.Printf("Ignoring frame %q from %s", frame.Type, conn.GetUserID())
		}
	}
}
