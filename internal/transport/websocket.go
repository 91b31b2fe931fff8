package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/rs/zerolog/log"

	"github.com/graphgate-io/graphgate/internal/config"
)

// graphql-transport-ws protocol message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

const (
	wsSubprotocol     = "graphql-transport-ws"
	initTimeout       = 10 * time.Second
	wsHeartbeat       = 30 * time.Second
	resubscribeBase   = time.Second
	resubscribeCap    = 30 * time.Second
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSHandler serves GraphQL subscriptions over the graphql-transport-ws
// subprotocol.
type WSHandler struct {
	schemas *SchemaProvider
	cfg     *config.GraphQLConfig
}

// NewWSHandler creates the WebSocket handler.
func NewWSHandler(schemas *SchemaProvider, cfg *config.GraphQLConfig) *WSHandler {
	return &WSHandler{schemas: schemas, cfg: cfg}
}

// Upgrade performs the WebSocket upgrade for GET /graphql/ws.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("database_role", c.Get(DatabaseRoleHeader))
	return websocket.New(h.handleConnection, websocket.Config{
		Subprotocols: []string{wsSubprotocol},
	})(c)
}

// wsSession serializes writes to one connection and tracks its running
// operations.
type wsSession struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu   sync.Mutex
	ops  map[string]context.CancelFunc
	role string
}

func (s *wsSession) send(msg wsMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *wsSession) addOp(id string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ops[id]; exists {
		return false
	}
	s.ops[id] = cancel
	return true
}

func (s *wsSession) removeOp(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.ops[id]; ok {
		cancel()
		delete(s.ops, id)
	}
}

func (s *wsSession) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.ops {
		cancel()
		delete(s.ops, id)
	}
}

func (h *WSHandler) handleConnection(conn *websocket.Conn) {
	role, _ := conn.Locals("database_role").(string)
	session := &wsSession{
		conn: conn,
		ops:  make(map[string]context.CancelFunc),
		role: role,
	}
	defer session.cancelAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client must open with connection_init.
	_ = conn.SetReadDeadline(time.Now().Add(initTimeout))
	var init wsMessage
	if err := conn.ReadJSON(&init); err != nil || init.Type != msgConnectionInit {
		log.Debug().Err(err).Msg("WebSocket closed before connection_init")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	if err := session.send(wsMessage{Type: msgConnectionAck}); err != nil {
		return
	}

	// Server-side heartbeat keeps idle subscriptions alive through proxies.
	go func() {
		ticker := time.NewTicker(wsHeartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := session.send(wsMessage{Type: msgPing}); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch msg.Type {
		case msgPing:
			_ = session.send(wsMessage{Type: msgPong})
		case msgPong:
			// client answered our heartbeat
		case msgConnectionInit:
			// duplicate init is a protocol violation
			log.Debug().Msg("Duplicate connection_init, closing")
			return
		case msgSubscribe:
			h.startOperation(ctx, session, msg)
		case msgComplete:
			session.removeOp(msg.ID)
		}
	}
}

// startOperation runs one subscribe request: queries and mutations execute
// once, subscriptions stream until the client completes or the connection
// dies. A broken upstream stream is resubscribed with capped backoff.
func (h *WSHandler) startOperation(ctx context.Context, session *wsSession, msg wsMessage) {
	var req GraphQLRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Query == "" {
		h.sendError(session, msg.ID, "invalid subscribe payload")
		return
	}

	opCtx, cancel := context.WithCancel(ctx)
	if !session.addOp(msg.ID, cancel) {
		cancel()
		h.sendError(session, msg.ID, "subscriber already exists: "+msg.ID)
		return
	}

	go func() {
		defer session.removeOp(msg.ID)

		schema, err := h.schemas.SchemaFor(opCtx, session.role)
		if err != nil {
			h.sendError(session, msg.ID, "failed to initialize GraphQL schema")
			return
		}

		if operationType(req.Query, req.OperationName) != ast.OperationTypeSubscription {
			result := graphql.Do(graphql.Params{
				Schema:         *schema,
				RequestString:  req.Query,
				VariableValues: req.Variables,
				OperationName:  req.OperationName,
				Context:        opCtx,
			})
			h.sendResult(session, msg.ID, result)
			_ = session.send(wsMessage{ID: msg.ID, Type: msgComplete})
			return
		}

		backoff := resubscribeBase
		for {
			results := graphql.Subscribe(graphql.Params{
				Schema:         *schema,
				RequestString:  req.Query,
				VariableValues: req.Variables,
				OperationName:  req.OperationName,
				Context:        opCtx,
			})

			delivered := false
			failed := false
			for result := range results {
				if opCtx.Err() != nil {
					return
				}
				if result.Data == nil && len(result.Errors) > 0 {
					// Terminal: the subscription could not be established.
					h.sendErrors(session, msg.ID, convertErrors(result.Errors))
					failed = true
					break
				}
				delivered = true
				h.sendResult(session, msg.ID, result)
			}
			if failed || opCtx.Err() != nil {
				return
			}
			if delivered {
				backoff = resubscribeBase
			}

			// The upstream stream ended without the client completing;
			// resubscribe after a pause.
			log.Warn().Str("id", msg.ID).Dur("backoff", backoff).Msg("Subscription stream ended, resubscribing")
			select {
			case <-opCtx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > resubscribeCap {
				backoff = resubscribeCap
			}
		}
	}()
}

func (h *WSHandler) sendResult(session *wsSession, id string, result *graphql.Result) {
	payload, err := json.Marshal(GraphQLResponse{
		Data:   result.Data,
		Errors: convertErrors(result.Errors),
	})
	if err != nil {
		return
	}
	_ = session.send(wsMessage{ID: id, Type: msgNext, Payload: payload})
}

func (h *WSHandler) sendError(session *wsSession, id, message string) {
	h.sendErrors(session, id, []GraphQLError{{Message: message}})
}

func (h *WSHandler) sendErrors(session *wsSession, id string, errs []GraphQLError) {
	payload, err := json.Marshal(errs)
	if err != nil {
		return
	}
	_ = session.send(wsMessage{ID: id, Type: msgError, Payload: payload})
}

// operationType resolves the operation kind of the request, defaulting to
// query when the document cannot be parsed (execution will report the real
// error).
func operationType(query, operationName string) string {
	doc, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return ast.OperationTypeQuery
	}
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if operationName == "" || (op.Name != nil && op.Name.Value == operationName) {
			return op.Operation
		}
	}
	return ast.OperationTypeQuery
}
