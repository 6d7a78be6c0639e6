package voiceagent

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Connection owns the single persistent duplex websocket to the voice
// service: dial/teardown lifecycle, the outbound send gate, and the inbound
// frame queue. Inbound frames are never handled inside the raw receive
// callback; they are pushed onto a FIFO drained by a single-flight pump so
// slow per-frame handling cannot reorder or drop later frames.
type Connection struct {
	config  *Config
	encoder *Encoder
	emitter *Emitter
	router  *Router
	log     *Logger

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	state   ConnectionState
	queue   [][]byte
	pumping bool
	closing bool
}

func NewConnection(config *Config, encoder *Encoder, receiver *AudioReceiver, tracker *ConversationTracker, emitter *Emitter, log *Logger) *Connection {
	if config == nil {
		config = NewConfig()
	}
	if encoder == nil {
		encoder = NewEncoder(nil)
	}
	if emitter == nil {
		emitter = NewEmitter(log)
	}
	c := &Connection{
		config:  config,
		encoder: encoder,
		emitter: emitter,
		state:   ConnIdle,
		log:     orNop(log).WithComponent("connection"),
	}
	c.router = NewRouter(c, receiver, encoder, emitter, tracker, log)
	return c
}

// Connect dials the service and, on open, sends the session-init frame and
// emits ready. Calling Connect while already Open or Connecting is a no-op.
func (c *Connection) Connect() error {
	c.mu.Lock()
	if c.state == ConnOpen || c.state == ConnConnecting {
		c.mu.Unlock()
		c.log.Debug("connect ignored: already open or connecting")
		return nil
	}
	c.state = ConnConnecting
	c.closing = false
	c.mu.Unlock()

	header := make(http.Header)
	if c.config.UseTokenAuth {
		token, tokenErr := MintWSToken(c.config.APIKey, c.config.AgentID)
		if tokenErr != nil {
			c.setState(ConnErrored)
			c.emitter.PublishError(tokenErr)
			return tokenErr
		}
		header.Set("Authorization", "Bearer "+token.Token)
	}
	for k, v := range c.config.Headers {
		header.Set(k, v)
	}

	url := c.config.ConversationURL()
	if c.config.DebugWebsocket {
		c.log.WithField("url", url).Debug("dialing")
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		c.setState(ConnErrored)
		agentErr := WrapError(err, ErrCodeConnectionFailed).AddDetail("url", url)
		c.emitter.PublishError(agentErr)
		return agentErr
	}

	c.mu.Lock()
	c.conn = conn
	c.state = ConnOpen
	c.mu.Unlock()
	c.log.LogConnectionEvent("open", ConnOpen)

	if err := c.sendConversationStart(); err != nil {
		c.log.WithError(err).Error("failed to send session init")
		c.Disconnect()
		agentErr := WrapError(err, ErrCodeConnectionFailed)
		c.emitter.PublishError(agentErr)
		return agentErr
	}

	go c.readLoop(conn)
	c.emitter.Publish(EventReady, nil)
	return nil
}

func (c *Connection) sendConversationStart() error {
	data, err := c.encoder.EncodeConversationStart()
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (c *Connection) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			intentional := c.closing
			c.mu.Unlock()
			if intentional {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.LogConnectionEvent("remote_close", ConnClosed)
				c.teardown()
				return
			}
			c.emitter.PublishError(WrapError(err, ErrCodeConnectionFailed))
			c.Disconnect()
			return
		}

		if c.config.DebugWebsocket {
			c.log.WithField("bytes", len(data)).Debug("frame received")
		}
		c.enqueue(data)
	}
}

// enqueue appends a frame to the FIFO and starts the pump if it is not
// already running. Only one pump instance runs at a time.
func (c *Connection) enqueue(frame []byte) {
	c.mu.Lock()
	c.queue = append(c.queue, frame)
	start := !c.pumping
	if start {
		c.pumping = true
	}
	c.mu.Unlock()

	if start {
		go c.pump()
	}
}

func (c *Connection) pump() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.pumping = false
			c.mu.Unlock()
			return
		}
		frame := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		c.router.Dispatch(frame)
	}
}

// Send writes one frame to the socket. When the connection is not Open the
// frame is dropped with a log line and no error: audio is time-sensitive and
// a stale chunk is worse than a dropped one.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == ConnOpen
	c.mu.Unlock()

	if !open || conn == nil {
		c.log.WithField("bytes", len(data)).Debug("dropping send: connection not open")
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.WithError(err).Warn("send failed")
		return WrapError(err, ErrCodeSendFailed)
	}
	return nil
}

// Disconnect closes the socket if present and clears connection-scoped
// state. It is idempotent.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.state == ConnClosed || c.state == ConnIdle {
		c.mu.Unlock()
		return
	}
	c.closing = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.teardown()
}

// teardown clears local references and emits close exactly once.
func (c *Connection) teardown() {
	c.mu.Lock()
	if c.state == ConnClosed {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.queue = nil
	c.state = ConnClosed
	c.mu.Unlock()

	c.log.LogConnectionEvent("close", ConnClosed)
	c.emitter.Publish(EventClose, nil)
}

func (c *Connection) setState(state ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) IsConnected() bool {
	return c.State() == ConnOpen
}

// ConversationID returns the id assigned by the service, empty before the
// metadata frame arrives.
func (c *Connection) ConversationID() string {
	return c.router.ConversationID()
}
