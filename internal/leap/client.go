package leap

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts for LEAP communication.
const (
	// DefaultPort is the TLS port LEAP bridges listen on.
	DefaultPort = 8081

	// defaultConnectTimeout bounds dialling plus the TLS handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultRequestTimeout bounds a single request/response exchange.
	defaultRequestTimeout = 10 * time.Second

	// defaultWriteTimeout bounds writing one message to the socket.
	defaultWriteTimeout = 5 * time.Second

	// maxMessageSize is the longest line accepted from the bridge.
	maxMessageSize = 1 << 20

	// pingURL is read periodically to detect a dead link.
	pingURL = "/server/1/status/ping"
)

// Config holds LEAP connection configuration.
type Config struct {
	// Address is the bridge host name or IP.
	Address string

	// Port is the LEAP TLS port. Default: 8081.
	Port int

	// KeyFile, CertFile and CAFile are the credentials written by pairing.
	KeyFile  string
	CertFile string
	CAFile   string

	// ConnectTimeout bounds dialling. Default: 10 seconds.
	ConnectTimeout time.Duration

	// RequestTimeout bounds requests whose context has no deadline.
	// Default: 10 seconds.
	RequestTimeout time.Duration

	// PingInterval enables a liveness ping when positive.
	PingInterval time.Duration

	// Dial overrides the TLS dialler. Tests use it to supply an in-memory
	// connection.
	Dial func(ctx context.Context) (net.Conn, error)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Client is a single LEAP connection to one bridge.
//
// A Client connects once. When the link is lost it does not reconnect;
// the OnDisconnect callback fires and the owner decides what happens next.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Subscriber callbacks run on the reader goroutine and must not block.
type Client struct {
	cfg  Config
	conn net.Conn

	connMu    sync.RWMutex
	connected bool

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Message

	// done is closed by Close; lost is closed when the link goes away
	// for any reason.
	done *closeOnce
	lost *closeOnce
	wg   sync.WaitGroup

	dataMu         sync.RWMutex
	devices        map[string]*Device
	zoneToDevice   map[string]string
	groupToDevice  map[string]string
	areas          map[string]Area
	occupancy      map[string]*OccupancyGroup
	buttonToDevice map[string]string

	subMu      sync.Mutex
	nextSubID  uint64
	deviceSubs map[string]map[uint64]func()
	buttonSubs map[string]map[uint64]func(ButtonEventType)
	occSubs    map[string]map[uint64]func(OccupancyStatus)

	onDisconnect func(error)

	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	readErrors       atomic.Uint64
	unsolicited      atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewClient validates cfg and returns an unconnected client.
//
// Returns:
//   - *Client: Ready for Connect
//   - error: ErrInvalidConfig when no address or dialler is configured
func NewClient(cfg Config) (*Client, error) {
	if cfg.Address == "" && cfg.Dial == nil {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	return &Client{
		cfg:            cfg,
		pending:        make(map[string]chan Message),
		done:           newCloseOnce(),
		lost:           newCloseOnce(),
		devices:        make(map[string]*Device),
		zoneToDevice:   make(map[string]string),
		groupToDevice:  make(map[string]string),
		areas:          make(map[string]Area),
		occupancy:      make(map[string]*OccupancyGroup),
		buttonToDevice: make(map[string]string),
		deviceSubs:     make(map[string]map[uint64]func()),
		buttonSubs:     make(map[string]map[uint64]func(ButtonEventType)),
		occSubs:        make(map[string]map[uint64]func(OccupancyStatus)),
	}, nil
}

// Connect dials the bridge and starts the reader.
//
// Parameters:
//   - ctx: Bounds the dial and TLS handshake
//
// Returns:
//   - error: ErrConnectionFailed wrapping the cause, or ErrNotConnected if
//     the client was already closed
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	if c.IsConnected() {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	dial := c.cfg.Dial
	if dial == nil {
		dial = c.dialTLS
	}
	conn, err := dial(dialCtx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connected = true
	c.connMu.Unlock()

	c.wg.Add(1)
	go c.readLoop(conn)

	if c.cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop()
	}

	c.logInfo("leap connected", "address", c.cfg.Address, "port", c.cfg.Port)
	return nil
}

func (c *Client) dialTLS(ctx context.Context) (net.Conn, error) {
	tlsCfg, err := LoadTLSConfig(c.cfg.KeyFile, c.cfg.CertFile, c.cfg.CAFile)
	if err != nil {
		return nil, err
	}
	d := tlsDialer(tlsCfg)
	return d.DialContext(ctx, "tcp", net.JoinHostPort(c.cfg.Address, strconv.Itoa(c.cfg.Port)))
}

// readLoop reads CRLF-delimited messages until the connection fails.
func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || (len(line) == 1 && line[0] == '\r') {
			continue
		}
		msg, err := DecodeMessage(line)
		if err != nil {
			c.readErrors.Add(1)
			c.logWarn("discarding malformed leap message", "error", err)
			continue
		}
		c.messagesReceived.Add(1)
		c.handleMessage(msg)
	}

	err := scanner.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		err = ErrMessageTooLarge
	}
	c.handleDisconnect(err)
}

// handleMessage applies any status the message carries, then hands it to
// the request waiting on its ClientTag.
func (c *Client) handleMessage(msg Message) {
	if len(msg.Body) > 0 && msg.OK() {
		c.applyStatus(msg)
	}

	tag := msg.Header.ClientTag
	if tag == "" {
		c.unsolicited.Add(1)
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[tag]
	if ok {
		delete(c.pending, tag)
	}
	c.pendingMu.Unlock()

	if !ok {
		// Subscription pushes reuse the tag of the original SubscribeRequest.
		c.unsolicited.Add(1)
		return
	}
	ch <- msg
}

func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	c.lost.Close()

	if c.isClosed() || !wasConnected {
		return
	}

	if err == nil {
		err = ErrNotConnected
	}
	c.readErrors.Add(1)
	c.logError("leap connection lost", err)

	c.connMu.RLock()
	cb := c.onDisconnect
	c.connMu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.lost.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
			err := c.Ping(ctx)
			cancel()
			if err != nil {
				c.logWarn("leap ping failed, dropping connection", "error", err)
				c.closeConn()
				return
			}
		}
	}
}

// Ping reads the server ping resource.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, ReadRequest, pingURL, nil)
	return err
}

// request sends one communique and waits for the response with the same
// ClientTag.
func (c *Client) request(ctx context.Context, communiqueType, url string, body any) (Message, error) {
	if !c.IsConnected() {
		return Message{}, ErrNotConnected
	}

	msg := Message{
		CommuniqueType: communiqueType,
		Header:         Header{URL: url, ClientTag: uuid.NewString()},
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return Message{}, fmt.Errorf("encoding body for %s: %w", url, err)
		}
		msg.Body = raw
	}
	data, err := msg.Encode()
	if err != nil {
		return Message{}, err
	}

	ch := make(chan Message, 1)
	c.pendingMu.Lock()
	c.pending[msg.Header.ClientTag] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msg.Header.ClientTag)
		c.pendingMu.Unlock()
	}()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	if err := c.write(data); err != nil {
		return Message{}, err
	}

	select {
	case resp := <-ch:
		return resp, resp.Err()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Message{}, fmt.Errorf("%w: %s", ErrTimeout, url)
		}
		return Message{}, ctx.Err()
	case <-c.lost.Done():
		return Message{}, ErrNotConnected
	}
}

func (c *Client) write(data []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	c.messagesSent.Add(1)
	return nil
}

func (c *Client) closeConn() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Client) Close() error {
	if c.isClosed() {
		return nil
	}
	c.done.Close()

	c.connMu.Lock()
	conn := c.conn
	c.connected = false
	c.connMu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.lost.Close()
	c.wg.Wait()

	c.logInfo("leap connection closed", "address", c.cfg.Address)
	return err
}

// IsConnected reports whether the link is up.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// SetOnDisconnect registers a callback fired once when the link is lost
// other than by Close.
func (c *Client) SetOnDisconnect(fn func(error)) {
	c.connMu.Lock()
	c.onDisconnect = fn
	c.connMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Stats returns link counters.
func (c *Client) Stats() Stats {
	c.pendingMu.Lock()
	pending := len(c.pending)
	c.pendingMu.Unlock()

	return Stats{
		Connected:        c.IsConnected(),
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		ReadErrors:       c.readErrors.Load(),
		Unsolicited:      c.unsolicited.Load(),
		PendingRequests:  pending,
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, "error", err, "address", c.cfg.Address)
	}
}
