package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout    = time.Second
	wsShutdownTimeout = 3 * time.Second
)

type websocketSubscriber struct {
	address string
	conn    *websocket.Conn
	pump    *pump
	logger  *zap.Logger
}

func newWebsocketSubscriber(logger *zap.Logger) *websocketSubscriber {
	return &websocketSubscriber{logger: logger.Named("websocket")}
}

func (r *websocketSubscriber) Connect(ctx context.Context, address string) error {
	if r.conn != nil {
		return fmt.Errorf("connect %s: already connected to %s", address, r.address)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, address, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}

	r.conn = conn
	r.address = address

	return nil
}

// Subscribe sends the topic as a text message; the publisher filters on it.
func (r *websocketSubscriber) Subscribe(topic []byte) error {
	if r.conn == nil {
		return ErrNotConnected
	}

	_ = r.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := r.conn.WriteMessage(websocket.TextMessage, topic); err != nil {
		return fmt.Errorf("subscribe %q: %w", topic, err)
	}

	if r.pump == nil {
		conn := r.conn
		r.pump = startPump(func() ([]byte, error) {
			for {
				mt, data, err := conn.ReadMessage()
				if err != nil {
					return nil, err
				}
				if mt == websocket.BinaryMessage {
					return data, nil
				}
			}
		}, nil)
	}

	return nil
}

func (r *websocketSubscriber) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if r.pump == nil {
		return nil, newError(KindFatal, "websocket receive", ErrNotSubscribed)
	}

	return r.pump.receive(ctx, "websocket receive", timeout)
}

func (r *websocketSubscriber) Disconnect() error {
	if r.conn == nil {
		return ErrNotConnected
	}

	if r.pump != nil {
		r.pump.stop()
	}

	_ = r.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout),
	)
	err := r.conn.Close()

	if r.pump != nil {
		r.pump.wait()
	}
	r.conn, r.pump, r.address = nil, nil, ""

	if err != nil {
		return fmt.Errorf("close websocket: %w", err)
	}

	return nil
}

type wsClient struct {
	conn *websocket.Conn

	mu     sync.Mutex
	prefix []byte
}

func (c *wsClient) wants(body []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.prefix != nil && bytes.HasPrefix(body, c.prefix)
}

// websocketPublisher serves subscribers on the address path and fans every
// published body out to the clients whose subscription prefix matches.
type websocketPublisher struct {
	server   *http.Server
	addr     net.Addr
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	wg     sync.WaitGroup
	logger *zap.Logger
}

func newWebsocketPublisher(logger *zap.Logger) *websocketPublisher {
	return &websocketPublisher{
		clients: make(map[*wsClient]struct{}),
		logger:  logger.Named("websocket"),
	}
}

func (r *websocketPublisher) Bind(_ context.Context, address string) error {
	host, path, err := listenAddr(address)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", host)
	if err != nil {
		return fmt.Errorf("listen %s: %w", host, err)
	}

	eng := gin.New()
	eng.GET(path, r.subscribe)

	r.server = &http.Server{Handler: eng}
	r.addr = ln.Addr()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("serve failed", zap.Error(err))
		}
	}()

	r.logger.Info("publisher bound", zap.String("address", ln.Addr().String()), zap.String("path", path))

	return nil
}

func (r *websocketPublisher) subscribe(ctx *gin.Context) {
	conn, err := r.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		r.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn}

	r.mu.Lock()
	r.clients[client] = struct{}{}
	r.mu.Unlock()

	r.logger.Info("subscriber joined", zap.String("remote", conn.RemoteAddr().String()))

	// text messages replace the client's subscription prefix
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if mt == websocket.TextMessage {
			client.mu.Lock()
			client.prefix = append([]byte(nil), data...)
			client.mu.Unlock()
		}
	}

	r.drop(client)
}

func (r *websocketPublisher) drop(client *wsClient) {
	r.mu.Lock()
	_, ok := r.clients[client]
	delete(r.clients, client)
	r.mu.Unlock()

	if ok {
		_ = client.conn.Close()
		r.logger.Info("subscriber left", zap.String("remote", client.conn.RemoteAddr().String()))
	}
}

func (r *websocketPublisher) Publish(_ context.Context, topic, payload []byte) error {
	if r.server == nil {
		return ErrPublisherClosed
	}

	body := Join(topic, payload)

	r.mu.Lock()
	clients := make([]*wsClient, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		if !c.wants(body) {
			continue
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, body); err != nil {
			r.logger.Warn("write failed, dropping subscriber", zap.Error(err))
			r.drop(c)
		}
	}

	return nil
}

func (r *websocketPublisher) Close() error {
	if r.server == nil {
		return nil
	}

	r.mu.Lock()
	for c := range r.clients {
		_ = c.conn.Close()
	}
	r.clients = make(map[*wsClient]struct{})
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), wsShutdownTimeout)
	defer cancel()

	err := r.server.Shutdown(ctx)
	r.wg.Wait()
	r.server = nil

	return err
}
