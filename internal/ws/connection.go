package ws

import (
	"chatrelay/internal/models"
	"context"
	"errors"
	"sync"
)

const defaultBufferSize = 64

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type messageHub interface {
	Register(c *Connection)
	Unregister(c *Connection)
	Dispatch(c *Connection, event models.ClientEvent)
}

// Connection is one live websocket of an authenticated user.
type Connection struct {
	ws         wsConnection
	hub        messageHub
	userID     string
	fromClient chan models.ClientEvent
	fromServer chan models.ServerEvent
	errorCh    chan error
	closeOnce  sync.Once
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	userID string,
	bufferSize int,
) *Connection {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	c := &Connection{
		ws:         ws,
		hub:        hub,
		userID:     userID,
		fromClient: make(chan models.ClientEvent),
		fromServer: make(chan models.ServerEvent, bufferSize),
		errorCh:    make(chan error, 2),
	}
	hub.Register(c)
	return c
}

func (c *Connection) UserID() string {
	return c.userID
}

// deliver queues an event without blocking. It reports false when the buffer is full.
func (c *Connection) deliver(event models.ServerEvent) bool {
	select {
	case c.fromServer <- event:
		return true
	default:
		return false
	}
}

// Close closes the underlying socket, which ends Handle.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Unregister(c)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	_ = c.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var event models.ClientEvent
		if err := c.ws.ReadJSON(&event); err != nil {
			return err
		}
		select {
		case c.fromClient <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case event := <-c.fromClient:
			c.hub.Dispatch(c, event)
		case event := <-c.fromServer:
			if err := c.ws.WriteJSON(event); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
