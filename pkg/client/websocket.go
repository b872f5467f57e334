package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StatusSnapshot mirrors internal/api/websocket.StatusSnapshot, the
// delta payload broadcast on /ws/status.
type StatusSnapshot struct {
	Pending      []string `json:"pending"`
	Running      []string `json:"running"`
	HistoryCount int      `json:"history_count"`
	BusyGPUs     []int    `json:"busy_gpus"`
}

// LogFrame mirrors internal/logtail.Frame, one unit of the
// backlog-then-stream-then-end log protocol.
type LogFrame struct {
	Type   string `json:"type"`
	Data   string `json:"data,omitempty"`
	Status string `json:"status,omitempty"`
}

// StatusConn is one open /ws/status connection.
type StatusConn struct {
	conn      *websocket.Conn
	snapshots chan StatusSnapshot
	closeOnce sync.Once
	done      chan struct{}
}

// ConnectStatus dials /ws/status and begins decoding snapshot frames
// in the background.
func (c *Client) ConnectStatus(ctx context.Context) (*StatusConn, error) {
	conn, err := c.dialWS(ctx, "/ws/status")
	if err != nil {
		return nil, err
	}
	sc := &StatusConn{conn: conn, snapshots: make(chan StatusSnapshot, 32), done: make(chan struct{})}
	go sc.readLoop()
	return sc, nil
}

func (sc *StatusConn) readLoop() {
	defer close(sc.snapshots)
	for {
		var snap StatusSnapshot
		if err := sc.conn.ReadJSON(&snap); err != nil {
			return
		}
		select {
		case sc.snapshots <- snap:
		case <-sc.done:
			return
		}
	}
}

// Snapshots returns the channel of incoming status deltas; it closes
// once the connection ends.
func (sc *StatusConn) Snapshots() <-chan StatusSnapshot { return sc.snapshots }

// Close terminates the connection.
func (sc *StatusConn) Close() error {
	var err error
	sc.closeOnce.Do(func() {
		close(sc.done)
		err = sc.conn.Close()
	})
	return err
}

// LogConn is one open /ws/logs/{tid} connection.
type LogConn struct {
	conn      *websocket.Conn
	frames    chan LogFrame
	closeOnce sync.Once
	done      chan struct{}
}

// ConnectLogs dials /ws/logs/{tid} and begins decoding frames.
func (c *Client) ConnectLogs(ctx context.Context, taskID string) (*LogConn, error) {
	conn, err := c.dialWS(ctx, "/ws/logs/"+url.PathEscape(taskID))
	if err != nil {
		return nil, err
	}
	lc := &LogConn{conn: conn, frames: make(chan LogFrame, 64), done: make(chan struct{})}
	go lc.readLoop()
	return lc, nil
}

func (lc *LogConn) readLoop() {
	defer close(lc.frames)
	for {
		var frame LogFrame
		if err := lc.conn.ReadJSON(&frame); err != nil {
			return
		}
		select {
		case lc.frames <- frame:
		case <-lc.done:
			return
		}
		if frame.Type == "end" || frame.Type == "error" {
			return
		}
	}
}

// Frames returns the channel of incoming log frames; it closes once
// the tail ends, errors, or the connection drops.
func (lc *LogConn) Frames() <-chan LogFrame { return lc.frames }

// Close terminates the connection.
func (lc *LogConn) Close() error {
	var err error
	lc.closeOnce.Do(func() {
		close(lc.done)
		err = lc.conn.Close()
	})
	return err
}

func (c *Client) dialWS(ctx context.Context, path string) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	header := make(map[string][]string)
	for k, v := range c.headers {
		header[k] = []string{v}
	}
	if c.cookie != "" {
		header["Cookie"] = []string{"session_token=" + c.cookie}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", path, err)
	}
	return conn, nil
}
