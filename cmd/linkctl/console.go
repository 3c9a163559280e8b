package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rickgao/geolink/internal/connection"
)

// link is the part of connection.Manager the console drives.
type link interface {
	Connect(ctx context.Context) error
	Disconnect()
	Reconnect(ctx context.Context) error
	Send(msgType string, payload any) bool
	SendLocation(lat, lon float64) bool
	NotifyPhotoCapture(photoID any, metadata map[string]any) bool
	HandleNetworkChange(online bool)
	HandleAppStateChange(state connection.AppState)
	Stats() connection.Stats
	ConnectionError() error
}

const helpText = `commands:
  c                   connect
  d                   disconnect
  r                   reconnect
  l <lat> <lon>       send location
  p [photo-id]        send photo capture (random id when omitted)
  s <type> [json]     send an arbitrary envelope
  on | off            report network online/offline
  fg | bg             report app active/background
  st                  print status
  q                   quit`

type console struct {
	link link
	out  io.Writer
}

// execute runs one command line and reports whether the console should exit.
func (c *console) execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "c", "connect":
		c.result(c.link.Connect(ctx))
	case "d", "disconnect":
		c.link.Disconnect()
		c.printf("disconnected")
	case "r", "reconnect":
		c.result(c.link.Reconnect(ctx))
	case "l", "location":
		if len(args) != 2 {
			c.printf("usage: l <lat> <lon>")
			return false
		}
		lat, err1 := strconv.ParseFloat(args[0], 64)
		lon, err2 := strconv.ParseFloat(args[1], 64)
		if err1 != nil || err2 != nil {
			c.printf("invalid coordinates")
			return false
		}
		c.sent(c.link.SendLocation(lat, lon))
	case "p", "photo":
		id := uuid.NewString()
		if len(args) > 0 {
			id = args[0]
		}
		c.sent(c.link.NotifyPhotoCapture(id, nil))
	case "s", "send":
		if len(args) == 0 {
			c.printf("usage: s <type> [json]")
			return false
		}
		var payload any
		if len(args) > 1 {
			raw := strings.Join(args[1:], " ")
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				c.printf("invalid json: %v", err)
				return false
			}
		}
		c.sent(c.link.Send(args[0], payload))
	case "on":
		c.link.HandleNetworkChange(true)
	case "off":
		c.link.HandleNetworkChange(false)
	case "fg":
		c.link.HandleAppStateChange(connection.AppActive)
	case "bg":
		c.link.HandleAppStateChange(connection.AppBackground)
	case "st", "status":
		c.status()
	case "h", "help", "?":
		c.printf("%s", helpText)
	case "q", "quit", "exit":
		return true
	default:
		c.printf("unknown command %q", cmd)
	}
	return false
}

func (c *console) status() {
	s := c.link.Stats()
	c.printf("state=%s attempts=%d session=%s sent=%d received=%d parse_errors=%d listener_errors=%d",
		s.State, s.Attempts, s.SessionID, s.MessagesSent, s.MessagesReceived, s.ParseErrors, s.ListenerErrors)
	if err := c.link.ConnectionError(); err != nil {
		c.printf("last error: %v", err)
	}
}

func (c *console) result(err error) {
	if err != nil {
		c.printf("error: %v", err)
		return
	}
	c.printf("ok")
}

func (c *console) sent(ok bool) {
	if ok {
		c.printf("sent")
	} else {
		c.printf("not sent (not connected)")
	}
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func formatEnvelope(env connection.Envelope, verbose bool) string {
	if verbose {
		data, _ := json.MarshalIndent(env, "", "  ")
		return fmt.Sprintf("[%s] %s", strings.ToUpper(env.Type), data)
	}
	return fmt.Sprintf("[%s] ts=%s fields=%d", strings.ToUpper(env.Type), env.Timestamp, len(env.Fields))
}
