package main

import (
	"log"

	"github.com/tracksync/trackudp/buf"
	"github.com/tracksync/trackudp/driver"
	"github.com/tracksync/trackudp/std"
	"github.com/tracksync/trackudp/wire"
)

// serverContext is trackserver's driver.Context: a reference
// implementation that exchanges heartbeat-only DATA frames (no
// payload) and accepts any peer whose schema string matches the one
// this server was started with.
type serverContext struct {
	driver.BaseContext

	cfg       Config
	counters  *std.Counters
	boundHost string
	boundPort string
}

func (c *serverContext) Config() driver.Config {
	return driver.Config{
		Host:       c.boundHost,
		Port:       c.port(),
		Schema:     c.cfg.Schema,
		Flags:      c.capabilityFlags(),
		IntervalMS: int32(c.cfg.IntervalMS),
		MaxMsgLen:  c.cfg.MaxMsgLen,
		Counters:   c.counters,
	}
}

func (c *serverContext) capabilityFlags() int32 {
	var flags int32
	if c.cfg.Produces {
		flags |= wire.CapProducesData
	}
	if c.cfg.Consumes {
		flags |= wire.CapConsumesData
	}
	return flags
}

// port returns this listener's fixed port, since trackserver builds
// one serverContext per port when --listen names a range.
func (c *serverContext) port() string { return c.boundPort }

func (c *serverContext) WriteRequest(b *buf.DataBuf, pos int) int {
	// Servers never initiate a REQUEST.
	return pos
}

func (c *serverContext) CheckRequest(host, service string, flags int32, schema string, simMS *int64, intervalMS *int32) int32 {
	if schema != c.cfg.Schema {
		return wire.ReasonUnknownSchema
	}
	if *intervalMS <= 0 {
		*intervalMS = int32(c.cfg.IntervalMS)
	}
	return 0
}

func (c *serverContext) WriteData(b *buf.DataBuf, pos int) int {
	return pos
}

func (c *serverContext) ReadData(b *buf.DataBuf, pos int) int {
	return pos
}

func (c *serverContext) Listening(port int) {
	if !c.cfg.Quiet {
		log.Printf("listening on :%d", port)
	}
}

func (c *serverContext) ConnectionStarted(remoteID int32) {
	if !c.cfg.Quiet {
		log.Printf("session started with client %d", remoteID)
	}
}

func (c *serverContext) ConnectionTerminated(remoteID int32, err error) {
	if !c.cfg.Quiet {
		log.Printf("session with client %d ended: %v", remoteID, err)
	}
}

func (c *serverContext) Info(format string, args ...any) {
	if !c.cfg.Quiet {
		log.Printf(format, args...)
	}
}

func (c *serverContext) Warning(format string, args ...any) { log.Printf("warning: "+format, args...) }
func (c *serverContext) Error(format string, args ...any)   { log.Printf("error: "+format, args...) }
