package main

import (
	"log"
	"net"

	"github.com/tracksync/trackudp/buf"
	"github.com/tracksync/trackudp/driver"
	"github.com/tracksync/trackudp/std"
	"github.com/tracksync/trackudp/wire"
)

// clientContext is trackclient's driver.Context: it requests the
// configured schema and capability flags and exchanges heartbeat-only
// DATA frames, mirroring serverContext on the other side of the wire.
type clientContext struct {
	driver.BaseContext

	cfg      Config
	counters *std.Counters
}

func (c *clientContext) Config() driver.Config {
	host, port, err := net.SplitHostPort(c.cfg.Remote)
	if err != nil {
		host, port = c.cfg.Remote, "29900"
	}
	return driver.Config{
		Host:              host,
		Port:              port,
		Schema:            c.cfg.Schema,
		Flags:             c.capabilityFlags(),
		IntervalMS:        int32(c.cfg.IntervalMS),
		ConnectIntervalMS: int32(c.cfg.ConnectIntervalMS),
		MaxMsgLen:         c.cfg.MaxMsgLen,
		Counters:          c.counters,
	}
}

func (c *clientContext) capabilityFlags() int32 {
	var flags int32
	if c.cfg.Produces {
		flags |= wire.CapProducesData
	}
	if c.cfg.Consumes {
		flags |= wire.CapConsumesData
	}
	return flags
}

func (c *clientContext) WriteRequest(b *buf.DataBuf, pos int) int {
	return wire.WriteRequestBody(b, pos, c.capabilityFlags(), c.cfg.Schema, 0, int32(c.cfg.IntervalMS))
}

func (c *clientContext) CheckRequest(host, service string, flags int32, schema string, simMS *int64, intervalMS *int32) int32 {
	// Clients never receive a REQUEST.
	return 0
}

func (c *clientContext) WriteData(b *buf.DataBuf, pos int) int {
	return pos
}

func (c *clientContext) ReadData(b *buf.DataBuf, pos int) int {
	return pos
}

func (c *clientContext) ConnectionStarted(remoteID int32) {
	if !c.cfg.Quiet {
		log.Printf("connected to server (peer id %d)", remoteID)
	}
}

func (c *clientContext) ConnectionTerminated(remoteID int32, err error) {
	if !c.cfg.Quiet {
		log.Printf("session ended: %v", err)
	}
}

func (c *clientContext) Info(format string, args ...any) {
	if !c.cfg.Quiet {
		log.Printf(format, args...)
	}
}

func (c *clientContext) Warning(format string, args ...any) { log.Printf("warning: "+format, args...) }
func (c *clientContext) Error(format string, args ...any)   { log.Printf("error: "+format, args...) }
