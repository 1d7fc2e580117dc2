// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/tracksync/trackudp/driver"
	"github.com/tracksync/trackudp/netio"
	"github.com/tracksync/trackudp/std"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "trackserver"
	myApp.Usage = "adapter protocol server"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: ":29900",
			Usage: `server listen address, eg: "IP:29900" for a single port, "IP:minport-maxport" for a range, one driver per port`,
		},
		cli.StringFlag{
			Name:  "schema",
			Value: "heartbeat/v1",
			Usage: "schema string peers must present to be accepted",
		},
		cli.BoolFlag{
			Name:  "produces",
			Usage: "advertise the server-produces-data capability",
		},
		cli.BoolFlag{
			Name:  "consumes",
			Usage: "advertise the server-consumes-data capability",
		},
		cli.IntFlag{
			Name:  "interval",
			Value: 1000,
			Usage: "DATA send interval in milliseconds, used when a client doesn't request one",
		},
		cli.IntFlag{
			Name:  "maxmsglen",
			Value: 2048,
			Usage: "maximum datagram size in bytes",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.StringFlag{
			Name:  "counterlog",
			Value: "",
			Usage: "collect protocol counters to a CSV file, aware of timeformat in golang, like: ./counters-20060102.log",
		},
		cli.IntFlag{
			Name:  "counterperiod",
			Value: 60,
			Usage: "counter collection period, in seconds",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress per-session log lines",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = run
	if err := myApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	config := Config{}
	config.Listen = c.String("listen")
	config.Schema = c.String("schema")
	config.Produces = c.Bool("produces")
	config.Consumes = c.Bool("consumes")
	config.IntervalMS = c.Int("interval")
	config.MaxMsgLen = c.Int("maxmsglen")
	config.Log = c.String("log")
	config.CounterLog = c.String("counterlog")
	config.CounterPer = c.Int("counterperiod")
	config.Quiet = c.Bool("quiet")

	if c.String("c") != "" {
		checkError(parseJSONConfig(&config, c.String("c")))
	}

	if config.Log != "" {
		f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		checkError(err)
		defer f.Close()
		log.SetOutput(f)
	}

	log.Println("version:", VERSION)
	log.Println("listening on:", config.Listen)
	log.Println("schema:", config.Schema)
	log.Println("interval:", config.IntervalMS)
	log.Println("maxmsglen:", config.MaxMsgLen)
	log.Println("counterlog:", config.CounterLog)
	log.Println("counterperiod:", config.CounterPer)

	if !config.Produces && !config.Consumes {
		color.Red("WARNING: neither --produces nor --consumes is set, this server advertises no capabilities")
	}

	mp, err := netio.ParseMultiPort(config.Listen)
	checkError(err)

	counters := &std.Counters{}
	counterStop := make(chan struct{})
	go std.CounterLogger(config.CounterLog, config.CounterPer, counters, counterStop)

	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	contexts := make([]*serverContext, 0, mp.MaxPort-mp.MinPort+1)
	var wg sync.WaitGroup
	for port := mp.MinPort; port <= mp.MaxPort; port++ {
		sc := &serverContext{cfg: config, counters: counters, boundHost: mp.Host, boundPort: strconv.Itoa(port)}
		contexts = append(contexts, sc)
		wg.Add(1)
		go func(sc *serverContext) {
			defer wg.Done()
			if err := driver.RunServer(ctx, sc); err != nil {
				log.Printf("server on port %s exited: %v", sc.boundPort, err)
			}
		}(sc)
	}

	go func() {
		for sig := range sigs {
			switch sig {
			case syscall.SIGUSR1:
				counters.Dump()
			default:
				log.Println("shutting down:", sig)
				for _, sc := range contexts {
					sc.StopLocal().Store(true)
				}
				close(counterStop)
				cancel()
				return
			}
		}
	}()

	wg.Wait()
	return nil
}
