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

package std

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Counters tracks protocol-level activity: how many DATA messages
// were sent and received, how many REQUESTs were rejected, and how
// many datagrams were dropped for framing or ordering reasons. All
// fields are safe for concurrent use from the driver's sender and
// receiver goroutines.
type Counters struct {
	DataSent      atomic.Int64
	DataRecv      atomic.Int64
	RejectSent    atomic.Int64
	FramingDrops  atomic.Int64
	OrderingDrops atomic.Int64
}

// Header names Counters' fields in the same order ToSlice emits them.
func (c *Counters) Header() []string {
	return []string{"DataSent", "DataRecv", "RejectSent", "FramingDrops", "OrderingDrops"}
}

// ToSlice renders the current counter values as strings, in Header
// order.
func (c *Counters) ToSlice() []string {
	return []string{
		fmt.Sprint(c.DataSent.Load()),
		fmt.Sprint(c.DataRecv.Load()),
		fmt.Sprint(c.RejectSent.Load()),
		fmt.Sprint(c.FramingDrops.Load()),
		fmt.Sprint(c.OrderingDrops.Load()),
	}
}

// Dump writes the current counters to log in a single line, for a
// SIGUSR1-triggered snapshot.
func (c *Counters) Dump() {
	log.Printf("counters: DataSent=%d DataRecv=%d RejectSent=%d FramingDrops=%d OrderingDrops=%d",
		c.DataSent.Load(), c.DataRecv.Load(), c.RejectSent.Load(), c.FramingDrops.Load(), c.OrderingDrops.Load())
}

// CounterLogger appends one CSV row of c's counters to path every
// interval seconds, until stop is closed. path is passed through
// time.Format so a caller can roll daily/hourly log files the same
// way the teacher's snmplog did (e.g. "counters-20060102.csv").
func CounterLogger(path string, interval int, c *Counters, stop <-chan struct{}) {
	if path == "" || interval == 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			logdir, logfile := filepath.Split(path)
			f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			if err != nil {
				log.Println(err)
				continue
			}
			w := csv.NewWriter(f)
			if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
				if err := w.Write(append([]string{"Unix"}, c.Header()...)); err != nil {
					log.Println(err)
				}
			}
			if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, c.ToSlice()...)); err != nil {
				log.Println(err)
			}
			w.Flush()
			f.Close()
		}
	}
}
