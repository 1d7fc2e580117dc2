package std

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCountersHeaderAndToSliceAgree(t *testing.T) {
	var c Counters
	if len(c.Header()) != len(c.ToSlice()) {
		t.Fatalf("Header has %d columns, ToSlice has %d", len(c.Header()), len(c.ToSlice()))
	}
}

func TestCountersToSliceReflectsAdds(t *testing.T) {
	var c Counters
	c.DataSent.Add(3)
	c.DataRecv.Add(2)
	c.RejectSent.Add(1)
	c.FramingDrops.Add(5)
	c.OrderingDrops.Add(4)

	got := c.ToSlice()
	want := []string{"3", "2", "1", "5", "4"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ToSlice()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCounterLoggerWritesCSVRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counters.csv")

	var c Counters
	c.DataSent.Add(7)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		CounterLogger(path, 1, &c, stop)
		close(done)
	}()

	time.Sleep(1200 * time.Millisecond)
	close(stop)
	<-done

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if len(data) == 0 {
		t.Fatal("expected at least one CSV row to have been written")
	}
}

func TestCounterLoggerNoopWithoutPath(t *testing.T) {
	var c Counters
	stop := make(chan struct{})
	close(stop)
	CounterLogger("", 1, &c, stop) // must return immediately, not block
}
