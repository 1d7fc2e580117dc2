package wire

import (
	"testing"

	"github.com/tracksync/trackudp/buf"
)

func TestWriteHeaderThenReadHeaderRoundTrips(t *testing.T) {
	b := buf.New(256)
	pos := writeHeaderOnly(b, Stop, 7)
	if pos == 0 {
		t.Fatalf("writeHeaderOnly failed")
	}

	_, sender, ts, err := ReadHeader(b, Stop, HeaderLen, HeaderLen)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if sender != 7 {
		t.Fatalf("want sender 7, got %d", sender)
	}
	if ts == 0 {
		t.Fatalf("expected a non-zero epoch-ms timestamp")
	}
}

func TestHeaderLengthEqualsTotalBytes(t *testing.T) {
	b := buf.New(256)
	pos := WriteRequest(b, SenderUnassigned, CapProducesData, "demo", 1_700_000_000_000, 1000)
	if pos == 0 {
		t.Fatalf("WriteRequest failed")
	}

	declared, ok := PeekLength(b)
	if !ok {
		t.Fatalf("PeekLength failed")
	}
	if int(declared) != pos {
		t.Fatalf("declared length %d must equal total bytes written %d", declared, pos)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	b := buf.New(256)
	pos := WriteRequest(b, SenderUnassigned, CapProducesData|CapConsumesData, "demo", 1_700_000_000_000, 1000)
	if pos == 0 {
		t.Fatalf("WriteRequest failed")
	}

	req, err := ReadRequest(b, pos)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Flags != CapProducesData|CapConsumesData {
		t.Fatalf("flags mismatch: %x", req.Flags)
	}
	if req.Schema != "demo" {
		t.Fatalf("schema mismatch: %q", req.Schema)
	}
	if req.SimMS != 1_700_000_000_000 {
		t.Fatalf("simMS mismatch: %d", req.SimMS)
	}
	if req.IntervalMS != 1000 {
		t.Fatalf("intervalMS mismatch: %d", req.IntervalMS)
	}
}

func TestAcceptRoundTrip(t *testing.T) {
	b := buf.New(256)
	pos := WriteAccept(b, CapProducesData, 1_700_000_000_000, 500, 3)
	if pos != AcceptLen {
		t.Fatalf("expected AcceptLen %d, got %d", AcceptLen, pos)
	}

	acc, err := ReadAccept(b, pos)
	if err != nil {
		t.Fatalf("ReadAccept: %v", err)
	}
	if acc.ClientID != 3 || acc.IntervalMS != 500 || acc.SimMS != 1_700_000_000_000 {
		t.Fatalf("unexpected accept: %+v", acc)
	}
}

func TestRejectRoundTrip(t *testing.T) {
	b := buf.New(256)
	pos := WriteReject(b, ReasonUnknownSchema)
	if pos != RejectLen {
		t.Fatalf("expected RejectLen %d, got %d", RejectLen, pos)
	}
	reasons, err := ReadReject(b, pos)
	if err != nil {
		t.Fatalf("ReadReject: %v", err)
	}
	if reasons != ReasonUnknownSchema {
		t.Fatalf("reasons mismatch: %x", reasons)
	}
}

func TestDataFraming(t *testing.T) {
	b := buf.New(256)
	pos := BeginWriteData(b, 3)
	if pos == 0 {
		t.Fatalf("BeginWriteData failed")
	}
	payload := []byte("trackdata")
	for _, c := range payload {
		pos = b.WriteI8(pos, int8(c))
	}
	if !EndWriteData(b, pos) {
		t.Fatalf("EndWriteData failed")
	}

	payloadPos, sender, _, err := ReadDataHeader(b, pos)
	if err != nil {
		t.Fatalf("ReadDataHeader: %v", err)
	}
	if sender != 3 {
		t.Fatalf("sender mismatch: %d", sender)
	}
	if payloadPos != HeaderLen {
		t.Fatalf("expected payload to start at header end, got %d", payloadPos)
	}
}

func TestReadHeaderRejectsTypeMismatch(t *testing.T) {
	b := buf.New(256)
	pos := writeHeaderOnly(b, Stop, 1)
	_, _, _, err := ReadHeader(b, Pause, HeaderLen, pos)
	if err == nil {
		t.Fatalf("expected a framing error on type mismatch")
	}
}

func TestReadHeaderRejectsLengthMismatch(t *testing.T) {
	b := buf.New(256)
	pos := writeHeaderOnly(b, Stop, 1)
	_, _, _, err := ReadHeader(b, Stop, HeaderLen, pos+1)
	if err == nil {
		t.Fatalf("expected a framing error when received bytes disagree with declared length")
	}
}

func TestIsRecognizer(t *testing.T) {
	b := buf.New(256)
	pos := writeHeaderOnly(b, Pause, 5)
	if !Is(b, Pause, HeaderLen, pos) {
		t.Fatalf("expected Is(Pause) to match")
	}
	if Is(b, Resume, HeaderLen, pos) {
		t.Fatalf("expected Is(Resume) not to match a PAUSE buffer")
	}
}
