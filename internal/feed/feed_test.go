package feed

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/openmarket/trademanager/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func drainOne(t *testing.T, f *Feed) domain.PriceUpdate {
	t.Helper()
	select {
	case u := <-f.Prices():
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a price update")
		return domain.PriceUpdate{}
	}
}

func TestSubscribeBeforeConnectTracksDesiredSet(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	f.Subscribe("tok-1", "tok-2")

	got := f.SubscribedTokens()
	if len(got) != 2 {
		t.Fatalf("got %d subscribed tokens, want 2", len(got))
	}
}

func TestUnsubscribeRemovesFromDesiredSet(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	f.Subscribe("tok-1", "tok-2")
	f.Unsubscribe("tok-1")

	got := f.SubscribedTokens()
	if len(got) != 1 || got[0] != "tok-2" {
		t.Errorf("got %v, want [tok-2]", got)
	}
}

func TestIsConnectedFalseBeforeDial(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	if f.IsConnected() {
		t.Error("expected IsConnected=false before any dial attempt")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	if err := f.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestEmitPriceDropsOutOfRangeValues(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())

	f.emitPrice("tok-1", 0, "")
	f.emitPrice("tok-1", 1.5, "")
	f.emitPrice("tok-1", -0.2, "")

	select {
	case u := <-f.Prices():
		t.Fatalf("expected no price update for out-of-range values, got %+v", u)
	default:
	}
}

func TestEmitPriceAcceptsBoundaryValueOne(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	f.emitPrice("tok-1", 1.0, "")

	u := drainOne(t, f)
	if u.Price != 1.0 {
		t.Errorf("price = %v, want 1.0", u.Price)
	}
}

func TestEmitPriceParsesWireTimestamp(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	f.emitPrice("tok-1", 0.5, "1700000000")

	u := drainOne(t, f)
	want := time.Unix(1700000000, 0).UTC()
	if !u.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", u.Timestamp, want)
	}
}

func TestEmitPriceFallsBackToNowOnUnparseableTimestamp(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	before := time.Now().UTC()
	f.emitPrice("tok-1", 0.5, "not-a-timestamp")

	u := drainOne(t, f)
	if u.Timestamp.Before(before) {
		t.Errorf("timestamp %v should not be before test start %v", u.Timestamp, before)
	}
}

func TestHandleMessageBookUsesMidpointWhenBothSidesPresent(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	raw := []byte(`{"event_type":"book","asset_id":"tok-1","bids":[{"price":"0.40","size":"10"}],"asks":[{"price":"0.60","size":"10"}],"timestamp":""}`)
	f.handleMessage(raw)

	u := drainOne(t, f)
	if u.Price != 0.5 {
		t.Errorf("price = %v, want 0.5 midpoint", u.Price)
	}
}

func TestHandleMessageBookOneSidedUsesThatSideWhenAllowed(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	raw := []byte(`{"event_type":"book","asset_id":"tok-1","bids":[{"price":"0.40","size":"10"}],"asks":[],"timestamp":""}`)
	f.handleMessage(raw)

	u := drainOne(t, f)
	if u.Price != 0.40 {
		t.Errorf("price = %v, want 0.40 (bid side)", u.Price)
	}
}

func TestHandleMessageBookOneSidedDroppedWhenDisallowed(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger(), WithAllowOneSidedBook(false))
	raw := []byte(`{"event_type":"book","asset_id":"tok-1","bids":[{"price":"0.40","size":"10"}],"asks":[],"timestamp":""}`)
	f.handleMessage(raw)

	select {
	case u := <-f.Prices():
		t.Fatalf("expected no price update for a one-sided book with WithAllowOneSidedBook(false), got %+v", u)
	default:
	}
}

func TestHandleMessageBookPicksBestBidAndAsk(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	raw := []byte(`{"event_type":"book","asset_id":"tok-1","bids":[{"price":"0.30","size":"1"},{"price":"0.45","size":"1"}],"asks":[{"price":"0.70","size":"1"},{"price":"0.55","size":"1"}],"timestamp":""}`)
	f.handleMessage(raw)

	u := drainOne(t, f)
	// best bid 0.45, best ask 0.55 -> midpoint 0.5
	if u.Price != 0.5 {
		t.Errorf("price = %v, want 0.5 (best bid/ask midpoint)", u.Price)
	}
}

func TestHandleMessagePriceChangeEmitsNothing(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	f.handleMessage([]byte(`{"event_type":"price_change"}`))

	select {
	case u := <-f.Prices():
		t.Fatalf("expected price_change to emit nothing, got %+v", u)
	default:
	}
}

func TestHandleMessageLastTradePriceEmits(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	raw := []byte(`{"event_type":"last_trade_price","asset_id":"tok-1","price":"0.62","timestamp":""}`)
	f.handleMessage(raw)

	u := drainOne(t, f)
	if u.Price != 0.62 || u.TokenID != "tok-1" {
		t.Errorf("got %+v, want TokenID=tok-1 Price=0.62", u)
	}
}

func TestHandleMessageUnknownEventTypeDropped(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	f.handleMessage([]byte(`{"event_type":"something_else"}`))

	select {
	case u := <-f.Prices():
		t.Fatalf("expected unknown event type to be dropped, got %+v", u)
	default:
	}
}

func TestHandleMessageNonJSONDropped(t *testing.T) {
	t.Parallel()
	f := New("ws://unused", testLogger())
	f.handleMessage([]byte(`not json`))

	select {
	case u := <-f.Prices():
		t.Fatalf("expected malformed frame to be dropped, got %+v", u)
	default:
	}
}
