package engine

import (
	"bufio"
	"fmt"
	"math"
	"net"
	"testing"
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const waitFor = 5 * time.Second

type fixedHead float64

func (h fixedHead) HeadDifficulty() float64 { return float64(h) }

type countingSink struct {
	calls   atomic.Int64
	address atomic.String
}

func (s *countingSink) SubmitBlock(address string) bool {
	s.address.Store(address)
	s.calls.Inc()
	return true
}

func nextEngineEvent(t *testing.T, ch chan mining.EngineEvent, typ mining.EngineEventType) mining.EngineEvent {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("engine event %d not received", typ)
		}
	}
}

func nextPoolEvent(t *testing.T, ch chan mining.PoolEvent) mining.PoolEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(waitFor):
		t.Fatal("pool event not received")
	}
	return mining.PoolEvent{}
}

func TestHitThreshold(t *testing.T) {
	require.Zero(t, HitThreshold(0, 65536))
	require.Zero(t, HitThreshold(math.NaN(), 1))
	require.Equal(t, uint64(math.MaxUint64), HitThreshold(0.5, 1))
	require.InEpsilon(t, float64(math.MaxUint64)/65536, float64(HitThreshold(1, 65536)), 1e-9)
}

func TestSoloEngineFindsBlocks(t *testing.T) {
	sink := &countingSink{}
	e := NewSoloEngine(fixedHead(1), sink, "NQ01", 4096, clock.New(), lib.NewTestLogger())
	events := make(chan mining.EngineEvent, 16)
	sub := e.SubscribeEngine(events)
	defer sub.Unsubscribe()

	require.Equal(t, mining.KindSolo, e.Kind())
	e.StartWork()
	nextEngineEvent(t, events, mining.EngineStarted)
	require.True(t, e.Working())

	require.Eventually(t, func() bool { return sink.calls.Load() > 0 }, waitFor, 10*time.Millisecond)
	require.Equal(t, "NQ01", sink.address.Load())
	require.NotZero(t, e.BlocksFound())

	e.StopWork()
	nextEngineEvent(t, events, mining.EngineStopped)
	require.False(t, e.Working())
	require.Zero(t, e.Hashrate())
}

func TestSoloEngineUnknownDifficultyNeverHits(t *testing.T) {
	sink := &countingSink{}
	e := NewSoloEngine(fixedHead(0), sink, "NQ01", 65536, clock.New(), lib.NewTestLogger())
	e.StartWork()
	time.Sleep(50 * time.Millisecond)
	e.StopWork()
	require.Zero(t, sink.calls.Load())
}

func TestEngineReportsHashrate(t *testing.T) {
	clk := clock.NewMock()
	e := NewSoloEngine(fixedHead(1e12), nil, "", 65536, clk, lib.NewTestLogger())
	events := make(chan mining.EngineEvent, 64)
	sub := e.SubscribeEngine(events)
	defer sub.Unsubscribe()

	e.StartWork()
	defer e.StopWork()
	nextEngineEvent(t, events, mining.EngineStarted)

	require.Eventually(t, func() bool {
		clk.Add(reportInterval)
		return e.Hashrate() > 0
	}, waitFor, 10*time.Millisecond)

	ev := nextEngineEvent(t, events, mining.HashrateChanged)
	require.Equal(t, mining.KindSolo, ev.Kind)
	require.Greater(t, ev.Hashrate, 0.0)
}

func TestSetThreadsRestartsWorkers(t *testing.T) {
	e := NewSoloEngine(fixedHead(1e12), nil, "", 65536, clock.New(), lib.NewTestLogger())
	require.Equal(t, 1, e.Threads())

	e.SetThreads(0)
	require.Equal(t, 1, e.Threads())

	e.StartWork()
	e.SetThreads(3)
	require.Equal(t, 3, e.Threads())
	require.True(t, e.Working())
	e.StopWork()
	require.False(t, e.Working())
}

// fakePool accepts one connection and exposes the received lines
type fakePool struct {
	listener net.Listener
	conns    chan net.Conn
}

func newFakePool(t *testing.T) *fakePool {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := &fakePool{listener: l, conns: make(chan net.Conn, 1)}
	go func() {
		conn, err := l.Accept()
		if err == nil {
			p.conns <- conn
		}
	}()
	t.Cleanup(func() { _ = l.Close() })
	return p
}

func (p *fakePool) port() int {
	return p.listener.Addr().(*net.TCPAddr).Port
}

func (p *fakePool) accept(t *testing.T) (net.Conn, *bufio.Scanner) {
	t.Helper()
	select {
	case conn := <-p.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, bufio.NewScanner(conn)
	case <-time.After(waitFor):
		t.Fatal("no pool connection")
	}
	return nil, nil
}

func readMethod(t *testing.T, s *bufio.Scanner) *PoolMessage {
	t.Helper()
	require.True(t, s.Scan())
	msg, err := ParsePoolMessage(s.Bytes())
	require.NoError(t, err)
	return msg
}

func newTestPoolEngine(t *testing.T) (*PoolEngine, chan mining.PoolEvent) {
	t.Helper()
	e := NewPoolEngine("NQ01.worker", time.Second, 1, clock.New(), lib.NewTestLogger())
	events := make(chan mining.PoolEvent, 16)
	sub := e.SubscribePool(events)
	t.Cleanup(func() {
		e.Disconnect()
		sub.Unsubscribe()
	})
	return e, events
}

func TestPoolEngineSession(t *testing.T) {
	pool := newFakePool(t)
	e, events := newTestPoolEngine(t)

	e.StartWork()
	require.False(t, e.Working(), "does not start before connected")

	attempt := e.Connect("127.0.0.1", pool.port())
	require.NotZero(t, attempt)
	require.Equal(t, mining.PoolEvent{Type: mining.PoolConnectionState, State: mining.ConnectionConnecting, Attempt: attempt}, nextPoolEvent(t, events))
	require.Equal(t, mining.PoolEvent{Type: mining.PoolConnectionState, State: mining.ConnectionConnected, Attempt: attempt}, nextPoolEvent(t, events))
	require.Equal(t, mining.ConnectionConnected, e.ConnectionState())

	conn, lines := pool.accept(t)
	require.Equal(t, MethodMiningSubscribe, readMethod(t, lines).Method)
	authorize := readMethod(t, lines)
	require.Equal(t, MethodMiningAuthorize, authorize.Method)
	require.JSONEq(t, `"NQ01.worker"`, string(authorize.Params[0]))

	fmt.Fprintf(conn, `{"id":null,"method":"mining.set_balance","params":[12345]}`+"\n")
	ev := nextPoolEvent(t, events)
	require.Equal(t, mining.PoolEvent{Type: mining.PoolConfirmedBalance, Balance: 12345}, ev)
	require.Equal(t, uint64(12345), e.ConfirmedBalance())

	fmt.Fprintf(conn, `{"id":null,"method":"mining.set_difficulty","params":[1000]}`+"\n")
	require.Eventually(t, func() bool { return e.shareDifficulty.Load() == 1000 }, waitFor, 10*time.Millisecond)

	e.StartWork()
	require.True(t, e.Working())
	require.Equal(t, MethodMiningSubmit, readMethod(t, lines).Method)

	fmt.Fprintf(conn, `{"id":3,"result":true,"error":null}`+"\n")
	require.Eventually(t, func() bool { return e.SharesAccepted() > 0 }, waitFor, 10*time.Millisecond)

	_ = conn.Close()
	closed := nextPoolEvent(t, events)
	require.Equal(t, mining.ConnectionClosed, closed.State)
	require.Equal(t, attempt, closed.Attempt)
	require.Equal(t, mining.ConnectionClosed, e.ConnectionState())
	require.False(t, e.Working())
}

func TestPoolEngineUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	e, events := newTestPoolEngine(t)
	e.Connect("127.0.0.1", port)
	require.Equal(t, mining.ConnectionConnecting, nextPoolEvent(t, events).State)
	require.Equal(t, mining.ConnectionClosed, nextPoolEvent(t, events).State)
}

func TestPoolEngineDisconnect(t *testing.T) {
	pool := newFakePool(t)
	e, events := newTestPoolEngine(t)

	attempt := e.Connect("127.0.0.1", pool.port())
	nextPoolEvent(t, events)
	nextPoolEvent(t, events)
	pool.accept(t)

	require.Equal(t, attempt, e.Connect("127.0.0.1", pool.port()))
	require.Len(t, events, 0, "connect is a no-op while connected")

	e.Disconnect()
	closed := nextPoolEvent(t, events)
	require.Equal(t, mining.ConnectionClosed, closed.State)
	require.Equal(t, attempt, closed.Attempt)

	e.Disconnect()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	require.Greater(t, e.Connect("127.0.0.1", pool.port()), attempt)
}

func TestParsePoolMessage(t *testing.T) {
	msg, err := ParsePoolMessage([]byte(`{"id":1,"method":"mining.set_difficulty","params":[8]}`))
	require.NoError(t, err)
	diff, err := msg.FloatParam(0)
	require.NoError(t, err)
	require.Equal(t, 8.0, diff)

	_, err = msg.FloatParam(1)
	require.ErrorIs(t, err, ErrPoolMessageParams)

	_, err = ParsePoolMessage([]byte(`{oops`))
	require.ErrorIs(t, err, ErrPoolMessageUnmarshal)

	req, err := NewPoolRequest(7, MethodMiningSubmit, "w", "00ff")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":7,"method":"mining.submit","params":["w","00ff"]}`, string(req[:len(req)-1]))
	require.Equal(t, byte('\n'), req[len(req)-1])
}
