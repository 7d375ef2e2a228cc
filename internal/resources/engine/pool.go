package engine

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/atomic"
)

const (
	DefaultShareDifficulty = 16
	writeTimeout           = 5 * time.Second
)

// PoolEngine mines shares for a remote pool over a line delimited json-rpc connection.
// The pool may adjust the share difficulty and reports the confirmed balance
type PoolEngine struct {
	*cpuMiner

	worker              string
	dialTimeout         time.Duration
	hashesPerDifficulty float64
	shareDifficulty     atomic.Float64
	nextID              atomic.Int64
	accepted            atomic.Uint64

	mu      sync.Mutex
	state   mining.ConnectionState
	conn    net.Conn
	cancel  context.CancelFunc
	gen     uint64 // connection attempt, results of older attempts are dropped
	balance uint64
	writeMu sync.Mutex

	poolFeed event.Feed
}

func NewPoolEngine(worker string, dialTimeout time.Duration, hashesPerDifficulty float64, clk clock.Clock, log interfaces.ILogger) *PoolEngine {
	e := &PoolEngine{
		cpuMiner:            newCPUMiner(mining.KindPool, clk, log),
		worker:              worker,
		dialTimeout:         dialTimeout,
		hashesPerDifficulty: hashesPerDifficulty,
		cancel:              func() {},
	}
	e.shareDifficulty.Store(DefaultShareDifficulty)
	e.threshold = func() uint64 {
		return HitThreshold(e.shareDifficulty.Load(), e.hashesPerDifficulty)
	}
	e.onHit = e.submit
	return e
}

// StartWork is a no-op until the pool connection is established
func (e *PoolEngine) StartWork() {
	if e.ConnectionState() != mining.ConnectionConnected {
		e.log.Warn("pool is not connected, work not started")
		return
	}
	e.cpuMiner.StartWork()
}

func (e *PoolEngine) Connect(host string, port int) uint64 {
	e.mu.Lock()
	if e.state != mining.ConnectionClosed {
		gen := e.gen
		e.mu.Unlock()
		return gen
	}
	e.gen++
	gen := e.gen
	ctx, cancel := context.WithTimeout(context.Background(), e.dialTimeout)
	e.cancel = cancel
	e.state = mining.ConnectionConnecting
	e.mu.Unlock()

	e.sendState(gen, mining.ConnectionConnecting)
	go e.dial(ctx, gen, net.JoinHostPort(host, strconv.Itoa(port)))
	return gen
}

func (e *PoolEngine) Disconnect() {
	e.mu.Lock()
	if e.state == mining.ConnectionClosed {
		e.mu.Unlock()
		return
	}
	gen := e.gen
	e.gen++
	e.closeLocked()
	e.mu.Unlock()

	e.StopWork()
	e.sendState(gen, mining.ConnectionClosed)
}

func (e *PoolEngine) ConnectionState() mining.ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *PoolEngine) ConfirmedBalance() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// SharesAccepted counts pool responses without an error
func (e *PoolEngine) SharesAccepted() uint64 {
	return e.accepted.Load()
}

func (e *PoolEngine) SubscribePool(ch chan<- mining.PoolEvent) event.Subscription {
	return e.poolFeed.Subscribe(ch)
}

func (e *PoolEngine) dial(ctx context.Context, gen uint64, addr string) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		e.log.Warnf("cannot connect to pool %s: %s", addr, err)
		e.closed(gen)
		return
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		_ = conn.Close()
		return
	}
	e.conn = conn
	e.state = mining.ConnectionConnected
	e.mu.Unlock()

	e.log.Infof("connected to pool %s", addr)
	e.sendState(gen, mining.ConnectionConnected)
	go e.read(gen, conn)

	if err := e.handshake(); err != nil {
		e.log.Warnf("pool handshake failed: %s", err)
		e.closed(gen)
	}
}

func (e *PoolEngine) handshake() error {
	subscribe, err := NewPoolRequest(int(e.nextID.Inc()), MethodMiningSubscribe)
	if err != nil {
		return err
	}
	if err := e.write(subscribe); err != nil {
		return err
	}
	authorize, err := NewPoolRequest(int(e.nextID.Inc()), MethodMiningAuthorize, e.worker, "")
	if err != nil {
		return err
	}
	return e.write(authorize)
}

func (e *PoolEngine) read(gen uint64, conn net.Conn) {
	defer e.closed(gen)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		msg, err := ParsePoolMessage(scanner.Bytes())
		if err != nil {
			e.log.Warnf("%s", err)
			continue
		}
		e.handle(msg)
	}
	if err := scanner.Err(); err != nil {
		e.log.Debugf("pool read error: %s", err)
	}
}

func (e *PoolEngine) handle(msg *PoolMessage) {
	switch msg.Method {
	case MethodMiningSetDifficulty:
		diff, err := msg.FloatParam(0)
		if err != nil || diff <= 0 {
			e.log.Warnf("bad share difficulty: %v", msg.Params)
			return
		}
		e.shareDifficulty.Store(diff)
		e.log.Debugf("share difficulty set to %.2f", diff)

	case MethodMiningSetBalance:
		balance, err := msg.Uint64Param(0)
		if err != nil {
			e.log.Warnf("bad balance: %s", err)
			return
		}
		e.mu.Lock()
		e.balance = balance
		e.mu.Unlock()
		e.poolFeed.Send(mining.PoolEvent{Type: mining.PoolConfirmedBalance, Balance: balance})

	case "":
		if len(msg.Error) > 0 && string(msg.Error) != "null" {
			e.log.Warnf("pool rejected request %v: %s", msg.ID, msg.Error)
			return
		}
		e.accepted.Inc()
	}
}

func (e *PoolEngine) submit(nonce uint64) {
	req, err := NewPoolRequest(int(e.nextID.Inc()), MethodMiningSubmit, e.worker, fmt.Sprintf("%016x", nonce))
	if err != nil {
		e.log.Errorf("cannot encode share: %s", err)
		return
	}
	if err := e.write(req); err != nil {
		e.log.Debugf("share not sent: %s", err)
	}
}

func (e *PoolEngine) write(b []byte) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := conn.Write(b)
	return err
}

// closed handles the end of the connection attempt gen
func (e *PoolEngine) closed(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state == mining.ConnectionClosed {
		e.mu.Unlock()
		return
	}
	e.closeLocked()
	e.mu.Unlock()

	e.StopWork()
	e.sendState(gen, mining.ConnectionClosed)
}

// closeLocked must hold mu
func (e *PoolEngine) closeLocked() {
	e.cancel()
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	e.state = mining.ConnectionClosed
}

func (e *PoolEngine) sendState(gen uint64, s mining.ConnectionState) {
	e.poolFeed.Send(mining.PoolEvent{Type: mining.PoolConnectionState, State: s, Attempt: gen})
}
