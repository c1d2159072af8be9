package modbustransport

import (
	"sync"
	"time"
)

type poolKey struct {
	ip     string
	port   int
	unitID byte
}

type pooledConn struct {
	conn     deviceConn
	mu       sync.Mutex
	lastUsed time.Time
	closing  bool
	timer    *time.Timer
}

func (p *pooledConn) touch() {
	p.mu.Lock()
	p.lastUsed = time.Now()
	p.mu.Unlock()
}

// getOrCreate returns the pooled connection for (ip, port, unitID),
// opening a new one if none exists or the existing one is closing.
func (t *Transport) getOrCreate(ip string, port int, unitID byte) (*pooledConn, poolKey, error) {
	key := poolKey{ip: ip, port: port, unitID: unitID}

	t.mu.Lock()
	if pc, ok := t.pool[key]; ok && !pc.closing {
		t.mu.Unlock()
		pc.touch()
		return pc, key, nil
	}
	t.mu.Unlock()

	conn, err := t.dial(ip, port, unitID, t.connectTimeout, t.requestTimeout)
	if err != nil {
		return nil, key, err
	}

	pc := &pooledConn{conn: conn, lastUsed: time.Now()}

	t.mu.Lock()
	t.pool[key] = pc
	t.mu.Unlock()

	t.scheduleIdleCheck(key, pc)
	return pc, key, nil
}

// scheduleIdleCheck arms a timer that closes the pooled connection once it
// has been unused for idleClose, rescheduling itself if activity happened
// in the meantime.
func (t *Transport) scheduleIdleCheck(key poolKey, pc *pooledConn) {
	pc.timer = time.AfterFunc(t.idleClose, func() {
		t.mu.Lock()
		pc.mu.Lock()
		idle := time.Since(pc.lastUsed)
		if idle >= t.idleClose {
			pc.closing = true
			delete(t.pool, key)
			pc.mu.Unlock()
			t.mu.Unlock()
			pc.conn.Close()
			return
		}
		remaining := t.idleClose - idle
		pc.mu.Unlock()
		t.mu.Unlock()
		pc.timer.Reset(remaining)
	})
}

// poison marks the pool entry closing and evicts it so the next request
// re-opens the socket. Used after any socket-level error on a connection.
func (t *Transport) poison(key poolKey, pc *pooledConn) {
	t.mu.Lock()
	if cur, ok := t.pool[key]; ok && cur == pc {
		delete(t.pool, key)
	}
	t.mu.Unlock()

	pc.mu.Lock()
	pc.closing = true
	if pc.timer != nil {
		pc.timer.Stop()
	}
	pc.mu.Unlock()

	pc.conn.Close()
}

// Close drains the pool, closing every open connection. Intended for
// shutdown.
func (t *Transport) Close() {
	t.mu.Lock()
	entries := make([]*pooledConn, 0, len(t.pool))
	for k, pc := range t.pool {
		delete(t.pool, k)
		entries = append(entries, pc)
	}
	t.mu.Unlock()

	for _, pc := range entries {
		pc.mu.Lock()
		pc.closing = true
		if pc.timer != nil {
			pc.timer.Stop()
		}
		pc.mu.Unlock()
		pc.conn.Close()
	}
}
