package transport

import "sync"

// Lazy returns a transport that opens the underlying bus on first use and
// again after every failed open, so a bus missing at boot only fails the
// devices on it.
func Lazy(name string, open func() (Transport, error)) Transport {
	return &lazy{name: name, open: open}
}

type lazy struct {
	name string
	open func() (Transport, error)

	mu sync.Mutex
	t  Transport
}

func (l *lazy) Name() string {
	return l.name
}

func (l *lazy) Tx(addr uint16, w, r []byte) error {
	l.mu.Lock()
	if l.t == nil {
		t, err := l.open()
		if err != nil {
			l.mu.Unlock()
			return err
		}
		l.t = t
	}
	t := l.t
	l.mu.Unlock()
	return t.Tx(addr, w, r)
}
