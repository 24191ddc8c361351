package utils

import (
	"crypto/tls"
	"fmt"
	"sync"

	"gopkg.in/gomail.v2"

	"relaycrm/models"
)

// OutgoingEmail is one message handed to a transport.
type OutgoingEmail struct {
	FromName  string
	FromEmail string
	To        string
	Subject   string
	HTML      string
}

// Transport sends messages for one sending account.
type Transport interface {
	Send(msg *OutgoingEmail) error
}

// TransportPool hands out one Transport per sending account. Implementations
// must be safe for concurrent use: a batch of enrollments targeting the same
// account may race on first creation.
type TransportPool interface {
	Get(sender *models.Sender) (Transport, error)
	Close()
}

// Decryptor turns a stored ciphertext credential into a plaintext password.
type Decryptor func(ciphertext string) (string, error)

// SMTPPool is the gomail-backed TransportPool. Transports are created lazily
// under a mutex so the first caller wins and later callers reuse its
// transport; the account password is decrypted exactly once per account per
// pool lifetime and cached on the dialer, never re-decrypted per message.
type SMTPPool struct {
	mu         sync.Mutex
	transports map[uint]*smtpTransport
	decrypt    Decryptor

	maxConns    int // connections per account
	maxMessages int // messages per connection before redial
}

const (
	defaultMaxConns    = 5
	defaultMaxMessages = 100
)

func NewSMTPPool(decrypt Decryptor, maxConns, maxMessages int) *SMTPPool {
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	return &SMTPPool{
		transports:  make(map[uint]*smtpTransport),
		decrypt:     decrypt,
		maxConns:    maxConns,
		maxMessages: maxMessages,
	}
}

func (p *SMTPPool) Get(sender *models.Sender) (Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.transports[sender.ID]; ok {
		return t, nil
	}

	password, err := p.decrypt(sender.SMTPPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt SMTP password: %w", err)
	}

	dialer := gomail.NewDialer(sender.SMTPHost, sender.SMTPPort, sender.SMTPUsername, password)
	// Port 465 means implicit TLS; anything else negotiates STARTTLS when the
	// server offers it. Certificate validation is relaxed on purpose: customer
	// mail servers are frequently self-signed or misconfigured, and refusing
	// them would break sending for those tenants.
	dialer.SSL = sender.SMTPPort == 465
	dialer.TLSConfig = &tls.Config{
		ServerName:         sender.SMTPHost,
		InsecureSkipVerify: true,
	}

	t := &smtpTransport{
		dialer:      dialer,
		dial:        dialer.Dial,
		slots:       make(chan struct{}, p.maxConns),
		idle:        make(chan *pooledConn, p.maxConns),
		maxMessages: p.maxMessages,
	}
	p.transports[sender.ID] = t
	return t, nil
}

// Close shuts down every pooled connection. Called at the end of a run.
func (p *SMTPPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range p.transports {
		t.closeAll()
	}
	p.transports = make(map[uint]*smtpTransport)
}

// smtpTransport pools live SMTP connections for one account and retires each
// connection after maxMessages sends. slots is the send permit: every
// in-flight message holds one, capacity bounds concurrency at maxConns, and
// both release and discard free the slot. A waiter blocked at the cap is
// therefore woken even when the holder's send failed and its connection was
// dropped; the waiter dials a replacement instead of waiting on idle forever.
type smtpTransport struct {
	dialer *gomail.Dialer
	dial   func() (gomail.SendCloser, error)

	slots chan struct{}
	idle  chan *pooledConn

	maxMessages int
}

type pooledConn struct {
	sc   gomail.SendCloser
	sent int
}

func (t *smtpTransport) Send(msg *OutgoingEmail) error {
	conn, err := t.acquire()
	if err != nil {
		return ClassifySendError(err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail))
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	if err := gomail.Send(conn.sc, m); err != nil {
		t.discard(conn)
		return ClassifySendError(err)
	}

	conn.sent++
	t.release(conn)
	return nil
}

func (t *smtpTransport) acquire() (*pooledConn, error) {
	t.slots <- struct{}{}

	select {
	case conn := <-t.idle:
		return conn, nil
	default:
	}

	sc, err := t.dial()
	if err != nil {
		<-t.slots
		return nil, err
	}
	return &pooledConn{sc: sc}, nil
}

func (t *smtpTransport) release(conn *pooledConn) {
	if conn.sent >= t.maxMessages {
		_ = conn.sc.Close()
	} else {
		select {
		case t.idle <- conn:
		default:
			_ = conn.sc.Close()
		}
	}
	<-t.slots
}

// discard drops a connection whose send failed and frees its slot so a
// capped waiter can dial a replacement.
func (t *smtpTransport) discard(conn *pooledConn) {
	_ = conn.sc.Close()
	<-t.slots
}

func (t *smtpTransport) closeAll() {
	for {
		select {
		case conn := <-t.idle:
			_ = conn.sc.Close()
		default:
			return
		}
	}
}
