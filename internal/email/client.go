package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// RawMessage is the undecoded RFC 822 content of one message
type RawMessage struct {
	UID  uint32
	Data []byte
}

// Mailbox is a connection to one IMAP folder
type Mailbox interface {
	Connect(ctx context.Context) error
	SelectFolder(ctx context.Context, folder string) error
	// FetchSince returns messages with a UID above watermark in ascending UID order
	FetchSince(ctx context.Context, watermark uint32, unseenOnly bool) ([]*RawMessage, error)
	Close() error
}

// ClientConfig configuration for IMAP client
type ClientConfig struct {
	Host           string
	Port           int
	UseTLS         bool
	Username       string
	Password       string
	DialTimeout    time.Duration
	CommandTimeout time.Duration
}

func (c ClientConfig) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client IMAP client for a single mailbox
type Client struct {
	config ClientConfig
	client *client.Client
	logger *slog.Logger
	mu     sync.Mutex
}

// NewClient creates a new IMAP client
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger.With("mailbox", cfg.Username),
	}
}

// Connect dials the server and logs in
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	timeout := c.config.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c.logger.Info("connecting to IMAP server", "server", c.config.address(), "tls", c.config.UseTLS)

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.address())
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if c.config.UseTLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: c.config.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("failed TLS handshake: %w", err)
		}
		conn = tlsConn
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create IMAP client: %w", err)
	}
	imapClient.Timeout = c.config.CommandTimeout

	if !c.config.UseTLS {
		if ok, _ := imapClient.SupportStartTLS(); ok {
			if err := imapClient.StartTLS(&tls.Config{ServerName: c.config.Host}); err != nil {
				imapClient.Logout()
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if err := imapClient.Login(c.config.Username, c.config.Password); err != nil {
		imapClient.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	c.client = imapClient
	c.logger.Info("connected to IMAP server")
	return nil
}

// SelectFolder selects the folder read-only
func (c *Client) SelectFolder(ctx context.Context, folder string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	if folder == "" {
		folder = "INBOX"
	}

	if _, err := c.client.Select(folder, true); err != nil {
		return fmt.Errorf("failed to select %s: %w", folder, err)
	}
	return nil
}

// FetchSince fetches messages with UID > watermark, optionally only unseen ones.
// Bodies are fetched with PEEK so the \Seen flag is left untouched.
func (c *Client) FetchSince(ctx context.Context, watermark uint32, unseenOnly bool) ([]*RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.Uid = new(imap.SeqSet)
	criteria.Uid.AddRange(watermark+1, 0) // 0 means *
	if unseenOnly {
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}

	found, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	// "n:*" always matches the last message, even when its UID is below n
	var uids []uint32
	for _, uid := range found {
		if uid > watermark {
			uids = append(uids, uid)
		}
	}
	if len(uids) == 0 {
		return nil, nil
	}
	slices.Sort(uids)

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	byUID := make(map[uint32][]byte, len(uids))
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			c.logger.Warn("message without body", "uid", msg.Uid)
			byUID[msg.Uid] = nil
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, body); err != nil {
			c.logger.Warn("failed to read message body", "uid", msg.Uid, "error", err)
		}
		byUID[msg.Uid] = buf.Bytes()
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}

	raws := make([]*RawMessage, 0, len(uids))
	for _, uid := range uids {
		if data, ok := byUID[uid]; ok {
			raws = append(raws, &RawMessage{UID: uid, Data: data})
		}
	}
	return raws, nil
}

// Close logs out, forcing the connection closed when the server does not answer
func (c *Client) Close() error {
	c.mu.Lock()
	imapClient := c.client
	c.client = nil
	c.mu.Unlock()

	if imapClient == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- imapClient.Logout()
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		return imapClient.Terminate()
	}
}
