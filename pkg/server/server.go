// Package server exposes a kvstore.Store over a length-prefixed TCP
// protocol (see pkg/wire): one goroutine per connection, dispatching
// begin/commit/abort/get/set/delete requests directly onto the store.
package server

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/emberkv/emberkv/pkg/kvstore"
	"github.com/emberkv/emberkv/pkg/logging"
	"github.com/emberkv/emberkv/pkg/wire"
)

var ErrServerClosed = errors.New("server is closed")

// Config contains server configuration. AdminTokenHash, if set, is the
// bcrypt hash of a token every connection must present in a wire.MsgAuth
// message before any begin/commit/abort/get/set/delete request is accepted;
// with no hash configured, connections start authenticated.
type Config struct {
	Address        string
	AdminTokenHash []byte
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address: ":4200",
	}
}

// HashAdminToken bcrypt-hashes a plaintext admin token for storage in
// Config.AdminTokenHash.
func HashAdminToken(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
}

// CheckAdminToken reports whether plaintext matches hash.
func CheckAdminToken(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

// Server serves a kvstore.Store to TCP clients.
type Server struct {
	listener net.Listener
	store    *kvstore.Store[string]
	config   *Config
	log      *logging.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]*ClientConn
	closed  bool
}

// New returns a Server backed by store. config may be nil for defaults.
func New(store *kvstore.Store[string], config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}

	return &Server{
		store:   store,
		config:  config,
		log:     logging.Default().Named("server"),
		clients: make(map[uuid.UUID]*ClientConn),
	}, nil
}

// Listen binds address and runs the accept loop until Close is called.
func (s *Server) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	s.log.Infof("listening on %s", address)
	return s.acceptLoop()
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			closed := s.closed
			s.mu.RUnlock()
			if closed {
				return nil
			}
			return err
		}

		clientID := uuid.New()
		client := &ClientConn{
			ID:            clientID,
			Conn:          conn,
			Server:        s,
			reader:        bufio.NewReader(conn),
			authenticated: len(s.config.AdminTokenHash) == 0,
		}

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		go client.Handle()
	}
}

// Close closes the listener and every open client connection.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, client := range s.clients {
		client.Conn.Close()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	return nil
}

func (s *Server) removeClient(id uuid.UUID) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}

// ClientConn is one accepted connection and its dispatch loop.
type ClientConn struct {
	ID     uuid.UUID
	Conn   net.Conn
	Server *Server
	reader *bufio.Reader

	authenticated bool
}

// Handle reads and dispatches messages until the connection closes.
func (c *ClientConn) Handle() {
	defer func() {
		c.Conn.Close()
		c.Server.removeClient(c.ID)
	}()

	for {
		var length uint32
		if err := binary.Read(c.reader, binary.LittleEndian, &length); err != nil {
			return
		}

		frame := make([]byte, length)
		if _, err := io.ReadFull(c.reader, frame); err != nil {
			return
		}

		msg, err := wire.DecodeMessage(frame)
		if err != nil {
			c.sendError(wire.ErrCodeDecode, err.Error())
			continue
		}

		respType, resp := c.dispatch(msg)
		if err := c.sendMessage(respType, resp); err != nil {
			return
		}
	}
}

func (c *ClientConn) dispatch(msg *wire.Message) (wire.MsgType, interface{}) {
	store := c.Server.store

	switch msg.Type {
	case wire.MsgPing:
		return wire.MsgPong, nil

	case wire.MsgAuth:
		var req wire.AuthRequest
		if err := wire.Decode(msg.Payload, &req); err != nil {
			return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeDecode, err.Error())
		}
		if !CheckAdminToken(c.Server.config.AdminTokenHash, req.Token) {
			return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeUnauthorized, "invalid admin token")
		}
		c.authenticated = true
		return wire.MsgOK, nil
	}

	if !c.authenticated {
		return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeUnauthorized, "connection has not authenticated")
	}

	switch msg.Type {
	case wire.MsgBegin:
		txn := store.BeginTxn()
		return wire.MsgTxnID, &wire.TxnIDResponse{TxnID: uint64(txn)}

	case wire.MsgCommit:
		var req wire.CommitRequest
		if err := wire.Decode(msg.Payload, &req); err != nil {
			return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeDecode, err.Error())
		}
		if err := store.CommitTxn(kvstore.TxnId(req.TxnID)); err != nil {
			return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeStore, err.Error())
		}
		return wire.MsgOK, nil

	case wire.MsgAbort:
		var req wire.AbortRequest
		if err := wire.Decode(msg.Payload, &req); err != nil {
			return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeDecode, err.Error())
		}
		if err := store.AbortTxn(kvstore.TxnId(req.TxnID)); err != nil {
			return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeStore, err.Error())
		}
		return wire.MsgOK, nil

	case wire.MsgGet:
		var req wire.GetRequest
		if err := wire.Decode(msg.Payload, &req); err != nil {
			return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeDecode, err.Error())
		}
		val, found, err := store.Get(kvstore.TxnId(req.TxnID), req.KeySpace, req.Key)
		if err != nil {
			return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeStore, err.Error())
		}
		return wire.MsgValue, &wire.ValueResponse{Value: val, Found: found}

	case wire.MsgSet:
		var req wire.SetRequest
		if err := wire.Decode(msg.Payload, &req); err != nil {
			return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeDecode, err.Error())
		}
		if err := store.Set(kvstore.TxnId(req.TxnID), req.KeySpace, req.Key, req.Value); err != nil {
			return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeStore, err.Error())
		}
		return wire.MsgOK, nil

	case wire.MsgDelete:
		var req wire.DeleteRequest
		if err := wire.Decode(msg.Payload, &req); err != nil {
			return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeDecode, err.Error())
		}
		if err := store.Delete(kvstore.TxnId(req.TxnID), req.KeySpace, req.Key); err != nil {
			return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeStore, err.Error())
		}
		return wire.MsgOK, nil

	default:
		return wire.MsgError, wire.NewErrorMessage(wire.ErrCodeProtocol, fmt.Sprintf("unknown message type: %d", msg.Type))
	}
}

func (c *ClientConn) sendMessage(msgType wire.MsgType, payload interface{}) error {
	data, err := wire.EncodeMessage(msgType, payload)
	if err != nil {
		return err
	}

	if err := binary.Write(c.Conn, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err = c.Conn.Write(data)
	return err
}

func (c *ClientConn) sendError(code int, message string) {
	c.sendMessage(wire.MsgError, wire.NewErrorMessage(code, message))
}
