package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/rpc"
	"sync"

	"github.com/wfunc/soundbeats/api"
	"github.com/wfunc/soundbeats/auth"
	"github.com/wfunc/soundbeats/logger"
)

// ServiceName is the name CommandService is registered under.
const ServiceName = "CommandService"

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
	closed   bool
	mutex    sync.Mutex
}

// NewServer listens on addr and registers every receiver in services.
func NewServer(addr string, services map[string]interface{}) (*Server, error) {
	srv := rpc.NewServer()
	for name, svc := range services {
		if err := srv.RegisterName(name, svc); err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

// Addr is the bound address, useful when addr used port 0.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mutex.Lock()
			closed := s.closed
			s.mutex.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	logger.Log.Info("Stopping RPC server.")
	s.listener.Close()
}

// CommandService exposes the command dispatcher over net/rpc.
type CommandService struct {
	dispatcher *api.Dispatcher
	auth       *auth.Service
}

func NewCommandService(dispatcher *api.Dispatcher, authService *auth.Service) *CommandService {
	return &CommandService{dispatcher: dispatcher, auth: authService}
}

// ExecuteArgs names a command and carries its JSON arguments.
type ExecuteArgs struct {
	Token   string
	Type    string
	Payload []byte
}

// ExecuteReply holds the JSON result, or Error when the command failed.
type ExecuteReply struct {
	Result []byte
	Error  *api.Error
}

// Execute runs one command. Command failures travel in reply.Error; the
// returned error is reserved for transport problems.
func (cs *CommandService) Execute(args *ExecuteArgs, reply *ExecuteReply) error {
	caller, err := cs.auth.Verify(args.Token)
	if err != nil {
		reply.Error = &api.Error{Code: api.CodeUnauthorized, Message: err.Error()}
		return nil
	}

	var raw json.RawMessage
	if len(args.Payload) > 0 {
		raw = args.Payload
	}
	result, apiErr := cs.dispatcher.Execute(context.Background(), caller, args.Type, raw)
	if apiErr != nil {
		reply.Error = apiErr
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	reply.Result = data
	return nil
}

// Client calls CommandService on a remote server.
type Client struct {
	client *rpc.Client
	token  string
}

func Dial(addr, token string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{client: c, token: token}, nil
}

// Execute runs command with args marshalled as JSON and decodes the result into out (may be nil).
func (c *Client) Execute(command string, args interface{}, out interface{}) error {
	var payload []byte
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return err
		}
		payload = data
	}

	var reply ExecuteReply
	if err := c.client.Call(ServiceName+".Execute", &ExecuteArgs{Token: c.token, Type: command, Payload: payload}, &reply); err != nil {
		return err
	}
	if reply.Error != nil {
		return reply.Error
	}
	if out != nil && len(reply.Result) > 0 {
		return json.Unmarshal(reply.Result, out)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
