package client

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatbox/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call invokes a unary method. Errors come back as application errors.
func (c *Client) Call(ctx context.Context, service, method string, req, resp any) error {
	in, err := api.Encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+service+"/"+method, in, out); err != nil {
		return api.FromStatus(err)
	}
	if resp == nil {
		return nil
	}
	return api.Decode(out, resp)
}

// Stream is a server stream of T values.
type Stream[T any] struct {
	cs grpc.ClientStream
}

// Recv blocks for the next value. It returns io.EOF when the daemon ends
// the stream.
func (s *Stream[T]) Recv() (*T, error) {
	out := new(structpb.Struct)
	if err := s.cs.RecvMsg(out); err != nil {
		return nil, api.FromStatus(err)
	}
	v := new(T)
	if err := api.Decode(out, v); err != nil {
		return nil, err
	}
	return v, nil
}

func watch[T any](ctx context.Context, c *Client, service, method string, req any) (*Stream[T], error) {
	in, err := api.Encode(req)
	if err != nil {
		return nil, err
	}
	desc := &grpc.StreamDesc{StreamName: method, ServerStreams: true}
	cs, err := c.conn.NewStream(ctx, desc, "/"+service+"/"+method)
	if err != nil {
		return nil, api.FromStatus(err)
	}
	if err := cs.SendMsg(in); err != nil {
		return nil, api.FromStatus(err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, api.FromStatus(err)
	}
	return &Stream[T]{cs: cs}, nil
}

func (c *Client) Status(ctx context.Context) (*api.StatusReply, error) {
	var resp api.StatusReply
	return &resp, c.Call(ctx, api.SessionServiceName, "GetStatus", api.Empty{}, &resp)
}

func (c *Client) SignUp(ctx context.Context, username, email, password string) (*api.PrincipalReply, error) {
	var resp api.PrincipalReply
	req := api.SignUpRequest{Username: username, Email: email, Password: password}
	return &resp, c.Call(ctx, api.SessionServiceName, "SignUp", req, &resp)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*api.PrincipalReply, error) {
	var resp api.PrincipalReply
	req := api.SignInRequest{Email: email, Password: password}
	return &resp, c.Call(ctx, api.SessionServiceName, "SignIn", req, &resp)
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.Call(ctx, api.SessionServiceName, "SignOut", api.Empty{}, nil)
}

func (c *Client) UpdateProfile(ctx context.Context, req api.ProfileRequest) (*api.PrincipalReply, error) {
	var resp api.PrincipalReply
	return &resp, c.Call(ctx, api.SessionServiceName, "UpdateProfile", req, &resp)
}

func (c *Client) WatchSession(ctx context.Context) (*Stream[api.SessionEvent], error) {
	return watch[api.SessionEvent](ctx, c, api.SessionServiceName, "WatchSession", api.Empty{})
}

func (c *Client) ListChats(ctx context.Context) (*api.ChatsReply, error) {
	var resp api.ChatsReply
	return &resp, c.Call(ctx, api.DirectoryServiceName, "ListChats", api.Empty{}, &resp)
}

func (c *Client) SearchUsers(ctx context.Context, query string) (*api.UsersReply, error) {
	var resp api.UsersReply
	return &resp, c.Call(ctx, api.DirectoryServiceName, "SearchUsers", api.SearchRequest{Query: query}, &resp)
}

func (c *Client) StartChat(ctx context.Context, principalID string) (*api.StartChatReply, error) {
	var resp api.StartChatReply
	return &resp, c.Call(ctx, api.DirectoryServiceName, "StartChat", api.StartChatRequest{PrincipalID: principalID}, &resp)
}

func (c *Client) MarkSeen(ctx context.Context, conversationID string) error {
	return c.Call(ctx, api.DirectoryServiceName, "MarkSeen", api.ConversationRequest{ConversationID: conversationID}, nil)
}

func (c *Client) WatchChats(ctx context.Context) (*Stream[api.ChatsReply], error) {
	return watch[api.ChatsReply](ctx, c, api.DirectoryServiceName, "WatchChats", api.Empty{})
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) (*api.MessagesReply, error) {
	var resp api.MessagesReply
	return &resp, c.Call(ctx, api.TranscriptServiceName, "ListMessages", api.ConversationRequest{ConversationID: conversationID}, &resp)
}

func (c *Client) SendText(ctx context.Context, conversationID, text string) error {
	req := api.SendRequest{ConversationID: conversationID, Text: text}
	return c.Call(ctx, api.TranscriptServiceName, "SendText", req, nil)
}

func (c *Client) SendImage(ctx context.Context, conversationID, path string) error {
	req := api.SendRequest{ConversationID: conversationID, ImagePath: path}
	return c.Call(ctx, api.TranscriptServiceName, "SendImage", req, nil)
}

func (c *Client) ToggleLike(ctx context.Context, req api.LikeRequest) (*api.MessagesReply, error) {
	var resp api.MessagesReply
	return &resp, c.Call(ctx, api.TranscriptServiceName, "ToggleLike", req, &resp)
}

func (c *Client) WatchMessages(ctx context.Context, conversationID string) (*Stream[api.MessagesReply], error) {
	return watch[api.MessagesReply](ctx, c, api.TranscriptServiceName, "WatchMessages", api.ConversationRequest{ConversationID: conversationID})
}

func (c *Client) Reconcile(ctx context.Context) (*api.RepairsReply, error) {
	var resp api.RepairsReply
	return &resp, c.Call(ctx, api.SyncServiceName, "Reconcile", api.Empty{}, &resp)
}

func (c *Client) WatchRepairs(ctx context.Context) (*Stream[api.Repair], error) {
	return watch[api.Repair](ctx, c, api.SyncServiceName, "WatchRepairs", api.Empty{})
}
