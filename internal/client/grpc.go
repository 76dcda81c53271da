package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

// rulesService is the fully-qualified name of the read-only gRPC service.
const rulesService = "tagrules.v1.RulesService"

// GRPCClient implements Reader over the read-only gRPC service. Requests and
// replies are google.protobuf.Struct messages carrying the same fields as
// the HTTP API.
type GRPCClient struct {
	conn     *grpc.ClientConn
	token    string
	clientID string
}

// NewGRPCClient connects to the given gRPC address and returns a client.
// clientID is sent as x-client-id so the server can attribute lookups.
func NewGRPCClient(addr, token, clientID string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token, clientID: clientID}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.invoke(ctx, "Health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (c *GRPCClient) Version(ctx context.Context) (int64, error) {
	var resp struct {
		Version int64 `json:"version"`
	}
	if err := c.invoke(ctx, "GetVersion", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Version, nil
}

// GetTree mirrors HTTPClient.GetTree, using the "if_version" and "if_epoch"
// fields in place of If-None-Match.
func (c *GRPCClient) GetTree(ctx context.Context, known model.Revision) (*model.Tree, error) {
	var in map[string]any
	if known != (model.Revision{}) {
		in = map[string]any{"if_version": known.Version, "if_epoch": known.Epoch}
	}
	var resp struct {
		model.Tree
		NotModified bool `json:"not_modified"`
	}
	if err := c.invoke(ctx, "GetTree", in, &resp); err != nil {
		return nil, err
	}
	if resp.NotModified {
		return nil, ErrNotModified
	}
	return &resp.Tree, nil
}

func (c *GRPCClient) Expand(ctx context.Context, tags []string) (*ExpandResult, error) {
	list := make([]any, len(tags))
	for i, t := range tags {
		list[i] = t
	}
	var res ExpandResult
	if err := c.invoke(ctx, "ExpandTags", map[string]any{"tags": list}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// invoke calls one unary method and decodes the Struct reply into out
// through its JSON form.
func (c *GRPCClient) invoke(ctx context.Context, method string, in map[string]any, out any) error {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	if c.clientID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-client-id", c.clientID)
	}

	reply := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+rulesService+"/"+method, req, reply); err != nil {
		return err
	}
	data, err := protojson.Marshal(reply)
	if err != nil {
		return fmt.Errorf("decoding reply: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding reply: %w", err)
	}
	return nil
}
