package client

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"slices"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/alfredjeanlab/tagrules/internal/expand"
	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/ruletree"
	"github.com/alfredjeanlab/tagrules/internal/server"
	"github.com/alfredjeanlab/tagrules/internal/store/sqlite"
)

// newGRPCPair serves one database over both transports and returns an HTTP
// client for seeding plus a gRPC client using token.
func newGRPCPair(t *testing.T, token string) (*HTTPClient, *GRPCClient) {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	rs := server.NewRulesServer(ruletree.New(s), expand.New(s), nil, "test-node")

	lis := bufconn.Listen(1 << 20)
	gs := server.NewGRPCServer(rs, "secret")
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	gc, err := NewGRPCClient("passthrough:///bufnet", token, "search-1",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("grpc client: %v", err)
	}
	t.Cleanup(func() { gc.Close() })

	return newTestClient(t, rs.NewHTTPHandler("secret"), "secret"), gc
}

func TestGRPCClient_Reads(t *testing.T) {
	hc, gc := newGRPCPair(t, "secret")
	ctx := context.Background()

	req := Request{ClientID: "alice"}
	animal, v, err := hc.CreateGroup(ctx, req, "animal", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	req.BaseVersion = v
	if _, v, err = hc.AddKeyword(ctx, req, animal.ID, "animal"); err != nil {
		t.Fatal(err)
	}
	req.BaseVersion = v
	cat, v, err := hc.CreateGroup(ctx, req, "cat", &animal.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	req.BaseVersion = v
	if _, v, err = hc.AddKeyword(ctx, req, cat.ID, "cat"); err != nil {
		t.Fatal(err)
	}

	if status, err := gc.Health(ctx); err != nil || status != "ok" {
		t.Fatalf("Health = %q, %v", status, err)
	}
	got, err := gc.Version(ctx)
	if err != nil || got != v {
		t.Fatalf("Version = %d, %v; want %d", got, err, v)
	}

	tree, err := gc.GetTree(ctx, model.Revision{})
	if err != nil {
		t.Fatal(err)
	}
	if tree.Version != v || len(tree.Roots) != 1 {
		t.Fatalf("tree = %+v", tree)
	}
	root := tree.Roots[0]
	if root.ID != animal.ID || len(root.Children) != 1 || root.Children[0].Name != "cat" {
		t.Fatalf("root = %+v", root)
	}
	if _, err := gc.GetTree(ctx, tree.Revision()); !errors.Is(err, ErrNotModified) {
		t.Fatalf("expected ErrNotModified, got %v", err)
	}

	res, err := gc.Expand(ctx, []string{"animal"})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.Tags, []string{"animal", "cat"}) || res.Version != v {
		t.Fatalf("expand = %+v", res)
	}
}

func TestGRPCClient_Unauthenticated(t *testing.T) {
	_, gc := newGRPCPair(t, "")
	ctx := context.Background()

	if _, err := gc.Health(ctx); err != nil {
		t.Fatalf("Health should not need a token: %v", err)
	}
	if _, err := gc.Version(ctx); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}
