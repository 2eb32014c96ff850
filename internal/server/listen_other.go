//go:build !unix

package server

import (
	"context"
	"fmt"
	"net"
)

func listenTCP(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	if reusePort {
		return nil, fmt.Errorf("reuse_port is not supported on this platform")
	}
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}
