// Package transport carries JSON messages to and from the locale controller
// over UDP.
//
// Every message is two datagrams sent to the same peer:
//
//	+---------------------------+      +------------------------+
//	| body length (u64, LE, 8B) | ---> | JSON body (UTF-8, N B) |
//	+---------------------------+      +------------------------+
//
// There is no checksum, sequence number, or retry. Requests and responses
// are correlated by position only, so a Conn allows one request in flight
// (see Conn.RoundTrip). Concurrent actors each need their own Conn.
//
// Receives are bounded: each waits at most the connection timeout (or the
// context deadline, if sooner) and fails with ErrTimeout rather than
// blocking forever.
//
// Usage:
//
//	conn, err := transport.Listen("0.0.0.0:11001")
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	dest, _ := transport.ResolveDestination("192.168.0.4:11000")
//	body, err := conn.RoundTrip(ctx, dest, map[string]string{"command": "get_all"})
package transport
