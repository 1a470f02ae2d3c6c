package server

import (
	"log"

	"corerpc/proto"
)

// writeLoop is the per-connection writer coroutine (spec.md §4.7). It owns
// the write half of c exclusively. Batching (drain everything already
// queued before flushing) is a required performance characteristic, not an
// optimization (spec.md §9): flushing after every single response would
// needlessly serialize the writer behind the network for bursty handlers.
func writeLoop(c *conn, respCh <-chan respItem) {
	for item := range respCh {
		if err := writeOne(c, item); err != nil {
			log.Printf("corerpc: server write failed: %v", err)
			return
		}
	drain:
		for {
			select {
			case item, ok := <-respCh:
				if !ok {
					break drain
				}
				if err := writeOne(c, item); err != nil {
					log.Printf("corerpc: server write failed: %v", err)
					return
				}
			default:
				break drain
			}
		}
		if err := c.flush(); err != nil {
			log.Printf("corerpc: server flush failed: %v", err)
			return
		}
	}
}

func writeOne(c *conn, item respItem) error {
	var head *proto.RespHeader
	switch item.flag {
	case proto.FlagOK:
		head = proto.OKResponse(item.seq, uint32(len(item.msg)), uint32(len(item.blob)))
	case proto.FlagErrno:
		head = proto.ErrnoResponse(item.seq, item.errno)
	case proto.FlagRemote:
		head = proto.RemoteErrResponse(item.seq, uint32(len(item.text)))
	default:
		head = proto.ErrnoResponse(item.seq, 0)
	}

	if err := c.writeTimeout(proto.EncodeRespHeader(head)); err != nil {
		return err
	}
	switch item.flag {
	case proto.FlagOK:
		if err := c.writeTimeout(item.msg); err != nil {
			return err
		}
		if err := c.writeTimeout(item.blob); err != nil {
			return err
		}
	case proto.FlagRemote:
		if err := c.writeTimeout([]byte(item.text)); err != nil {
			return err
		}
	}
	return nil
}
