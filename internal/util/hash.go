// Package util provides logging, peer tagging and traffic statistics shared
// by the mesh packages.
package util

import (
	"fmt"
	"hash/fnv"
)

// PeerTag computes a short fixed-width tag for a remote peer id. Peer ids
// issued by relays are long (UUIDs); the tag keeps per-peer log lines aligned
// and greppable. It is used solely for display and does not need to be
// reversible or collision free.
func PeerTag(peerID string) string {
	h := fnv.New32a()
	h.Write([]byte(peerID))
	return fmt.Sprintf("%08x", h.Sum32())
}
