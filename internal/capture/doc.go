// Package capture records DRI link traffic to pcap files and replays it.
//
// Captures use link type LINKTYPE_USER0. Every packet holds one read or
// write on the link: a direction byte (0 from the monitor, 1 to it) and
// the raw, still framed bytes. Wireshark opens the files as-is, and a
// Replay feeds them back through the synchronizer as if the monitor were
// connected:
//
//	rec, _ := capture.NewRecorder(f)
//	link = rec.Tap(link)
//
//	r, _ := capture.NewReader(f)
//	session := protocol.NewSession(name, capture.NewReplay(r), nil, handler)
package capture
