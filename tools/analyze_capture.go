//go:build ignore

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/muurk/drilink/internal/capture"
	"github.com/muurk/drilink/internal/protocol"
)

// directionStats collects what one side of the link sent
type directionStats struct {
	packets     int
	bytes       int
	mainTypes   map[string]int
	values      map[string]int
	unknown     map[string]int
	requests    []string
	badRecords  [][]byte
	decodeErrs  int
	nbrGaps     int
	lastNbr     int
	first, last time.Time
}

func newDirectionStats() *directionStats {
	return &directionStats{
		mainTypes: make(map[string]int),
		values:    make(map[string]int),
		unknown:   make(map[string]int),
		lastNbr:   -1,
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: analyze_capture <capture.pcap>")
		fmt.Println("Example: go run tools/analyze_capture.go session.pcap")
		os.Exit(1)
	}

	filename := os.Args[1]
	f, err := os.Open(filename)
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	r, err := capture.NewReader(f)
	if err != nil {
		fmt.Printf("Error reading capture: %v\n", err)
		os.Exit(1)
	}

	decoder := protocol.NewDecoder(nil)
	stats := map[capture.Direction]*directionStats{
		capture.FromMonitor: newDirectionStats(),
		capture.ToMonitor:   newDirectionStats(),
	}
	syncers := map[capture.Direction]*protocol.Synchronizer{
		capture.FromMonitor: protocol.NewSynchronizer(),
		capture.ToMonitor:   protocol.NewSynchronizer(),
	}

	for {
		pkt, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Printf("Error reading packet: %v\n", err)
			os.Exit(1)
		}

		st := stats[pkt.Direction]
		st.packets++
		st.bytes += len(pkt.Data)
		if st.first.IsZero() {
			st.first = pkt.Time
		}
		st.last = pkt.Time

		syncer := syncers[pkt.Direction]
		syncer.Feed(pkt.Data)
		for {
			frame, ok := syncer.Next()
			if !ok {
				break
			}
			analyzeFrame(st, decoder, frame, pkt.Direction)
		}
	}

	fmt.Printf("=== DRI Capture Analyzer ===\n")
	fmt.Printf("File: %s\n\n", filename)

	for _, dir := range []capture.Direction{capture.FromMonitor, capture.ToMonitor} {
		printStats(dir, stats[dir], syncers[dir].Stats())
	}
}

func analyzeFrame(st *directionStats, decoder *protocol.Decoder, frame *protocol.Frame, dir capture.Direction) {
	if dir == capture.ToMonitor {
		if req, err := protocol.ParseRequest(frame.Payload); err == nil {
			st.requests = append(st.requests, req.String())
			return
		}
	}

	rec, err := decoder.Decode(frame)
	if err != nil {
		st.decodeErrs++
		if len(st.badRecords) < 3 {
			st.badRecords = append(st.badRecords, frame.Payload)
		}
		return
	}

	st.mainTypes[rec.Header.MainType.String()]++
	nbr := int(rec.Header.RecordNumber)
	if st.lastNbr >= 0 && nbr != (st.lastNbr+1)%256 {
		st.nbrGaps++
	}
	st.lastNbr = nbr

	for _, v := range rec.Values {
		st.values[v.Kind().String()]++
		if u, ok := v.(*protocol.Unknown); ok {
			st.unknown[fmt.Sprintf("%s sr_type %d", u.MainType, u.Type)]++
		}
	}
}

func printStats(dir capture.Direction, st *directionStats, sync protocol.SyncStats) {
	title := "From monitor (rx)"
	if dir == capture.ToMonitor {
		title = "To monitor (tx)"
	}
	fmt.Printf("========================================\n")
	fmt.Printf("%s\n", title)
	fmt.Printf("========================================\n\n")

	if st.packets == 0 {
		fmt.Printf("No packets\n\n")
		return
	}

	fmt.Printf("Packets:          %d (%d bytes)\n", st.packets, st.bytes)
	fmt.Printf("Span:             %s\n", st.last.Sub(st.first).Round(time.Millisecond))
	fmt.Printf("Frames:           %d\n", sync.Frames)
	fmt.Printf("Resyncs:          %d (%d bytes skipped, %d buffer resets)\n", sync.Failures, sync.DiscardedBytes, sync.Resets)
	fmt.Printf("Idle flag pairs:  %d\n", sync.IdleFrames)
	fmt.Printf("Decode errors:    %d\n", st.decodeErrs)
	fmt.Printf("Record nbr gaps:  %d\n\n", st.nbrGaps)

	printCounts("Records by main type", st.mainTypes)
	printCounts("Values by kind", st.values)
	printCounts("Unknown subrecords", st.unknown)

	if len(st.requests) > 0 {
		fmt.Println("Requests:")
		for _, r := range st.requests {
			fmt.Printf("  %s\n", r)
		}
		fmt.Println()
	}

	for i, raw := range st.badRecords {
		fmt.Printf("Undecodable record %d (%d bytes):\n", i+1, len(raw))
		dump := hex.Dump(raw)
		if len(raw) > 128 {
			dump = hex.Dump(raw[:128]) + "  ...\n"
		}
		fmt.Print(indent(dump, "  "))
		fmt.Println()
	}
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-24s %d\n", k, counts[k])
	}
	fmt.Println()
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}
