package readers

// Read side of the SWGB savegame container.
//
// There is no format documentation for these files.  Everything here was
// worked out by staring at decompressed buffers: player records are not
// parsed from a schema, they are *found* by scanning for a signature and
// then checking that what follows looks plausible enough to be a resource
// block.

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"swgbdump/types"
)

// Signature is the 6-byte pattern that precedes every player's resource
// block.
var Signature = []byte{0x16, 0xdb, 0x00, 0x00, 0x00, 0x21}

const (
	Resource_offset = 6  // resource block sits immediately after the signature
	Resource_size   = 16 // four 32-bit floats

	// Plausibility range for a resource stockpile.  Anything outside
	// means the signature match was a false positive.
	RES_MIN = 0.0
	RES_MAX = 100000.0

	min_trailing = 32  // scanning stops when fewer bytes than this remain
	name_window  = 512 // how far before the signature a name is looked for
	name_max     = 32  // longest name the game seems to store
)

// framing_order is the order decompression is attempted in.  The middle
// entry is indistinguishable from the first under Go's zlib reader; it is
// kept so the list matches the known-good sequence of configurations.
var framing_order = []types.Framing{types.FRAME_ZLIB, types.FRAME_ZLIB_15, types.FRAME_RAW}

// Decompress tries every known framing in order and returns the first
// buffer that inflates cleanly, along with the framing that produced it.
// If nothing works the file is beyond us: types.Err_decode.
func Decompress(raw []byte, sink types.Sink) ([]byte, types.Framing, error) {
	for _, framing := range framing_order {
		data, err := inflate(raw, framing)
		if err != nil {
			sink.Send(types.Event{Kind: types.EV_DECOMPRESS_FAILED,
				Text: fmt.Sprintf("failed to decompress with framing=%v", framing)})
			continue
		}
		sink.Send(types.Event{Kind: types.EV_DECOMPRESSED,
			Text: fmt.Sprintf("successfully decompressed with framing=%v (%v -> %v bytes)", framing, len(raw), len(data))})
		return data, framing, nil
	}

	return nil, 0, types.Err_decode
}

func inflate(raw []byte, framing types.Framing) ([]byte, error) {
	var r io.ReadCloser
	if framing == types.FRAME_RAW {
		r = flate.NewReader(bytes.NewReader(raw))
	} else {
		var err error
		r, err = zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
	}
	defer r.Close()

	return io.ReadAll(r)
}

// Find_anchors returns the offset of every signature occurrence, left to
// right.  The search restarts one byte past each match, so adjacent and
// overlapping occurrences all count.  Scanning stops once fewer than 32
// bytes remain; a resource block can't fit in less anyway.
//
// The buffer is read-only during a scan, so re-scanning is safe and gives
// the same anchors every time.
func Find_anchors(data []byte) []int {
	anchors := []int{}

	pos := 0
	for pos < len(data)-min_trailing {
		n := bytes.Index(data[pos:], Signature)
		if n < 0 {
			break
		}
		anchors = append(anchors, pos+n)
		pos = pos + n + 1
	}

	return anchors
}

// Read_resources reads the four-float resource block behind an anchor.
// All four values must sit inside the plausibility range or the whole
// anchor is rejected - a partial match is just noise that happened to
// contain the signature.
//
// Accepted values come back in canonical [wood, food, nova, ore] order.
// The first two slots are stored swapped relative to what the game UI
// shows; the swap below was derived by editing stockpiles in-game and
// diffing saves.  Do not "fix" it.
func Read_resources(data []byte, anchor int) ([4]float32, bool) {
	start := anchor + Resource_offset
	if start+Resource_size > len(data) {
		return [4]float32{}, false
	}

	raw := [4]float32{}
	for i := range raw {
		v := math.Float32frombits(binary.LittleEndian.Uint32(data[start+4*i:]))
		if !(v >= RES_MIN && v <= RES_MAX) { // NaN fails this too
			return [4]float32{}, false
		}
		raw[i] = v
	}

	return [4]float32{raw[1], raw[0], raw[2], raw[3]}, true
}

// Scan_names walks the window before an anchor trying to recover a player
// name, byte by byte, left to right.  At each offset two heuristics are
// tried:
//
//  1. Length marker: a 09 00 pair, name bytes follow.
//  2. Bare run: the offset itself starts a run of at least 4 name
//     characters.
//
// Candidates are bounded to 32 bytes, cut at the first zero byte, and
// must be 7-bit ASCII made of alphanumerics and whitespace.  Every
// candidate that passes is handed to visit; visit returning true stops
// the walk.  The caller decides what "success" means - loading takes the
// first candidate, saving takes the first one that matches a player.
func Scan_names(data []byte, anchor int, visit func(name string, offset int) bool) {
	start := anchor - name_window
	if start < 0 {
		start = 0
	}
	end := anchor

	for i := start; i < end-2; i++ {
		if data[i] == 0x09 && data[i+1] == 0x00 {
			if name, ok := marker_name(data, i+2, end); ok {
				if visit(name, i+2) {
					return
				}
			}
			continue
		}
		if i+4 <= end {
			if name, ok := run_name(data, i, end); ok {
				if visit(name, i) {
					return
				}
			}
		}
	}
}

// marker_name takes everything up to the first zero byte (or the 32-byte
// cap) and then applies the acceptance rules.  Minimum trimmed length is
// 3; two characters is too short to trust.
func marker_name(data []byte, start, end int) (string, bool) {
	limit := min(start+name_max, end)

	j := start
	for j < limit && data[j] != 0 {
		j++
	}
	if j == start {
		return "", false
	}

	return check_name(data[start:j], 3)
}

// run_name requires the run itself to be made of name characters - it
// stops at the first byte that isn't one, and needs at least 4 before
// that.  Without the marker there is nothing else vouching for the
// candidate, so the bar is higher than marker_name's.
func run_name(data []byte, start, end int) (string, bool) {
	limit := min(start+name_max, end)

	j := start
	valid := 0
	for j < limit && data[j] != 0 {
		if !is_name_byte(data[j]) {
			break
		}
		valid++
		j++
	}
	if valid < 4 {
		return "", false
	}

	return check_name(data[start:j], 4)
}

// is_name_byte: ASCII alphanumeric or whitespace.  Tabs and friends count
// here but are thrown out later by check_name, matching how candidates
// were classified when the heuristics were tuned.
func is_name_byte(b byte) bool {
	switch {
	case b >= '0' && b <= '9', b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z':
		return true
	case b == ' ', b == '\t', b == '\n', b == '\v', b == '\f', b == '\r':
		return true
	}
	return false
}

// check_name applies the shared acceptance rules: strict 7-bit ASCII,
// trimmed, at least min_len characters, and every remaining character
// alphanumeric or a plain space.
func check_name(raw []byte, min_len int) (string, bool) {
	for _, b := range raw {
		if b >= 0x80 {
			return "", false
		}
	}

	name := strings.TrimSpace(string(raw))
	if len(name) < min_len {
		return "", false
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b == ' ' || b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' {
			continue
		}
		// Interior tabs/newlines got counted as name bytes during the
		// run scan but don't survive here; real names are words.
		return "", false
	}

	return name, true
}

// Resolve_name recovers the name for an accepted anchor, or falls back to
// "Player {n}" in discovery order.  The first candidate the window scan
// accepts wins; there is no backtracking, even if a later offset would
// have produced a nicer name.
func Resolve_name(data []byte, anchor int, number int, sink types.Sink) string {
	found := ""
	Scan_names(data, anchor, func(name string, offset int) bool {
		found = name
		sink.Send(types.Event{Kind: types.EV_NAME, Offset: offset, Name: name,
			Text: fmt.Sprintf("found name %q at offset %v", name, offset)})
		return true
	})
	if found == "" {
		found = fmt.Sprintf("Player %v", number)
		sink.Send(types.Event{Kind: types.EV_NAME_DEFAULT, Offset: anchor, Name: found,
			Text: fmt.Sprintf("no name recovered, using %q", found)})
	}

	return found
}

// Find_players runs the whole discovery pass over a decompressed buffer:
// scan for anchors, validate each resource block, resolve names, number
// the survivors in scan order.  Anchors that fail validation are skipped
// silently (beyond the event) - false signature hits are entirely normal.
func Find_players(data []byte, sink types.Sink) []*types.Player {
	players := []*types.Player{}

	for _, anchor := range Find_anchors(data) {
		sink.Send(types.Event{Kind: types.EV_ANCHOR, Offset: anchor,
			Text: fmt.Sprintf("found signature at offset %v", anchor)})

		resources, ok := Read_resources(data, anchor)
		if !ok {
			sink.Send(types.Event{Kind: types.EV_REJECT, Offset: anchor,
				Text: "resource block implausible, skipping"})
			continue
		}

		index := len(players) + 1
		name := Resolve_name(data, anchor, index, sink)
		sink.Send(types.Event{Kind: types.EV_ACCEPT, Offset: anchor, Name: name,
			Text: fmt.Sprintf("player %v: %q %v", index, name, resources)})

		players = append(players, &types.Player{Name: name, Index: index, Resources: resources})
	}

	return players
}

// Parse_savegame turns raw file bytes into a session: decompress, then
// discover players.  Zero players is not an error - the registry is just
// empty, and the caller hears about it through the sink.
func Parse_savegame(raw []byte, sink types.Sink) (*types.Savegame, error) {
	data, framing, err := Decompress(raw, sink)
	if err != nil {
		return nil, err
	}

	sg := &types.Savegame{Framing: framing, Data: data}
	sg.Players = Find_players(data, sink)
	if len(sg.Players) == 0 {
		sink.Send(types.Event{Kind: types.EV_NO_PLAYERS, Text: "could not find any player entries"})
	}

	return sg, nil
}

// Read_savegame reads and parses a savegame file.
func Read_savegame(path string, sink types.Sink) (*types.Savegame, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse_savegame(raw, sink)
}
