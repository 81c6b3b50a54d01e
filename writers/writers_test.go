package writers

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"swgbdump/readers"
	"swgbdump/types"
)

// TODO: unduplicate fixture-building helpers shared with the readers tests

func append_resources(buf []byte, raw [4]float32) []byte {
	buf = append(buf, readers.Signature...)
	for _, v := range raw {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		buf = append(buf, b[:]...)
	}
	return buf
}

func append_player(buf []byte, name string, raw [4]float32) []byte {
	buf = append(buf, make([]byte, 600)...)
	if name != "" {
		buf = append(buf, 0x09, 0x00)
		buf = append(buf, []byte(name)...)
		buf = append(buf, 0)
	}
	return append_resources(buf, raw)
}

func two_player_save(t *testing.T) *types.Savegame {
	t.Helper()
	buf := append_player(nil, "Ace Pilot", [4]float32{10, 20, 30, 40})
	buf = append_player(buf, "Darth", [4]float32{50, 60, 70, 80})
	buf = append(buf, make([]byte, 64)...)

	sg := &types.Savegame{Framing: types.FRAME_RAW, Data: buf}
	sg.Players = readers.Find_players(buf, nil)
	if len(sg.Players) != 2 {
		t.Fatalf("fixture broken: expected 2 players, got %v", len(sg.Players))
	}
	return sg
}

func read_raw_block(data []byte, anchor int) [4]float32 {
	out := [4]float32{}
	start := anchor + readers.Resource_offset
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[start+4*i:]))
	}
	return out
}

func Test_Patch_players(t *testing.T) {
	sg := two_player_save(t)

	// canonical [20 10 30 40] must come back as raw [10 20 30 40]
	if err := sg.Edit(1, [4]float32{20, 10, 30, 40}); err != nil {
		t.Fatal(err)
	}
	if err := sg.Edit(2, [4]float32{999, 888, 777, 666}); err != nil {
		t.Fatal(err)
	}

	missed := Patch_players(sg, nil)
	if len(missed) != 0 {
		t.Errorf("unexpected unmatched players: %v", missed)
	}

	anchors := readers.Find_anchors(sg.Data)
	if len(anchors) != 2 {
		t.Fatalf("fixture broken: %v anchors", len(anchors))
	}
	if got := read_raw_block(sg.Data, anchors[0]); got != [4]float32{10, 20, 30, 40} {
		t.Errorf("first block written in wrong order: %v", got)
	}
	if got := read_raw_block(sg.Data, anchors[1]); got != [4]float32{888, 999, 777, 666} {
		t.Errorf("second block written in wrong order: %v", got)
	}

	// ...and reading the patched buffer back gives the edited registry
	reread := readers.Find_players(sg.Data, nil)
	if len(reread) != 2 {
		t.Fatalf("patched buffer unreadable: %v players", len(reread))
	}
	if reread[0].Resources != [4]float32{20, 10, 30, 40} {
		t.Errorf("player 1 round trip: %v", reread[0].Resources)
	}
	if reread[1].Resources != [4]float32{999, 888, 777, 666} {
		t.Errorf("player 2 round trip: %v", reread[1].Resources)
	}
}

func Test_Patch_players_unmatched(t *testing.T) {
	sg := two_player_save(t)

	// A player whose name exists nowhere in the buffer - typically one
	// that got a synthetic "Player N" fallback at load time.
	sg.Players = append(sg.Players, &types.Player{Name: "Player 3", Index: 3, Resources: [4]float32{1, 1, 1, 1}})
	if err := sg.Edit(1, [4]float32{5, 5, 5, 5}); err != nil {
		t.Fatal(err)
	}

	missed := Patch_players(sg, nil)
	if len(missed) != 1 || missed[0] != "Player 3" {
		t.Errorf("expected [\"Player 3\"] unmatched, got %v", missed)
	}

	// The save is best-effort: the matchable players still got patched
	anchors := readers.Find_anchors(sg.Data)
	if got := read_raw_block(sg.Data, anchors[0]); got != [4]float32{5, 5, 5, 5} {
		t.Errorf("matchable player not patched: %v", got)
	}
}

// Two players sharing a name is a known weakness of name-based
// re-matching: both registry entries resolve to the same anchor, so only
// the first one's edit lands, and - because the patched set is keyed by
// name - neither is reported as missed.  This test pins that behavior
// down; don't "fix" it without a persistent record id to match on, which
// the format does not offer.
func Test_Patch_players_duplicate_names(t *testing.T) {
	buf := append_player(nil, "Clone", [4]float32{10, 10, 10, 10})
	buf = append_player(buf, "Clone", [4]float32{20, 20, 20, 20})
	buf = append(buf, make([]byte, 64)...)

	sg := &types.Savegame{Framing: types.FRAME_RAW, Data: buf}
	sg.Players = readers.Find_players(buf, nil)
	if len(sg.Players) != 2 {
		t.Fatalf("fixture broken: %v players", len(sg.Players))
	}

	sg.Edit(1, [4]float32{111, 111, 111, 111})
	sg.Edit(2, [4]float32{222, 222, 222, 222})

	missed := Patch_players(sg, nil)

	anchors := readers.Find_anchors(sg.Data)
	if got := read_raw_block(sg.Data, anchors[0]); got != [4]float32{111, 111, 111, 111} {
		t.Errorf("first duplicate not patched: %v", got)
	}
	if got := read_raw_block(sg.Data, anchors[1]); got != [4]float32{20, 20, 20, 20} {
		t.Errorf("second duplicate should have been left alone, got %v", got)
	}
	if len(missed) != 0 {
		t.Errorf("duplicate names are invisible to the missed list, got %v", missed)
	}
}

func Test_Repack(t *testing.T) {
	plain := append_player(nil, "Ace Pilot", [4]float32{1, 2, 3, 4})
	plain = append(plain, make([]byte, 64)...)

	packed, err := Repack(plain)
	if err != nil {
		t.Fatal(err)
	}

	data, framing, err := readers.Decompress(packed, nil)
	if err != nil {
		t.Fatalf("repacked data failed to decompress: %v", err)
	}
	if framing != types.FRAME_RAW {
		t.Errorf("repack should always emit raw deflate, detected %v", framing)
	}
	if !bytes.Equal(data, plain) {
		t.Error("repack round trip mangled the buffer")
	}
}

func Test_Backup_idempotence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1.ga2")
	original := []byte("the original file")
	if err := os.WriteFile(path, original, 0644); err != nil {
		t.Fatal(err)
	}

	if err := Backup(path); err != nil {
		t.Fatal(err)
	}

	// Change the file, back up again - the backup must not move
	if err := os.WriteFile(path, []byte("changed"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Backup(path); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path + ".backup")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("backup overwritten: %q", got)
	}
}

func Test_Write_savegame_roundtrip(t *testing.T) {
	plain := append_player(nil, "Ace Pilot", [4]float32{10, 20, 30, 40})
	plain = append_player(plain, "Darth", [4]float32{50, 60, 70, 80})
	plain = append(plain, make([]byte, 64)...)

	out := &bytes.Buffer{}
	zw := zlib.NewWriter(out)
	zw.Write(plain)
	zw.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "1.ga2")
	if err := os.WriteFile(path, out.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	sg, err := readers.Read_savegame(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Zero edits: load-save-reload must reproduce the registry bit for bit
	missed, err := Write_savegame(sg, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(missed) != 0 {
		t.Errorf("unmatched players on a clean save: %v", missed)
	}

	again, err := readers.Read_savegame(path, nil)
	if err != nil {
		t.Fatalf("rewritten save failed to load: %v", err)
	}
	// Note the framing changed from zlib to raw on the way through; the
	// registry must not care.
	if again.Framing != types.FRAME_RAW {
		t.Errorf("rewritten save framing: %v", again.Framing)
	}
	if len(again.Players) != len(sg.Players) {
		t.Fatalf("player count changed: %v -> %v", len(sg.Players), len(again.Players))
	}
	for i := range sg.Players {
		if again.Players[i].Name != sg.Players[i].Name ||
			again.Players[i].Index != sg.Players[i].Index ||
			again.Players[i].Resources != sg.Players[i].Resources {
			t.Errorf("player %v changed: %+v -> %+v", i+1, sg.Players[i], again.Players[i])
		}
	}

	if _, err := os.Stat(path + ".backup"); err != nil {
		t.Errorf("no backup created: %v", err)
	}
}
