package writers

// Write side of the SWGB savegame container: patch edited resource blocks
// back into the decompressed buffer, recompress, and put the file back on
// disk (after a backup - this tool is perfectly capable of trashing a
// save).

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"swgbdump/readers"
	"swgbdump/types"
)

// Patch_players writes every player's resource tuple back over its record
// in the buffer.  Returns the names of players that could not be matched
// to any anchor; those edits are lost, but the rest of the save is still
// good, so this is a warning list rather than an error.
//
// Anchors are re-derived from scratch instead of being cached from the
// load: load and save are independent passes, and an offset remembered
// across a session would be a liability if record sizes ever shifted.
// Records are matched back to players purely by re-running the name
// heuristics and comparing strings - the format gives us no player id to
// do better with.  Duplicate names therefore all land on the first anchor
// that resolves to that name, and a name that happens to re-resolve
// differently than it did at load time is simply missed.
func Patch_players(sg *types.Savegame, sink types.Sink) []string {
	patched := map[string]bool{}

	for _, anchor := range readers.Find_anchors(sg.Data) {
		if anchor+readers.Resource_offset+readers.Resource_size > len(sg.Data) {
			// too close to the end to hold a resource block
			continue
		}

		var hit *types.Player
		readers.Scan_names(sg.Data, anchor, func(name string, offset int) bool {
			for _, p := range sg.Players {
				if p.Name == name && !patched[p.Name] {
					hit = p
					return true
				}
			}
			// Valid name, but nobody unpatched answers to it - keep
			// scanning the window.
			return false
		})
		if hit == nil {
			continue
		}

		write_resources(sg.Data, anchor, hit.Resources)
		patched[hit.Name] = true
		sink.Send(types.Event{Kind: types.EV_PATCH, Offset: anchor, Name: hit.Name,
			Text: fmt.Sprintf("patched %q at offset %v", hit.Name, anchor+readers.Resource_offset)})
	}

	missed := []string{}
	for _, p := range sg.Players {
		if !patched[p.Name] {
			missed = append(missed, p.Name)
			sink.Send(types.Event{Kind: types.EV_UNMATCHED, Name: p.Name,
				Text: fmt.Sprintf("could not re-match %q to any record", p.Name)})
		}
	}

	return missed
}

// write_resources stores a canonical [wood, food, nova, ore] tuple back
// in raw file order - the inverse of the swap Read_resources applies.
func write_resources(data []byte, anchor int, resources [4]float32) {
	raw := [4]float32{resources[1], resources[0], resources[2], resources[3]}

	start := anchor + readers.Resource_offset
	for i, v := range raw {
		binary.LittleEndian.PutUint32(data[start+4*i:], math.Float32bits(v))
	}
}

// Repack compresses a patched buffer for writing.  Always raw deflate at
// maximum compression, whatever framing the file was originally read
// with - the game accepts it, and it's the only configuration that has
// been tested to re-load.  A zlib-framed original will come back raw; a
// known format-fidelity gap, kept deliberately.
func Repack(data []byte) ([]byte, error) {
	out := &bytes.Buffer{}
	fw, err := flate.NewWriter(out, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

// Backup copies the file at path to path+".backup", once.  An existing
// backup is never overwritten: the first backup is the pristine one.
func Backup(path string) error {
	backup := path + ".backup"
	if _, err := os.Stat(backup); err == nil {
		return nil
	}

	original, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return os.WriteFile(backup, original, 0644)
}

// Write_savegame is the whole save pass: patch the registry's edits into
// the buffer, back up the file on disk, recompress, overwrite.  The
// returned names are players whose edits could not be applied (see
// Patch_players); the write itself still happens.
func Write_savegame(sg *types.Savegame, path string, sink types.Sink) ([]string, error) {
	missed := Patch_players(sg, sink)

	if err := Backup(path); err != nil {
		return missed, err
	}

	packed, err := Repack(sg.Data)
	if err != nil {
		return missed, err
	}

	if err := os.WriteFile(path, packed, 0644); err != nil {
		return missed, err
	}

	return missed, nil
}
