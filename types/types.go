package types

import (
	"errors"
	"fmt"
)

// Err_decode means every known framing failed on the compressed file.
// There is no partial recovery from this; without a decompressed buffer
// nothing else can run.
var Err_decode = errors.New("failed to decompress save file")

// Framing identifies which deflate framing a savegame was compressed with.
// The game is not consistent about this, so reading tries all of them.
type Framing int

const (
	FRAME_ZLIB    Framing = iota // zlib wrapper, default max window
	FRAME_ZLIB_15                // zlib wrapper, window size 15 asked for explicitly
	FRAME_RAW                    // headerless deflate, no checksum
)

func (f Framing) String() string {
	switch f {
	case FRAME_ZLIB:
		return "zlib"
	case FRAME_ZLIB_15:
		return "zlib-15"
	case FRAME_RAW:
		return "raw"
	}
	return fmt.Sprintf("unknown (%v)", int(f))
}

// Player is one player record recovered from the decompressed buffer.
//
// Record format, as far as it is understood:
//   signature 16 db 00 00 00 21
//   four 32-bit little-endian floats (the resource stockpiles)
// The player's name sits somewhere in the 512 bytes before the signature,
// sometimes behind a 09 00 length marker, sometimes bare.
type Player struct {
	Name      string
	Index     int        // 1-based discovery order; only meaningful within one load
	Resources [4]float32 // canonical order: wood (carbon), food, nova, ore
}

// Savegame is one editing session: the decompressed buffer, the framing
// that produced it, and the players found in it.  The buffer is owned
// exclusively by the session and is only ever written by the patching
// pass in writers.
type Savegame struct {
	Framing Framing
	Data    []byte
	Players []*Player
}

// Edit replaces the whole resource tuple of the player with the given
// 1-based index.
func (sg *Savegame) Edit(index int, resources [4]float32) error {
	if index < 1 || index > len(sg.Players) {
		return fmt.Errorf("no player with index %v (have %v)", index, len(sg.Players))
	}
	sg.Players[index-1].Resources = resources
	return nil
}

func (sg *Savegame) Find_player(name string) *Player {
	for _, p := range sg.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// The original tool narrated every step of the scan to stdout.  The core
// here emits Event values through a Sink instead, so the caller decides
// whether that narration is printed, logged or dropped.

type Event_kind int

const (
	EV_DECOMPRESSED Event_kind = iota
	EV_DECOMPRESS_FAILED
	EV_ANCHOR // signature found
	EV_REJECT // resource block failed validation
	EV_ACCEPT // resource block accepted
	EV_NAME   // name recovered from the buffer
	EV_NAME_DEFAULT
	EV_NO_PLAYERS
	EV_PATCH     // resource block overwritten during save
	EV_UNMATCHED // registry player never re-matched during save
)

type Event struct {
	Kind   Event_kind
	Offset int
	Name   string
	Text   string
}

// Sink receives scan/patch events.  A nil Sink discards them.
type Sink func(Event)

func (s Sink) Send(e Event) {
	if s != nil {
		s(e)
	}
}
