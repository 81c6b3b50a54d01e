package tables

// Known facts about the SWGB savegame layout.

// Resource slots in canonical record order (after the read-side swap in
// readers).  Slot 0 is "wood" in the game data but the UI calls it Carbon.
const (
	RES_WOOD = iota
	RES_FOOD
	RES_NOVA
	RES_ORE

	RES_COUNT
)

// Display_names is keyed by canonical slot, in the game UI's wording.
var Display_names = map[int]string{
	RES_WOOD: "Carbon",
	RES_FOOD: "Food",
	RES_NOVA: "Nova",
	RES_ORE:  "Ore",
}

// Edit_limit is the largest value the editor will accept for a resource.
// Note that it is wider than the range the scanner trusts during
// discovery (readers.RES_MAX): a stockpile pushed past 100000 will make
// that record fail validation on the next load.
const Edit_limit = 1000000.0

// Save file extensions the game writes.  .ga2 is a saved multiplayer/
// scenario game, .gam a campaign save.
var Save_extensions = []string{".GA2", ".GAM"}
