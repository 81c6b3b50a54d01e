package main

// savegame resource editor for Star Wars: Galactic Battlegrounds
//
// example usage:
//
// swgbdump dump 1.ga2
// swgbdump load 1.ga2
// swgbdump get
// swgbdump set Vader food:10000
// swgbdump set "Player 2" carbon:5000,nova:2500
// swgbdump save
// swgbdump watch

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/ini.v1"

	"swgbdump/readers"
	"swgbdump/tables"
	"swgbdump/types"
	"swgbdump/watcher"
	"swgbdump/writers"
)

// Evil global variables
var g_stash_filename = "swgbdump.tmp"

// parse_args strips a "--dir <path>" override out of the argument list
// and returns whatever remains as the command and its arguments.
func parse_args(argv []string) (string, []string) {
	dir := ""
	args := []string{}
	for i := 0; i < len(argv); i++ {
		if argv[i] == "--dir" && i+1 < len(argv) {
			dir = argv[i+1]
			i++
			continue
		}
		args = append(args, argv[i])
	}
	return dir, args
}

func get_dir(override string) string {
	if override != "" {
		return override
	}

	// dir from ini file
	cfg, err := ini.Load("swgbdump.ini")
	if err == nil {
		// Classic read of values, default section can be represented as empty string
		dir := cfg.Section("").Key("dir").String()
		if dir != "" {
			return dir
		}
	}

	wd, _ := os.Getwd()
	return wd
}

func full_filename(dir string, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// smash smashes "funny characters" (which includes anything that's remotely tricky to type into a command line) in a string into the '_' character
func smash(in string) string {
	out := ""
	for _, c := range in {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			out += string(c)
		} else {
			out += "_"
		}
	}
	return out
}

// string matching functions, in strictly increasing order of desperation
var fuzzy = []func(input string, candidate string) bool{
	func(i string, c string) bool { return i == c },
	func(i string, c string) bool { return strings.ToUpper(i) == strings.ToUpper(c) },
	func(i string, c string) bool { return smash(strings.ToUpper(i)) == smash(strings.ToUpper(c)) },
	func(i string, c string) bool {
		return strings.HasPrefix(smash(strings.ToUpper(c)), smash(strings.ToUpper(i)))
	},
	func(i string, c string) bool {
		return strings.Contains(smash(strings.ToUpper(c)), smash(strings.ToUpper(i)))
	},
}

// fuzzy_reverse_lookup looks up "backwards" in a translation map
//
// trans: map to be looked up in
// to: map value
// what: type of thing to be looked up, as a human-readable string
//
// Returns: K: lookup result key, string: lookup result value (not necessarily equal to "to" due to fuzzy matching)
func fuzzy_reverse_lookup[K comparable](trans map[K]string, to string, what string) (K, string, error) {
	var K0 K

	for _, match := range fuzzy {
		matches := []K{}
		names := []string{}
		for k, v := range trans {
			if match(to, v) {
				matches = append(matches, k)
				names = append(names, v)
			}
		}
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			return K0, "", errors.New(fmt.Sprint("Ambiguous argument: ", to, " could be anything from {", strings.Join(names, ", "), "}"))
		}

		return matches[0], names[0], nil
	}

	return K0, "", errors.New(to + " could not be matched to a valid value for " + what)
}

// console_sink prints the core's narration, one step per line, the way
// the original tool did.
func console_sink(e types.Event) {
	fmt.Println(e.Text)
}

func main() {
	err := main2()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func main2() error {
	dir_arg, args := parse_args(os.Args[1:])

	arg := "help"
	if len(args) < 1 {
		fmt.Println("No args detected - falling back to \"help\", since you clearly need it...")
	} else {
		arg = args[0]
	}

	switch arg {
	case "help":
		help_text := []string{
			"SWGB Save Game Resource Editor",
			"",
			"Commands:",
			"help: display this text",
			"dump (filename): decompress a save and narrate everything found in it",
			"load (filename): load a save from the save directory",
			"get: display all players and their resources",
			"get (player): display one player",
			"set (player) (resource:value[,resource:value...]): change resources",
			"save: patch the loaded save and write it back (a .backup is kept)",
			"watch: monitor the save directory and dump each save as the game writes it",
			"",
			"Resources are:",
		}
		for slot := 0; slot < tables.RES_COUNT; slot++ {
			help_text = append(help_text, "   "+tables.Display_names[slot])
		}
		help_text = append(help_text, []string{
			"",
			"Notes:",
			"   The save directory comes from \"--dir\", the \"dir\" key of swgbdump.ini,",
			"or failing both, the working directory.",
			"   It is usually not necessary to type the full name of a player or",
			"resource; e.g. \"car\" will be recognized as \"Carbon\".",
			"   Player records are found heuristically - there is no real format",
			"spec - so a scan finding nothing does not necessarily mean the save",
			"is broken.",
		}...)

		for _, ht := range help_text {
			fmt.Println(ht)
		}

	case "dump":
		if len(args) < 2 {
			return errors.New("Dump what?  Filename expected.")
		}
		filename := full_filename(get_dir(dir_arg), args[1])

		raw, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		fmt.Printf("Compressed size: %v bytes\n", len(raw))

		sg, err := readers.Parse_savegame(raw, console_sink)
		if err != nil {
			return err
		}

		fmt.Println()
		for _, anchor := range readers.Find_anchors(sg.Data) {
			fmt.Printf("Context at offset %v:\n", anchor)
			fmt.Println(hex_dump(sg.Data, anchor, 64))
		}

		print_players(filename, sg)

	case "load":
		if len(args) < 2 {
			return errors.New("Load what?  Filename expected.")
		}
		filename := full_filename(get_dir(dir_arg), args[1])

		sg, err := readers.Read_savegame(filename, console_sink)
		if err != nil {
			return err
		}
		fmt.Printf("Loaded %v (%v players)\n", filename, len(sg.Players))

		return stash(filename, sg)

	case "get":
		filename, sg, err := retrieve()
		if err != nil {
			return err
		}

		if len(args) < 2 {
			print_players(filename, sg)
			return nil
		}

		player, _, err := lookup_player(sg, args[1])
		if err != nil {
			return err
		}
		print_player(player)

	case "set":
		if len(args) < 2 {
			return errors.New("Set which player?  e.g. \"set Vader food:10000\"")
		}

		filename, sg, err := retrieve()
		if err != nil {
			return err
		}

		player, matched, err := lookup_player(sg, args[1])
		if err != nil {
			return err
		}

		if len(args) < 3 {
			str := "Set " + matched + "'s what?  Expected e.g. \"food:10000\".  Resources are:"
			for slot := 0; slot < tables.RES_COUNT; slot++ {
				str += "\n" + tables.Display_names[slot]
			}
			return errors.New(str)
		}

		resources := player.Resources
		for _, assignment := range strings.Split(args[2], ",") {
			bits := strings.SplitN(assignment, ":", 2)
			if len(bits) != 2 {
				return errors.New("Expected \"resource:value\", got \"" + assignment + "\"")
			}

			slot, res_matched, err := fuzzy_reverse_lookup(tables.Display_names, bits[0], "resource")
			if err != nil {
				return err
			}

			value, err := strconv.ParseFloat(bits[1], 32)
			if err != nil {
				return err
			}
			if value < 0 || value > tables.Edit_limit {
				return fmt.Errorf("%v must be between 0 and %v", res_matched, int(tables.Edit_limit))
			}

			resources[slot] = float32(value)
			fmt.Printf("%v's %v set to %v\n", matched, res_matched, float32(value))
		}

		if err := sg.Edit(player.Index, resources); err != nil {
			return err
		}

		return stash(filename, sg)

	case "save":
		filename, sg, err := retrieve()
		if err != nil {
			return err
		}

		missed, err := writers.Write_savegame(sg, filename, console_sink)
		if err != nil {
			return err
		}
		if len(missed) > 0 {
			fmt.Println("Warning: could not update resources for players:", strings.Join(missed, ", "))
		}
		fmt.Println("New file written to", filename)

		err = os.Remove(g_stash_filename)
		if err != nil {
			return err
		}
		fmt.Println("Temporary data cleaned up")

	case "watch":
		dir := get_dir(dir_arg)
		fmt.Println("Watching", dir)

		updates := make(chan *watcher.Update)
		w := watcher.New_watcher(dir)
		err := w.Start_watching(updates)
		if err != nil {
			return err
		}
		defer w.Stop_watching()

		for update := range updates {
			if update.Err != nil {
				fmt.Println("Error:", update.Err)
				continue
			}
			print_players(update.Path, update.Save)
		}

	default:
		return errors.New("Unknown command \"" + arg + "\".  Try \"help\".")
	}

	return nil
}

func lookup_player(sg *types.Savegame, who string) (*types.Player, string, error) {
	if len(sg.Players) == 0 {
		return nil, "", errors.New("No players in the loaded save")
	}

	by_index := map[int]string{}
	for _, p := range sg.Players {
		by_index[p.Index] = p.Name
	}

	index, matched, err := fuzzy_reverse_lookup(by_index, who, "player")
	if err != nil {
		return nil, "", err
	}
	return sg.Players[index-1], matched, nil
}

func print_players(filename string, sg *types.Savegame) {
	fmt.Println()
	fmt.Println("Save File:", filename)
	fmt.Printf("Size: %v bytes (framing=%v)\n", len(sg.Data), sg.Framing)
	fmt.Println("Players:")

	if len(sg.Players) == 0 {
		fmt.Println("  (none found)")
		return
	}
	for _, player := range sg.Players {
		print_player(player)
	}
}

func print_player(player *types.Player) {
	fmt.Printf("\n%v (Player %v):\n", player.Name, player.Index)
	for slot := 0; slot < tables.RES_COUNT; slot++ {
		fmt.Printf("  %-7v %.0f\n", tables.Display_names[slot]+":", player.Resources[slot])
	}
}

// hex_dump renders up to length bytes starting at offset, 16 per line,
// with an ASCII gutter.  Same layout the original debugging output used.
func hex_dump(data []byte, offset int, length int) string {
	end := min(offset+length, len(data))

	lines := []string{}
	for i := offset; i < end; i += 16 {
		chunk := data[i:min(i+16, end)]

		hex_part := ""
		ascii_part := ""
		for _, b := range chunk {
			hex_part += fmt.Sprintf("%02x ", b)
			if b >= 32 && b <= 126 {
				ascii_part += string(rune(b))
			} else {
				ascii_part += "."
			}
		}
		lines = append(lines, fmt.Sprintf("%08x: %-48v |%v|", i, hex_part, ascii_part))
	}

	return strings.Join(lines, "\n")
}

func stash(filename string, sg *types.Savegame) error {
	f, err := os.Create(g_stash_filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	encoder := gob.NewEncoder(w)
	err = encoder.Encode(filename)
	if err != nil {
		return err
	}
	err = encoder.Encode(sg)
	if err != nil {
		return err
	}
	w.Flush()
	f.Sync()

	return nil
}

func retrieve() (string, *types.Savegame, error) {
	f, err := os.Open(g_stash_filename)
	if err != nil {
		return "", nil, errors.New("No save loaded (" + err.Error() + ")")
	}
	defer f.Close()

	decoder := gob.NewDecoder(bufio.NewReader(f))
	var filename string
	sg := types.Savegame{}
	err = decoder.Decode(&filename)
	if err != nil {
		return "", nil, err
	}
	err = decoder.Decode(&sg)
	if err != nil {
		return "", nil, err
	}

	return filename, &sg, nil
}
