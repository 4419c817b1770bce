// Package deviceset provides the slot registry and command dispatch engine
// for a fleet of related devices (for example the axes of a mount or the
// actuators of a mirror).
//
// # Slots
//
// A Set has a fixed, ordered list of slot names that is independent of the
// devices themselves. A slot may be empty, and the device in a slot may be
// swapped at runtime with ReplaceDevice. For example a telescope axis set
// might have slots ("az", "alt", "rot") where "rot" holds whichever
// instrument rotator is currently mounted, or nothing at all.
//
// # Dispatch
//
// StartCommand and StartCommandMap issue one command (or an ordered command
// sequence) per slot, track every device command, and resolve a single
// governing command once all of them are terminal:
//
//	gov, err := set.StartCommandMap([]deviceset.SlotCommand{
//	    {Slot: "az", Commands: []string{"move 120"}},
//	    {Slot: "alt", Commands: []string{"init", "move 45"}},
//	}, deviceset.RunOptions{
//	    OnEach: func(info deviceset.CmdInfo) (*command.Command, error) {
//	        if info.Cmd.DidFail() {
//	            return info.Device.StartCommand("init", deviceset.DefaultTimeLimit), nil
//	        }
//	        return nil, nil
//	    },
//	})
//
// The governing command ends Done, or Failed with a message naming every
// failed slot in the order the failures were detected. An OnEach callback may
// return a follow-up command for its slot; the run then also waits for that
// command before resolving.
//
// # Concurrency
//
// A Set is not safe for concurrent use. All methods, and every device command
// callback, must run on the owning reactor loop (see internal/reactor). This
// single-threaded model is what makes slot replacement and run bookkeeping
// race-free without locks.
package deviceset
