package model

// BehaviorFlags are the eight side-effect classifications of a function.
type BehaviorFlags struct {
	ReadsDatabase      bool `json:"readsDatabase"`
	WritesDatabase     bool `json:"writesDatabase"`
	MakesNetworkCalls  bool `json:"makesNetworkCalls"`
	ReadsFiles         bool `json:"readsFiles"`
	WritesFiles        bool `json:"writesFiles"`
	SendsNotifications bool `json:"sendsNotifications"`
	MutatesGlobalState bool `json:"mutatesGlobalState"`
	HasSideEffects     bool `json:"hasSideEffects"`
}

// FlagNames lists the JSON names of every flag in declaration order.
var FlagNames = []string{
	"readsDatabase",
	"writesDatabase",
	"makesNetworkCalls",
	"readsFiles",
	"writesFiles",
	"sendsNotifications",
	"mutatesGlobalState",
	"hasSideEffects",
}

// Get returns the flag named name and whether the name is known.
func (f BehaviorFlags) Get(name string) (bool, bool) {
	switch name {
	case "readsDatabase":
		return f.ReadsDatabase, true
	case "writesDatabase":
		return f.WritesDatabase, true
	case "makesNetworkCalls":
		return f.MakesNetworkCalls, true
	case "readsFiles":
		return f.ReadsFiles, true
	case "writesFiles":
		return f.WritesFiles, true
	case "sendsNotifications":
		return f.SendsNotifications, true
	case "mutatesGlobalState":
		return f.MutatesGlobalState, true
	case "hasSideEffects":
		return f.HasSideEffects, true
	}
	return false, false
}

// Set assigns the flag named name. Unknown names are ignored.
func (f *BehaviorFlags) Set(name string, v bool) {
	switch name {
	case "readsDatabase":
		f.ReadsDatabase = v
	case "writesDatabase":
		f.WritesDatabase = v
	case "makesNetworkCalls":
		f.MakesNetworkCalls = v
	case "readsFiles":
		f.ReadsFiles = v
	case "writesFiles":
		f.WritesFiles = v
	case "sendsNotifications":
		f.SendsNotifications = v
	case "mutatesGlobalState":
		f.MutatesGlobalState = v
	case "hasSideEffects":
		f.HasSideEffects = v
	}
}

// AnyEffect reports whether any flag other than HasSideEffects is set.
func (f BehaviorFlags) AnyEffect() bool {
	return f.ReadsDatabase || f.WritesDatabase || f.MakesNetworkCalls ||
		f.ReadsFiles || f.WritesFiles || f.SendsNotifications || f.MutatesGlobalState
}

// BehaviorResult is the model-derived summary of one function.
type BehaviorResult struct {
	Summary string        `json:"summary"`
	Flags   BehaviorFlags `json:"flags"`
}

// Names returns the names of the set flags in declaration order.
func (f BehaviorFlags) Names() []string {
	var out []string
	for _, name := range FlagNames {
		if v, _ := f.Get(name); v {
			out = append(out, name)
		}
	}
	return out
}
