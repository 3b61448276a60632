package minions

import "github.com/tidwall/gjson"

// TallyConformity counts the per-state results of a highstate return
// document. Each value of the return object is one applied state; a true
// result is a success, false is an error, and null means the state would
// change (incorrect). Non-object values are skipped.
func TallyConformity(doc string) Conformity {
	conformity := Conformity{Doc: doc}
	gjson.Parse(doc).ForEach(func(_, state gjson.Result) bool {
		if !state.IsObject() {
			return true
		}
		result := state.Get("result")
		switch {
		case result.Type == gjson.True:
			conformity.Success++
		case result.Type == gjson.False:
			conformity.Error++
		case result.Type == gjson.Null && result.Exists():
			// An explicit null: the state would change on a real run.
			conformity.Incorrect++
		}
		return true
	})
	return conformity
}
