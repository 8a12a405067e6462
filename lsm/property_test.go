package lsm

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/mwillis/kvengines/common/testutil"
)

// TestPointLookupRoundTripProperty replays randomized set/delete sequences
// against the store and checks every read against a reference map,
// covering round-trip, overwrite, and delete-after-set semantics.
func TestPointLookupRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	type op struct {
		Key    string
		Value  string
		Delete bool
	}

	properties.Property("replaying a random op sequence matches a reference map", prop.ForAll(
		func(ops []op) bool {
			dir := filepath.Join(testutil.TempDir(t), fmt.Sprintf("prop-%d", len(ops)))
			tree, err := Open(dir, Options{MaxMemtableEntries: 8, MaxSSTables: 3})
			if err != nil {
				return false
			}
			defer tree.Close()

			reference := map[string]string{}
			deleted := map[string]bool{}

			for _, o := range ops {
				if o.Delete {
					if err := tree.Delete(o.Key); err != nil {
						return false
					}
					deleted[o.Key] = true
					delete(reference, o.Key)
					continue
				}
				if err := tree.Set(o.Key, []byte(o.Value)); err != nil {
					return false
				}
				reference[o.Key] = o.Value
				delete(deleted, o.Key)
			}

			for k, want := range reference {
				got, found, err := tree.Get(k)
				if err != nil || !found || string(got) != want {
					return false
				}
			}
			for k := range deleted {
				if _, stillThere := reference[k]; stillThere {
					continue
				}
				_, found, err := tree.Get(k)
				if err != nil || found {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(60, gen.Struct(gopter.DeriveGenParams(op{}), map[string]gopter.Gen{
			"Key":    gen.OneConstOf("a", "b", "c", "d", "e"),
			"Value":  gen.AlphaString(),
			"Delete": gen.Bool(),
		})),
	))

	properties.TestingRun(t)
}
