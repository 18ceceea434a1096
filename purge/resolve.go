package purge

import (
	"net/http"

	"github.com/digineo/purged/keytpl"
)

// WildcardMarker terminates keys of prefix purges.
const WildcardMarker = '*'

// Resolve evaluates tpl for r. A key ending in WildcardMarker requests a
// prefix purge. No other wildcard position is recognized.
func Resolve(tpl *keytpl.Template, r *http.Request, captures []string) (key string, isPrefix bool, err error) {
	key, err = tpl.Eval(r, captures)
	if err != nil {
		return "", false, KeyEvaluationError(err)
	}
	return key, key[len(key)-1] == WildcardMarker, nil
}
