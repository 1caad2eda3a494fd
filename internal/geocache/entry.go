package geocache

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/carto-collectif/rostermap/pkg/geocode"
)

// entry tolerates both cache formats on disk: the current object form
// {"lat":..,"lon":..} and the legacy two-element [lat, lon] array written
// by earlier versions of the tooling.
type entry struct {
	Result geocode.Result
}

func (e *entry) UnmarshalJSON(data []byte) error {
	var obj geocode.Result
	if err := json.Unmarshal(data, &obj); err == nil {
		e.Result = obj
		return nil
	}

	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return eris.Wrap(err, "geocache: unrecognized entry format")
	}
	if len(pair) < 2 {
		return eris.Errorf("geocache: legacy entry has %d coordinates", len(pair))
	}
	e.Result = geocode.Result{Latitude: pair[0], Longitude: pair[1]}
	return nil
}
