// Package export persists decoded DRI values.
//
// CSVWriter and JSONWriter stream every value to a file as it arrives.
// Store keeps measurements and alarm events in a bbolt database for later
// trend queries:
//
//	store, err := export.OpenStore("trends.db")
//	...
//	session := protocol.NewSession(port, link, nil, export.Multi(csvw, store))
//	...
//	points, err := store.Query(protocol.ParamHeartRate, from, to)
//
// All writers implement protocol.Handler. They are driven from a single
// session goroutine; Store alone is safe for concurrent use.
package export
