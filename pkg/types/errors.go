package types

import "errors"

// ErrNoData is returned by upstream lookups when the data is absent for
// this account. Callers skip the optional feature instead of failing.
var ErrNoData = errors.New("no data available")
