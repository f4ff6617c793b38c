package pgstore

import "errors"

var (
	ErrQueryFailed = errors.New("pgstore: query failed")
	ErrScanFailed  = errors.New("pgstore: failed to scan row")
)
