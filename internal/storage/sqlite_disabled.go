//go:build !sqlite
// +build !sqlite

package storage

import (
	logx "depthview/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	_ = cfg
	_ = log
	return nil, ErrSQLiteUnavailable
}
