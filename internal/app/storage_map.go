package app

import (
	"depthview/internal/config"
	"depthview/internal/storage"
)

func mapStorageConfig(rt config.Runtime) (storage.Config, bool) {
	if rt.StorageDriver == "" || rt.StorageDriver == "none" {
		return storage.Config{}, false
	}
	return storage.Config{
		Driver:      rt.StorageDriver,
		Path:        rt.StoragePath,
		BusyTimeout: rt.StorageBusyTimeout,
	}, true
}
