package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Coordinator settings are applied without a restart.
	WatchdogChanged    bool
	LogEntriesChanged  bool
	UploadLimitChanged bool

	// RestartRequired lists changed keys that only take effect after a
	// restart, such as the listen address or the model manifest.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.WatchdogChanged && !d.LogEntriesChanged &&
		!d.UploadLimitChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.WatchdogChanged = old.Coordinator.WatchdogTimeout != new.Coordinator.WatchdogTimeout
	d.LogEntriesChanged = old.Coordinator.LogEntries != new.Coordinator.LogEntries
	d.UploadLimitChanged = old.Coordinator.MaxUploadBytes != new.Coordinator.MaxUploadBytes

	restart := func(key string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, key)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.tls", !sameTLS(old.Server.TLS, new.Server.TLS))
	restart("worker.backend", old.Worker.Backend != new.Worker.Backend)
	restart("worker.cache_dir", old.Worker.CacheDir != new.Worker.CacheDir)
	restart("worker.language", old.Worker.Language != new.Worker.Language)
	restart("worker.chunk_length", old.Worker.ChunkLength != new.Worker.ChunkLength)
	restart("worker.stride_length", old.Worker.StrideLength != new.Worker.StrideLength)
	restart("worker.threads", old.Worker.Threads != new.Worker.Threads)
	restart("worker.model_file", old.Worker.ModelFile != new.Worker.ModelFile)
	restart("worker.artifacts", !sameArtifacts(old.Worker, new.Worker))
	restart("decoder", old.Decoder != new.Decoder)

	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameArtifacts(a, b WorkerConfig) bool {
	if len(a.Artifacts) != len(b.Artifacts) {
		return false
	}
	for i := range a.Artifacts {
		if a.Artifacts[i] != b.Artifacts[i] {
			return false
		}
	}
	return true
}
