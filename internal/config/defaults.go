package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/miru/data/db/items.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/miru/data/indices/vectors.bin"
	}
	if cfg.Storage.MetadataIndexPath == "" {
		cfg.Storage.MetadataIndexPath = "/usr/local/var/miru/data/indices/metadata.bleve"
	}
	if cfg.Oracle.Provider == "" {
		cfg.Oracle.Provider = "remote"
	}
	if cfg.Oracle.Endpoint == "" {
		cfg.Oracle.Endpoint = "http://localhost:8090"
	}
	if cfg.Oracle.Dimensions == 0 {
		cfg.Oracle.Dimensions = 512
	}
	if cfg.Oracle.TimeoutSeconds == 0 {
		cfg.Oracle.TimeoutSeconds = 30
	}
	if cfg.Oracle.CacheSize == 0 {
		cfg.Oracle.CacheSize = 10000
	}
	if cfg.Rocchio.Alpha == nil {
		cfg.Rocchio.Alpha = f64(1.0)
	}
	if cfg.Rocchio.Beta == nil {
		cfg.Rocchio.Beta = f64(0.75)
	}
	if cfg.Rocchio.Gamma == nil {
		cfg.Rocchio.Gamma = f64(0.15)
	}
	if cfg.Compose.AdditiveLambda == nil {
		cfg.Compose.AdditiveLambda = f64(0.5)
	}
	if cfg.Compose.InterpolationAlpha == nil {
		cfg.Compose.InterpolationAlpha = f64(0.6)
	}
	if cfg.Compose.ResidualStrength == nil {
		cfg.Compose.ResidualStrength = f64(0.8)
	}
	if cfg.Compose.AttentionTemperature == nil {
		cfg.Compose.AttentionTemperature = f64(1.0)
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.PseudoTopM == 0 {
		cfg.Search.PseudoTopM = 3
	}
	if cfg.Search.SampleSize == 0 {
		cfg.Search.SampleSize = 200
	}
	if cfg.Session.MaxAgeHours == 0 {
		cfg.Session.MaxAgeHours = 24
	}
	if cfg.Session.ReapIntervalMinutes == 0 {
		cfg.Session.ReapIntervalMinutes = 60
	}
}

func f64(v float64) *float64 {
	return &v
}
