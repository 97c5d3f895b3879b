package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"housing-forest/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	DatasetPath string
	ModelPath   string
	DataPath    string

	BindAddr     string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheSize    int

	LogLevel  string
	LogFormat string
	LogFile   string

	Forest ForestSettings
}

// ForestSettings holds the trainer hyper-parameters.
type ForestSettings struct {
	NumTrees        int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	Seed            int64
	TestSize        float64
	Workers         int
}

type ConfigFile struct {
	Paths struct {
		Dataset string `yaml:"dataset"`
		Model   string `yaml:"model"`
		Data    string `yaml:"data"`
	} `yaml:"paths"`

	Server struct {
		BindAddr     string `yaml:"bindAddr"`
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"readTimeout"`
		WriteTimeout string `yaml:"writeTimeout"`
		CacheSize    *int   `yaml:"cacheSize"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`

	Forest struct {
		NumTrees        int     `yaml:"numTrees"`
		MaxDepth        int     `yaml:"maxDepth"`
		MinSamplesSplit int     `yaml:"minSamplesSplit"`
		MinSamplesLeaf  int     `yaml:"minSamplesLeaf"`
		MaxFeatures     int     `yaml:"maxFeatures"`
		Seed            *int64  `yaml:"seed"`
		TestSize        float64 `yaml:"testSize"`
		Workers         int     `yaml:"workers"`
	} `yaml:"forest"`
}

// Load reads settings from CONFIG_FILE when set, otherwise from the
// environment. A .env file in the working directory is applied first.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	readTimeout, err := time.ParseDuration(config.Server.ReadTimeout)
	if err != nil {
		readTimeout = 10 * time.Second
	}
	writeTimeout, err := time.ParseDuration(config.Server.WriteTimeout)
	if err != nil {
		writeTimeout = 30 * time.Second
	}

	seed := int64(common.DefaultSeed)
	if config.Forest.Seed != nil {
		seed = *config.Forest.Seed
	}
	cacheSize := common.DefaultCacheSize
	if config.Server.CacheSize != nil {
		cacheSize = *config.Server.CacheSize
	}

	settings := Settings{
		DatasetPath:  getEnvOrDefault(common.EnvDatasetPath, orString(config.Paths.Dataset, common.DefaultDatasetPath)),
		ModelPath:    getEnvOrDefault(common.EnvModelPath, orString(config.Paths.Model, common.DefaultModelPath)),
		DataPath:     getEnvOrDefault(common.EnvDataPath, config.Paths.Data),
		BindAddr:     getEnvOrDefault(common.EnvBindAddr, orString(config.Server.BindAddr, common.DefaultBindAddr)),
		Port:         getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		ReadTimeout:  getDurationOrDefault(common.EnvReadTimeout, readTimeout),
		WriteTimeout: getDurationOrDefault(common.EnvWriteTimeout, writeTimeout),
		CacheSize:    getIntOrDefault(common.EnvCacheSize, cacheSize),
		LogLevel:     getEnvOrDefault(common.EnvLogLevel, orString(config.Log.Level, common.DefaultLogLevel)),
		LogFormat:    getEnvOrDefault(common.EnvLogFormat, orString(config.Log.Format, common.DefaultLogFormat)),
		LogFile:      getEnvOrDefault(common.EnvLogFile, config.Log.File),
		Forest: ForestSettings{
			NumTrees:        getIntFromEnvOrConfig(common.EnvNumTrees, config.Forest.NumTrees, common.DefaultNumTrees),
			MaxDepth:        getIntFromEnvOrConfig(common.EnvMaxDepth, config.Forest.MaxDepth, 0),
			MinSamplesSplit: getIntFromEnvOrConfig(common.EnvMinSamplesSplit, config.Forest.MinSamplesSplit, common.DefaultMinSamplesSplit),
			MinSamplesLeaf:  getIntFromEnvOrConfig(common.EnvMinSamplesLeaf, config.Forest.MinSamplesLeaf, common.DefaultMinSamplesLeaf),
			MaxFeatures:     getIntFromEnvOrConfig(common.EnvMaxFeatures, config.Forest.MaxFeatures, 0),
			Seed:            getInt64OrDefault(common.EnvSeed, seed),
			TestSize:        getFloatFromEnvOrConfig(common.EnvTestSize, config.Forest.TestSize, common.DefaultTestSize),
			Workers:         getIntFromEnvOrConfig(common.EnvWorkers, config.Forest.Workers, 0),
		},
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DatasetPath:  getEnvOrDefault(common.EnvDatasetPath, common.DefaultDatasetPath),
		ModelPath:    getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		DataPath:     os.Getenv(common.EnvDataPath), // optional
		BindAddr:     getEnvOrDefault(common.EnvBindAddr, common.DefaultBindAddr),
		Port:         getIntOrDefault(common.EnvPort, common.DefaultPort),
		ReadTimeout:  getDurationOrDefault(common.EnvReadTimeout, 10*time.Second),
		WriteTimeout: getDurationOrDefault(common.EnvWriteTimeout, 30*time.Second),
		CacheSize:    getIntOrDefault(common.EnvCacheSize, common.DefaultCacheSize),
		LogLevel:     getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:    getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		LogFile:      os.Getenv(common.EnvLogFile),
		Forest: ForestSettings{
			NumTrees:        getIntOrDefault(common.EnvNumTrees, common.DefaultNumTrees),
			MaxDepth:        getIntOrDefault(common.EnvMaxDepth, 0), // unlimited
			MinSamplesSplit: getIntOrDefault(common.EnvMinSamplesSplit, common.DefaultMinSamplesSplit),
			MinSamplesLeaf:  getIntOrDefault(common.EnvMinSamplesLeaf, common.DefaultMinSamplesLeaf),
			MaxFeatures:     getIntOrDefault(common.EnvMaxFeatures, 0), // all features
			Seed:            getInt64OrDefault(common.EnvSeed, common.DefaultSeed),
			TestSize:        getFloatOrDefault(common.EnvTestSize, common.DefaultTestSize),
			Workers:         getIntOrDefault(common.EnvWorkers, 0),
		},
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// Addr returns the listen address of the predictor service.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddr, s.Port)
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

// validateSettings rejects values the trainer or the service cannot run with
func validateSettings(settings *Settings) error {
	if settings.DatasetPath == "" {
		return fmt.Errorf("dataset path cannot be empty")
	}
	if settings.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}
	if settings.ReadTimeout < time.Second || settings.ReadTimeout > 5*time.Minute {
		return fmt.Errorf("read timeout must be between 1s and 5m, got %v", settings.ReadTimeout)
	}
	if settings.WriteTimeout < time.Second || settings.WriteTimeout > 5*time.Minute {
		return fmt.Errorf("write timeout must be between 1s and 5m, got %v", settings.WriteTimeout)
	}
	if settings.CacheSize < 0 || settings.CacheSize > common.MaxCacheSize {
		return fmt.Errorf("cache size must be between 0 and %d, got %d", common.MaxCacheSize, settings.CacheSize)
	}

	switch settings.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", settings.LogFormat)
	}

	f := settings.Forest
	if f.NumTrees <= 0 || f.NumTrees > common.MaxNumTrees {
		return fmt.Errorf("number of trees must be between 1 and %d, got %d", common.MaxNumTrees, f.NumTrees)
	}
	if f.MaxDepth < 0 {
		return fmt.Errorf("max depth cannot be negative, got %d", f.MaxDepth)
	}
	if f.MinSamplesSplit < 2 {
		return fmt.Errorf("min samples split must be at least 2, got %d", f.MinSamplesSplit)
	}
	if f.MinSamplesLeaf < 1 {
		return fmt.Errorf("min samples leaf must be at least 1, got %d", f.MinSamplesLeaf)
	}
	if f.MaxFeatures < 0 {
		return fmt.Errorf("max features cannot be negative, got %d", f.MaxFeatures)
	}
	if f.TestSize < common.MinTestSize || f.TestSize > common.MaxTestSize {
		return fmt.Errorf("test size must be between %.1f and %.1f, got %f", common.MinTestSize, common.MaxTestSize, f.TestSize)
	}
	if f.Workers < 0 || f.Workers > common.MaxTrainWorker {
		return fmt.Errorf("train workers must be between 0 and %d, got %d", common.MaxTrainWorker, f.Workers)
	}

	return nil
}
