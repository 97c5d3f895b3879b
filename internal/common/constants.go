package common

// Environment variable keys
const (
	EnvConfigFile      = "CONFIG_FILE"
	EnvDatasetPath     = "DATASET_PATH"
	EnvModelPath       = "MODEL_PATH"
	EnvDataPath        = "DATA_PATH"
	EnvBindAddr        = "BIND_ADDR"
	EnvPort            = "PORT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvLogFile         = "LOG_FILE"
	EnvNumTrees        = "NUM_TREES"
	EnvMaxDepth        = "MAX_DEPTH"
	EnvMinSamplesSplit = "MIN_SAMPLES_SPLIT"
	EnvMinSamplesLeaf  = "MIN_SAMPLES_LEAF"
	EnvMaxFeatures     = "MAX_FEATURES"
	EnvSeed            = "SEED"
	EnvTestSize        = "TEST_SIZE"
	EnvWorkers         = "TRAIN_WORKERS"
	EnvCacheSize       = "PREDICT_CACHE_SIZE"
	EnvReadTimeout     = "HTTP_READ_TIMEOUT"
	EnvWriteTimeout    = "HTTP_WRITE_TIMEOUT"
)

// Configuration defaults
const (
	DefaultDatasetPath     = "Housing.csv"
	DefaultModelPath       = "app/model.json"
	DefaultBindAddr        = "0.0.0.0"
	DefaultPort            = 9000
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
	DefaultNumTrees        = 100
	DefaultMinSamplesSplit = 2
	DefaultMinSamplesLeaf  = 1
	DefaultSeed            = 42
	DefaultTestSize        = 0.2
	DefaultCacheSize       = 4096
)

// Dataset layout
const (
	TargetColumn      = "price"
	FurnishingColumn  = "furnishingstatus"
	ServingFeatureLen = 13
)

// BinaryColumns are the yes/no columns of the housing dataset.
var BinaryColumns = []string{
	"mainroad",
	"guestroom",
	"basement",
	"hotwaterheating",
	"airconditioning",
	"prefarea",
}

// Predict endpoint error messages
const (
	ErrMsgInvalidJSON      = "Invalid JSON body"
	ErrMsgMissingFeatures  = "Missing 'features' key"
	ErrMsgFeaturesNotList  = "'features' must be a list"
	ErrMsgRowShape         = "Each input must be a list with 13 values"
	ErrMsgNonNumeric       = "Each input must contain only numeric values"
	ErrMsgPredictionFailed = "prediction failed"
)

// LivenessMessage is the body served on the root endpoint.
const LivenessMessage = "ML Model is Running"

// Validation constants
const (
	MinPort        = 1024
	MaxPort        = 65535
	MaxNumTrees    = 5000
	MinTestSize    = 0.0
	MaxTestSize    = 0.9
	MaxCacheSize   = 1 << 20
	MaxTrainWorker = 256
)
